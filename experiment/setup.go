// Package experiment prepares a stochastic topology and runs the strategy
// comparison for every demand scale on a worker pool.
package experiment

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/hedge-wan/hedge/path_generation/adapter"
	"github.com/hedge-wan/hedge/scenario"
	"github.com/hedge-wan/hedge/topology"
)

var ErrEdgeWeightKey = errors.New(`edge weight key must be "from:to"`)

// DemandLoader adds the demands of the experiment to a bound network.
type DemandLoader func(net *topology.Network) error

type SetupOptions struct {
	Unity         float64
	Enumerate     scenario.EnumerateOptions
	CoverageFloor float64
	TunnelMethod  string
	K             int
}

// Setup is the scale-independent part of an experiment. It is shared
// read-only between the per-scale tasks.
type Setup struct {
	Name      string
	Links     *scenario.LinkSet
	Low       scenario.BoundNetwork
	High      scenario.BoundNetwork
	Scenarios *scenario.ScenarioSet
}

// Prepare builds the bound networks, loads demands and tunnels into both and
// enumerates the scenarios. It fails when the scenario coverage is below the
// floor or a demand has no tunnel.
func Prepare(name string, links *scenario.LinkSet, demands DemandLoader, opts SetupOptions) (*Setup, error) {
	if opts.Unity <= 0 {
		opts.Unity = scenario.DefaultUnity
	}
	if opts.TunnelMethod == "" {
		opts.TunnelMethod = adapter.MethodKShortest
	}
	if opts.K <= 0 {
		opts.K = adapter.DefaultK
	}

	low, high, err := scenario.Bounds(name, links, opts.Unity)
	if err != nil {
		return nil, fmt.Errorf("bound networks: %w", err)
	}
	for _, bn := range []scenario.BoundNetwork{low, high} {
		if err := demands(bn.Network); err != nil {
			return nil, fmt.Errorf("demands: %w", err)
		}
		if _, err := adapter.GenerateTunnels(bn.Network, opts.TunnelMethod, opts.K); err != nil {
			return nil, fmt.Errorf("tunnels: %w", err)
		}
	}

	set, err := scenario.Enumerate(links, opts.Enumerate)
	if err != nil {
		return nil, fmt.Errorf("scenarios: %w", err)
	}
	if err := set.RequireCoverage(opts.CoverageFloor); err != nil {
		return nil, err
	}

	log.Infof("Prepare: network=%s nodes=%d edges=%d demands=%d tunnels=%d scenarios=%d coverage=%.6f",
		name, high.Network.NodeCount(), high.Network.EdgeCount(), high.Network.DemandCount(),
		high.Network.TunnelCount(), len(set.Scenarios), set.Coverage)
	return &Setup{Name: name, Links: links, Low: low, High: high, Scenarios: set}, nil
}

// ParseEdgeWeights converts "from:to" keyed weights to edge keys.
func ParseEdgeWeights(raw map[string]float64) (map[topology.EdgeKey]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[topology.EdgeKey]float64, len(raw))
	for k, w := range raw {
		from, to, ok := strings.Cut(k, topology.TunnelSeparator)
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("%q: %w", k, ErrEdgeWeightKey)
		}
		out[topology.EdgeKey{From: from, To: to}] = w
	}
	return out, nil
}
