// Package adapter connects topology networks to the path algorithms: it
// converts a network to an adjacency matrix and registers the computed
// routes as tunnels.
package adapter

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/hedge-wan/hedge/path_generation/k_shortest"
	"github.com/hedge-wan/hedge/topology"
)

// DefaultK is the number of tunnels generated per demand.
const DefaultK = 4

// Matrix is a topology network in adjacency-matrix form with hop-count costs.
type Matrix struct {
	Net   k_shortest.Network
	Index map[string]int
}

// ToMatrix converts net, every edge costing one hop regardless of capacity.
func ToMatrix(net *topology.Network) Matrix {
	nodes := net.Nodes()
	ids := make([]string, len(nodes))
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
		index[n.ID] = i
	}
	m := Matrix{Net: k_shortest.NewNetwork(ids), Index: index}
	for _, e := range net.Edges() {
		m.Net.Links[index[e.Key.From]][index[e.Key.To]] = 1
	}
	return m
}

// NodeIDs maps a path of indices back to node ids.
func (m Matrix) NodeIDs(p k_shortest.Path) []string {
	ids := make([]string, len(p.Nodes))
	for i, idx := range p.Nodes {
		ids[i] = m.Net.Nodes[idx]
	}
	return ids
}

// GenerateTunnels computes up to k routes for every demand of net with the
// named method, registers them as tunnels and validates that no demand was
// left without one. It returns the number of tunnels registered.
func GenerateTunnels(net *topology.Network, method string, k int) (int, error) {
	calc, err := globalRegistry.Get(method)
	if err != nil {
		return 0, err
	}
	if k <= 0 {
		return 0, fmt.Errorf("GenerateTunnels: k must be positive, got %d", k)
	}

	m := ToMatrix(net)
	before := net.TunnelCount()
	for _, d := range net.Demands() {
		src, ok := m.Index[d.Key.Src]
		if !ok {
			continue
		}
		dst := m.Index[d.Key.Dst]
		paths := calc.ComputePaths(m.Net, k_shortest.Flow{Source: src, Destination: dst}, k)
		if len(paths) == 0 {
			log.Warnf("GenerateTunnels: no path for demand %s", d)
			continue
		}
		for _, p := range paths {
			if _, err := net.AddTunnel(m.NodeIDs(p)); err != nil {
				return 0, fmt.Errorf("GenerateTunnels %s: %w", d, err)
			}
		}
	}
	added := net.TunnelCount() - before
	log.Infof("GenerateTunnels: network=%s method=%s k=%d demands=%d tunnels=%d",
		net.Name, method, k, net.DemandCount(), added)
	return added, net.Validate()
}
