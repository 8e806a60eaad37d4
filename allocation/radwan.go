package allocation

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/hedge-wan/hedge/lp"
	"github.com/hedge-wan/hedge/topology"
)

// RadwanInput is the tunnel layout and capacity view Radwan re-plans on.
// It is immutable; WithFailedEdges returns a new input.
type RadwanInput struct {
	demandOrder []topology.DemandKey
	edgeOrder   []topology.EdgeKey
	byDemand    map[topology.DemandKey][]string
	byEdge      map[topology.EdgeKey][]string
	amounts     map[topology.DemandKey]float64
	capacities  map[topology.EdgeKey]float64
}

// NewRadwanInput captures the tunnel layout, demand amounts and current
// capacities of net.
func NewRadwanInput(net *topology.Network) *RadwanInput {
	in := &RadwanInput{
		byDemand:   make(map[topology.DemandKey][]string, net.DemandCount()),
		byEdge:     make(map[topology.EdgeKey][]string, net.EdgeCount()),
		amounts:    make(map[topology.DemandKey]float64, net.DemandCount()),
		capacities: make(map[topology.EdgeKey]float64, net.EdgeCount()),
	}
	for _, d := range net.Demands() {
		in.demandOrder = append(in.demandOrder, d.Key)
		in.byDemand[d.Key] = tunnelIDs(d.Tunnels())
		in.amounts[d.Key] = d.Amount
	}
	for _, e := range net.Edges() {
		in.edgeOrder = append(in.edgeOrder, e.Key)
		in.byEdge[e.Key] = tunnelIDs(e.Tunnels())
		in.capacities[e.Key] = e.Capacity
	}
	return in
}

// WithFailedEdges returns a copy whose capacities come from current, with
// every edge in changed set to zero. Edges missing from current keep their
// previous capacity.
func (in *RadwanInput) WithFailedEdges(current topology.CapacityAssignment, changed []topology.EdgeKey) *RadwanInput {
	out := *in
	out.capacities = make(map[topology.EdgeKey]float64, len(in.capacities))
	for key, c := range in.capacities {
		if cur, ok := current.Capacity(key); ok {
			c = cur
		}
		out.capacities[key] = c
	}
	for _, key := range changed {
		if _, ok := out.capacities[key]; ok {
			out.capacities[key] = 0
		}
	}
	return &out
}

func (in *RadwanInput) Capacity(key topology.EdgeKey) float64 { return in.capacities[key] }

func (in *RadwanInput) demandKeys() []topology.DemandKey              { return in.demandOrder }
func (in *RadwanInput) demandTunnels(key topology.DemandKey) []string { return in.byDemand[key] }
func (in *RadwanInput) demandAmount(key topology.DemandKey) float64   { return in.amounts[key] }

// Radwan maximizes throughput on the capacities recorded in the input.
func Radwan(ctx context.Context, solver lp.Solver, in *RadwanInput) (Allocation, error) {
	fm := newFlowModel("radwan", in)
	for _, key := range in.edgeOrder {
		fm.addCapacity(key, in.byEdge[key], in.capacities[key])
	}
	fm.model.SetObjective(fm.throughput(), lp.Maximize)

	sol, err := solver.Solve(ctx, fm.model)
	if err != nil {
		return nil, err
	}
	alloc := fm.allocation(sol)
	log.Debugf("Radwan: demands=%d edges=%d throughput=%.3f", len(in.demandOrder), len(in.edgeOrder), alloc.Total())
	return alloc, nil
}
