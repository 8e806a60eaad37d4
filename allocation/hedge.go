package allocation

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/hedge-wan/hedge/lp"
	"github.com/hedge-wan/hedge/scenario"
	"github.com/hedge-wan/hedge/topology"
)

// DefaultHedgeWeight is the overflow penalty of an edge without an explicit
// weight.
const DefaultHedgeWeight = 1.0

type HedgeOptions struct {
	// EdgeWeights scales the expected overflow penalty per edge.
	EdgeWeights map[topology.EdgeKey]float64
	// DefaultWeight applies to edges missing from EdgeWeights; 0 means
	// DefaultHedgeWeight.
	DefaultWeight float64
}

func (o HedgeOptions) weight(key topology.EdgeKey) float64 {
	if w, ok := o.EdgeWeights[key]; ok {
		return w
	}
	if o.DefaultWeight > 0 {
		return o.DefaultWeight
	}
	return DefaultHedgeWeight
}

// StateOverflow is the traffic an edge would drop in one capacity state.
type StateOverflow struct {
	Edge        topology.EdgeKey
	Capacity    float64
	Probability float64
	Overflow    float64
}

type HedgeResult struct {
	Allocation Allocation
	Overflows  []StateOverflow
	Objective  float64
}

// Hedge maximizes throughput minus the expected overflow over every edge
// capacity state:
//
//	max sum(flow) - sum_e sum_s w_e * p_s * overflow_{e,s}
//	diff_{e,s} = flow_e - c_s, overflow_{e,s} >= diff_{e,s}, overflow_{e,s} >= 0
//
// Flows also respect the current capacities of net, normally the maximum
// network.
func Hedge(ctx context.Context, solver lp.Solver, net *topology.Network,
	dists map[topology.EdgeKey]scenario.Distribution, opts HedgeOptions) (*HedgeResult, error) {
	fm := newFlowModel("hedge", networkDemands{net})
	fm.addNetworkCapacities(net)

	var objective lp.Expr
	for _, d := range net.Demands() {
		if d.Amount == 0 {
			continue
		}
		for _, v := range fm.byDemand[d.Key] {
			objective.Add(v, 1)
		}
	}

	type stateVar struct {
		edge  topology.EdgeKey
		state scenario.State
		v     lp.Var
	}
	var overflows []stateVar
	for _, e := range net.Edges() {
		dist, ok := dists[e.Key]
		if !ok {
			continue
		}
		flow, used := fm.edgeFlow(tunnelIDs(e.Tunnels()))
		if !used {
			continue
		}
		w := opts.weight(e.Key)
		for _, s := range dist {
			if s.Probability == 0 {
				continue
			}
			name := fmt.Sprintf("%sstate%g", e.Key, s.Capacity)
			diff := fm.model.AddVar("diff"+name, -lp.Inf, lp.Inf)
			over := fm.model.AddVar("overflow"+name, 0, lp.Inf)

			def := lp.Expr{}
			def.Add(diff, 1).AddExpr(flow, -1)
			fm.model.AddConstraint("diff"+name, def, lp.Equal, -s.Capacity)

			above := lp.Expr{}
			above.Add(over, 1).Add(diff, -1)
			fm.model.AddConstraint("overflow"+name, above, lp.GreaterEqual, 0)

			objective.Add(over, -w*s.Probability)
			overflows = append(overflows, stateVar{edge: e.Key, state: s, v: over})
		}
	}
	fm.model.SetObjective(objective, lp.Maximize)

	sol, err := solver.Solve(ctx, fm.model)
	if err != nil {
		return nil, err
	}

	res := &HedgeResult{Allocation: fm.allocation(sol), Objective: sol.Objective}
	var expected float64
	for _, o := range overflows {
		val := sol.Value(o.v)
		res.Overflows = append(res.Overflows, StateOverflow{
			Edge:        o.edge,
			Capacity:    o.state.Capacity,
			Probability: o.state.Probability,
			Overflow:    val,
		})
		expected += o.state.Probability * val
	}
	log.Infof("Hedge: network=%s throughput=%.3f expected_overflow=%.3f states=%d",
		net.Name, res.Allocation.Total(), expected, len(overflows))
	return res, nil
}
