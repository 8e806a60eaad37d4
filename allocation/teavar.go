package allocation

import (
	"context"
	"errors"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/hedge-wan/hedge/lp"
	"github.com/hedge-wan/hedge/scenario"
	"github.com/hedge-wan/hedge/topology"
)

var ErrBeta = errors.New("beta must be in (0, 1)")

// TeaVarResult is the raw TeaVar* solution. Losses are recomputed from the
// flows as max(0, amount - delivered) per scenario, so they do not depend on
// which of the LP's optimal loss values the solver picked. RawLosses keeps
// the loss variables as the solver returned them. In scenarios whose total
// loss stays below alpha they are free to exceed the demand amount.
type TeaVarResult struct {
	Beta      float64
	Alpha     float64
	Objective float64
	Flows     map[topology.DemandKey]Allocation
	Losses    map[topology.DemandKey]map[int]float64
	RawLosses map[topology.DemandKey]map[int]float64
}

// Allocation flattens the per-demand flows.
func (r *TeaVarResult) Allocation() Allocation {
	out := make(Allocation)
	for _, flows := range r.Flows {
		for id, f := range flows {
			out[id] = f
		}
	}
	return out
}

// TeaVarStar minimizes the beta conditional value at risk of the per-scenario
// loss over the enumerated scenarios:
//
//	min alpha + 1/(1-beta) * (sum_q p_q*s_q + (1 - sum_q p_q)*alpha)
//	s_q >= sum_d loss_{q,d} - alpha, loss_{q,d} >= amount_d - sum(enabled flows)
//
// A tunnel contributes to a scenario only when all its edges are at full
// capacity there.
func TeaVarStar(ctx context.Context, solver lp.Solver, net *topology.Network,
	scenarios *scenario.ScenarioSet, beta float64) (*TeaVarResult, error) {
	if beta <= 0 || beta >= 1 {
		return nil, fmt.Errorf("TeaVarStar beta=%v: %w", beta, ErrBeta)
	}
	fm := newFlowModel(fmt.Sprintf("teavar%g", beta), networkDemands{net})
	fm.addNetworkCapacities(net)
	m := fm.model

	alpha := m.AddVar("alpha", 0, lp.Inf)
	scale := 1 / (1 - beta)

	var objective lp.Expr
	objective.Add(alpha, 1+scale*(1-scenarios.TotalProbability()))

	lossVars := make(map[topology.DemandKey]map[int]lp.Var, net.DemandCount())

	for _, q := range scenarios.Scenarios {
		slack := m.AddVar(fmt.Sprintf("slack%d", q.ID), 0, lp.Inf)
		objective.Add(slack, scale*q.Probability)

		// slack - sum(loss) + alpha >= 0
		var excess lp.Expr
		excess.Add(slack, 1).Add(alpha, 1)
		for _, d := range net.Demands() {
			if d.Amount == 0 {
				continue
			}
			loss := m.AddVar(fmt.Sprintf("loss%d_flow%s", q.ID, d.Key), 0, lp.Inf)
			excess.Add(loss, -1)
			if lossVars[d.Key] == nil {
				lossVars[d.Key] = make(map[int]lp.Var, len(scenarios.Scenarios))
			}
			lossVars[d.Key][q.ID] = loss

			// loss + sum(enabled flows) >= amount
			var short lp.Expr
			short.Add(loss, 1)
			for _, t := range d.Tunnels() {
				if q.Enabled(t) {
					short.Add(fm.byTunnel[t.ID()], 1)
				}
			}
			m.AddConstraint(fmt.Sprintf("loss%d_flow%s", q.ID, d.Key), short, lp.GreaterEqual, d.Amount)
		}
		m.AddConstraint(fmt.Sprintf("slack%d", q.ID), excess, lp.GreaterEqual, 0)
	}
	m.SetObjective(objective, lp.Minimize)

	sol, err := solver.Solve(ctx, m)
	if err != nil {
		return nil, err
	}

	res := &TeaVarResult{
		Beta:      beta,
		Alpha:     sol.Value(alpha),
		Objective: sol.Objective,
		Flows:     make(map[topology.DemandKey]Allocation, net.DemandCount()),
		Losses:    make(map[topology.DemandKey]map[int]float64, net.DemandCount()),
		RawLosses: make(map[topology.DemandKey]map[int]float64, net.DemandCount()),
	}
	for _, d := range net.Demands() {
		flows := make(Allocation, len(d.Tunnels()))
		for _, t := range d.Tunnels() {
			flows[t.ID()] = math.Max(0, sol.Value(fm.byTunnel[t.ID()]))
		}
		res.Flows[d.Key] = flows
		if d.Amount == 0 {
			continue
		}
		losses := make(map[int]float64, len(scenarios.Scenarios))
		raw := make(map[int]float64, len(scenarios.Scenarios))
		for _, q := range scenarios.Scenarios {
			raw[q.ID] = sol.Value(lossVars[d.Key][q.ID])
			var delivered float64
			for _, t := range d.Tunnels() {
				if q.Enabled(t) {
					delivered += flows[t.ID()]
				}
			}
			losses[q.ID] = math.Max(0, d.Amount-delivered)
		}
		res.Losses[d.Key] = losses
		res.RawLosses[d.Key] = raw
	}
	log.Infof("TeaVarStar: network=%s beta=%v scenarios=%d alpha=%.4f objective=%.4f throughput=%.3f",
		net.Name, beta, len(scenarios.Scenarios), res.Alpha, res.Objective, res.Allocation().Total())
	return res, nil
}
