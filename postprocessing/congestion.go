// Package postprocessing adapts allocations after the fact: the TeaVar
// postprocessor turns raw TeaVar* flows into deliverable ones, and the
// congestion postprocessor trims allocations that overflow the capacities of
// a simulated round.
package postprocessing

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/hedge-wan/hedge/allocation"
	"github.com/hedge-wan/hedge/lp"
	"github.com/hedge-wan/hedge/topology"
)

const (
	// OverflowRatio is the utilization above which an edge is overflowing.
	OverflowRatio = 1.0000001
	// MinDisplaced is the displaced traffic below which no LP is run.
	MinDisplaced = 1.0
	// ChangeThreshold is the flow difference counted as a changed tunnel.
	ChangeThreshold = 0.01
)

// EdgeUsage is the load of one edge against the capacity of a round.
type EdgeUsage struct {
	Used     float64
	Capacity float64
	// Ratio is Used/Capacity; +Inf for used zero-capacity edges, 0 for
	// unused ones.
	Ratio float64
}

type Coverage struct {
	Edges     map[topology.EdgeKey]EdgeUsage
	Displaced float64
}

// capacityOf prefers the round's assignment and falls back to the edge's own
// capacity.
func capacityOf(e *topology.Edge, caps topology.CapacityAssignment) float64 {
	if c, ok := caps.Capacity(e.Key); ok {
		return c
	}
	return e.Capacity
}

// EdgeCoverage measures every edge of net under alloc and totals the traffic
// above capacity.
func EdgeCoverage(net *topology.Network, caps topology.CapacityAssignment, alloc allocation.Allocation) Coverage {
	cov := Coverage{Edges: make(map[topology.EdgeKey]EdgeUsage, net.EdgeCount())}
	for _, e := range net.Edges() {
		var used float64
		for _, t := range e.Tunnels() {
			used += alloc[t.ID()]
		}
		c := capacityOf(e, caps)
		u := EdgeUsage{Used: used, Capacity: c}
		switch {
		case c > 0:
			u.Ratio = used / c
		case used > 0:
			u.Ratio = math.Inf(1)
		}
		if used > c {
			cov.Displaced += used - c
		}
		cov.Edges[e.Key] = u
	}
	return cov
}

// OverflowSet maps every overflowing edge to the ids of its tunnels.
func OverflowSet(net *topology.Network, cov Coverage) map[topology.EdgeKey][]string {
	out := make(map[topology.EdgeKey][]string)
	for _, e := range net.Edges() {
		if u, ok := cov.Edges[e.Key]; ok && u.Ratio > OverflowRatio {
			ids := make([]string, 0, len(e.Tunnels()))
			for _, t := range e.Tunnels() {
				ids = append(ids, t.ID())
			}
			out[e.Key] = ids
		}
	}
	return out
}

// ReduceCongestion finds the smallest total reduction of alloc that brings
// every overflowing edge back under its capacity. A tunnel can lose at most
// what it was allocated.
func ReduceCongestion(ctx context.Context, solver lp.Solver, net *topology.Network,
	caps topology.CapacityAssignment, alloc allocation.Allocation, overflow map[topology.EdgeKey][]string) (allocation.Allocation, error) {
	m := lp.NewModel("postprocess")
	ids := alloc.TunnelIDs()
	vars := make(map[string]lp.Var, len(ids))
	var objective lp.Expr
	for _, id := range ids {
		v := m.AddVar(id, 0, math.Max(0, alloc[id]))
		vars[id] = v
		objective.Add(v, 1)
	}
	m.SetObjective(objective, lp.Minimize)

	keys := make([]topology.EdgeKey, 0, len(overflow))
	for key := range overflow {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	for _, key := range keys {
		e, ok := net.Edge(key)
		if !ok {
			return nil, fmt.Errorf("ReduceCongestion edge %s: %w", key, topology.ErrUnknownEdge)
		}
		// sum(alloc - reduction) <= capacity  <=>  -sum(reduction) <= capacity - sum(alloc)
		var expr lp.Expr
		rhs := capacityOf(e, caps)
		for _, id := range overflow[key] {
			v, ok := vars[id]
			if !ok {
				continue
			}
			expr.Add(v, -1)
			rhs -= alloc[id]
		}
		m.AddConstraint("overflow"+key.String(), expr, lp.LessEqual, rhs)
	}

	sol, err := solver.Solve(ctx, m)
	if err != nil {
		return nil, err
	}
	out := make(allocation.Allocation, len(ids))
	for _, id := range ids {
		out[id] = sol.Value(vars[id])
	}
	return out, nil
}

// Result of one congestion postprocessing pass.
type Result struct {
	Coverage   Coverage
	Reductions allocation.Allocation
	Total      float64
	Recomputed bool
}

// Postprocess runs the reduction LP when alloc displaces at least MinDisplaced
// traffic under caps; otherwise it reports no reduction.
func Postprocess(ctx context.Context, solver lp.Solver, net *topology.Network,
	caps topology.CapacityAssignment, alloc allocation.Allocation) (*Result, error) {
	res := &Result{Coverage: EdgeCoverage(net, caps, alloc)}
	if res.Coverage.Displaced < MinDisplaced {
		return res, nil
	}
	overflow := OverflowSet(net, res.Coverage)
	reductions, err := ReduceCongestion(ctx, solver, net, caps, alloc, overflow)
	if err != nil {
		return nil, err
	}
	res.Reductions = reductions
	res.Total = reductions.Total()
	res.Recomputed = true
	log.Debugf("Postprocess: network=%s displaced=%.3f overflowing=%d reduction=%.3f",
		net.Name, res.Coverage.Displaced, len(overflow), res.Total)
	return res, nil
}

// EffectiveAllocation subtracts reductions from alloc.
func EffectiveAllocation(alloc, reductions allocation.Allocation) allocation.Allocation {
	out := alloc.Clone()
	for id, r := range reductions {
		if _, ok := out[id]; ok {
			out[id] -= r
		}
	}
	return out
}

// ingress is the first router of a tunnel id.
func ingress(tunnel string) string {
	if i := strings.Index(tunnel, topology.TunnelSeparator); i >= 0 {
		return tunnel[:i]
	}
	return tunnel
}

// ChangedAllocations counts the tunnels of old whose flow moved by more than
// ChangeThreshold in next, and the distinct ingress routers involved.
func ChangedAllocations(old, next allocation.Allocation) (tunnels, routers int) {
	seen := make(map[string]struct{})
	for id, f := range old {
		if math.Abs(next[id]-f) > ChangeThreshold {
			tunnels++
			seen[ingress(id)] = struct{}{}
		}
	}
	return tunnels, len(seen)
}

// AffectedRouters counts the ingress routers with a tunnel reduced by more
// than ChangeThreshold.
func AffectedRouters(reductions allocation.Allocation) int {
	seen := make(map[string]struct{})
	for id, r := range reductions {
		if r > ChangeThreshold {
			seen[ingress(id)] = struct{}{}
		}
	}
	return len(seen)
}
