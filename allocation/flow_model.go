package allocation

import (
	"github.com/hedge-wan/hedge/lp"
	"github.com/hedge-wan/hedge/topology"
)

// flowVar is what a flow variable stands for.
type flowVar struct {
	demand topology.DemandKey
	tunnel string
}

// flowModel is the part shared by every formulation: one non-negative flow
// variable per (demand, tunnel) and the demand constraints.
type flowModel struct {
	model    *lp.Model
	vars     []lp.Var
	meaning  map[lp.Var]flowVar
	byTunnel map[string]lp.Var
	byDemand map[topology.DemandKey][]lp.Var
}

// demandSource is the view of demands the flow model is built from. Both
// networks and Radwan inputs provide it.
type demandSource interface {
	demandKeys() []topology.DemandKey
	demandTunnels(topology.DemandKey) []string
	demandAmount(topology.DemandKey) float64
}

func newFlowModel(name string, src demandSource) *flowModel {
	fm := &flowModel{
		model:    lp.NewModel(name),
		meaning:  make(map[lp.Var]flowVar),
		byTunnel: make(map[string]lp.Var),
		byDemand: make(map[topology.DemandKey][]lp.Var),
	}
	for _, key := range src.demandKeys() {
		for _, id := range src.demandTunnels(key) {
			if _, ok := fm.byTunnel[id]; ok {
				continue
			}
			v := fm.model.AddVar("flow"+key.String()+"on"+id, 0, lp.Inf)
			fm.vars = append(fm.vars, v)
			fm.meaning[v] = flowVar{demand: key, tunnel: id}
			fm.byTunnel[id] = v
			fm.byDemand[key] = append(fm.byDemand[key], v)
		}
	}
	for _, key := range src.demandKeys() {
		if vars := fm.byDemand[key]; len(vars) > 0 {
			fm.model.AddConstraint("demand"+key.String(), lp.Sum(vars...), lp.LessEqual, src.demandAmount(key))
		}
	}
	return fm
}

// edgeFlow is the sum of the flow variables of the given tunnels. Tunnels
// that carry no demand are skipped; ok is false when nothing is left.
func (fm *flowModel) edgeFlow(tunnels []string) (lp.Expr, bool) {
	var e lp.Expr
	for _, id := range tunnels {
		if v, ok := fm.byTunnel[id]; ok {
			e.Add(v, 1)
		}
	}
	return e, len(e.Terms) > 0
}

// addCapacity bounds the flow over an edge by capacity.
func (fm *flowModel) addCapacity(key topology.EdgeKey, tunnels []string, capacity float64) {
	if e, ok := fm.edgeFlow(tunnels); ok {
		fm.model.AddConstraint("capacity"+key.String(), e, lp.LessEqual, capacity)
	}
}

// throughput is the sum of all flow variables.
func (fm *flowModel) throughput() lp.Expr {
	return lp.Sum(fm.vars...)
}

func (fm *flowModel) allocation(sol *lp.Solution) Allocation {
	out := make(Allocation, len(fm.vars))
	for _, v := range fm.vars {
		f := sol.Value(v)
		if f < 0 {
			f = 0
		}
		out[fm.meaning[v].tunnel] = f
	}
	return out
}

// networkDemands exposes a network as a demandSource.
type networkDemands struct {
	net *topology.Network
}

func (n networkDemands) demandKeys() []topology.DemandKey {
	keys := make([]topology.DemandKey, 0, n.net.DemandCount())
	for _, d := range n.net.Demands() {
		keys = append(keys, d.Key)
	}
	return keys
}

func (n networkDemands) demandTunnels(key topology.DemandKey) []string {
	d, _ := n.net.Demand(key)
	return tunnelIDs(d.Tunnels())
}

func (n networkDemands) demandAmount(key topology.DemandKey) float64 {
	d, _ := n.net.Demand(key)
	return d.Amount
}

func tunnelIDs(tunnels []*topology.Tunnel) []string {
	ids := make([]string, len(tunnels))
	for i, t := range tunnels {
		ids[i] = t.ID()
	}
	return ids
}

// addNetworkCapacities adds one capacity constraint per edge of net using
// the edge's current capacity.
func (fm *flowModel) addNetworkCapacities(net *topology.Network) {
	for _, e := range net.Edges() {
		fm.addCapacity(e.Key, tunnelIDs(e.Tunnels()), e.Capacity)
	}
}
