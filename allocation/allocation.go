// Package allocation holds the linear programs that split demand across
// tunnels: max throughput, Hedge, TeaVar* and Radwan.
package allocation

import (
	"sort"

	"github.com/hedge-wan/hedge/topology"
)

// Allocation maps tunnel id to allocated flow.
type Allocation map[string]float64

// Total returns the sum of all tunnel flows.
func (a Allocation) Total() float64 {
	var sum float64
	for _, f := range a {
		sum += f
	}
	return sum
}

// DemandTotals sums the flows of each demand's tunnels in net.
func (a Allocation) DemandTotals(net *topology.Network) map[topology.DemandKey]float64 {
	out := make(map[topology.DemandKey]float64, net.DemandCount())
	for _, d := range net.Demands() {
		var sum float64
		for _, t := range d.Tunnels() {
			sum += a[t.ID()]
		}
		out[d.Key] = sum
	}
	return out
}

// EdgeLoad returns the flow carried by every edge of net.
func (a Allocation) EdgeLoad(net *topology.Network) map[topology.EdgeKey]float64 {
	out := make(map[topology.EdgeKey]float64, net.EdgeCount())
	for _, e := range net.Edges() {
		var used float64
		for _, t := range e.Tunnels() {
			used += a[t.ID()]
		}
		out[e.Key] = used
	}
	return out
}

func (a Allocation) Clone() Allocation {
	out := make(Allocation, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// TunnelIDs returns the allocated tunnel ids in sorted order.
func (a Allocation) TunnelIDs() []string {
	ids := make([]string, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
