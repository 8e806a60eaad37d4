package topology

import (
	"fmt"
	"sort"
)

// EdgeKey identifies a directed edge.
type EdgeKey struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (k EdgeKey) String() string { return k.From + "->" + k.To }

// Reverse returns the key of the opposite direction.
func (k EdgeKey) Reverse() EdgeKey { return EdgeKey{From: k.To, To: k.From} }

// DemandKey identifies a demand by its ordered node pair.
type DemandKey struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

func (k DemandKey) String() string { return "(" + k.Src + ":" + k.Dst + ")" }

// Node holds references to its incident edges. It does not own them.
type Node struct {
	ID       string
	incoming map[EdgeKey]*Edge
	outgoing map[EdgeKey]*Edge
}

func newNode(id string) *Node {
	return &Node{
		ID:       id,
		incoming: make(map[EdgeKey]*Edge),
		outgoing: make(map[EdgeKey]*Edge),
	}
}

func (n *Node) Incoming() map[EdgeKey]*Edge { return n.incoming }
func (n *Node) Outgoing() map[EdgeKey]*Edge { return n.outgoing }

// Edge is a directed link. Capacity is read-only for callers: change it
// through SetCapacity or Network.WithCapacities so that
// 0 <= Capacity <= MaxCapacity always holds.
type Edge struct {
	Key         EdgeKey
	Unity       float64
	Capacity    float64
	MaxCapacity float64
	tunnels     []*Tunnel
}

func (e *Edge) String() string { return e.Key.String() }

func (e *Edge) SetCapacity(c float64) error {
	if c < 0 {
		return fmt.Errorf("SetCapacity %s capacity=%v: %w", e.Key, c, ErrNegativeCapacity)
	}
	if c > e.MaxCapacity {
		return fmt.Errorf("SetCapacity %s capacity=%v max=%v: %w", e.Key, c, e.MaxCapacity, ErrCapacityExceedsMax)
	}
	e.Capacity = c
	return nil
}

func (e *Edge) RelativeCapacity() float64 {
	if e.MaxCapacity == 0 {
		return 0
	}
	return e.Capacity / e.MaxCapacity
}

// Tunnels returns the tunnels crossing the edge, in registration order.
func (e *Edge) Tunnels() []*Tunnel { return e.tunnels }

func (e *Edge) addTunnel(t *Tunnel) {
	for _, existing := range e.tunnels {
		if existing.id == t.id {
			return
		}
	}
	e.tunnels = append(e.tunnels, t)
}

// Tunnel is a fixed path a demand's traffic may use.
type Tunnel struct {
	id     string
	nodes  []string
	path   []*Edge
	Weight float64
}

func (t *Tunnel) ID() string        { return t.id }
func (t *Tunnel) String() string    { return t.id }
func (t *Tunnel) Src() string       { return t.nodes[0] }
func (t *Tunnel) Dst() string       { return t.nodes[len(t.nodes)-1] }
func (t *Tunnel) Edges() []*Edge    { return t.path }
func (t *Tunnel) Demand() DemandKey { return DemandKey{Src: t.Src(), Dst: t.Dst()} }

func (t *Tunnel) Nodes() []string {
	out := make([]string, len(t.nodes))
	copy(out, t.nodes)
	return out
}

// Demand is requested bandwidth between an ordered node pair.
type Demand struct {
	Key     DemandKey
	Amount  float64
	tunnels []*Tunnel
}

func (d *Demand) String() string     { return d.Key.String() }
func (d *Demand) Tunnels() []*Tunnel { return d.tunnels }

func (d *Demand) addTunnel(t *Tunnel) {
	if t.Src() != d.Key.Src || t.Dst() != d.Key.Dst {
		return
	}
	for _, existing := range d.tunnels {
		if existing.id == t.id {
			return
		}
	}
	d.tunnels = append(d.tunnels, t)
}

// CapacityAssignment is an immutable edge -> capacity mapping. Simulation
// rounds produce a fresh one instead of mutating a shared network.
type CapacityAssignment struct {
	caps map[EdgeKey]float64
}

func (a CapacityAssignment) Capacity(key EdgeKey) (float64, bool) {
	c, ok := a.caps[key]
	return c, ok
}

func (a CapacityAssignment) Len() int { return len(a.caps) }

// Keys returns the assigned edges sorted by (From, To).
func (a CapacityAssignment) Keys() []EdgeKey {
	keys := make([]EdgeKey, 0, len(a.caps))
	for k := range a.caps {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].From != keys[j].From {
			return keys[i].From < keys[j].From
		}
		return keys[i].To < keys[j].To
	})
	return keys
}

// Changed returns the edges whose capacity differs between a and next.
// Edges missing from either side are ignored.
func (a CapacityAssignment) Changed(next CapacityAssignment) []EdgeKey {
	var out []EdgeKey
	for _, key := range a.Keys() {
		prev := a.caps[key]
		cur, ok := next.caps[key]
		if !ok {
			continue
		}
		if prev == 0 && cur == 0 {
			continue
		}
		if prev != cur {
			out = append(out, key)
		}
	}
	return out
}

// AssignmentBuilder accumulates capacities for a CapacityAssignment.
// A builder must not be used after Build.
type AssignmentBuilder struct {
	caps map[EdgeKey]float64
}

func NewAssignmentBuilder(size int) *AssignmentBuilder {
	return &AssignmentBuilder{caps: make(map[EdgeKey]float64, size)}
}

func (b *AssignmentBuilder) Set(key EdgeKey, capacity float64) *AssignmentBuilder {
	b.caps[key] = capacity
	return b
}

// SetLink assigns the same capacity to both directions of a link.
func (b *AssignmentBuilder) SetLink(a, z string, capacity float64) *AssignmentBuilder {
	b.caps[EdgeKey{From: a, To: z}] = capacity
	b.caps[EdgeKey{From: z, To: a}] = capacity
	return b
}

func (b *AssignmentBuilder) Build() CapacityAssignment {
	out := CapacityAssignment{caps: b.caps}
	b.caps = nil
	return out
}
