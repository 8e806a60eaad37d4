package topology

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

var (
	ErrSelfLoop             = errors.New("self-loop edge")
	ErrEdgeConflict         = errors.New("edge already exists with different attributes")
	ErrCapacityExceedsMax   = errors.New("capacity exceeds max capacity")
	ErrNegativeCapacity     = errors.New("negative capacity")
	ErrUnknownEdge          = errors.New("edge not in network")
	ErrShortTunnel          = errors.New("tunnel needs at least two nodes")
	ErrDemandWithoutTunnels = errors.New("demand has no tunnels")
)

// TunnelSeparator joins the node ids of a tunnel path into its identity.
const TunnelSeparator = ":"

// Network is the aggregate root of the model. Every node, edge, tunnel and
// demand belongs to exactly one Network; slices keep insertion order so that
// LP construction is deterministic.
type Network struct {
	Name string

	nodes   map[string]*Node
	edges   map[EdgeKey]*Edge
	tunnels map[string]*Tunnel
	demands map[DemandKey]*Demand

	nodeOrder   []string
	edgeOrder   []EdgeKey
	tunnelOrder []string
	demandOrder []DemandKey
}

func NewNetwork(name string) *Network {
	return &Network{
		Name:    name,
		nodes:   make(map[string]*Node),
		edges:   make(map[EdgeKey]*Edge),
		tunnels: make(map[string]*Tunnel),
		demands: make(map[DemandKey]*Demand),
	}
}

func (n *Network) AddNode(id string) *Node {
	if node, ok := n.nodes[id]; ok {
		return node
	}
	node := newNode(id)
	n.nodes[id] = node
	n.nodeOrder = append(n.nodeOrder, id)
	return node
}

// AddEdge adds the directed edge from->to. Re-adding an edge with identical
// attributes returns the existing edge; any other re-add is an error.
func (n *Network) AddEdge(from, to string, unity, capacity, maxCapacity float64) (*Edge, error) {
	if from == to {
		return nil, fmt.Errorf("AddEdge %s->%s: %w", from, to, ErrSelfLoop)
	}
	if capacity < 0 {
		return nil, fmt.Errorf("AddEdge %s->%s capacity=%v: %w", from, to, capacity, ErrNegativeCapacity)
	}
	if capacity > maxCapacity {
		return nil, fmt.Errorf("AddEdge %s->%s capacity=%v max=%v: %w", from, to, capacity, maxCapacity, ErrCapacityExceedsMax)
	}

	key := EdgeKey{From: from, To: to}
	if edge, ok := n.edges[key]; ok {
		if edge.Capacity != capacity || edge.MaxCapacity != maxCapacity || edge.Unity != unity {
			return nil, fmt.Errorf("AddEdge %s: %w", key, ErrEdgeConflict)
		}
		return edge, nil
	}

	fromNode := n.AddNode(from)
	toNode := n.AddNode(to)
	edge := &Edge{
		Key:         key,
		Unity:       unity,
		Capacity:    capacity,
		MaxCapacity: maxCapacity,
	}
	n.edges[key] = edge
	n.edgeOrder = append(n.edgeOrder, key)
	fromNode.outgoing[key] = edge
	toNode.incoming[key] = edge
	return edge, nil
}

// AddDemand returns the existing demand for (src, dst) if there is one.
// Tunnels already registered between src and dst are attached to a new demand.
func (n *Network) AddDemand(src, dst string, amount float64) *Demand {
	key := DemandKey{Src: src, Dst: dst}
	if demand, ok := n.demands[key]; ok {
		return demand
	}
	n.AddNode(src)
	n.AddNode(dst)

	demand := &Demand{Key: key, Amount: amount}
	for _, id := range n.tunnelOrder {
		t := n.tunnels[id]
		if t.Src() == src && t.Dst() == dst {
			demand.addTunnel(t)
		}
	}
	n.demands[key] = demand
	n.demandOrder = append(n.demandOrder, key)
	return demand
}

// AddTunnel registers a path of node ids. Every hop must already be an edge
// of the network. Adding the same path twice returns the first tunnel.
func (n *Network) AddTunnel(path []string) (*Tunnel, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("AddTunnel %v: %w", path, ErrShortTunnel)
	}
	id := strings.Join(path, TunnelSeparator)
	if t, ok := n.tunnels[id]; ok {
		return t, nil
	}

	edges := make([]*Edge, 0, len(path)-1)
	for i := 0; i < len(path)-1; i++ {
		key := EdgeKey{From: path[i], To: path[i+1]}
		edge, ok := n.edges[key]
		if !ok {
			return nil, fmt.Errorf("AddTunnel %s hop %s: %w", id, key, ErrUnknownEdge)
		}
		edges = append(edges, edge)
	}

	nodes := make([]string, len(path))
	copy(nodes, path)
	t := &Tunnel{id: id, nodes: nodes, path: edges}
	for _, edge := range edges {
		edge.addTunnel(t)
	}
	n.tunnels[id] = t
	n.tunnelOrder = append(n.tunnelOrder, id)

	if demand, ok := n.demands[DemandKey{Src: t.Src(), Dst: t.Dst()}]; ok {
		demand.addTunnel(t)
	}
	return t, nil
}

// Validate reports every demand that ended up without an eligible tunnel.
// This always means the topology or the path generation is broken.
func (n *Network) Validate() error {
	var missing []string
	for _, key := range n.demandOrder {
		if len(n.demands[key].tunnels) == 0 {
			missing = append(missing, key.String())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("network %s, demands %v: %w", n.Name, missing, ErrDemandWithoutTunnels)
	}
	return nil
}

func (n *Network) Node(id string) (*Node, bool) {
	node, ok := n.nodes[id]
	return node, ok
}

func (n *Network) Edge(key EdgeKey) (*Edge, bool) {
	edge, ok := n.edges[key]
	return edge, ok
}

func (n *Network) Tunnel(id string) (*Tunnel, bool) {
	t, ok := n.tunnels[id]
	return t, ok
}

func (n *Network) Demand(key DemandKey) (*Demand, bool) {
	d, ok := n.demands[key]
	return d, ok
}

func (n *Network) Nodes() []*Node {
	out := make([]*Node, len(n.nodeOrder))
	for i, id := range n.nodeOrder {
		out[i] = n.nodes[id]
	}
	return out
}

func (n *Network) Edges() []*Edge {
	out := make([]*Edge, len(n.edgeOrder))
	for i, key := range n.edgeOrder {
		out[i] = n.edges[key]
	}
	return out
}

func (n *Network) Tunnels() []*Tunnel {
	out := make([]*Tunnel, len(n.tunnelOrder))
	for i, id := range n.tunnelOrder {
		out[i] = n.tunnels[id]
	}
	return out
}

func (n *Network) Demands() []*Demand {
	out := make([]*Demand, len(n.demandOrder))
	for i, key := range n.demandOrder {
		out[i] = n.demands[key]
	}
	return out
}

func (n *Network) NodeCount() int   { return len(n.nodeOrder) }
func (n *Network) EdgeCount() int   { return len(n.edgeOrder) }
func (n *Network) TunnelCount() int { return len(n.tunnelOrder) }
func (n *Network) DemandCount() int { return len(n.demandOrder) }

func (n *Network) TotalDemand() float64 {
	var total float64
	for _, key := range n.demandOrder {
		total += n.demands[key].Amount
	}
	return total
}

// Clone returns a deep copy. Nothing is shared with the receiver.
func (n *Network) Clone() *Network {
	out := NewNetwork(n.Name)
	for _, id := range n.nodeOrder {
		out.AddNode(id)
	}
	for _, key := range n.edgeOrder {
		e := n.edges[key]
		// attributes were validated when e was added
		if _, err := out.AddEdge(key.From, key.To, e.Unity, e.Capacity, e.MaxCapacity); err != nil {
			log.Panicf("Clone: copying edge %s: %v", key, err)
		}
	}
	for _, key := range n.demandOrder {
		out.AddDemand(key.Src, key.Dst, n.demands[key].Amount)
	}
	for _, id := range n.tunnelOrder {
		t, err := out.AddTunnel(n.tunnels[id].nodes)
		if err != nil {
			log.Panicf("Clone: copying tunnel %s: %v", id, err)
		}
		t.Weight = n.tunnels[id].Weight
	}
	return out
}

// ScaleDemands returns a clone whose demand amounts are multiplied by scale.
func (n *Network) ScaleDemands(scale float64) *Network {
	out := n.Clone()
	for _, d := range out.demands {
		d.Amount *= scale
	}
	return out
}

// CapacityAssignment snapshots the current edge capacities.
func (n *Network) CapacityAssignment() CapacityAssignment {
	b := NewAssignmentBuilder(len(n.edgeOrder))
	for _, key := range n.edgeOrder {
		b.Set(key, n.edges[key].Capacity)
	}
	return b.Build()
}

// WithCapacities returns a clone whose edges carry the capacities of a.
// Edges absent from a keep their current capacity.
func (n *Network) WithCapacities(a CapacityAssignment) (*Network, error) {
	out := n.Clone()
	for _, key := range out.edgeOrder {
		c, ok := a.Capacity(key)
		if !ok {
			continue
		}
		if err := out.edges[key].SetCapacity(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}
