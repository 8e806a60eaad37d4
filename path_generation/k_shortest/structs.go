package k_shortest

// Network is an adjacency matrix over node indices 0..n-1. Links[i][j] is the
// cost of the directed link i->j, -1 when there is no link.
type Network struct {
	Nodes []string `json:"nodes"`
	Links [][]int  `json:"links"`
}

// NewNetwork returns a network of n nodes with no links.
func NewNetwork(nodes []string) Network {
	net := Network{
		Nodes: nodes,
		Links: make([][]int, len(nodes)),
	}
	for i := range net.Links {
		net.Links[i] = make([]int, len(nodes))
		for j := range net.Links[i] {
			if i != j {
				net.Links[i][j] = -1
			}
		}
	}
	return net
}

// Copy returns a deep copy of the link matrix; node ids are shared.
func (n Network) Copy() Network {
	c := Network{Nodes: n.Nodes, Links: make([][]int, len(n.Links))}
	for i := range n.Links {
		c.Links[i] = make([]int, len(n.Links[i]))
		copy(c.Links[i], n.Links[i])
	}
	return c
}

// Flow is a source/destination pair of node indices.
type Flow struct {
	Source      int `json:"source"`
	Destination int `json:"destination"`
}

// Path is a loop-free route and its total cost.
type Path struct {
	Nodes   []int `json:"nodes"`
	Latency int   `json:"latency"`
}

// Hops returns the number of links on the path.
func (p Path) Hops() int { return len(p.Nodes) - 1 }
