// Package k_shortest computes candidate routes over an adjacency matrix:
// Yen's k shortest loop-free paths and greedy edge-disjoint paths.
package k_shortest

import (
	"container/heap"

	log "github.com/sirupsen/logrus"
)

// Dijkstra returns the shortest path from source to every node. Unreachable
// nodes get a Path with no nodes. Among equal-cost routes the one found
// through the lowest-index predecessor wins, so results are deterministic.
func Dijkstra(net Network, source int) []Path {
	n := len(net.Links)
	dist := make([]int, n)
	prev := make([]int, n)
	visited := make([]bool, n)
	for i := range dist {
		dist[i] = -1 // -1 means not reached yet
		prev[i] = -1
	}
	dist[source] = 0

	for {
		u := -1
		for i := 0; i < n; i++ {
			if visited[i] || dist[i] < 0 {
				continue
			}
			if u < 0 || dist[i] < dist[u] {
				u = i
			}
		}
		if u < 0 {
			break
		}
		visited[u] = true

		for v := 0; v < n; v++ {
			cost := net.Links[u][v]
			if v == u || visited[v] || cost < 0 {
				continue
			}
			if dist[v] < 0 || dist[u]+cost < dist[v] {
				dist[v] = dist[u] + cost
				prev[v] = u
			}
		}
	}

	paths := make([]Path, n)
	for v := 0; v < n; v++ {
		if dist[v] < 0 {
			continue
		}
		var nodes []int
		for at := v; at >= 0; at = prev[at] {
			nodes = append(nodes, at)
		}
		for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
			nodes[i], nodes[j] = nodes[j], nodes[i]
		}
		paths[v] = Path{Nodes: nodes, Latency: dist[v]}
	}
	return paths
}

// KShortest returns up to k loop-free paths for flow in ascending cost order
// (Yen's algorithm). net is not modified.
func KShortest(net Network, flow Flow, k int) []Path {
	if k <= 0 || flow.Source == flow.Destination {
		return nil
	}
	work := net.Copy()

	first := Dijkstra(work, flow.Source)[flow.Destination]
	if len(first.Nodes) == 0 {
		return nil
	}
	accepted := []Path{first}
	candidates := &pathHeap{}

	for len(accepted) < k {
		last := accepted[len(accepted)-1].Nodes
		for i := 0; i < len(last)-1; i++ {
			spur := last[i]
			root := last[:i+1]

			removed := make(map[[2]int]int)
			cut := func(a, b int) {
				key := [2]int{a, b}
				if _, ok := removed[key]; ok {
					return
				}
				removed[key] = work.Links[a][b]
				work.Links[a][b] = -1
			}
			// links already used by accepted paths sharing this root
			for _, p := range accepted {
				if len(p.Nodes) > i+1 && sliceEqual(p.Nodes[:i+1], root) {
					cut(p.Nodes[i], p.Nodes[i+1])
				}
			}
			// root nodes other than the spur node become unreachable
			for _, r := range root[:len(root)-1] {
				for v := range work.Links {
					if v != r {
						cut(v, r)
						cut(r, v)
					}
				}
			}

			spurPath := Dijkstra(work, spur)[flow.Destination]

			for key, cost := range removed {
				work.Links[key[0]][key[1]] = cost
			}
			if len(spurPath.Nodes) == 0 {
				continue
			}

			nodes := make([]int, 0, i+len(spurPath.Nodes))
			nodes = append(nodes, root[:i]...)
			nodes = append(nodes, spurPath.Nodes...)
			candidate := Path{Nodes: nodes, Latency: pathCost(work, nodes)}
			if containsPath(accepted, candidate) || candidates.contains(candidate) {
				continue
			}
			heap.Push(candidates, candidate)
		}

		if candidates.Len() == 0 {
			break
		}
		accepted = append(accepted, heap.Pop(candidates).(Path))
	}

	log.Debugf("KShortest: flow %d->%d k=%d found=%d", flow.Source, flow.Destination, k, len(accepted))
	return accepted
}

// EdgeDisjoint greedily picks up to k shortest paths that share no directed
// link: after each pick its links are removed. net is not modified.
func EdgeDisjoint(net Network, flow Flow, k int) []Path {
	if k <= 0 || flow.Source == flow.Destination {
		return nil
	}
	work := net.Copy()
	var paths []Path
	for len(paths) < k {
		p := Dijkstra(work, flow.Source)[flow.Destination]
		if len(p.Nodes) == 0 {
			break
		}
		paths = append(paths, p)
		for j := 0; j < len(p.Nodes)-1; j++ {
			work.Links[p.Nodes[j]][p.Nodes[j+1]] = -1
		}
	}
	return paths
}

func pathCost(net Network, nodes []int) int {
	var cost int
	for j := 0; j < len(nodes)-1; j++ {
		cost += net.Links[nodes[j]][nodes[j+1]]
	}
	return cost
}

func sliceEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsPath(paths []Path, p Path) bool {
	for _, q := range paths {
		if sliceEqual(q.Nodes, p.Nodes) {
			return true
		}
	}
	return false
}

// pathLess orders by cost, then hop count, then lexicographically by node
// index so that ties resolve the same way on every run.
func pathLess(a, b Path) bool {
	if a.Latency != b.Latency {
		return a.Latency < b.Latency
	}
	if len(a.Nodes) != len(b.Nodes) {
		return len(a.Nodes) < len(b.Nodes)
	}
	for i := range a.Nodes {
		if a.Nodes[i] != b.Nodes[i] {
			return a.Nodes[i] < b.Nodes[i]
		}
	}
	return false
}

// pathHeap is a min-heap of candidate paths.
type pathHeap []Path

func (h pathHeap) Len() int           { return len(h) }
func (h pathHeap) Less(i, j int) bool { return pathLess(h[i], h[j]) }
func (h pathHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *pathHeap) Push(x any) { *h = append(*h, x.(Path)) }

func (h *pathHeap) Pop() any {
	old := *h
	p := old[len(old)-1]
	*h = old[:len(old)-1]
	return p
}

func (h pathHeap) contains(p Path) bool {
	return containsPath(h, p)
}
