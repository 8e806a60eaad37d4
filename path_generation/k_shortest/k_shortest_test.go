package k_shortest

import (
	"math/rand"
	"testing"

	log "github.com/sirupsen/logrus"
)

// ring builds 0-1-2-3-0 with unit costs, plus the chord 0-2 when chord is set.
func ring(chord bool) Network {
	net := NewNetwork([]string{"a", "b", "c", "d"})
	link := func(i, j int) {
		net.Links[i][j] = 1
		net.Links[j][i] = 1
	}
	link(0, 1)
	link(1, 2)
	link(2, 3)
	link(3, 0)
	if chord {
		link(0, 2)
	}
	return net
}

func TestKShortestRing(t *testing.T) {
	testCases := []struct {
		name  string
		chord bool
		k     int
		want  [][]int
	}{
		{name: "two routes around the ring", k: 4, want: [][]int{{0, 1, 2}, {0, 3, 2}}},
		{name: "k limits the result", k: 1, want: [][]int{{0, 1, 2}}},
		{name: "chord is shortest", chord: true, k: 4, want: [][]int{{0, 2}, {0, 1, 2}, {0, 3, 2}}},
		{name: "k zero", k: 0, want: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			net := ring(tc.chord)
			paths := KShortest(net, Flow{Source: 0, Destination: 2}, tc.k)
			if len(paths) != len(tc.want) {
				t.Fatalf("got %d paths %v, want %v", len(paths), paths, tc.want)
			}
			for i, p := range paths {
				if !sliceEqual(p.Nodes, tc.want[i]) {
					t.Errorf("path[%d] = %v, want %v", i, p.Nodes, tc.want[i])
				}
				if p.Latency != p.Hops() {
					t.Errorf("path[%d] latency %d != hops %d", i, p.Latency, p.Hops())
				}
			}
			if net.Links[0][1] != 1 || net.Links[1][2] != 1 {
				t.Errorf("input network was modified")
			}
		})
	}
}

func TestEdgeDisjoint(t *testing.T) {
	paths := EdgeDisjoint(ring(true), Flow{Source: 0, Destination: 2}, 4)
	if len(paths) != 3 {
		t.Fatalf("got %d paths, want 3: %v", len(paths), paths)
	}
	used := make(map[[2]int]bool)
	for _, p := range paths {
		for j := 0; j < len(p.Nodes)-1; j++ {
			key := [2]int{p.Nodes[j], p.Nodes[j+1]}
			if used[key] {
				t.Errorf("link %v reused", key)
			}
			used[key] = true
		}
	}
}

func TestUnreachable(t *testing.T) {
	net := NewNetwork([]string{"a", "b", "c"})
	net.Links[0][1] = 1
	if paths := KShortest(net, Flow{Source: 0, Destination: 2}, 3); len(paths) != 0 {
		t.Errorf("expected no paths, got %v", paths)
	}
	if paths := EdgeDisjoint(net, Flow{Source: 0, Destination: 2}, 3); len(paths) != 0 {
		t.Errorf("expected no paths, got %v", paths)
	}
}

// TestKShortestWithRandomNetwork runs Yen's algorithm on a random 50 node
// network generated from a fixed seed.
func TestKShortestWithRandomNetwork(t *testing.T) {
	const randomSeed int64 = 42
	rng := rand.New(rand.NewSource(randomSeed))
	network := generateRandomNetwork(50, rng, 0.15)

	testCases := []struct {
		name     string
		source   int
		dest     int
		k        int
		minPaths int
	}{
		{name: "adjacent nodes k=2", source: 0, dest: 1, k: 2, minPaths: 2},
		{name: "distant nodes k=3", source: 0, dest: 25, k: 3, minPaths: 3},
		{name: "middle nodes k=4", source: 10, dest: 40, k: 4, minPaths: 4},
		{name: "k=5", source: 5, dest: 45, k: 5, minPaths: 5},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			paths := KShortest(network, Flow{Source: tc.source, Destination: tc.dest}, tc.k)
			log.Infof("TestKShortestWithRandomNetwork: %s found %d paths", tc.name, len(paths))

			if len(paths) < tc.minPaths || len(paths) > tc.k {
				t.Fatalf("got %d paths, want between %d and %d", len(paths), tc.minPaths, tc.k)
			}
			for i, p := range paths {
				if !isValidPath(network, p) {
					t.Errorf("path[%d] is invalid: %v", i, p.Nodes)
				}
				if p.Nodes[0] != tc.source || p.Nodes[len(p.Nodes)-1] != tc.dest {
					t.Errorf("path[%d] endpoints %v", i, p.Nodes)
				}
				if hasLoop(p) {
					t.Errorf("path[%d] revisits a node: %v", i, p.Nodes)
				}
				if i > 0 && p.Latency < paths[i-1].Latency {
					t.Errorf("paths not sorted: %d < %d", p.Latency, paths[i-1].Latency)
				}
				for j := 0; j < i; j++ {
					if sliceEqual(paths[j].Nodes, p.Nodes) {
						t.Errorf("duplicate paths %d and %d: %v", j, i, p.Nodes)
					}
				}
			}
		})
	}
}

// generateRandomNetwork creates a connected random topology with costs in
// [1, 10]; a backbone i <-> i+1 guarantees connectivity.
func generateRandomNetwork(nodeCount int, rng *rand.Rand, linkDensity float64) Network {
	nodes := make([]string, nodeCount)
	for i := range nodes {
		nodes[i] = string(rune('A' + i))
	}
	network := NewNetwork(nodes)
	link := func(i, j, cost int) {
		network.Links[i][j] = cost
		network.Links[j][i] = cost
	}
	for i := 0; i < nodeCount; i++ {
		for j := i + 1; j < nodeCount; j++ {
			if rng.Float64() < linkDensity {
				link(i, j, 1+rng.Intn(10))
			}
		}
	}
	for i := 0; i < nodeCount-1; i++ {
		if network.Links[i][i+1] == -1 {
			link(i, i+1, 1+rng.Intn(10))
		}
	}
	return network
}

func isValidPath(network Network, path Path) bool {
	if len(path.Nodes) < 2 {
		return false
	}
	for i := 0; i < len(path.Nodes)-1; i++ {
		if network.Links[path.Nodes[i]][path.Nodes[i+1]] < 0 {
			return false
		}
	}
	return pathCost(network, path.Nodes) == path.Latency
}

func hasLoop(p Path) bool {
	seen := make(map[int]bool)
	for _, n := range p.Nodes {
		if seen[n] {
			return true
		}
		seen[n] = true
	}
	return false
}
