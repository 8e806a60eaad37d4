package topology

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// buildSquare returns a 4-node ring with links in both directions.
func buildSquare(t *testing.T) *Network {
	t.Helper()
	n := NewNetwork("square")
	links := [][2]string{{"1", "2"}, {"2", "3"}, {"3", "4"}, {"4", "1"}}
	for _, l := range links {
		if _, err := n.AddEdge(l[0], l[1], 200, 100, 100); err != nil {
			t.Fatalf("AddEdge %v: %v", l, err)
		}
		if _, err := n.AddEdge(l[1], l[0], 200, 100, 100); err != nil {
			t.Fatalf("AddEdge %v: %v", l, err)
		}
	}
	return n
}

func TestAddEdge(t *testing.T) {
	testCases := []struct {
		name     string
		from, to string
		capacity float64
		max      float64
		wantErr  error
	}{
		{name: "valid edge", from: "a", to: "b", capacity: 50, max: 100},
		{name: "self loop", from: "a", to: "a", capacity: 50, max: 100, wantErr: ErrSelfLoop},
		{name: "capacity above max", from: "a", to: "b", capacity: 150, max: 100, wantErr: ErrCapacityExceedsMax},
		{name: "negative capacity", from: "a", to: "b", capacity: -1, max: 100, wantErr: ErrNegativeCapacity},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			n := NewNetwork("t")
			edge, err := n.AddEdge(tc.from, tc.to, 200, tc.capacity, tc.max)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Expected %v, got %v", tc.wantErr, err)
				}
				if n.EdgeCount() != 0 {
					t.Errorf("Expected no edge to be stored, got %d", n.EdgeCount())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if edge.RelativeCapacity() != tc.capacity/tc.max {
				t.Errorf("Expected relative capacity %v, got %v", tc.capacity/tc.max, edge.RelativeCapacity())
			}
			from, _ := n.Node(tc.from)
			to, _ := n.Node(tc.to)
			if _, ok := from.Outgoing()[edge.Key]; !ok {
				t.Errorf("Edge not registered as outgoing on %s", tc.from)
			}
			if _, ok := to.Incoming()[edge.Key]; !ok {
				t.Errorf("Edge not registered as incoming on %s", tc.to)
			}
		})
	}
}

func TestAddEdgeTwice(t *testing.T) {
	n := NewNetwork("t")
	first, err := n.AddEdge("a", "b", 200, 100, 100)
	if err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	again, err := n.AddEdge("a", "b", 200, 100, 100)
	if err != nil {
		t.Fatalf("Identical re-add should succeed, got %v", err)
	}
	if again != first {
		t.Errorf("Identical re-add should return the existing edge")
	}

	if _, err := n.AddEdge("a", "b", 200, 50, 100); !errors.Is(err, ErrEdgeConflict) {
		t.Errorf("Expected ErrEdgeConflict, got %v", err)
	}
	if first.Capacity != 100 {
		t.Errorf("Conflicting re-add overwrote capacity: %v", first.Capacity)
	}
}

func TestAddTunnel(t *testing.T) {
	n := buildSquare(t)
	demand := n.AddDemand("1", "3", 40)

	tunnel, err := n.AddTunnel([]string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("AddTunnel: %v", err)
	}
	if tunnel.ID() != "1:2:3" {
		t.Errorf("Expected id 1:2:3, got %s", tunnel.ID())
	}
	if len(tunnel.Edges()) != 2 {
		t.Fatalf("Expected 2 edges, got %d", len(tunnel.Edges()))
	}
	for _, e := range tunnel.Edges() {
		if len(e.Tunnels()) != 1 || e.Tunnels()[0] != tunnel {
			t.Errorf("Tunnel not registered on edge %s", e)
		}
	}
	if len(demand.Tunnels()) != 1 {
		t.Errorf("Expected tunnel to be attached to demand, got %d tunnels", len(demand.Tunnels()))
	}

	// idempotent
	again, err := n.AddTunnel([]string{"1", "2", "3"})
	if err != nil || again != tunnel {
		t.Errorf("Re-adding a tunnel should return the existing one, got %v, %v", again, err)
	}
	if n.TunnelCount() != 1 || len(demand.Tunnels()) != 1 {
		t.Errorf("Re-add duplicated the tunnel")
	}

	if _, err := n.AddTunnel([]string{"1", "3"}); !errors.Is(err, ErrUnknownEdge) {
		t.Errorf("Expected ErrUnknownEdge, got %v", err)
	}
	if _, err := n.AddTunnel([]string{"1"}); !errors.Is(err, ErrShortTunnel) {
		t.Errorf("Expected ErrShortTunnel, got %v", err)
	}
}

func TestDemandOnlyTakesMatchingTunnels(t *testing.T) {
	n := buildSquare(t)
	if _, err := n.AddTunnel([]string{"1", "2", "3"}); err != nil {
		t.Fatal(err)
	}
	if _, err := n.AddTunnel([]string{"1", "4", "3"}); err != nil {
		t.Fatal(err)
	}
	if _, err := n.AddTunnel([]string{"1", "2"}); err != nil {
		t.Fatal(err)
	}

	// demand added after the tunnels picks up the matching ones
	demand := n.AddDemand("1", "3", 10)
	if len(demand.Tunnels()) != 2 {
		t.Fatalf("Expected 2 tunnels, got %d", len(demand.Tunnels()))
	}
	for _, tun := range demand.Tunnels() {
		if tun.Src() != "1" || tun.Dst() != "3" {
			t.Errorf("Tunnel %s does not match demand %s", tun, demand)
		}
	}

	if again := n.AddDemand("1", "3", 99); again != demand || again.Amount != 10 {
		t.Errorf("AddDemand should return the existing demand unchanged")
	}
}

func TestValidate(t *testing.T) {
	n := buildSquare(t)
	n.AddDemand("1", "3", 10)
	if err := n.Validate(); !errors.Is(err, ErrDemandWithoutTunnels) {
		t.Fatalf("Expected ErrDemandWithoutTunnels, got %v", err)
	}
	if _, err := n.AddTunnel([]string{"1", "2", "3"}); err != nil {
		t.Fatal(err)
	}
	if err := n.Validate(); err != nil {
		t.Errorf("Expected valid network, got %v", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	n := buildSquare(t)
	n.AddDemand("1", "3", 10)
	tun, _ := n.AddTunnel([]string{"1", "2", "3"})
	tun.Weight = 0.5

	c := n.Clone()
	edge, _ := c.Edge(EdgeKey{From: "1", To: "2"})
	if err := edge.SetCapacity(10); err != nil {
		t.Fatal(err)
	}
	orig, _ := n.Edge(EdgeKey{From: "1", To: "2"})
	if orig.Capacity != 100 {
		t.Errorf("Clone shares edges with the original")
	}

	ct, ok := c.Tunnel("1:2:3")
	if !ok || ct == tun || ct.Weight != 0.5 {
		t.Errorf("Tunnel not deep-copied: %v", ct)
	}
	cd, _ := c.Demand(DemandKey{Src: "1", Dst: "3"})
	if len(cd.Tunnels()) != 1 || cd.Tunnels()[0] != ct {
		t.Errorf("Cloned demand must reference cloned tunnels")
	}

	scaled := n.ScaleDemands(3)
	sd, _ := scaled.Demand(DemandKey{Src: "1", Dst: "3"})
	if sd.Amount != 30 {
		t.Errorf("Expected scaled amount 30, got %v", sd.Amount)
	}
	od, _ := n.Demand(DemandKey{Src: "1", Dst: "3"})
	if od.Amount != 10 {
		t.Errorf("ScaleDemands mutated the original")
	}
}

func TestWithCapacities(t *testing.T) {
	n := buildSquare(t)
	a := NewAssignmentBuilder(2).SetLink("1", "2", 0).Build()

	view, err := n.WithCapacities(a)
	if err != nil {
		t.Fatalf("WithCapacities: %v", err)
	}
	for _, key := range []EdgeKey{{From: "1", To: "2"}, {From: "2", To: "1"}} {
		e, _ := view.Edge(key)
		if e.Capacity != 0 {
			t.Errorf("Expected %s at 0, got %v", key, e.Capacity)
		}
		o, _ := n.Edge(key)
		if o.Capacity != 100 {
			t.Errorf("Base network mutated on %s", key)
		}
	}

	bad := NewAssignmentBuilder(1).Set(EdgeKey{From: "1", To: "2"}, 500).Build()
	if _, err := n.WithCapacities(bad); !errors.Is(err, ErrCapacityExceedsMax) {
		t.Errorf("Expected ErrCapacityExceedsMax, got %v", err)
	}
}

func TestAssignmentChanged(t *testing.T) {
	prev := NewAssignmentBuilder(3).
		Set(EdgeKey{From: "a", To: "b"}, 100).
		Set(EdgeKey{From: "b", To: "c"}, 0).
		Set(EdgeKey{From: "c", To: "d"}, 50).
		Build()
	next := NewAssignmentBuilder(3).
		Set(EdgeKey{From: "a", To: "b"}, 100).
		Set(EdgeKey{From: "b", To: "c"}, 0).
		Set(EdgeKey{From: "c", To: "d"}, 100).
		Build()

	changed := prev.Changed(next)
	if len(changed) != 1 || changed[0] != (EdgeKey{From: "c", To: "d"}) {
		t.Errorf("Expected only c->d to change, got %v", changed)
	}
}

func TestSetCapacityRejected(t *testing.T) {
	n := buildSquare(t)
	e, _ := n.Edge(EdgeKey{From: "1", To: "2"})

	if err := e.SetCapacity(-1); !errors.Is(err, ErrNegativeCapacity) {
		t.Errorf("Expected ErrNegativeCapacity, got %v", err)
	}
	if err := e.SetCapacity(e.MaxCapacity + 1); !errors.Is(err, ErrCapacityExceedsMax) {
		t.Errorf("Expected ErrCapacityExceedsMax, got %v", err)
	}
	if e.Capacity != 100 {
		t.Errorf("Rejected updates changed capacity to %v", e.Capacity)
	}
	if err := e.SetCapacity(40); err != nil || e.Capacity != 40 {
		t.Errorf("Expected capacity 40, got %v (err %v)", e.Capacity, err)
	}
}

// TestEdgeCapacityInvariant checks 0 <= capacity <= max after any SetCapacity.
func TestEdgeCapacityInvariant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("capacity stays within [0, max]", prop.ForAll(
		func(max float64, updates []float64) bool {
			n := NewNetwork("p")
			e, err := n.AddEdge("a", "b", 1, max, max)
			if err != nil {
				return false
			}
			for _, c := range updates {
				_ = e.SetCapacity(c)
				if e.Capacity < 0 || e.Capacity > e.MaxCapacity {
					return false
				}
			}
			return true
		},
		gen.Float64Range(0, 1000),
		gen.SliceOf(gen.Float64Range(-500, 1500)),
	))

	properties.TestingRun(t)
}
