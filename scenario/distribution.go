// Package scenario turns per-link capacity distributions into network
// scenarios: bound networks, enumerated scenario sets and sampled rounds.
package scenario

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/hedge-wan/hedge/topology"
)

var (
	ErrBadDistribution      = errors.New("invalid capacity distribution")
	ErrInsufficientCoverage = errors.New("scenario coverage below required floor")
	ErrTooManyScenarios     = errors.New("too many scenarios")
	ErrNoLinks              = errors.New("no links")
	ErrAvailability         = errors.New("availability target not reachable")
)

// probTolerance bounds the rounding error accepted on probability sums.
const probTolerance = 1e-6

// State is one capacity level of a link and its occurrence probability.
type State struct {
	Capacity    float64 `json:"capacity" yaml:"capacity"`
	Probability float64 `json:"probability" yaml:"probability"`
}

// Distribution is a discrete capacity distribution sorted by capacity.
type Distribution []State

// NewDistribution builds a Distribution from a capacity -> probability map.
func NewDistribution(states map[float64]float64) Distribution {
	d := make(Distribution, 0, len(states))
	for c, p := range states {
		d = append(d, State{Capacity: c, Probability: p})
	}
	sort.Slice(d, func(i, j int) bool { return d[i].Capacity < d[j].Capacity })
	return d
}

func (d Distribution) Validate() error {
	if len(d) == 0 {
		return fmt.Errorf("empty distribution: %w", ErrBadDistribution)
	}
	var sum float64
	for i, s := range d {
		if s.Capacity < 0 || s.Probability < 0 || math.IsNaN(s.Probability) {
			return fmt.Errorf("state %+v: %w", s, ErrBadDistribution)
		}
		if i > 0 && d[i-1].Capacity >= s.Capacity {
			return fmt.Errorf("states not strictly increasing at %v: %w", s.Capacity, ErrBadDistribution)
		}
		sum += s.Probability
	}
	if math.Abs(sum-1) > probTolerance {
		return fmt.Errorf("probabilities sum to %v: %w", sum, ErrBadDistribution)
	}
	return nil
}

func (d Distribution) Max() State {
	return d[len(d)-1]
}

// MinNonzero returns the smallest state with positive capacity.
func (d Distribution) MinNonzero() (State, bool) {
	for _, s := range d {
		if s.Capacity > 0 {
			return s, true
		}
	}
	return State{}, false
}

func (d Distribution) Prob(capacity float64) float64 {
	for _, s := range d {
		if s.Capacity == capacity {
			return s.Probability
		}
	}
	return 0
}

func (d Distribution) TotalProbability() float64 {
	var sum float64
	for _, s := range d {
		sum += s.Probability
	}
	return sum
}

// Link is a bidirectional link. Both directed edges share its capacity.
type Link struct {
	A, B         string
	Distribution Distribution
}

func (l Link) Forward() topology.EdgeKey  { return topology.EdgeKey{From: l.A, To: l.B} }
func (l Link) Backward() topology.EdgeKey { return topology.EdgeKey{From: l.B, To: l.A} }

// LinkSet is an ordered collection of bidirectional links.
type LinkSet struct {
	links []Link
	index map[topology.EdgeKey]int
}

func NewLinkSet() *LinkSet {
	return &LinkSet{index: make(map[topology.EdgeKey]int)}
}

// Add registers the link a-b. A later entry for b-a (or a-b) is a duplicate of
// the same physical link and is ignored; Add reports whether it was kept.
func (ls *LinkSet) Add(a, b string, d Distribution) (bool, error) {
	if a == b {
		return false, fmt.Errorf("link %s-%s: %w", a, b, topology.ErrSelfLoop)
	}
	key := topology.EdgeKey{From: a, To: b}
	if _, ok := ls.index[key]; ok {
		return false, nil
	}
	if _, ok := ls.index[key.Reverse()]; ok {
		return false, nil
	}
	if err := d.Validate(); err != nil {
		return false, fmt.Errorf("link %s-%s: %w", a, b, err)
	}
	ls.index[key] = len(ls.links)
	ls.index[key.Reverse()] = len(ls.links)
	ls.links = append(ls.links, Link{A: a, B: b, Distribution: d})
	return true, nil
}

func (ls *LinkSet) Links() []Link { return ls.links }
func (ls *LinkSet) Len() int      { return len(ls.links) }

// Lookup finds the link carrying the directed edge key.
func (ls *LinkSet) Lookup(key topology.EdgeKey) (Link, bool) {
	i, ok := ls.index[key]
	if !ok {
		return Link{}, false
	}
	return ls.links[i], true
}

// Directional returns the distribution of every directed edge, both
// directions of a link sharing one distribution.
func (ls *LinkSet) Directional() map[topology.EdgeKey]Distribution {
	out := make(map[topology.EdgeKey]Distribution, 2*len(ls.links))
	for _, l := range ls.links {
		out[l.Forward()] = l.Distribution
		out[l.Backward()] = l.Distribution
	}
	return out
}
