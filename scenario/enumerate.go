package scenario

import (
	"fmt"
	"math"

	"github.com/hedge-wan/hedge/topology"
	log "github.com/sirupsen/logrus"
)

// Scenario pins every link to one capacity. Assignment is shared read-only
// between workers.
type Scenario struct {
	ID          int
	Assignment  topology.CapacityAssignment
	Probability float64
}

// Enabled reports whether every edge of t runs at full relative capacity in
// the scenario. Partial degradation disables the whole tunnel.
func (s Scenario) Enabled(t *topology.Tunnel) bool {
	for _, e := range t.Edges() {
		c, ok := s.Assignment.Capacity(e.Key)
		if !ok {
			return false
		}
		if e.MaxCapacity == 0 || c/e.MaxCapacity != 1 {
			return false
		}
	}
	return true
}

// Network materializes the scenario on top of base.
func (s Scenario) Network(base *topology.Network) (*topology.Network, error) {
	return base.WithCapacities(s.Assignment)
}

type EnumerateOptions struct {
	// ProbThreshold prunes a link's failure state when 1-P(max) is below it.
	// Larger values drop more failure states and lower the coverage.
	ProbThreshold float64
	// MaxScenarios caps the Cartesian product; 0 means no cap.
	MaxScenarios int
}

// ScenarioSet is the result of Enumerate. Coverage is the probability mass
// of all scenarios, equal to the product over links of the retained mass.
type ScenarioSet struct {
	Scenarios []Scenario
	Coverage  float64
}

// RequireCoverage fails when the enumerated mass is below floor. Callers must
// check it before solving anything with the set.
func (ss *ScenarioSet) RequireCoverage(floor float64) error {
	if ss.Coverage+probTolerance < floor {
		return fmt.Errorf("coverage %.6f < floor %.6f: %w", ss.Coverage, floor, ErrInsufficientCoverage)
	}
	return nil
}

// TotalProbability sums the scenario probabilities.
func (ss *ScenarioSet) TotalProbability() float64 {
	var sum float64
	for _, s := range ss.Scenarios {
		sum += s.Probability
	}
	return sum
}

// retainedStates reduces a link to its max state and, unless pruned, a zero
// capacity failure state carrying the rest of the mass.
func retainedStates(d Distribution, threshold float64) []State {
	top := d.Max()
	states := []State{top}
	if rest := 1 - top.Probability; rest >= threshold && rest > 0 && top.Capacity > 0 {
		states = append(states, State{Capacity: 0, Probability: rest})
	}
	return states
}

// Enumerate builds every combination of retained link states. The number of
// scenarios is exponential in the number of links with a kept failure state.
func Enumerate(links *LinkSet, opts EnumerateOptions) (*ScenarioSet, error) {
	if links.Len() == 0 {
		return nil, ErrNoLinks
	}

	perLink := make([][]State, links.Len())
	count := 1
	coverage := 1.0
	for i, l := range links.Links() {
		perLink[i] = retainedStates(l.Distribution, opts.ProbThreshold)
		var mass float64
		for _, s := range perLink[i] {
			mass += s.Probability
		}
		coverage *= mass
		count *= len(perLink[i])
		if opts.MaxScenarios > 0 && count > opts.MaxScenarios {
			return nil, fmt.Errorf("more than %d scenarios after %d links: %w", opts.MaxScenarios, i+1, ErrTooManyScenarios)
		}
	}
	log.Infof("Enumerate: links=%d threshold=%v scenarios=%d", links.Len(), opts.ProbThreshold, count)

	set := &ScenarioSet{Scenarios: make([]Scenario, 0, count), Coverage: coverage}
	choice := make([]int, links.Len())
	for id := 0; id < count; id++ {
		b := topology.NewAssignmentBuilder(2 * links.Len())
		prob := 1.0
		for i, l := range links.Links() {
			s := perLink[i][choice[i]]
			b.SetLink(l.A, l.B, s.Capacity)
			prob *= s.Probability
		}
		set.Scenarios = append(set.Scenarios, Scenario{ID: id, Assignment: b.Build(), Probability: prob})

		// odometer over the per-link choices, last link fastest
		for i := len(choice) - 1; i >= 0; i-- {
			choice[i]++
			if choice[i] < len(perLink[i]) {
				break
			}
			choice[i] = 0
		}
	}

	if diff := math.Abs(set.TotalProbability() - coverage); diff > probTolerance {
		log.Warnf("Enumerate: scenario mass %.8f differs from link product %.8f", set.TotalProbability(), coverage)
	}
	log.Infof("Enumerate: coverage=%.6f", coverage)
	return set, nil
}
