package scenario

import (
	"fmt"
	"sort"
)

// availabilityTolerance absorbs rounding in prefix sums such as 0.7+0.2.
const availabilityTolerance = 1e-9

// GuaranteedCapacity returns the largest capacity the link delivers with at
// least the given probability: states are ordered by capacity descending
// (ties by probability descending) and the first state at which the running
// probability reaches availability is returned.
func GuaranteedCapacity(d Distribution, availability float64) (float64, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}
	if availability <= 0 || availability > 1 {
		return 0, fmt.Errorf("availability %v outside (0, 1]: %w", availability, ErrAvailability)
	}

	ordered := make(Distribution, len(d))
	copy(ordered, d)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Capacity != ordered[j].Capacity {
			return ordered[i].Capacity > ordered[j].Capacity
		}
		return ordered[i].Probability > ordered[j].Probability
	})

	var sum float64
	for _, s := range ordered {
		sum += s.Probability
		if sum+availabilityTolerance >= availability {
			return s.Capacity, nil
		}
	}
	return 0, fmt.Errorf("cumulative probability %v < %v: %w", sum, availability, ErrAvailability)
}
