package scenario

import (
	"fmt"

	"github.com/hedge-wan/hedge/topology"
	log "github.com/sirupsen/logrus"
)

// DefaultUnity is the base link-rate unit recorded on generated edges.
const DefaultUnity = 200

// BoundNetwork is a whole-network instance with every link pinned to one
// extreme state.
type BoundNetwork struct {
	Network     *topology.Network
	Probability float64
	// AtMaximum is set when every link sits at its maximum capacity.
	AtMaximum bool
	// AtMinimumNonzero is set when every link sits at its smallest nonzero capacity.
	AtMinimumNonzero bool
}

// Bounds builds the pessimistic (all links at their smallest nonzero state)
// and optimistic (all links at their maximum) networks. Edge max capacity is
// the largest nonzero state of the link.
func Bounds(name string, links *LinkSet, unity float64) (low, high BoundNetwork, err error) {
	if links.Len() == 0 {
		return low, high, ErrNoLinks
	}

	lows := make([]State, links.Len())
	highs := make([]State, links.Len())
	for i, l := range links.Links() {
		s, ok := l.Distribution.MinNonzero()
		if !ok {
			return low, high, fmt.Errorf("link %s-%s has no nonzero state: %w", l.A, l.B, ErrBadDistribution)
		}
		lows[i] = s
		highs[i] = l.Distribution.Max()
	}

	low, err = boundNetwork(name, links, lows, highs, lows, unity)
	if err != nil {
		return low, high, err
	}
	high, err = boundNetwork(name, links, highs, highs, lows, unity)
	if err != nil {
		return low, high, err
	}
	log.Infof("Bounds: network=%s links=%d min(prob=%.4g) max(prob=%.4g)",
		name, links.Len(), low.Probability, high.Probability)
	return low, high, nil
}

func boundNetwork(name string, links *LinkSet, chosen, highs, lows []State, unity float64) (BoundNetwork, error) {
	bn := BoundNetwork{
		Network:          topology.NewNetwork(name),
		Probability:      1,
		AtMaximum:        true,
		AtMinimumNonzero: true,
	}
	for i, l := range links.Links() {
		c := chosen[i]
		if _, err := bn.Network.AddEdge(l.A, l.B, unity, c.Capacity, highs[i].Capacity); err != nil {
			return bn, err
		}
		if _, err := bn.Network.AddEdge(l.B, l.A, unity, c.Capacity, highs[i].Capacity); err != nil {
			return bn, err
		}
		bn.Probability *= c.Probability
		if c.Capacity < highs[i].Capacity {
			bn.AtMaximum = false
		}
		if c.Capacity != lows[i].Capacity {
			bn.AtMinimumNonzero = false
		}
	}
	return bn, nil
}
