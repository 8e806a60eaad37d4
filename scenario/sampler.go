package scenario

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/hedge-wan/hedge/topology"
)

// Sampler draws independent link states, one categorical draw per link.
// A Sampler is not safe for concurrent use; give each worker its own.
type Sampler struct {
	links []Link
	dists []distuv.Categorical
}

func NewSampler(links *LinkSet, src rand.Source) *Sampler {
	s := &Sampler{links: links.Links()}
	s.dists = make([]distuv.Categorical, len(s.links))
	for i, l := range s.links {
		weights := make([]float64, len(l.Distribution))
		for j, st := range l.Distribution {
			weights[j] = st.Probability
		}
		s.dists[i] = distuv.NewCategorical(weights, src)
	}
	return s
}

// Draw returns a fresh assignment covering both directions of every link,
// and whether every link drew its maximum state.
func (s *Sampler) Draw() (topology.CapacityAssignment, bool) {
	b := topology.NewAssignmentBuilder(2 * len(s.links))
	atMax := true
	for i, l := range s.links {
		st := l.Distribution[int(s.dists[i].Rand())]
		b.SetLink(l.A, l.B, st.Capacity)
		if st.Capacity < l.Distribution.Max().Capacity {
			atMax = false
		}
	}
	return b.Build(), atMax
}
