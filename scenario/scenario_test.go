package scenario

import (
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/hedge-wan/hedge/topology"
)

func triangle(t *testing.T) *LinkSet {
	t.Helper()
	ls := NewLinkSet()
	dists := []struct {
		a, b string
		d    map[float64]float64
	}{
		{"1", "2", map[float64]float64{100: 0.99, 50: 0.005, 0: 0.005}},
		{"2", "3", map[float64]float64{100: 0.9, 0: 0.1}},
		{"3", "1", map[float64]float64{200: 0.999, 100: 0.001}},
	}
	for _, l := range dists {
		_, err := ls.Add(l.a, l.b, NewDistribution(l.d))
		require.NoError(t, err)
	}
	return ls
}

func TestDistributionValidate(t *testing.T) {
	testCases := []struct {
		name    string
		states  map[float64]float64
		wantErr bool
	}{
		{name: "sums to one", states: map[float64]float64{0: 0.1, 50: 0.2, 100: 0.7}},
		{name: "sums below one", states: map[float64]float64{0: 0.1, 100: 0.7}, wantErr: true},
		{name: "negative probability", states: map[float64]float64{0: -0.1, 100: 1.1}, wantErr: true},
		{name: "empty", states: map[float64]float64{}, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := NewDistribution(tc.states).Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrBadDistribution)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLinkSetCollapsesDirections(t *testing.T) {
	ls := NewLinkSet()
	d := NewDistribution(map[float64]float64{100: 1})

	kept, err := ls.Add("a", "b", d)
	require.NoError(t, err)
	assert.True(t, kept)

	kept, err = ls.Add("b", "a", NewDistribution(map[float64]float64{10: 1}))
	require.NoError(t, err)
	assert.False(t, kept)
	assert.Equal(t, 1, ls.Len())

	dir := ls.Directional()
	assert.Len(t, dir, 2)
	assert.Equal(t, 100.0, dir[topology.EdgeKey{From: "b", To: "a"}].Max().Capacity)

	_, err = ls.Add("c", "c", d)
	assert.ErrorIs(t, err, topology.ErrSelfLoop)
}

func TestBounds(t *testing.T) {
	low, high, err := Bounds("tri", triangle(t), DefaultUnity)
	require.NoError(t, err)

	e, ok := low.Network.Edge(topology.EdgeKey{From: "1", To: "2"})
	require.True(t, ok)
	assert.Equal(t, 50.0, e.Capacity)
	assert.Equal(t, 100.0, e.MaxCapacity)
	back, _ := low.Network.Edge(topology.EdgeKey{From: "2", To: "1"})
	assert.Equal(t, 50.0, back.Capacity)

	e, _ = high.Network.Edge(topology.EdgeKey{From: "3", To: "1"})
	assert.Equal(t, 200.0, e.Capacity)
	assert.Equal(t, 1.0, e.RelativeCapacity())

	assert.True(t, high.AtMaximum)
	assert.False(t, high.AtMinimumNonzero)
	assert.True(t, low.AtMinimumNonzero)
	assert.False(t, low.AtMaximum)

	assert.InDelta(t, 0.99*0.9*0.999, high.Probability, 1e-12)
	assert.InDelta(t, 0.005*0.9*0.001, low.Probability, 1e-12)
	assert.Equal(t, 6, high.Network.EdgeCount())
}

func TestBoundsRejectsAllZeroLink(t *testing.T) {
	ls := NewLinkSet()
	_, err := ls.Add("a", "b", NewDistribution(map[float64]float64{0: 1}))
	require.NoError(t, err)
	_, _, err = Bounds("zero", ls, DefaultUnity)
	assert.ErrorIs(t, err, ErrBadDistribution)
}

func TestEnumerate(t *testing.T) {
	testCases := []struct {
		name      string
		threshold float64
		scenarios int
		coverage  float64
	}{
		// 1-2 fails with 0.01, 2-3 with 0.1, 3-1 with 0.001
		{name: "keep all failures", threshold: 0, scenarios: 8, coverage: 1},
		{name: "prune 3-1", threshold: 0.005, scenarios: 4, coverage: 0.999},
		{name: "prune 1-2 and 3-1", threshold: 0.05, scenarios: 2, coverage: 0.99 * 0.999},
		{name: "prune everything", threshold: 0.5, scenarios: 1, coverage: 0.99 * 0.9 * 0.999},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			set, err := Enumerate(triangle(t), EnumerateOptions{ProbThreshold: tc.threshold})
			require.NoError(t, err)
			assert.Len(t, set.Scenarios, tc.scenarios)
			assert.InDelta(t, tc.coverage, set.Coverage, 1e-9)
			assert.InDelta(t, set.Coverage, set.TotalProbability(), 1e-9)
			for i, s := range set.Scenarios {
				assert.Equal(t, i, s.ID)
				assert.Equal(t, 6, s.Assignment.Len())
			}
		})
	}
}

func TestEnumerateCap(t *testing.T) {
	_, err := Enumerate(triangle(t), EnumerateOptions{MaxScenarios: 4})
	assert.ErrorIs(t, err, ErrTooManyScenarios)
}

func TestRequireCoverage(t *testing.T) {
	set, err := Enumerate(triangle(t), EnumerateOptions{ProbThreshold: 0.5})
	require.NoError(t, err)

	err = set.RequireCoverage(0.9)
	assert.True(t, errors.Is(err, ErrInsufficientCoverage), "got %v", err)
	assert.NoError(t, set.RequireCoverage(0.85))
}

func TestScenarioEnabled(t *testing.T) {
	_, high, err := Bounds("tri", triangle(t), DefaultUnity)
	require.NoError(t, err)
	net := high.Network
	up, err := net.AddTunnel([]string{"1", "2", "3"})
	require.NoError(t, err)

	set, err := Enumerate(triangle(t), EnumerateOptions{})
	require.NoError(t, err)
	var enabled, disabled int
	for _, s := range set.Scenarios {
		c12, _ := s.Assignment.Capacity(topology.EdgeKey{From: "1", To: "2"})
		c23, _ := s.Assignment.Capacity(topology.EdgeKey{From: "2", To: "3"})
		want := c12 == 100 && c23 == 100
		assert.Equal(t, want, s.Enabled(up), "scenario %d", s.ID)
		if want {
			enabled++
		} else {
			disabled++
		}
	}
	assert.Equal(t, 2, enabled)
	assert.Equal(t, 6, disabled)

	view, err := set.Scenarios[len(set.Scenarios)-1].Network(net)
	require.NoError(t, err)
	e, _ := view.Edge(topology.EdgeKey{From: "3", To: "1"})
	assert.Equal(t, 0.0, e.Capacity)
}

// TestEnumerateCoverageProduct checks that the total scenario probability is
// the product over links of the retained state mass.
func TestEnumerateCoverageProduct(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("coverage equals product of retained mass", prop.ForAll(
		func(maxProbs []float64, threshold float64) bool {
			ls := NewLinkSet()
			product := 1.0
			for i, p := range maxProbs {
				d := NewDistribution(map[float64]float64{100: p, 40: (1 - p) / 2, 0: (1 - p) / 2})
				if _, err := ls.Add(string(rune('a'+i)), string(rune('A'+i)), d); err != nil {
					return false
				}
				mass := p
				if 1-p >= threshold && 1-p > 0 {
					mass = 1
				}
				product *= mass
			}
			set, err := Enumerate(ls, EnumerateOptions{ProbThreshold: threshold})
			if err != nil {
				return false
			}
			return math.Abs(set.Coverage-product) < 1e-9 &&
				math.Abs(set.TotalProbability()-product) < 1e-9
		},
		gen.SliceOfN(5, gen.Float64Range(0.5, 1)),
		gen.Float64Range(0, 0.3),
	))

	properties.TestingRun(t)
}

func TestSamplerFrequency(t *testing.T) {
	ls := NewLinkSet()
	_, err := ls.Add("1", "2", NewDistribution(map[float64]float64{100: 0.9, 0: 0.1}))
	require.NoError(t, err)

	const rounds = 1000
	sampler := NewSampler(ls, rand.NewSource(42))
	zero := 0
	for i := 0; i < rounds; i++ {
		a, atMax := sampler.Draw()
		fwd, _ := a.Capacity(topology.EdgeKey{From: "1", To: "2"})
		back, _ := a.Capacity(topology.EdgeKey{From: "2", To: "1"})
		require.Equal(t, fwd, back)
		if fwd == 0 {
			zero++
			assert.False(t, atMax)
		} else {
			assert.True(t, atMax)
		}
	}

	p := 0.1
	stderr := math.Sqrt(p * (1 - p) / rounds)
	freq := float64(zero) / rounds
	log.Infof("TestSamplerFrequency: zero-capacity rounds=%d freq=%.4f", zero, freq)
	assert.InDelta(t, p, freq, 3*stderr)
}

func TestGuaranteedCapacity(t *testing.T) {
	d := NewDistribution(map[float64]float64{0: 0.1, 50: 0.2, 100: 0.7})

	testCases := []struct {
		availability float64
		want         float64
	}{
		{availability: 0.5, want: 100},
		{availability: 0.7, want: 100},
		{availability: 0.9, want: 50},
		{availability: 0.95, want: 0},
		{availability: 1, want: 0},
	}
	for _, tc := range testCases {
		got, err := GuaranteedCapacity(d, tc.availability)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "availability %v", tc.availability)
	}

	_, err := GuaranteedCapacity(d, 0)
	assert.ErrorIs(t, err, ErrAvailability)
}
