// Package metrics exposes solver and simulation counters through prometheus.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hedge-wan/hedge/lp"
)

// Collectors holds every metric of an experiment run on its own registry.
type Collectors struct {
	registry *prometheus.Registry

	SolvesTotal        *prometheus.CounterVec
	SolveDuration      *prometheus.HistogramVec
	PostprocessTotal   *prometheus.CounterVec
	ReductionTotal     *prometheus.CounterVec
	ReplansTotal       *prometheus.CounterVec
	ReplanChangedEdges prometheus.Histogram
	ScalesCompleted    prometheus.Counter
}

func NewCollectors() *Collectors {
	c := &Collectors{registry: prometheus.NewRegistry()}
	f := promauto.With(c.registry)

	c.SolvesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hedge_lp_solves_total",
			Help: "Total number of LP solves",
		},
		[]string{"formulation", "outcome"},
	)
	c.SolveDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hedge_lp_solve_duration_seconds",
			Help:    "LP solve duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
		[]string{"formulation"},
	)
	c.PostprocessTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hedge_postprocess_total",
			Help: "Simulated rounds by strategy and whether the congestion LP ran",
		},
		[]string{"strategy", "recomputed"},
	)
	c.ReductionTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hedge_reduction_total",
			Help: "Total traffic removed by the congestion postprocessor",
		},
		[]string{"strategy"},
	)
	c.ReplansTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hedge_replans_total",
			Help: "Total number of incremental re-plans",
		},
		[]string{"strategy"},
	)
	c.ReplanChangedEdges = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hedge_replan_changed_edges",
			Help:    "Number of changed edges that triggered a re-plan",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		},
	)
	c.ScalesCompleted = f.NewCounter(
		prometheus.CounterOpts{
			Name: "hedge_scales_completed_total",
			Help: "Demand scales whose simulation finished",
		},
	)
	return c
}

func (c *Collectors) Registry() *prometheus.Registry { return c.registry }

// ObservePostprocess records one simulated round of a strategy.
func (c *Collectors) ObservePostprocess(strategy string, recomputed bool, reduction float64) {
	label := "false"
	if recomputed {
		label = "true"
	}
	c.PostprocessTotal.WithLabelValues(strategy, label).Inc()
	if reduction > 0 {
		c.ReductionTotal.WithLabelValues(strategy).Add(reduction)
	}
}

func (c *Collectors) ObserveReplan(strategy string, changedEdges int) {
	c.ReplansTotal.WithLabelValues(strategy).Inc()
	c.ReplanChangedEdges.Observe(float64(changedEdges))
}

// WriteTextfile dumps the registry in the node exporter textfile format.
func (c *Collectors) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

// instrumentedSolver counts and times every solve of the wrapped solver.
type instrumentedSolver struct {
	next lp.Solver
	c    *Collectors
}

// InstrumentSolver wraps next so that every solve is counted by outcome and
// timed, labelled with the model name.
func InstrumentSolver(next lp.Solver, c *Collectors) lp.Solver {
	return &instrumentedSolver{next: next, c: c}
}

func (s *instrumentedSolver) Solve(ctx context.Context, m *lp.Model) (*lp.Solution, error) {
	start := time.Now()
	sol, err := s.next.Solve(ctx, m)
	s.c.SolveDuration.WithLabelValues(m.Name).Observe(time.Since(start).Seconds())
	s.c.SolvesTotal.WithLabelValues(m.Name, outcome(err)).Inc()
	return sol, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "optimal"
	case errors.Is(err, lp.ErrInfeasible):
		return "infeasible"
	case errors.Is(err, lp.ErrUnbounded):
		return "unbounded"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
