// Package simulation replays sampled link states against fixed allocations
// and accounts for the traffic each strategy has to shed.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"

	"github.com/hedge-wan/hedge/allocation"
	"github.com/hedge-wan/hedge/lp"
	"github.com/hedge-wan/hedge/postprocessing"
	"github.com/hedge-wan/hedge/scenario"
	"github.com/hedge-wan/hedge/topology"
)

const (
	DefaultRounds         = 1000
	DefaultReplanInterval = 5
)

var ErrNoStrategies = errors.New("no strategies to simulate")

// Observer is notified of simulator events; metrics collectors implement it.
type Observer interface {
	ObservePostprocess(strategy string, recomputed bool, reduction float64)
	ObserveReplan(strategy string, changedEdges int)
}

type Config struct {
	Rounds         int
	ReplanInterval int
	Seed           uint64
	Observer       Observer
}

func (c Config) withDefaults() Config {
	if c.Rounds <= 0 {
		c.Rounds = DefaultRounds
	}
	if c.ReplanInterval <= 0 {
		c.ReplanInterval = DefaultReplanInterval
	}
	return c
}

// StrategyStats accumulates one strategy's behaviour over the rounds.
type StrategyStats struct {
	// Throughputs holds the initial allocation total followed by one entry
	// per replan.
	Throughputs     []float64
	Reductions      []float64
	Recomputations  int
	Replans         int
	AffectedRouters []int
	ChangedTunnels  []int
	ChangedRouters  []int
}

// Throughput is the mean over the initial allocation and every replan.
func (s *StrategyStats) Throughput() float64 {
	if len(s.Throughputs) == 0 {
		return 0
	}
	return stat.Mean(s.Throughputs, nil)
}

// CongestionFree is the fraction of rounds that needed no reduction.
func (s *StrategyStats) CongestionFree() float64 {
	if len(s.Reductions) == 0 {
		return 0
	}
	free := 0
	for _, r := range s.Reductions {
		if r == 0 {
			free++
		}
	}
	return float64(free) / float64(len(s.Reductions))
}

// ReductionQuantile returns the empirical p-quantile of the per-round
// reductions.
func (s *StrategyStats) ReductionQuantile(p float64) float64 {
	if len(s.Reductions) == 0 {
		return 0
	}
	sorted := make([]float64, len(s.Reductions))
	copy(sorted, s.Reductions)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

type Report struct {
	Order      []string
	Strategies map[string]*StrategyStats
	MaxState   []bool
}

// Simulator owns the static allocations of one demand scale. It is not safe
// for concurrent use.
type Simulator struct {
	cfg        Config
	solver     lp.Solver
	base       *topology.Network
	links      *scenario.LinkSet
	strategies []Strategy
	allocs     map[string]allocation.Allocation
}

// New plans every strategy on in and prepares a simulator over in.Max.
func New(ctx context.Context, cfg Config, solver lp.Solver, in Inputs, links *scenario.LinkSet, strategies []Strategy) (*Simulator, error) {
	if len(strategies) == 0 {
		return nil, ErrNoStrategies
	}
	s := &Simulator{
		cfg:        cfg.withDefaults(),
		solver:     solver,
		base:       in.Max,
		links:      links,
		strategies: strategies,
		allocs:     make(map[string]allocation.Allocation, len(strategies)),
	}
	for _, st := range strategies {
		alloc, err := st.Allocate(ctx, solver, in)
		if err != nil {
			return nil, fmt.Errorf("allocate %s: %w", st.Name(), err)
		}
		s.allocs[st.Name()] = alloc
		log.Infof("Simulator.New: strategy=%s throughput=%.3f", st.Name(), alloc.Total())
	}
	return s, nil
}

// Allocation returns the current allocation of the named strategy.
func (s *Simulator) Allocation(name string) allocation.Allocation { return s.allocs[name] }

// Run plays the configured number of rounds.
func (s *Simulator) Run(ctx context.Context) (*Report, error) {
	cfg := s.cfg
	sampler := scenario.NewSampler(s.links, rand.NewSource(cfg.Seed))

	report := &Report{
		Strategies: make(map[string]*StrategyStats, len(s.strategies)),
		MaxState:   make([]bool, 0, cfg.Rounds),
	}
	for _, st := range s.strategies {
		report.Order = append(report.Order, st.Name())
		report.Strategies[st.Name()] = &StrategyStats{
			Throughputs: []float64{s.allocs[st.Name()].Total()},
			Reductions:  make([]float64, 0, cfg.Rounds),
		}
	}

	snapshot := s.base.CapacityAssignment()
	for round := 1; round <= cfg.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		caps, atMax := sampler.Draw()
		report.MaxState = append(report.MaxState, atMax)
		view, err := s.base.WithCapacities(caps)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", round, err)
		}

		if round%cfg.ReplanInterval == 0 {
			changed := snapshot.Changed(caps)
			if len(changed) > 0 {
				if err := s.replan(ctx, report, caps, changed); err != nil {
					return nil, fmt.Errorf("round %d: %w", round, err)
				}
				snapshot = caps
			}
		}

		for _, st := range s.strategies {
			stats := report.Strategies[st.Name()]
			res, err := postprocessing.Postprocess(ctx, s.solver, view, caps, s.allocs[st.Name()])
			if err != nil {
				return nil, fmt.Errorf("round %d postprocess %s: %w", round, st.Name(), err)
			}
			stats.Reductions = append(stats.Reductions, res.Total)
			stats.AffectedRouters = append(stats.AffectedRouters, postprocessing.AffectedRouters(res.Reductions))
			if res.Recomputed {
				stats.Recomputations++
			}
			if cfg.Observer != nil {
				cfg.Observer.ObservePostprocess(st.Name(), res.Recomputed, res.Total)
			}
		}

		if round%100 == 0 {
			log.Debugf("Simulator.Run: network=%s round %d/%d", s.base.Name, round, cfg.Rounds)
		}
	}

	for _, name := range report.Order {
		stats := report.Strategies[name]
		log.Infof("Simulator.Run: strategy=%s throughput=%.3f congestion_free=%.3f recomputations=%d replans=%d",
			name, stats.Throughput(), stats.CongestionFree(), stats.Recomputations, stats.Replans)
	}
	return report, nil
}

func (s *Simulator) replan(ctx context.Context, report *Report, caps topology.CapacityAssignment, changed []topology.EdgeKey) error {
	for _, st := range s.strategies {
		r, ok := st.(Replanner)
		if !ok {
			continue
		}
		next, err := r.Replan(ctx, s.solver, caps, changed)
		if err != nil {
			return fmt.Errorf("replan %s: %w", st.Name(), err)
		}
		stats := report.Strategies[st.Name()]
		tunnels, routers := postprocessing.ChangedAllocations(s.allocs[st.Name()], next)
		stats.Replans++
		stats.Throughputs = append(stats.Throughputs, next.Total())
		stats.ChangedTunnels = append(stats.ChangedTunnels, tunnels)
		stats.ChangedRouters = append(stats.ChangedRouters, routers)
		s.allocs[st.Name()] = next
		if s.cfg.Observer != nil {
			s.cfg.Observer.ObserveReplan(st.Name(), len(changed))
		}
	}
	return nil
}
