package experiment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"

	"github.com/hedge-wan/hedge/allocation"
	"github.com/hedge-wan/hedge/common"
	"github.com/hedge-wan/hedge/lp"
	"github.com/hedge-wan/hedge/metrics"
	"github.com/hedge-wan/hedge/simulation"
	"github.com/hedge-wan/hedge/storage"
)

type Config struct {
	Scales     []float64
	Strategies []string
	Simulation simulation.Config
	Hedge      allocation.HedgeOptions
	// Workers sizes the pool; 0 means one worker per logical CPU.
	Workers int
}

// Runner runs one simulation per demand scale. Scales run in parallel on an
// ants pool, each with its own strategies and random source.
type Runner struct {
	cfg      Config
	solver   lp.Solver
	pool     *ants.Pool
	registry *simulation.StrategyRegistry
	metrics  *metrics.Collectors
}

// NewRunner builds a runner. collectors may be nil.
func NewRunner(cfg Config, solver lp.Solver, collectors *metrics.Collectors) (*Runner, error) {
	if len(cfg.Strategies) == 0 {
		log.Warningf("NewRunner: no strategies configured, using default %v", simulation.DefaultStrategies)
		cfg.Strategies = simulation.DefaultStrategies
	}
	r := &Runner{
		cfg:      cfg,
		solver:   solver,
		registry: simulation.GetGlobalRegistry(),
		metrics:  collectors,
	}
	// reject unknown names before any LP is solved
	for _, name := range cfg.Strategies {
		if _, err := r.registry.New(name); err != nil {
			return nil, err
		}
	}
	if collectors != nil {
		r.cfg.Simulation.Observer = collectors
	}

	pool, err := common.NewPool(common.PoolConfig{MaxWorkers: cfg.Workers})
	if err != nil {
		log.Warnf("NewRunner: pool unavailable (%v), scales will run sequentially", err)
	}
	r.pool = pool
	return r, nil
}

// Release frees the pool workers.
func (r *Runner) Release() {
	if r.pool != nil {
		r.pool.Release()
	}
}

type scaleOutcome struct {
	result storage.ScaleResult
	err    error
}

// Run simulates every configured scale and returns a record whose scales are
// sorted ascending. The first failing scale cancels the others.
func (r *Runner) Run(ctx context.Context, setup *Setup) (*storage.RunRecord, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan scaleOutcome, len(r.cfg.Scales))
	task := func(i int, scale float64) {
		res, err := r.runScale(ctx, setup, i, scale)
		if err != nil {
			cancel()
		}
		outcomes <- scaleOutcome{result: res, err: err}
	}

	if r.pool == nil {
		for i, scale := range r.cfg.Scales {
			task(i, scale)
		}
	} else {
		var wg sync.WaitGroup
		for i, scale := range r.cfg.Scales {
			i, scale := i, scale // per-iteration copies for the async closure (go 1.21 loop semantics)
			wg.Add(1)
			err := r.pool.Submit(func() {
				defer wg.Done()
				task(i, scale)
			})
			if err != nil {
				log.Warnf("Runner.Run: failed to submit scale %v: %v", scale, err)
				wg.Done()
				outcomes <- scaleOutcome{err: fmt.Errorf("submit scale %v: %w", scale, err)}
			}
		}
		wg.Wait()
	}
	close(outcomes)

	rec := storage.NewRunRecord(setup.Name)
	rec.Coverage = setup.Scenarios.Coverage
	rec.ScenarioCount = len(setup.Scenarios.Scenarios)
	rec.TotalDemand = setup.High.Network.TotalDemand()

	var firstErr error
	for o := range outcomes {
		if o.err != nil {
			// a cancellation caused by another scale hides the real failure
			if firstErr == nil || errors.Is(firstErr, context.Canceled) {
				firstErr = o.err
			}
			continue
		}
		rec.Scales = append(rec.Scales, o.result)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	sort.Slice(rec.Scales, func(i, j int) bool { return rec.Scales[i].Scale < rec.Scales[j].Scale })
	log.Infof("Runner.Run: network=%s scales=%d run=%s", setup.Name, len(rec.Scales), rec.ID)
	return rec, nil
}

func (r *Runner) runScale(ctx context.Context, setup *Setup, index int, scale float64) (storage.ScaleResult, error) {
	strategies := make([]simulation.Strategy, 0, len(r.cfg.Strategies))
	for _, name := range r.cfg.Strategies {
		st, err := r.registry.New(name)
		if err != nil {
			return storage.ScaleResult{}, err
		}
		strategies = append(strategies, st)
	}

	in := simulation.Inputs{
		Max:           setup.High.Network.ScaleDemands(scale),
		Min:           setup.Low.Network.ScaleDemands(scale),
		Distributions: setup.Links.Directional(),
		Scenarios:     setup.Scenarios,
		Hedge:         r.cfg.Hedge,
	}
	simCfg := r.cfg.Simulation
	simCfg.Seed += uint64(index)

	log.Infof("runScale: network=%s scale=%v demand=%.3f", setup.Name, scale, in.Max.TotalDemand())
	sim, err := simulation.New(ctx, simCfg, r.solver, in, setup.Links, strategies)
	if err != nil {
		return storage.ScaleResult{}, fmt.Errorf("scale %v: %w", scale, err)
	}
	report, err := sim.Run(ctx)
	if err != nil {
		return storage.ScaleResult{}, fmt.Errorf("scale %v: %w", scale, err)
	}
	if r.metrics != nil {
		r.metrics.ScalesCompleted.Inc()
	}
	return ScaleResult(scale, report), nil
}

// ScaleResult converts a simulation report to its stored form.
func ScaleResult(scale float64, report *simulation.Report) storage.ScaleResult {
	out := storage.ScaleResult{
		Scale:      scale,
		Strategies: make(map[string]storage.StrategyResult, len(report.Strategies)),
		MaxState:   report.MaxState,
	}
	for name, st := range report.Strategies {
		out.Strategies[name] = storage.StrategyResult{
			Throughput:      st.Throughput(),
			Reductions:      st.Reductions,
			Recomputations:  st.Recomputations,
			Replans:         st.Replans,
			AffectedRouters: st.AffectedRouters,
			ChangedTunnels:  st.ChangedTunnels,
			ChangedRouters:  st.ChangedRouters,
		}
	}
	return out
}
