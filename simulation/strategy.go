package simulation

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/hedge-wan/hedge/allocation"
	"github.com/hedge-wan/hedge/lp"
	"github.com/hedge-wan/hedge/postprocessing"
	"github.com/hedge-wan/hedge/scenario"
	"github.com/hedge-wan/hedge/topology"
)

const (
	NaiveOptimistic  = "naive_optimistic"
	NaivePessimistic = "naive_pessimistic"
	HedgeName        = "hedge"
	RadwanName       = "radwan"
	teavarPrefix     = "teavar"
)

// DefaultStrategies is the comparison run when no list is configured.
var DefaultStrategies = []string{NaiveOptimistic, NaivePessimistic, HedgeName, "teavar50", "teavar90", RadwanName}

// Inputs is everything a strategy may plan on. Networks already carry the
// demand scale of the run and are read-only.
type Inputs struct {
	Max           *topology.Network
	Min           *topology.Network
	Distributions map[topology.EdgeKey]scenario.Distribution
	Scenarios     *scenario.ScenarioSet
	Hedge         allocation.HedgeOptions
}

// Strategy computes the allocation held during a simulation.
type Strategy interface {
	Name() string
	Allocate(ctx context.Context, solver lp.Solver, in Inputs) (allocation.Allocation, error)
}

// Replanner is a strategy that re-solves when capacities change. changed
// holds the edges that differ from the capacities of the last replan.
type Replanner interface {
	Strategy
	Replan(ctx context.Context, solver lp.Solver, current topology.CapacityAssignment, changed []topology.EdgeKey) (allocation.Allocation, error)
}

// Factory returns a fresh strategy; strategies may hold per-run state.
type Factory func() Strategy

// StrategyRegistry maps strategy names to factories.
type StrategyRegistry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{factories: make(map[string]Factory)}
}

var globalRegistry = NewStrategyRegistry()

func init() {
	for name, f := range map[string]Factory{
		NaiveOptimistic:  func() Strategy { return naive{name: NaiveOptimistic, optimistic: true} },
		NaivePessimistic: func() Strategy { return naive{name: NaivePessimistic} },
		HedgeName:        func() Strategy { return hedge{} },
		RadwanName:       func() Strategy { return &radwan{} },
	} {
		if err := globalRegistry.Register(name, f); err != nil {
			log.Warnf("Failed to register strategy %s: %v", name, err)
		}
	}
}

func GetGlobalRegistry() *StrategyRegistry { return globalRegistry }

func (sr *StrategyRegistry) Register(name string, f Factory) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if _, exists := sr.factories[name]; exists {
		return fmt.Errorf("strategy '%s' is already registered", name)
	}
	sr.factories[name] = f
	return nil
}

// New builds the named strategy. Names of the form teavarNN build a TeaVar*
// strategy with beta NN/100.
func (sr *StrategyRegistry) New(name string) (Strategy, error) {
	sr.mu.RLock()
	f, exists := sr.factories[name]
	sr.mu.RUnlock()
	if exists {
		return f(), nil
	}

	if pct, ok := strings.CutPrefix(name, teavarPrefix); ok {
		n, err := strconv.Atoi(pct)
		if err != nil || n <= 0 || n >= 100 {
			return nil, fmt.Errorf("strategy '%s': beta must be a percentage in (0, 100)", name)
		}
		return teavar{name: name, beta: float64(n) / 100}, nil
	}
	return nil, fmt.Errorf("strategy '%s' not found in registry", name)
}

// List returns the registered names in sorted order; teavarNN names are
// accepted by New without being listed.
func (sr *StrategyRegistry) List() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.factories))
	for name := range sr.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// naive maximizes throughput on one bound network.
type naive struct {
	name       string
	optimistic bool
}

func (n naive) Name() string { return n.name }

func (n naive) Allocate(ctx context.Context, solver lp.Solver, in Inputs) (allocation.Allocation, error) {
	if n.optimistic {
		return allocation.MaxThroughput(ctx, solver, in.Max)
	}
	return allocation.MaxThroughput(ctx, solver, in.Min)
}

type hedge struct{}

func (hedge) Name() string { return HedgeName }

func (hedge) Allocate(ctx context.Context, solver lp.Solver, in Inputs) (allocation.Allocation, error) {
	res, err := allocation.Hedge(ctx, solver, in.Max, in.Distributions, in.Hedge)
	if err != nil {
		return nil, err
	}
	return res.Allocation, nil
}

// teavar solves TeaVar* and keeps the postprocessed, deliverable flows.
type teavar struct {
	name string
	beta float64
}

func (t teavar) Name() string { return t.name }

func (t teavar) Allocate(ctx context.Context, solver lp.Solver, in Inputs) (allocation.Allocation, error) {
	res, err := allocation.TeaVarStar(ctx, solver, in.Max, in.Scenarios, t.beta)
	if err != nil {
		return nil, err
	}
	alloc, anomalies := postprocessing.TeaVar(res, in.Max, in.Scenarios)
	if len(anomalies) > 0 {
		log.Warnf("teavar.Allocate: %s has %d demands whose loss exceeded the demand", t.name, len(anomalies))
	}
	return alloc, nil
}

// radwan keeps the tunnel layout of the maximum network and re-solves on
// the capacities it is given.
type radwan struct {
	input *allocation.RadwanInput
}

func (r *radwan) Name() string { return RadwanName }

func (r *radwan) Allocate(ctx context.Context, solver lp.Solver, in Inputs) (allocation.Allocation, error) {
	r.input = allocation.NewRadwanInput(in.Max)
	return allocation.Radwan(ctx, solver, r.input)
}

func (r *radwan) Replan(ctx context.Context, solver lp.Solver, current topology.CapacityAssignment, changed []topology.EdgeKey) (allocation.Allocation, error) {
	if r.input == nil {
		return nil, fmt.Errorf("radwan.Replan called before Allocate")
	}
	return allocation.Radwan(ctx, solver, r.input.WithFailedEdges(current, changed))
}
