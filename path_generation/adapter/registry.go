package adapter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hedge-wan/hedge/path_generation/k_shortest"
)

// PathCalculator computes up to k candidate routes for one flow.
type PathCalculator interface {
	ComputePaths(net k_shortest.Network, flow k_shortest.Flow, k int) []k_shortest.Path
}

// PathCalculatorFunc adapts a plain function to PathCalculator.
type PathCalculatorFunc func(net k_shortest.Network, flow k_shortest.Flow, k int) []k_shortest.Path

func (f PathCalculatorFunc) ComputePaths(net k_shortest.Network, flow k_shortest.Flow, k int) []k_shortest.Path {
	return f(net, flow, k)
}

const (
	MethodKShortest    = "k_shortest"
	MethodEdgeDisjoint = "edge_disjoint"
)

// AlgorithmRegistry maps method names to path calculators.
type AlgorithmRegistry struct {
	calculators map[string]PathCalculator
	mu          sync.RWMutex
}

func NewAlgorithmRegistry() *AlgorithmRegistry {
	return &AlgorithmRegistry{calculators: make(map[string]PathCalculator)}
}

var globalRegistry = NewAlgorithmRegistry()

func init() {
	_ = globalRegistry.Register(MethodKShortest, PathCalculatorFunc(k_shortest.KShortest))
	_ = globalRegistry.Register(MethodEdgeDisjoint, PathCalculatorFunc(k_shortest.EdgeDisjoint))
}

func (ar *AlgorithmRegistry) Register(name string, calculator PathCalculator) error {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	if _, exists := ar.calculators[name]; exists {
		return fmt.Errorf("path method '%s' is already registered", name)
	}
	ar.calculators[name] = calculator
	return nil
}

func (ar *AlgorithmRegistry) Get(name string) (PathCalculator, error) {
	ar.mu.RLock()
	defer ar.mu.RUnlock()

	calc, exists := ar.calculators[name]
	if !exists {
		return nil, fmt.Errorf("path method '%s' not found in registry", name)
	}
	return calc, nil
}

// List returns the registered method names in sorted order.
func (ar *AlgorithmRegistry) List() []string {
	ar.mu.RLock()
	defer ar.mu.RUnlock()

	names := make([]string, 0, len(ar.calculators))
	for name := range ar.calculators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func GetGlobalRegistry() *AlgorithmRegistry { return globalRegistry }
