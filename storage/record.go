// Package storage persists experiment results, as JSON files or in SQLite.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("run not found")

type StrategyResult struct {
	Throughput      float64   `json:"throughput"`
	Reductions      []float64 `json:"reductions"`
	Recomputations  int       `json:"recomputations"`
	Replans         int       `json:"replans"`
	AffectedRouters []int     `json:"affected_routers"`
	ChangedTunnels  []int     `json:"changed_tunnels,omitempty"`
	ChangedRouters  []int     `json:"changed_routers,omitempty"`
}

type ScaleResult struct {
	Scale      float64                   `json:"scale"`
	Strategies map[string]StrategyResult `json:"strategies"`
	MaxState   []bool                    `json:"max_state"`
}

// RunRecord is one experiment: every demand scale of one topology.
type RunRecord struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	CreatedAt     time.Time     `json:"created_at"`
	Coverage      float64       `json:"coverage"`
	ScenarioCount int           `json:"scenario_count"`
	TotalDemand   float64       `json:"total_demand"`
	Scales        []ScaleResult `json:"scales"`
}

// NewRunRecord stamps a fresh id and creation time.
func NewRunRecord(name string) *RunRecord {
	return &RunRecord{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
}

type RunSummary struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// ResultStore saves and retrieves run records.
type ResultStore interface {
	Save(ctx context.Context, rec *RunRecord) error
	Load(ctx context.Context, id string) (*RunRecord, error)
	List(ctx context.Context) ([]RunSummary, error)
	Close() error
}

func validID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("run id %q: %w", id, err)
	}
	return nil
}
