package common

import (
	"github.com/panjf2000/ants/v2"
	"github.com/shirou/gopsutil/v3/cpu"
	log "github.com/sirupsen/logrus"
)

type PoolConfig struct {
	MaxWorkers int
}

func NewPool(config PoolConfig) (*ants.Pool, error) {
	size := config.MaxWorkers
	if size <= 0 {
		size = DefaultWorkers()
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		log.Errorf("Failed to create ants goroutine_pool: %v", err)
		return nil, err
	}
	return pool, nil
}

// DefaultWorkers is the number of logical CPUs, or 1 if it cannot be read.
func DefaultWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		log.Warningf("DefaultWorkers: cpu count unavailable (%v), using 1", err)
		return 1
	}
	return n
}
