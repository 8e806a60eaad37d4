package allocation

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/hedge-wan/hedge/lp"
	"github.com/hedge-wan/hedge/topology"
)

// MaxThroughput maximizes total flow on net under its current edge
// capacities.
func MaxThroughput(ctx context.Context, solver lp.Solver, net *topology.Network) (Allocation, error) {
	fm := newFlowModel("max_throughput", networkDemands{net})
	fm.addNetworkCapacities(net)
	fm.model.SetObjective(fm.throughput(), lp.Maximize)

	sol, err := solver.Solve(ctx, fm.model)
	if err != nil {
		return nil, err
	}
	alloc := fm.allocation(sol)
	log.Infof("MaxThroughput: network=%s throughput=%.3f", net.Name, alloc.Total())
	return alloc, nil
}
