package postprocessing

import (
	"fmt"
	"math"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/hedge-wan/hedge/allocation"
	"github.com/hedge-wan/hedge/scenario"
	"github.com/hedge-wan/hedge/topology"
)

// betaTolerance absorbs rounding in the running probability sum.
const betaTolerance = 1e-12

// lossTolerance absorbs solver noise in the raw loss values.
const lossTolerance = 1e-6

// Anomaly records a demand whose beta-crossing loss exceeded its amount.
type Anomaly struct {
	Demand topology.DemandKey
	Loss   float64
	Amount float64
}

func (a Anomaly) String() string {
	return fmt.Sprintf("demand %s loss %.4f > amount %.4f", a.Demand, a.Loss, a.Amount)
}

type lossEntry struct {
	scenario int
	loss     float64
}

// crossingLoss walks the losses in ascending order (ties by scenario id) and
// returns the loss at which the cumulative scenario probability reaches beta.
// reached is false when it never does; the worst loss is returned then.
func crossingLoss(losses map[int]float64, probs map[int]float64, beta float64) (loss float64, reached bool) {
	entries := make([]lossEntry, 0, len(losses))
	for id, l := range losses {
		entries = append(entries, lossEntry{scenario: id, loss: l})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].loss != entries[j].loss {
			return entries[i].loss < entries[j].loss
		}
		return entries[i].scenario < entries[j].scenario
	})

	var sum float64
	for _, e := range entries {
		sum += probs[e.scenario]
		if sum+betaTolerance >= beta {
			return e.loss, true
		}
	}
	if len(entries) == 0 {
		return 0, false
	}
	return entries[len(entries)-1].loss, false
}

// TeaVar converts a TeaVar* result into deliverable flows. Each demand may
// carry amount minus its beta-crossing loss, split across its tunnels in
// proportion to the raw flows.
func TeaVar(res *allocation.TeaVarResult, net *topology.Network, scenarios *scenario.ScenarioSet) (allocation.Allocation, []Anomaly) {
	probs := make(map[int]float64, len(scenarios.Scenarios))
	for _, q := range scenarios.Scenarios {
		probs[q.ID] = q.Probability
	}

	out := make(allocation.Allocation)
	var anomalies []Anomaly
	for _, d := range net.Demands() {
		flows := res.Flows[d.Key]
		var crossing float64
		if losses, ok := res.Losses[d.Key]; ok {
			var reached bool
			crossing, reached = crossingLoss(losses, probs, res.Beta)
			if !reached {
				log.Warnf("TeaVar: demand %s never reaches beta=%v, using worst loss %.4f", d.Key, res.Beta, crossing)
			}
		}
		// the solver's own loss values may overshoot the amount even when
		// the recomputed ones cannot
		flagged := crossing
		if losses, ok := res.RawLosses[d.Key]; ok {
			rawCrossing, _ := crossingLoss(losses, probs, res.Beta)
			flagged = math.Max(flagged, rawCrossing)
		}
		if flagged > d.Amount+lossTolerance {
			a := Anomaly{Demand: d.Key, Loss: flagged, Amount: d.Amount}
			log.Warnf("TeaVar: %s", a)
			anomalies = append(anomalies, a)
		}

		permitted := math.Max(0, d.Amount-crossing)
		raw := flows.Total()
		for id, f := range flows {
			if raw == 0 {
				out[id] = 0
				continue
			}
			out[id] = f / raw * permitted
		}
	}
	log.Infof("TeaVar: beta=%v throughput=%.3f anomalies=%d", res.Beta, out.Total(), len(anomalies))
	return out, anomalies
}
