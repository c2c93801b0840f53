// Package consensus implements the Consensus Arbiter (C8), combining a set
// of parallel Stage Results from redundant workers into one verdict, the
// way consensus/mechanisms.py's ConsensusEngine combines agent votes.
package consensus

import (
	"sort"
	"time"

	"github.com/nimbus-payments/orchestration-core/internal/config"
	"github.com/nimbus-payments/orchestration-core/internal/model"
)

// Verdict is the Arbiter's combined output.
type Verdict struct {
	Selected        model.StageResult
	Reached         bool
	AgreementRatio  float64
	PositiveCount   int
	TotalCount      int
}

// Arbitrate applies the configured rule to results (§4.8). Results with
// zero entries return a not-reached verdict carrying ErrAllWorkersFailed.
func Arbitrate(cfg config.Consensus, results []model.StageResult) Verdict {
	results = nonNil(results)
	if len(results) == 0 {
		return Verdict{Selected: model.Failed("", model.ErrAllWorkersFailed, "no worker results to arbitrate", 0, 0)}
	}

	switch cfg.Rule {
	case config.ConsensusWeighted:
		return weighted(cfg, results)
	case config.ConsensusUnanimous:
		return unanimous(results)
	case config.ConsensusThreshold:
		return threshold(cfg, results)
	case config.ConsensusMedian:
		return pivot(results, median)
	case config.ConsensusAverage:
		return pivot(results, average)
	default:
		return majority(cfg, results)
	}
}

func nonNil(results []model.StageResult) []model.StageResult {
	out := make([]model.StageResult, 0, len(results))
	for _, r := range results {
		out = append(out, r)
	}
	return out
}

func positives(results []model.StageResult) int {
	n := 0
	for _, r := range results {
		if r.OK {
			n++
		}
	}
	return n
}

func majority(cfg config.Consensus, results []model.StageResult) Verdict {
	k := positives(results)
	n := len(results)
	ratio := float64(k) / float64(n)
	reached := k > n-k && ratio >= cfg.Threshold

	return Verdict{
		Selected:       fallback(results),
		Reached:        reached,
		AgreementRatio: ratio,
		PositiveCount:  k,
		TotalCount:     n,
	}
}

// weighted multiplies each vote by the AgentWeights entry for the result's
// StageID (1.0 when absent). Every result of one stage carries the same
// StageID, so all votes in a round get the same weight; no per-worker weight
// or per-vote confidence enters the sum.
func weighted(cfg config.Consensus, results []model.StageResult) Verdict {
	var posWeight, totalWeight float64
	for _, r := range results {
		w := 1.0
		if cw, ok := cfg.AgentWeights[string(r.StageID)]; ok {
			w = cw
		}
		totalWeight += w
		if r.OK {
			posWeight += w
		}
	}
	ratio := 0.0
	if totalWeight > 0 {
		ratio = posWeight / totalWeight
	}
	reached := posWeight > totalWeight-posWeight && ratio >= cfg.Threshold

	return Verdict{
		Selected:       fallback(results),
		Reached:        reached,
		AgreementRatio: ratio,
		PositiveCount:  positives(results),
		TotalCount:     len(results),
	}
}

func unanimous(results []model.StageResult) Verdict {
	first := results[0].OK
	agree := true
	for _, r := range results[1:] {
		if r.OK != first {
			agree = false
			break
		}
	}
	k := positives(results)
	return Verdict{
		Selected:       fallback(results),
		Reached:        agree,
		AgreementRatio: float64(k) / float64(len(results)),
		PositiveCount:  k,
		TotalCount:     len(results),
	}
}

func threshold(cfg config.Consensus, results []model.StageResult) Verdict {
	n := len(results)
	k := positives(results)
	successRatio := float64(k) / float64(n)
	failureRatio := 1 - successRatio

	v := Verdict{PositiveCount: k, TotalCount: n, AgreementRatio: successRatio}
	switch {
	case successRatio >= cfg.SuccessThreshold:
		v.Reached = true
		v.Selected = firstOK(results)
	case failureRatio >= cfg.SuccessThreshold:
		v.Reached = true
		v.Selected = firstNotOK(results)
	default:
		v.Reached = false
		v.Selected = fallback(results)
	}
	return v
}

// pivot selects the result whose Elapsed is closest to the given centrality
// measure and reports agreement as the fraction within 10% of that pivot.
func pivot(results []model.StageResult, center func([]time.Duration) time.Duration) Verdict {
	elapsed := make([]time.Duration, len(results))
	for i, r := range results {
		elapsed[i] = r.Elapsed
	}
	pivotValue := center(elapsed)

	bestIdx := 0
	bestDiff := absDuration(elapsed[0] - pivotValue)
	within := 0
	tolerance := time.Duration(float64(pivotValue) * 0.1)
	if tolerance < 0 {
		tolerance = -tolerance
	}

	for i, e := range elapsed {
		diff := absDuration(e - pivotValue)
		if diff <= tolerance {
			within++
		}
		if diff < bestDiff {
			bestDiff = diff
			bestIdx = i
		}
	}

	return Verdict{
		Selected:       results[bestIdx],
		Reached:        true,
		AgreementRatio: float64(within) / float64(len(results)),
		PositiveCount:  positives(results),
		TotalCount:     len(results),
	}
}

func median(durations []time.Duration) time.Duration {
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func average(durations []time.Duration) time.Duration {
	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	return sum / time.Duration(len(durations))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// fallback implements "when consensus is not reached, return the first
// successful result if any, else the first result" (§4.8).
func fallback(results []model.StageResult) model.StageResult {
	for _, r := range results {
		if r.OK {
			return r
		}
	}
	return results[0]
}

func firstOK(results []model.StageResult) model.StageResult {
	for _, r := range results {
		if r.OK {
			return r
		}
	}
	return results[0]
}

func firstNotOK(results []model.StageResult) model.StageResult {
	for _, r := range results {
		if !r.OK {
			return r
		}
	}
	return results[0]
}
