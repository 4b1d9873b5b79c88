package optimiser

import (
	"math/rand"
	"sort"
)

// TrialRange is one threshold's sampling range, the per-parameter analogue
// of the teacher sweep package's RangeSpec.
type TrialRange struct {
	Min, Max float64
}

// SearchSpace is the eight Validator thresholds' sampling ranges. A zero
// TrialRange (Min==Max==0) is treated as "sample [0,1]".
type SearchSpace struct {
	MinConfidenceConfirmation               TrialRange
	MinFracConfirmation                     TrialRange
	MinFracConfirmationFactorIfBDUniOverlay TrialRange
	MinUniDBOverlayFrac                     TrialRange
	MinConfidenceRefutation                 TrialRange
	MinFracRefutation                       TrialRange
	MinEntropyUncertainty                   TrialRange
	MinFracEntropyUncertain                 TrialRange
}

// DefaultSearchSpace samples every threshold uniformly over [0, 1], per
// §4.8's "ranges ... per config" with no narrower prior configured.
func DefaultSearchSpace() SearchSpace {
	unit := TrialRange{Min: 0, Max: 1}
	return SearchSpace{
		MinConfidenceConfirmation:               unit,
		MinFracConfirmation:                     unit,
		MinFracConfirmationFactorIfBDUniOverlay: unit,
		MinUniDBOverlayFrac:                     unit,
		MinConfidenceRefutation:                 unit,
		MinFracRefutation:                       unit,
		MinEntropyUncertainty:                   unit,
		MinFracEntropyUncertain:                 unit,
	}
}

func sample(r *rand.Rand, tr TrialRange) float64 {
	if tr.Min == 0 && tr.Max == 0 {
		tr = TrialRange{Min: 0, Max: 1}
	}
	return tr.Min + r.Float64()*(tr.Max-tr.Min)
}

func (sp SearchSpace) sampleTrial(r *rand.Rand) Thresholds {
	return Thresholds{
		MinConfidenceConfirmation:               sample(r, sp.MinConfidenceConfirmation),
		MinFracConfirmation:                     sample(r, sp.MinFracConfirmation),
		MinFracConfirmationFactorIfBDUniOverlay: sample(r, sp.MinFracConfirmationFactorIfBDUniOverlay),
		MinUniDBOverlayFrac:                     sample(r, sp.MinUniDBOverlayFrac),
		MinConfidenceRefutation:                 sample(r, sp.MinConfidenceRefutation),
		MinFracRefutation:                       sample(r, sp.MinFracRefutation),
		MinEntropyUncertainty:                   sample(r, sp.MinEntropyUncertainty),
		MinFracEntropyUncertain:                 sample(r, sp.MinFracEntropyUncertain),
	}
}

// Trial is one sampled point in the search, its resulting metrics, and its
// constraint penalty (0 means feasible), mirroring the teacher sweep
// package's ScoredResult.
type Trial struct {
	Thresholds Thresholds
	Metrics    Metrics
	Penalty    float64
}

// Constraints is the three minima a trial's metrics are checked against.
type Constraints struct {
	MinPrecision  float64
	MinRecall     float64
	MinAutomation float64
}

// RunSearch implements §4.8's Optimize phase: sample numTrials threshold
// vectors, score each against infos, and pick the winner. Among feasible
// trials (penalty == 0) the one maximising automation wins; if none are
// feasible, the one maximising the product of the three metrics wins and
// ErrNoFeasibleTrial is returned alongside it, per §7's "non-fatal;
// best-product fallback applies and a warning is emitted". rnd is
// caller-supplied so a search is reproducible given a seeded source.
func RunSearch(infos []ClusterInfo, sp SearchSpace, constraints Constraints, numTrials int, rnd *rand.Rand) (Trial, []Trial, error) {
	trials := make([]Trial, numTrials)
	for i := 0; i < numTrials; i++ {
		thr := sp.sampleTrial(rnd)
		c := buildConfusion(infos, thr)
		m := computeMetrics(c)
		trials[i] = Trial{
			Thresholds: thr,
			Metrics:    m,
			Penalty:    constraintPenalty(m, constraints.MinPrecision, constraints.MinRecall, constraints.MinAutomation),
		}
	}

	feasible := make([]Trial, 0, numTrials)
	for _, t := range trials {
		if t.Penalty == 0 {
			feasible = append(feasible, t)
		}
	}

	if len(feasible) > 0 {
		sort.Slice(feasible, func(i, j int) bool {
			return feasible[i].Metrics.Automation > feasible[j].Metrics.Automation
		})
		return feasible[0], trials, nil
	}

	best := trials[0]
	bestScore := product(best.Metrics)
	for _, t := range trials[1:] {
		if s := product(t.Metrics); s > bestScore {
			best, bestScore = t, s
		}
	}
	return best, trials, ErrNoFeasibleTrial
}

func product(m Metrics) float64 {
	return m.Automation * m.Precision * m.Recall
}
