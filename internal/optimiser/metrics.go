package optimiser

import "github.com/lidarprod/buildingvalidator/internal/validator"

// confusion rows/cols are ground-truth and decision, indexed by
// validator.FinalBucket's declared order (building=0, not_building=1,
// unsure=2) applied to both axes.
type confusion [3][3]int

// clusterStats mirrors validator's unexported type of the same shape; the
// optimiser recomputes it from a ClusterInfo instead of tile dimensions so a
// trial never needs the original tile.
type clusterStats struct {
	pHigh, pHighRelaxed, iaConfirm, iaRefute, overlayFrac, entropyFrac float64
}

func computeStats(info ClusterInfo, tauConfirm, rho, tauRefute, tauEntropy float64) clusterStats {
	n := float64(len(info.Probabilities))
	if n == 0 {
		return clusterStats{}
	}
	var s clusterStats
	for k := range info.Probabilities {
		p := float64(info.Probabilities[k])
		e := float64(info.Entropies[k])
		ov := info.Overlays[k] == 1

		if p >= tauConfirm {
			s.pHigh++
		}
		if p >= tauConfirm*rho {
			s.pHighRelaxed++
		}
		if p >= tauConfirm || (ov && p >= tauConfirm*rho) {
			s.iaConfirm++
		}
		if 1-p >= tauRefute {
			s.iaRefute++
		}
		if ov {
			s.overlayFrac++
		}
		if e >= tauEntropy {
			s.entropyFrac++
		}
	}
	s.pHigh /= n
	s.pHighRelaxed /= n
	s.iaConfirm /= n
	s.iaRefute /= n
	s.overlayFrac /= n
	s.entropyFrac /= n
	return s
}

// decideFromStats mirrors validator's decide() verbatim, against the
// optimiser's own Thresholds vector rather than a config.Config.
func decideFromStats(s clusterStats, thr Thresholds) validator.DetailedCode {
	switch {
	case s.entropyFrac >= thr.MinFracEntropyUncertain:
		return validator.UnsureByEntropy
	case s.iaRefute >= thr.MinFracRefutation:
		if s.overlayFrac >= thr.MinUniDBOverlayFrac {
			return validator.IARefutedButUnderDBUni
		}
		return validator.IARefuted
	case s.iaConfirm >= thr.MinFracConfirmation:
		if s.overlayFrac >= thr.MinUniDBOverlayFrac {
			return validator.BothConfirmed
		}
		return validator.IAConfirmedOnly
	case s.overlayFrac >= thr.MinUniDBOverlayFrac:
		return validator.DBOverlayedOnly
	default:
		return validator.BothUnsure
	}
}

// decideCluster runs the same per-cluster decision as the validator's
// decide() on stats computed from the ClusterInfo, so a trial needs only
// the stored per-member values, not the original tile. The stats depend on
// the trial's thresholds and are recomputed over every member on each call.
func decideCluster(info ClusterInfo, thr Thresholds) validator.FinalBucket {
	s := computeStats(info, thr.MinConfidenceConfirmation, thr.MinFracConfirmationFactorIfBDUniOverlay, thr.MinConfidenceRefutation, thr.MinEntropyUncertainty)
	d := decideFromStats(s, thr)
	return validator.FinalBucketOf(d)
}

func buildConfusion(infos []ClusterInfo, thr Thresholds) confusion {
	var c confusion
	for _, info := range infos {
		decision := decideCluster(info, thr)
		c[info.Target][decision]++
	}
	return c
}

// Metrics holds the three quantities §4.8 constrains the search against.
type Metrics struct {
	Automation float64
	Precision  float64
	Recall     float64
}

// computeMetrics implements §4.8's exact formulas, mapping NaN to 0.
func computeMetrics(c confusion) Metrics {
	const (
		building = int(validator.FinalBuilding)
		notBuilding = int(validator.FinalNotBuilding)
		unsure = int(validator.FinalUnsure)
	)

	var total, automated int
	for g := 0; g < 3; g++ {
		for d := 0; d < 3; d++ {
			total += c[g][d]
			if d == notBuilding || d == building {
				automated += c[g][d]
			}
		}
	}
	automation := nanToZero(float64(automated) / float64(total))

	bldUnsure := c[building][unsure]
	bldConfirm := c[building][building]
	notBldConfirm := c[notBuilding][building]

	precisionDenom := bldUnsure + bldConfirm + notBldConfirm
	precision := nanToZero(float64(bldUnsure+bldConfirm) / float64(precisionDenom))

	var rowBuilding int
	for d := 0; d < 3; d++ {
		rowBuilding += c[building][d]
	}
	recall := nanToZero(float64(bldUnsure+bldConfirm) / float64(rowBuilding))

	return Metrics{Automation: automation, Precision: precision, Recall: recall}
}

func nanToZero(v float64) float64 {
	if v != v { // NaN
		return 0
	}
	return v
}

// constraintPenalty implements §4.8's "sum of shortfalls below the three
// minima (0 ⇒ feasible)".
func constraintPenalty(m Metrics, minPrecision, minRecall, minAutomation float64) float64 {
	var penalty float64
	if m.Precision < minPrecision {
		penalty += minPrecision - m.Precision
	}
	if m.Recall < minRecall {
		penalty += minRecall - m.Recall
	}
	if m.Automation < minAutomation {
		penalty += minAutomation - m.Automation
	}
	return penalty
}
