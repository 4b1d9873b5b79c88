package optimiser

import "gonum.org/v1/gonum/stat"

// ClusterStatsSummary holds mean/stddev of a cluster's per-point
// probability and entropy, the per-cluster diagnostic the original's
// optimisation reporting exposes alongside the raw cluster-info record.
type ClusterStatsSummary struct {
	MeanProbability, StddevProbability float64
	MeanEntropy, StddevEntropy         float64
}

// SummarizeCluster computes mean/stddev of probability and entropy over a
// ClusterInfo's members via gonum/stat, unweighted.
func SummarizeCluster(info ClusterInfo) ClusterStatsSummary {
	proba := make([]float64, len(info.Probabilities))
	entropy := make([]float64, len(info.Entropies))
	for k := range info.Probabilities {
		proba[k] = float64(info.Probabilities[k])
		entropy[k] = float64(info.Entropies[k])
	}

	var s ClusterStatsSummary
	if len(proba) > 0 {
		s.MeanProbability, s.StddevProbability = stat.MeanStdDev(proba, nil)
		s.MeanEntropy, s.StddevEntropy = stat.MeanStdDev(entropy, nil)
	}
	return s
}
