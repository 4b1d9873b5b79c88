package optimiser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteClusterCSV writes one row per cluster-info record for manual review,
// grounded on the teacher sweep package's WriteRawRow/WriteSummary idiom of
// a header row followed by Write+Flush per record. Called by the Prepare
// phase (runPrepare) so every study leaves a cluster_info.csv alongside its
// group_info.db, per SPEC_FULL §9's "per-cluster diagnostic CSV export".
func WriteClusterCSV(w io.Writer, infos []ClusterInfo) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{
		"tile_id", "cluster_id", "n_points",
		"mean_proba", "stddev_proba", "mean_entropy", "stddev_entropy",
		"overlay_frac", "target",
	}); err != nil {
		return fmt.Errorf("optimiser: write cluster csv header: %w", err)
	}

	for _, info := range infos {
		summary := SummarizeCluster(info)
		row := []string{
			info.TileID,
			strconv.Itoa(int(info.ClusterID)),
			strconv.Itoa(len(info.Probabilities)),
			strconv.FormatFloat(summary.MeanProbability, 'f', 4, 64),
			strconv.FormatFloat(summary.StddevProbability, 'f', 4, 64),
			strconv.FormatFloat(summary.MeanEntropy, 'f', 4, 64),
			strconv.FormatFloat(summary.StddevEntropy, 'f', 4, 64),
			strconv.FormatFloat(overlayFrac(info), 'f', 4, 64),
			strconv.Itoa(int(info.Target)),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("optimiser: write cluster csv row: %w", err)
		}
	}
	return cw.Error()
}

func overlayFrac(info ClusterInfo) float64 {
	n := len(info.Overlays)
	if n == 0 {
		return 0
	}
	var overlayCount int
	for _, v := range info.Overlays {
		if v == 1 {
			overlayCount++
		}
	}
	return float64(overlayCount) / float64(n)
}
