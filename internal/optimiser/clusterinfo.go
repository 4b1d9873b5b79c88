// Package optimiser implements §4.8: it runs the Validator's preparation
// over a labelled reference dataset, extracts per-cluster summaries, searches
// Validator thresholds under precision/recall/automation constraints via a
// multi-objective trial-based search, and persists and re-evaluates the
// chosen thresholds.
package optimiser

import (
	"github.com/lidarprod/buildingvalidator/internal/tile"
	"github.com/lidarprod/buildingvalidator/internal/validator"
)

// ClusterInfo is one per-cluster summary record, per §3's "Cluster info
// record". Target is only populated during optimisation; production
// inference never reads it.
type ClusterInfo struct {
	TileID        string    `json:"tile_id"`
	ClusterID     int32     `json:"cluster_id"`
	Probabilities []float32 `json:"probabilities"`
	Overlays      []uint8   `json:"overlays"`
	Entropies     []float32 `json:"entropies"`
	Target        uint8     `json:"target"` // a FinalBucket value; see targetFor
}

// ExtractClusterInfo walks a tile already processed by Validator.Prepare and
// emits one ClusterInfo per non-noise cluster. tauTPMin/tauFPMax/tpCodes
// implement §4.8's "target derivation per cluster" using the cluster
// members' ground-truth classification (present on a labelled tile).
func ExtractClusterInfo(tileID string, t *tile.Tile, tauTPMin, tauFPMax float64, tpCodes []uint8) ([]ClusterInfo, error) {
	probaDim, err := t.RequireDimension(validator.DimBuildingProba)
	if err != nil {
		return nil, err
	}
	entropyDim, err := t.RequireDimension(validator.DimEntropy)
	if err != nil {
		return nil, err
	}
	overlayDim, err := t.RequireDimension(validator.DimDBOverlay)
	if err != nil {
		return nil, err
	}
	clusterDim, err := t.RequireDimension(validator.DimClusterIDCandidates)
	if err != nil {
		return nil, err
	}

	tp := make(map[uint8]bool, len(tpCodes))
	for _, c := range tpCodes {
		tp[c] = true
	}

	membersByCluster := make(map[int32][]int)
	for i := 0; i < t.NumPoints(); i++ {
		id := clusterDim.I32[i]
		if id <= 0 {
			continue
		}
		membersByCluster[id] = append(membersByCluster[id], i)
	}

	infos := make([]ClusterInfo, 0, len(membersByCluster))
	for id, members := range membersByCluster {
		info := ClusterInfo{TileID: tileID, ClusterID: id}
		info.Probabilities = make([]float32, len(members))
		info.Overlays = make([]uint8, len(members))
		info.Entropies = make([]float32, len(members))

		var tpCount int
		for k, i := range members {
			info.Probabilities[k] = probaDim.F32[i]
			info.Overlays[k] = overlayDim.U8[i]
			info.Entropies[k] = entropyDim.F32[i]
			if tp[t.Classification[i]] {
				tpCount++
			}
		}
		info.Target = uint8(targetFor(float64(tpCount)/float64(len(members)), tauTPMin, tauFPMax))
		infos = append(infos, info)
	}
	return infos, nil
}

// targetFor implements §4.8's target derivation: tp_frac >= tauTPMin ->
// building; tp_frac < tauFPMax -> not_building; else unsure.
func targetFor(tpFrac, tauTPMin, tauFPMax float64) validator.FinalBucket {
	switch {
	case tpFrac >= tauTPMin:
		return validator.FinalBuilding
	case tpFrac < tauFPMax:
		return validator.FinalNotBuilding
	default:
		return validator.FinalUnsure
	}
}
