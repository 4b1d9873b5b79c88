// Package completor implements §4.2: it rescues isolated high-probability
// building points the Validator's clustering missed, by re-clustering them
// together with already-confirmed buildings in 2D and promoting whole
// clusters that touch a confirmed point.
package completor

import (
	"fmt"

	"github.com/lidarprod/buildingvalidator/internal/config"
	"github.com/lidarprod/buildingvalidator/internal/geo"
	"github.com/lidarprod/buildingvalidator/internal/tile"
	"github.com/lidarprod/buildingvalidator/internal/validator"
)

const DimClusterIDIsolatedPlusConfirmed = "cluster_id_isolated_plus_confirmed"

// Completor holds the configuration a Run call is evaluated against. It
// assumes the Validator already ran with final classification codes, since
// both the selection of already-confirmed points and the per-cluster
// promotion test compare against the final building code.
type Completor struct {
	Cfg *config.Config
}

func New(cfg *config.Config) *Completor {
	return &Completor{Cfg: cfg}
}

// Run implements §4.2's algorithm: it rewrites classification (promoting
// whole clusters) and adds cluster_id_isolated_plus_confirmed. It never
// demotes a point already classified as the final building code.
func (c *Completor) Run(t *tile.Tile) error {
	flagDim, err := t.RequireDimension(validator.DimCandidateFlag)
	if err != nil {
		return fmt.Errorf("completor: run: %w", err)
	}
	clusterDim, err := t.RequireDimension(validator.DimClusterIDCandidates)
	if err != nil {
		return fmt.Errorf("completor: run: %w", err)
	}
	probaDim, err := t.RequireDimension(validator.DimBuildingProba)
	if err != nil {
		return fmt.Errorf("completor: run: %w", err)
	}
	overlayDim, err := t.RequireDimension(validator.DimDBOverlay)
	if err != nil {
		return fmt.Errorf("completor: run: %w", err)
	}

	codes := c.Cfg.GetCodes()
	pi := c.Cfg.GetMinBuildingProba()
	rhoPrime := c.Cfg.GetMinBuildingProbaRelaxationIfBDUniOverlay()

	n := t.NumPoints()
	var memberIdx []int
	for i := 0; i < n; i++ {
		isConfirmed := t.Classification[i] == codes.Building
		if isConfirmed {
			memberIdx = append(memberIdx, i)
			continue
		}
		if promotionPredicate(i, flagDim, clusterDim, probaDim, overlayDim, pi, rhoPrime) {
			memberIdx = append(memberIdx, i)
		}
	}

	points := make([]geo.Point, len(memberIdx))
	for k, i := range memberIdx {
		points[k] = geo.Point{X: t.X[i], Y: t.Y[i]}
	}
	labels := geo.Cluster(points, geo.Params{
		MinPoints: c.Cfg.GetCompletorMinPoints(),
		Tolerance: c.Cfg.GetCompletorTolerance(),
		Is3D:      false,
	})

	groupDim := t.AddDimension(DimClusterIDIsolatedPlusConfirmed, tile.DimInt32)
	for i := range groupDim.I32 {
		groupDim.I32[i] = 0
	}
	membersByCluster := make(map[int32][]int)
	for k, i := range memberIdx {
		id := int32(labels[k])
		groupDim.I32[i] = id
		if id > 0 {
			membersByCluster[id] = append(membersByCluster[id], i)
		}
	}

	for _, members := range membersByCluster {
		hasConfirmed := false
		for _, i := range members {
			if t.Classification[i] == codes.Building {
				hasConfirmed = true
				break
			}
		}
		if !hasConfirmed {
			continue
		}
		for _, i := range members {
			t.Classification[i] = codes.Building
		}
	}

	return nil
}

// promotionPredicate implements P(i) from §4.2: a candidate not already in
// a validator cluster, confident enough on its own or confident-plus-overlayed.
func promotionPredicate(i int, flag, clusterID, proba, overlay *tile.Dimension, pi, rhoPrime float64) bool {
	if flag.U8[i] != 1 {
		return false
	}
	if clusterID.I32[i] != 0 {
		return false
	}
	p := float64(proba.F32At(i))
	if p >= pi {
		return true
	}
	return overlay.U8[i] == 1 && p >= pi*rhoPrime
}
