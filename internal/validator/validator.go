// Package validator implements §4.1: it clusters candidate building points,
// overlays them against the external vector database, and assigns each
// cluster a classification from per-point probability, entropy, and
// overlay statistics. Validator.Prepare and Validator.Update are the two
// mutating stages the orchestrator chains before the Completor runs.
package validator

import (
	"context"
	"errors"
	"fmt"

	"github.com/lidarprod/buildingvalidator/internal/config"
	"github.com/lidarprod/buildingvalidator/internal/geo"
	"github.com/lidarprod/buildingvalidator/internal/tile"
	"github.com/lidarprod/buildingvalidator/internal/vectordb"
)

const (
	DimCandidateFlag        = "candidate_flag"
	DimClusterIDCandidates  = "cluster_id_candidates"
	DimDBOverlay            = "db_overlay"
	DimBuildingProba        = "building_proba"
	DimEntropy              = "entropy"
)

// VectorLayerSource supplies the polygon layer Prepare overlays candidate
// points against, abstracting over a user-supplied layer and a live
// vectordb.Client fetch so Prepare's algorithm does not depend on which one
// is used.
type VectorLayerSource interface {
	FetchBuildingsAndReservoirs(ctx context.Context, bbox vectordb.BBox, allowedReservoirNatures []string) ([]geo.Polygon, error)
}

// Options configures one Prepare call.
type Options struct {
	// Layer, if non-nil, is used directly instead of fetching from the
	// vector database ("user-supplied vector layer" in §4.1 step 4).
	Layer []geo.Polygon

	DB                      VectorLayerSource
	SRID                    uint32
	AllowedReservoirNatures []string
}

// Validator holds the configuration a Prepare/Update pair is run against.
type Validator struct {
	Cfg *config.Config

	prepared bool
}

// New returns a Validator bound to cfg.
func New(cfg *config.Config) *Validator {
	return &Validator{Cfg: cfg}
}

// NewPrepared returns a Validator whose Update may be called immediately,
// for a tile that was already prepared in an earlier run and loaded back
// from disk (the optimiser's Update phase, §4.8).
func NewPrepared(cfg *config.Config) *Validator {
	return &Validator{Cfg: cfg, prepared: true}
}

// Prepare implements §4.1's preparation algorithm: it adds candidate_flag,
// cluster_id_candidates and db_overlay, and never touches classification.
// Calling Prepare twice on the same tile yields the same dimension state
// (invariant 5 of §8), since every step recomputes its dimension from
// scratch rather than accumulating.
func (v *Validator) Prepare(ctx context.Context, t *tile.Tile, opts Options) error {
	if _, err := t.RequireDimension(DimBuildingProba); err != nil {
		return fmt.Errorf("validator: prepare: %w", err)
	}
	if _, err := t.RequireDimension(DimEntropy); err != nil {
		return fmt.Errorf("validator: prepare: %w", err)
	}

	n := t.NumPoints()

	candidateSet := make(map[uint8]bool, len(v.Cfg.GetCandidateCodes()))
	for _, c := range v.Cfg.GetCandidateCodes() {
		candidateSet[c] = true
	}

	flagDim := t.AddDimension(DimCandidateFlag, tile.DimUint8)
	for i := 0; i < n; i++ {
		if candidateSet[t.Classification[i]] {
			flagDim.U8[i] = 1
		} else {
			flagDim.U8[i] = 0
		}
	}

	points := make([]geo.Point, 0, n)
	candidateIdx := make([]int, 0, n)
	is3D := v.Cfg.GetClusterIs3D()
	for i := 0; i < n; i++ {
		if flagDim.U8[i] != 1 {
			continue
		}
		p := geo.Point{X: t.X[i], Y: t.Y[i]}
		if is3D {
			p.Z = t.Z[i]
		}
		points = append(points, p)
		candidateIdx = append(candidateIdx, i)
	}
	labels := geo.Cluster(points, geo.Params{
		MinPoints: v.Cfg.GetClusterMinPoints(),
		Tolerance: v.Cfg.GetClusterTolerance(),
		Is3D:      is3D,
	})

	clusterDim := t.AddDimension(DimClusterIDCandidates, tile.DimInt32)
	for i := range clusterDim.I32 {
		clusterDim.I32[i] = 0
	}
	for k, i := range candidateIdx {
		clusterDim.I32[i] = int32(labels[k])
	}

	layer := opts.Layer
	if layer == nil && opts.DB != nil {
		minX, minY, maxX, maxY := t.Header.IntBounds()
		buffer := v.Cfg.GetVectorDBBBoxBuffer()
		bbox := vectordb.BBox{
			MinX: float64(minX) - buffer,
			MinY: float64(minY) - buffer,
			MaxX: float64(maxX) + buffer,
			MaxY: float64(maxY) + buffer,
			SRID: opts.SRID,
		}
		fetched, err := opts.DB.FetchBuildingsAndReservoirs(ctx, bbox, opts.AllowedReservoirNatures)
		if err != nil && !errors.Is(err, vectordb.ErrDatabaseEmpty) {
			return fmt.Errorf("validator: prepare: vector-db fetch failed: %w", err)
		}
		layer = fetched // nil (empty) layer means "skip overlay" below
	}

	overlayDim := t.AddDimension(DimDBOverlay, tile.DimUint8)
	if len(overlayDim.U8) != n {
		overlayDim.U8 = make([]uint8, n)
	}
	if len(layer) > 0 {
		allPoints := make([]geo.Point, n)
		for i := 0; i < n; i++ {
			allPoints[i] = geo.Point{X: t.X[i], Y: t.Y[i]}
		}
		copy(overlayDim.U8, geo.Overlay(allPoints, layer))
	} else {
		for i := range overlayDim.U8 {
			overlayDim.U8[i] = 0
		}
	}

	v.prepared = true
	return nil
}

// clusterStats holds the per-cluster means §4.1's decision tree consumes.
type clusterStats struct {
	pHigh        float64
	pHighRelaxed float64
	iaConfirm    float64
	iaRefute     float64
	overlayFrac  float64
	entropyFrac  float64
}

// Update implements §4.1's cluster decision: it rewrites classification for
// every candidate point based on its cluster's detailed-code decision, then
// (depending on useFinalCodes) collapses to the three final codes.
func (v *Validator) Update(t *tile.Tile, useFinalCodes bool) error {
	if !v.prepared {
		return fmt.Errorf("validator: update called before prepare")
	}

	probaDim, err := t.RequireDimension(DimBuildingProba)
	if err != nil {
		return fmt.Errorf("validator: update: %w", err)
	}
	entropyDim, err := t.RequireDimension(DimEntropy)
	if err != nil {
		return fmt.Errorf("validator: update: %w", err)
	}
	overlayDim, err := t.RequireDimension(DimDBOverlay)
	if err != nil {
		return fmt.Errorf("validator: update: %w", err)
	}
	flagDim, err := t.RequireDimension(DimCandidateFlag)
	if err != nil {
		return fmt.Errorf("validator: update: %w", err)
	}
	clusterDim, err := t.RequireDimension(DimClusterIDCandidates)
	if err != nil {
		return fmt.Errorf("validator: update: %w", err)
	}

	codes := v.Cfg.GetCodes()
	n := t.NumPoints()

	// Every candidate point is preset to not_building so noise (cluster id
	// 0) keeps a deterministic code.
	for i := 0; i < n; i++ {
		if flagDim.U8[i] == 1 {
			t.Classification[i] = codes.NotBuilding
		}
	}

	membersByCluster := make(map[int32][]int)
	for i := 0; i < n; i++ {
		id := clusterDim.I32[i]
		if id <= 0 {
			continue
		}
		membersByCluster[id] = append(membersByCluster[id], i)
	}

	tauConfirm := v.Cfg.GetMinConfidenceConfirmation()
	rho := v.Cfg.GetMinFracConfirmationFactorIfBDUniOverlay()
	tauRefute := v.Cfg.GetMinConfidenceRefutation()
	tauEntropy := v.Cfg.GetMinEntropyUncertainty()

	for _, members := range membersByCluster {
		stats := computeClusterStats(members, probaDim, entropyDim, overlayDim, tauConfirm, rho, tauRefute, tauEntropy)
		detailed := decide(stats, v.Cfg)

		var code uint8
		if useFinalCodes {
			switch FinalBucketOf(detailed) {
			case FinalBuilding:
				code = codes.Building
			case FinalNotBuilding:
				code = codes.NotBuilding
			default:
				code = codes.Unsure
			}
		} else {
			code = uint8(detailed)
		}
		for _, i := range members {
			t.Classification[i] = code
		}
	}

	return nil
}

func computeClusterStats(members []int, proba, entropy, overlay *tile.Dimension, tauConfirm, rho, tauRefute, tauEntropy float64) clusterStats {
	n := float64(len(members))
	var s clusterStats
	for _, i := range members {
		p := float64(proba.F32At(i))
		e := float64(entropy.F32At(i))
		ov := overlay.U8[i] == 1

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
	if n == 0 {
		return clusterStats{}
	}
	s.pHigh /= n
	s.pHighRelaxed /= n
	s.iaConfirm /= n
	s.iaRefute /= n
	s.overlayFrac /= n
	s.entropyFrac /= n
	return s
}

// decide implements the decision tree of §4.1 verbatim: first matching
// rule wins.
func decide(s clusterStats, cfg *config.Config) DetailedCode {
	minFracEntropyUncertain := cfg.GetMinFracEntropyUncertain()
	minFracRefutation := cfg.GetMinFracRefutation()
	minUniDBOverlayFrac := cfg.GetMinUniDBOverlayFrac()
	minFracConfirmation := cfg.GetMinFracConfirmation()

	switch {
	case s.entropyFrac >= minFracEntropyUncertain:
		return UnsureByEntropy
	case s.iaRefute >= minFracRefutation:
		if s.overlayFrac >= minUniDBOverlayFrac {
			return IARefutedButUnderDBUni
		}
		return IARefuted
	case s.iaConfirm >= minFracConfirmation:
		if s.overlayFrac >= minUniDBOverlayFrac {
			return BothConfirmed
		}
		return IAConfirmedOnly
	case s.overlayFrac >= minUniDBOverlayFrac:
		return DBOverlayedOnly
	default:
		return BothUnsure
	}
}
