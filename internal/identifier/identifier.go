// Package identifier implements §4.3: it assigns stable group ids to
// non-candidate points whose building probability is high enough to be of
// interest to downstream tooling, without touching the Validator's or
// Completor's candidate-driven classification.
package identifier

import (
	"fmt"

	"github.com/lidarprod/buildingvalidator/internal/config"
	"github.com/lidarprod/buildingvalidator/internal/geo"
	"github.com/lidarprod/buildingvalidator/internal/tile"
	"github.com/lidarprod/buildingvalidator/internal/validator"
)

const DimAIGroup = "ai_group"

// Identifier holds the configuration a Run call is evaluated against.
type Identifier struct {
	Cfg *config.Config

	// SetClassification, if true, also rewrites classification of grouped
	// points to the final building code. Used when the tool runs standalone
	// per §4.3's "optional" standalone mode.
	SetClassification bool
}

func New(cfg *config.Config) *Identifier {
	return &Identifier{Cfg: cfg}
}

// Run implements §4.3: over points with building_proba >= theta and
// classification != building-final-code, cluster and write a dense,
// contiguous-from-1 group id into ai_group.
func (id *Identifier) Run(t *tile.Tile) error {
	probaDim, err := t.RequireDimension(validator.DimBuildingProba)
	if err != nil {
		return fmt.Errorf("identifier: run: %w", err)
	}

	codes := id.Cfg.GetCodes()
	theta := id.Cfg.GetIdentifierBuildingProbaThreshold()

	n := t.NumPoints()
	var memberIdx []int
	for i := 0; i < n; i++ {
		if t.Classification[i] == codes.Building {
			continue
		}
		if float64(probaDim.F32At(i)) >= theta {
			memberIdx = append(memberIdx, i)
		}
	}

	points := make([]geo.Point, len(memberIdx))
	for k, i := range memberIdx {
		points[k] = geo.Point{X: t.X[i], Y: t.Y[i]}
	}
	labels := geo.Cluster(points, geo.Params{
		MinPoints: id.Cfg.GetClusterMinPoints(),
		Tolerance: id.Cfg.GetClusterTolerance(),
		Is3D:      id.Cfg.GetClusterIs3D(),
	})

	groupDim := t.AddDimension(DimAIGroup, tile.DimInt32)
	for i := range groupDim.I32 {
		groupDim.I32[i] = 0
	}
	for k, i := range memberIdx {
		groupDim.I32[i] = int32(labels[k])
	}

	if id.SetClassification {
		for k, i := range memberIdx {
			if labels[k] > 0 {
				t.Classification[i] = codes.Building
			}
		}
	}

	return nil
}
