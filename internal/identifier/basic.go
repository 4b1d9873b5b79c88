package identifier

import "github.com/lidarprod/buildingvalidator/internal/tile"

// BasicThresholdParams configures the minimal per-point threshold step of
// §4.6, kept only for symmetry with the validator/completor/identifier
// family since it shares the optimiser's infrastructure. Per the spec's
// open questions this routine is advisory: its IoU evaluation is never
// exercised end-to-end by the reference implementation.
type BasicThresholdParams struct {
	ProbaDim  string
	OutputDim string
	Threshold float64
	Code      uint8
}

// ApplyBasicThreshold adds OutputDim if missing and sets it to Code at
// every point whose ProbaDim value meets Threshold, leaving it at zero
// elsewhere.
func ApplyBasicThreshold(t *tile.Tile, p BasicThresholdParams) error {
	probaDim, err := t.RequireDimension(p.ProbaDim)
	if err != nil {
		return err
	}
	out := t.AddDimension(p.OutputDim, tile.DimUint8)
	for i := range out.U8 {
		if float64(probaDim.F32At(i)) >= p.Threshold {
			out.U8[i] = p.Code
		} else {
			out.U8[i] = 0
		}
	}
	return nil
}

// IntersectionOverUnion computes IoU between a predicted 0/1 dimension and
// a reference 0/1 mask of the same length, for the optional evaluation
// §4.6 mentions. Returns 0 when the union is empty.
func IntersectionOverUnion(predicted, reference []uint8) float64 {
	var intersection, union int
	n := len(predicted)
	if len(reference) < n {
		n = len(reference)
	}
	for i := 0; i < n; i++ {
		p := predicted[i] != 0
		r := reference[i] != 0
		if p && r {
			intersection++
		}
		if p || r {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
