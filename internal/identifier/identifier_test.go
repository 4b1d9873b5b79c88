package identifier

import (
	"testing"

	"github.com/lidarprod/buildingvalidator/internal/config"
	"github.com/lidarprod/buildingvalidator/internal/tile"
	"github.com/lidarprod/buildingvalidator/internal/validator"
)

func testConfig() *config.Config {
	return config.Empty()
}

func denseTile(n int, proba float32, classification uint8) *tile.Tile {
	t := tile.New(n)
	for i := 0; i < n; i++ {
		t.X[i] = float64(i) * 0.1
		t.Classification[i] = classification
	}
	p := t.AddDimension(validator.DimBuildingProba, tile.DimFloat32)
	for i := range p.F32 {
		p.F32[i] = proba
	}
	return t
}

func TestRunGroupsHighProbabilityNonCandidates(t *testing.T) {
	tl := denseTile(20, 0.95, 2) // classification 2, not building-final-code
	id := New(testConfig())
	if err := id.Run(tl); err != nil {
		t.Fatalf("Run: %v", err)
	}
	group, ok := tl.Dimension(DimAIGroup)
	if !ok {
		t.Fatal("expected ai_group dimension to be added")
	}
	for i, g := range group.I32 {
		if g <= 0 {
			t.Fatalf("point %d: expected a positive group id, got %d", i, g)
		}
	}
}

func TestRunSkipsAlreadyConfirmedPoints(t *testing.T) {
	codes := testConfig().GetCodes()
	tl := denseTile(20, 0.95, codes.Building)
	id := New(testConfig())
	if err := id.Run(tl); err != nil {
		t.Fatalf("Run: %v", err)
	}
	group, _ := tl.Dimension(DimAIGroup)
	for i, g := range group.I32 {
		if g != 0 {
			t.Fatalf("point %d: already-confirmed point should not be grouped, got %d", i, g)
		}
	}
}

func TestRunStandaloneSetsClassification(t *testing.T) {
	tl := denseTile(20, 0.95, 2)
	id := New(testConfig())
	id.SetClassification = true
	if err := id.Run(tl); err != nil {
		t.Fatalf("Run: %v", err)
	}
	codes := testConfig().GetCodes()
	for i, c := range tl.Classification {
		if c != codes.Building {
			t.Fatalf("point %d: expected classification set to final building code, got %d", i, c)
		}
	}
}

func TestApplyBasicThreshold(t *testing.T) {
	tl := tile.New(5)
	proba := tl.AddDimension("vegetation_proba", tile.DimFloat32)
	proba.F32 = []float32{0.9, 0.1, 0.6, 0.95, 0.2}

	err := ApplyBasicThreshold(tl, BasicThresholdParams{
		ProbaDim: "vegetation_proba", OutputDim: "vegetation_code", Threshold: 0.5, Code: 3,
	})
	if err != nil {
		t.Fatalf("ApplyBasicThreshold: %v", err)
	}
	out, _ := tl.Dimension("vegetation_code")
	want := []uint8{3, 0, 3, 3, 0}
	for i, w := range want {
		if out.U8[i] != w {
			t.Fatalf("point %d: got %d, want %d", i, out.U8[i], w)
		}
	}
}

func TestIntersectionOverUnion(t *testing.T) {
	predicted := []uint8{1, 1, 0, 0}
	reference := []uint8{1, 0, 0, 1}
	if got := IntersectionOverUnion(predicted, reference); got != 1.0/3.0 {
		t.Fatalf("IoU = %f, want %f", got, 1.0/3.0)
	}
}
