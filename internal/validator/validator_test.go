package validator

import (
	"context"
	"testing"

	"github.com/lidarprod/buildingvalidator/internal/config"
	"github.com/lidarprod/buildingvalidator/internal/tile"
)

const candidateCode = 6

func gridTile(n int, buildingProba, entropy float32, dbOverlay uint8, classification uint8) *tile.Tile {
	t := tile.New(n)
	for i := 0; i < n; i++ {
		t.X[i] = float64(i) * 0.1
		t.Y[i] = 0
		t.Z[i] = 0
		t.Classification[i] = classification
	}
	proba := t.AddDimension(DimBuildingProba, tile.DimFloat32)
	entropyDim := t.AddDimension(DimEntropy, tile.DimFloat32)
	for i := 0; i < n; i++ {
		proba.F32[i] = buildingProba
		entropyDim.F32[i] = entropy
	}
	return t
}

func testConfig() *config.Config {
	return config.Empty()
}

func TestScenarioSinglePerfectCluster(t *testing.T) {
	tl := gridTile(100, 0.95, 0.0, 0, candidateCode)
	overlay := tl.AddDimension(DimDBOverlay, tile.DimUint8)
	for i := range overlay.U8 {
		overlay.U8[i] = 1
	}

	v := New(testConfig())
	if err := v.Prepare(context.Background(), tl, Options{Layer: nil}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	// Prepare recomputes db_overlay from Options.Layer (nil here), so set
	// it again post-Prepare to match the scenario's db_overlay=1 input.
	for i := range overlay.U8 {
		overlay.U8[i] = 1
	}

	if err := v.Update(tl, true); err != nil {
		t.Fatalf("Update: %v", err)
	}
	codes := testConfig().GetCodes()
	for i, c := range tl.Classification {
		if c != codes.Building {
			t.Fatalf("point %d: expected building-final-code %d, got %d", i, codes.Building, c)
		}
	}
}

func TestScenarioRefutationUnderOverlay(t *testing.T) {
	tl := gridTile(100, 0.05, 0.0, 1, candidateCode)
	overlay := tl.AddDimension(DimDBOverlay, tile.DimUint8)
	for i := range overlay.U8 {
		overlay.U8[i] = 1
	}

	v := New(testConfig())
	if err := v.Prepare(context.Background(), tl, Options{Layer: nil}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	for i := range overlay.U8 {
		overlay.U8[i] = 1
	}

	if err := v.Update(tl, false); err != nil {
		t.Fatalf("Update: %v", err)
	}
	for i, c := range tl.Classification {
		if DetailedCode(c) != IARefutedButUnderDBUni {
			t.Fatalf("point %d: expected ia_refuted_but_under_db_uni, got %v", i, DetailedCode(c))
		}
	}
}

func TestScenarioEntropyVeto(t *testing.T) {
	tl := gridTile(100, 0.95, 0.9, 0, candidateCode)

	v := New(testConfig())
	if err := v.Prepare(context.Background(), tl, Options{}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := v.Update(tl, false); err != nil {
		t.Fatalf("Update: %v", err)
	}
	for i, c := range tl.Classification {
		if DetailedCode(c) != UnsureByEntropy {
			t.Fatalf("point %d: expected unsure_by_entropy, got %v", i, DetailedCode(c))
		}
	}
}

func TestInvariantCandidateSubsetOfClusterID(t *testing.T) {
	tl := gridTile(50, 0.8, 0.0, 0, candidateCode)
	// Add some non-candidate points.
	tl2 := tile.New(60)
	for i := 0; i < 50; i++ {
		tl2.X[i], tl2.Y[i], tl2.Z[i] = tl.X[i], tl.Y[i], tl.Z[i]
		tl2.Classification[i] = candidateCode
	}
	for i := 50; i < 60; i++ {
		tl2.X[i] = float64(i) * 100
		tl2.Classification[i] = 2
	}
	proba := tl2.AddDimension(DimBuildingProba, tile.DimFloat32)
	entropyDim := tl2.AddDimension(DimEntropy, tile.DimFloat32)
	for i := range proba.F32 {
		proba.F32[i] = 0.8
	}
	_ = entropyDim

	v := New(testConfig())
	if err := v.Prepare(context.Background(), tl2, Options{}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	flag, _ := tl2.Dimension(DimCandidateFlag)
	clusterID, _ := tl2.Dimension(DimClusterIDCandidates)
	for i := 0; i < tl2.NumPoints(); i++ {
		if clusterID.I32[i] > 0 && flag.U8[i] != 1 {
			t.Fatalf("point %d: cluster_id_candidates > 0 but candidate_flag != 1", i)
		}
	}
}

func TestInvariantNonCandidateNeverRewritten(t *testing.T) {
	tl := tile.New(10)
	for i := 0; i < 10; i++ {
		tl.X[i] = float64(i)
		tl.Classification[i] = 2 // not a candidate code
	}
	proba := tl.AddDimension(DimBuildingProba, tile.DimFloat32)
	tl.AddDimension(DimEntropy, tile.DimFloat32)
	for i := range proba.F32 {
		proba.F32[i] = 0.99
	}

	v := New(testConfig())
	if err := v.Prepare(context.Background(), tl, Options{}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := v.Update(tl, true); err != nil {
		t.Fatalf("Update: %v", err)
	}
	for i, c := range tl.Classification {
		if c != 2 {
			t.Fatalf("point %d: non-candidate classification was rewritten to %d", i, c)
		}
	}
}

func TestUpdateBeforePrepareFails(t *testing.T) {
	tl := tile.New(5)
	v := New(testConfig())
	if err := v.Update(tl, true); err == nil {
		t.Fatal("expected error calling Update before Prepare")
	}
}

func TestPrepareIsIdempotent(t *testing.T) {
	tl := gridTile(50, 0.9, 0.0, 0, candidateCode)
	v := New(testConfig())
	if err := v.Prepare(context.Background(), tl, Options{}); err != nil {
		t.Fatalf("first Prepare: %v", err)
	}
	clusterID, _ := tl.Dimension(DimClusterIDCandidates)
	first := append([]int32(nil), clusterID.I32...)

	if err := v.Prepare(context.Background(), tl, Options{}); err != nil {
		t.Fatalf("second Prepare: %v", err)
	}
	second := clusterID.I32
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("point %d: cluster id changed across repeated Prepare: %d -> %d", i, first[i], second[i])
		}
	}
}

func TestPrepareFailsWithoutRequiredDimensions(t *testing.T) {
	tl := tile.New(3)
	for i := range tl.Classification {
		tl.Classification[i] = candidateCode
	}
	v := New(testConfig())
	if err := v.Prepare(context.Background(), tl, Options{}); err == nil {
		t.Fatal("expected Prepare to fail: building_proba/entropy dimensions are missing")
	}
}
