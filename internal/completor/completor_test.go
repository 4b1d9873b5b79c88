package completor

import (
	"testing"

	"github.com/lidarprod/buildingvalidator/internal/config"
	"github.com/lidarprod/buildingvalidator/internal/tile"
	"github.com/lidarprod/buildingvalidator/internal/validator"
)

func testConfig() *config.Config {
	return config.Empty()
}

// buildScenario builds one confirmed building of n confirmed points plus
// extra isolated candidate points at the given offsets from the confirmed
// cluster, per scenario 4 of §8.
func buildScenario(confirmedN int, isolatedOffsets []float64, proba float64) *tile.Tile {
	codes := testConfig().GetCodes()
	total := confirmedN + len(isolatedOffsets)
	t := tile.New(total)

	for i := 0; i < confirmedN; i++ {
		t.X[i] = float64(i) * 0.2
		t.Y[i] = 0
		t.Classification[i] = codes.Building
	}
	for k, off := range isolatedOffsets {
		i := confirmedN + k
		t.X[i] = float64(confirmedN)*0.2 + off
		t.Y[i] = 0
		t.Classification[i] = 6 // candidate code, not yet promoted
	}

	flag := t.AddDimension(validator.DimCandidateFlag, tile.DimUint8)
	clusterID := t.AddDimension(validator.DimClusterIDCandidates, tile.DimInt32)
	proba32 := t.AddDimension(validator.DimBuildingProba, tile.DimFloat32)
	overlay := t.AddDimension(validator.DimDBOverlay, tile.DimUint8)

	for i := 0; i < total; i++ {
		if t.Classification[i] == 6 {
			flag.U8[i] = 1
		}
		clusterID.I32[i] = 0 // isolated candidates were never validator-clustered
		proba32.F32[i] = float32(proba)
		overlay.U8[i] = 0
	}
	return t
}

func TestScenarioIsolatedRescue(t *testing.T) {
	tl := buildScenario(20, []float64{0.3, 0.6, 0.9}, 0.8)
	codes := testConfig().GetCodes()

	c := New(testConfig())
	if err := c.Run(tl); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i := 20; i < tl.NumPoints(); i++ {
		if tl.Classification[i] != codes.Building {
			t.Fatalf("point %d: expected final-building after rescue, got %d", i, tl.Classification[i])
		}
	}
}

func TestCompletorNeverDemotes(t *testing.T) {
	tl := buildScenario(10, nil, 0.1) // no isolated candidates, low proba irrelevant
	codes := testConfig().GetCodes()

	c := New(testConfig())
	if err := c.Run(tl); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := 0; i < 10; i++ {
		if tl.Classification[i] != codes.Building {
			t.Fatalf("point %d: confirmed building was demoted to %d", i, tl.Classification[i])
		}
	}
}

func TestCompletorLeavesDistantIsolatedPointsUnpromoted(t *testing.T) {
	tl := buildScenario(20, []float64{500.0}, 0.8) // far outside tolerance
	codes := testConfig().GetCodes()

	c := New(testConfig())
	if err := c.Run(tl); err != nil {
		t.Fatalf("Run: %v", err)
	}
	last := tl.NumPoints() - 1
	if tl.Classification[last] == codes.Building {
		t.Fatalf("point %d: distant isolated point should not have been promoted", last)
	}
}

func TestCompletorRequiresValidatorDimensions(t *testing.T) {
	tl := tile.New(5)
	c := New(testConfig())
	if err := c.Run(tl); err == nil {
		t.Fatal("expected error: validator dimensions are missing")
	}
}
