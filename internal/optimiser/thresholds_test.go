package optimiser

import (
	"testing"

	"github.com/lidarprod/buildingvalidator/internal/config"
)

func TestThresholdsRoundTripThroughConfig(t *testing.T) {
	base := config.Empty()
	want := FromConfig(base)

	cfg := want.ToConfig(base)
	got := FromConfig(cfg)

	if got != want {
		t.Fatalf("round trip mismatch: started with %+v, got %+v back", want, got)
	}
}

func TestFromConfigReadsOverriddenThresholds(t *testing.T) {
	tauConfirm := 0.7
	cfg := config.Empty()
	cfg.MinConfidenceConfirmation = &tauConfirm

	got := FromConfig(cfg)
	if got.MinConfidenceConfirmation != tauConfirm {
		t.Fatalf("MinConfidenceConfirmation = %f, want %f", got.MinConfidenceConfirmation, tauConfirm)
	}
}
