package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsFile(t *testing.T) {
	cfg := MustLoadDefault()

	if len(cfg.GetCandidateCodes()) == 0 {
		t.Fatal("candidate codes must be set")
	}
	if cfg.GetMinConfidenceConfirmation() < 0 || cfg.GetMinConfidenceConfirmation() > 1 {
		t.Errorf("min confidence confirmation out of range: %f", cfg.GetMinConfidenceConfirmation())
	}
	if cfg.GetClusterTolerance() <= 0 {
		t.Errorf("cluster tolerance must be positive: %f", cfg.GetClusterTolerance())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must pass Validate(): %v", err)
	}
}

func TestEmptyConfigUsesDefaults(t *testing.T) {
	cfg := Empty()
	if cfg.CandidateCodes != nil {
		t.Error("expected nil CandidateCodes on an empty config")
	}
	if got := cfg.GetMinBuildingProba(); got != 0.75 {
		t.Errorf("expected default min building proba 0.75, got %f", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config should validate: %v", err)
	}
}

func TestLoadPartialOverridesOnlyNamedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.json")
	if err := os.WriteFile(path, []byte(`{"min_building_proba": 0.6}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.GetMinBuildingProba(); got != 0.6 {
		t.Errorf("expected overridden min building proba 0.6, got %f", got)
	}
	if got := cfg.GetClusterTolerance(); got != 0.5 {
		t.Errorf("expected default cluster tolerance 0.5 to survive partial load, got %f", got)
	}
}

func TestLoadRejectsNonJSON(t *testing.T) {
	if _, err := Load("/some/path/config.yaml"); err == nil {
		t.Error("expected error for non-.json extension")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.json"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte(`{"min_building_proba":`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"confidence too high", &Config{MinConfidenceConfirmation: ptrF(1.5)}},
		{"confidence negative", &Config{MinConfidenceRefutation: ptrF(-0.1)}},
		{"zero tolerance", &Config{ClusterTolerance: ptrF(0)}},
		{"zero min points", &Config{ClusterMinPoints: ptrI(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Errorf("expected Validate() to reject %s", tt.name)
			}
		})
	}
}

func TestGetCodesDefault(t *testing.T) {
	cfg := Empty()
	codes := cfg.GetCodes()
	if codes.Building == codes.NotBuilding {
		t.Error("building and not-building codes must differ")
	}
}

func ptrF(v float64) *float64 { return &v }
func ptrI(v int) *int         { return &v }
