// Package config defines the typed configuration surface of §6: which
// classification codes count as candidates, the Validator's decision
// thresholds, cluster/completor/identifier parameters, the code mapping,
// vector-DB connection settings, and the optimiser's search constraints.
//
// It follows the teacher's internal/config.TuningConfig pattern: optional
// (pointer) fields with documented defaults exposed through Get* accessors,
// loaded from a size- and extension-checked JSON file, validated on load.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the canonical location of the production config,
// mirroring the teacher's DefaultConfigPath convention.
const DefaultConfigPath = "config/thresholds.defaults.json"

// CodeMapping names the classification codes written for the three final
// buckets (building, not_building, unsure) used by the Validator, Completor
// and Identifier, plus the vegetation and unclassified codes. The mapping
// from the seven detailed decision codes to the final buckets is fixed in
// validator.FinalBucketOf, not configured here.
type CodeMapping struct {
	Building      uint8 `json:"building"`
	NotBuilding   uint8 `json:"not_building"`
	Unsure        uint8 `json:"unsure"`
	Vegetation    uint8 `json:"vegetation"`
	Unclassified  uint8 `json:"unclassified"`
}

// VectorDB holds connection settings for the external spatial database.
type VectorDB struct {
	Host        *string  `json:"host,omitempty"`
	User        *string  `json:"user,omitempty"`
	Password    *string  `json:"password,omitempty"`
	Database    *string  `json:"database,omitempty"`
	BBoxBuffer  *float64 `json:"bbox_buffer,omitempty"` // metres to inflate the tile bbox by
	TimeoutSecs *int     `json:"timeout_secs,omitempty"`
}

// Optimiser holds the search constraints and reference-label sets used by
// the threshold optimiser (§4.8).
type Optimiser struct {
	NumTrials       *int     `json:"num_trials,omitempty"`
	MinPrecision    *float64 `json:"min_precision,omitempty"`
	MinRecall       *float64 `json:"min_recall,omitempty"`
	MinAutomation   *float64 `json:"min_automation,omitempty"`
	TruePositiveMin *float64 `json:"true_positive_tp_min,omitempty"` // τ_tp_min
	FalsePositiveMax *float64 `json:"false_positive_fp_max,omitempty"` // τ_fp_max
	TruePositiveCodes []uint8 `json:"true_positive_codes,omitempty"`
}

// Config is the root configuration record. All fields are pointers (or
// slices treated as present-if-non-nil) so a partial JSON document only
// overrides the fields it mentions; Get* methods supply the rest.
type Config struct {
	CandidateCodes []uint8 `json:"candidate_codes,omitempty"`

	// Validator thresholds (§6).
	MinConfidenceConfirmation                *float64 `json:"min_confidence_confirmation,omitempty"`               // τ_confirm
	MinFracConfirmation                      *float64 `json:"min_frac_confirmation,omitempty"`                     // min_frac_confirmation
	MinFracConfirmationFactorIfBDUniOverlay  *float64 `json:"min_frac_confirmation_factor_if_bd_uni_overlay,omitempty"` // ρ
	MinUniDBOverlayFrac                      *float64 `json:"min_uni_db_overlay_frac,omitempty"`
	MinConfidenceRefutation                  *float64 `json:"min_confidence_refutation,omitempty"` // τ_refute
	MinFracRefutation                        *float64 `json:"min_frac_refutation,omitempty"`
	MinEntropyUncertainty                    *float64 `json:"min_entropy_uncertainty,omitempty"` // τ_entropy
	MinFracEntropyUncertain                  *float64 `json:"min_frac_entropy_uncertain,omitempty"`

	// Cluster params, shared shape reused by Validator/Completor/Identifier.
	ClusterMinPoints *int     `json:"min_points,omitempty"`
	ClusterTolerance *float64 `json:"tolerance,omitempty"`
	ClusterIs3D      *bool    `json:"is3d,omitempty"`

	// Completor params.
	MinBuildingProba                         *float64 `json:"min_building_proba,omitempty"` // π
	MinBuildingProbaRelaxationIfBDUniOverlay  *float64 `json:"min_building_proba_relaxation_if_bd_uni_overlay,omitempty"` // ρ'
	CompletorMinPoints *int     `json:"completor_min_points,omitempty"`
	CompletorTolerance *float64 `json:"completor_tolerance,omitempty"`

	// Identifier param.
	IdentifierBuildingProbaThreshold *float64 `json:"identifier_building_proba_threshold,omitempty"`

	UseFinalClassificationCodes *bool `json:"use_final_classification_codes,omitempty"`

	Codes    *CodeMapping `json:"codes,omitempty"`
	VectorDB *VectorDB    `json:"vector_db,omitempty"`
	Optimiser *Optimiser  `json:"optimiser,omitempty"`
}

// Empty returns a Config with every field nil; Get* accessors fill in
// documented defaults. Mirrors the teacher's EmptyTuningConfig.
func Empty() *Config {
	return &Config{}
}

// Load reads and validates a Config from a JSON file, following the
// teacher's LoadTuningConfig: extension check, size cap, then Validate.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefault loads DefaultConfigPath, searching upward through parent
// directories the way the teacher's MustLoadDefaultConfig does, for use by
// tests that run from arbitrary package directories.
func MustLoadDefault() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, p := range candidates {
		if cfg, err := Load(p); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func inRange(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be between 0 and 1, got %f", name, v)
	}
	return nil
}

// Validate checks that set fields are within their documented ranges.
func (c *Config) Validate() error {
	checks := []struct {
		name string
		val  *float64
	}{
		{"min_confidence_confirmation", c.MinConfidenceConfirmation},
		{"min_frac_confirmation", c.MinFracConfirmation},
		{"min_frac_confirmation_factor_if_bd_uni_overlay", c.MinFracConfirmationFactorIfBDUniOverlay},
		{"min_uni_db_overlay_frac", c.MinUniDBOverlayFrac},
		{"min_confidence_refutation", c.MinConfidenceRefutation},
		{"min_frac_refutation", c.MinFracRefutation},
		{"min_entropy_uncertainty", c.MinEntropyUncertainty},
		{"min_frac_entropy_uncertain", c.MinFracEntropyUncertain},
		{"min_building_proba", c.MinBuildingProba},
		{"min_building_proba_relaxation_if_bd_uni_overlay", c.MinBuildingProbaRelaxationIfBDUniOverlay},
		{"identifier_building_proba_threshold", c.IdentifierBuildingProbaThreshold},
	}
	for _, chk := range checks {
		if chk.val == nil {
			continue
		}
		if err := inRange(chk.name, *chk.val); err != nil {
			return err
		}
	}
	if c.ClusterTolerance != nil && *c.ClusterTolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %f", *c.ClusterTolerance)
	}
	if c.CompletorTolerance != nil && *c.CompletorTolerance <= 0 {
		return fmt.Errorf("completor_tolerance must be positive, got %f", *c.CompletorTolerance)
	}
	if c.ClusterMinPoints != nil && *c.ClusterMinPoints < 1 {
		return fmt.Errorf("min_points must be at least 1, got %d", *c.ClusterMinPoints)
	}
	return nil
}

// --- accessors with documented defaults ---

func (c *Config) GetCandidateCodes() []uint8 {
	if len(c.CandidateCodes) == 0 {
		return []uint8{6} // LAS "Building" preliminary code
	}
	return c.CandidateCodes
}

func (c *Config) GetMinConfidenceConfirmation() float64 { return orDefault(c.MinConfidenceConfirmation, 0.5) }
func (c *Config) GetMinFracConfirmation() float64        { return orDefault(c.MinFracConfirmation, 0.5) }
func (c *Config) GetMinFracConfirmationFactorIfBDUniOverlay() float64 {
	return orDefault(c.MinFracConfirmationFactorIfBDUniOverlay, 0.8)
}
func (c *Config) GetMinUniDBOverlayFrac() float64       { return orDefault(c.MinUniDBOverlayFrac, 0.6) }
func (c *Config) GetMinConfidenceRefutation() float64   { return orDefault(c.MinConfidenceRefutation, 0.5) }
func (c *Config) GetMinFracRefutation() float64         { return orDefault(c.MinFracRefutation, 0.5) }
func (c *Config) GetMinEntropyUncertainty() float64     { return orDefault(c.MinEntropyUncertainty, 0.5) }
func (c *Config) GetMinFracEntropyUncertain() float64   { return orDefault(c.MinFracEntropyUncertain, 0.5) }

func (c *Config) GetClusterMinPoints() int {
	if c.ClusterMinPoints == nil {
		return 10
	}
	return *c.ClusterMinPoints
}
func (c *Config) GetClusterTolerance() float64 { return orDefault(c.ClusterTolerance, 0.5) }
func (c *Config) GetClusterIs3D() bool {
	if c.ClusterIs3D == nil {
		return false
	}
	return *c.ClusterIs3D
}

func (c *Config) GetMinBuildingProba() float64 { return orDefault(c.MinBuildingProba, 0.75) }
func (c *Config) GetMinBuildingProbaRelaxationIfBDUniOverlay() float64 {
	return orDefault(c.MinBuildingProbaRelaxationIfBDUniOverlay, 0.8)
}
func (c *Config) GetCompletorMinPoints() int {
	if c.CompletorMinPoints == nil {
		return 3
	}
	return *c.CompletorMinPoints
}
func (c *Config) GetCompletorTolerance() float64 { return orDefault(c.CompletorTolerance, 2.0) }

func (c *Config) GetIdentifierBuildingProbaThreshold() float64 {
	return orDefault(c.IdentifierBuildingProbaThreshold, 0.9)
}

func (c *Config) GetUseFinalClassificationCodes() bool {
	if c.UseFinalClassificationCodes == nil {
		return true
	}
	return *c.UseFinalClassificationCodes
}

func (c *Config) GetCodes() CodeMapping {
	if c.Codes != nil {
		return *c.Codes
	}
	return CodeMapping{Building: 19, NotBuilding: 20, Unsure: 21, Vegetation: 3, Unclassified: 1}
}

func (c *Config) GetVectorDB() VectorDB {
	if c.VectorDB != nil {
		return *c.VectorDB
	}
	return VectorDB{}
}

func (c *Config) GetVectorDBTimeoutSecs() int {
	vd := c.GetVectorDB()
	if vd.TimeoutSecs == nil {
		return 120
	}
	return *vd.TimeoutSecs
}

func (c *Config) GetVectorDBBBoxBuffer() float64 {
	vd := c.GetVectorDB()
	if vd.BBoxBuffer == nil {
		return 25.0
	}
	return *vd.BBoxBuffer
}

func (c *Config) GetOptimiser() Optimiser {
	if c.Optimiser != nil {
		return *c.Optimiser
	}
	return Optimiser{}
}

func (c *Config) GetOptimiserNumTrials() int {
	o := c.GetOptimiser()
	if o.NumTrials == nil {
		return 200
	}
	return *o.NumTrials
}

func (c *Config) GetOptimiserMinPrecision() float64 {
	o := c.GetOptimiser()
	return orDefault(o.MinPrecision, 0.98)
}

func (c *Config) GetOptimiserMinRecall() float64 {
	o := c.GetOptimiser()
	return orDefault(o.MinRecall, 0.98)
}

func (c *Config) GetOptimiserMinAutomation() float64 {
	o := c.GetOptimiser()
	return orDefault(o.MinAutomation, 0.9)
}

func (c *Config) GetOptimiserTruePositiveMin() float64 {
	o := c.GetOptimiser()
	return orDefault(o.TruePositiveMin, 0.95)
}

func (c *Config) GetOptimiserFalsePositiveMax() float64 {
	o := c.GetOptimiser()
	return orDefault(o.FalsePositiveMax, 0.05)
}

func (c *Config) GetOptimiserTruePositiveCodes() []uint8 {
	o := c.GetOptimiser()
	if len(o.TruePositiveCodes) == 0 {
		return []uint8{6}
	}
	return o.TruePositiveCodes
}

func orDefault(p *float64, d float64) float64 {
	if p == nil {
		return d
	}
	return *p
}
