package optimiser

import "github.com/lidarprod/buildingvalidator/internal/config"

// Thresholds is the eight-threshold vector §4.8's search explores. It
// mirrors the Validator's threshold fields in config.Config so a winning
// trial can be written straight back into a deployable config.
type Thresholds struct {
	MinConfidenceConfirmation               float64
	MinFracConfirmation                     float64
	MinFracConfirmationFactorIfBDUniOverlay float64
	MinUniDBOverlayFrac                     float64
	MinConfidenceRefutation                 float64
	MinFracRefutation                       float64
	MinEntropyUncertainty                   float64
	MinFracEntropyUncertain                 float64
}

// FromConfig reads the current eight Validator thresholds out of cfg. The
// search does not start from these values: RunSearch samples every trial
// independently from its SearchSpace.
func FromConfig(cfg *config.Config) Thresholds {
	return Thresholds{
		MinConfidenceConfirmation:               cfg.GetMinConfidenceConfirmation(),
		MinFracConfirmation:                     cfg.GetMinFracConfirmation(),
		MinFracConfirmationFactorIfBDUniOverlay: cfg.GetMinFracConfirmationFactorIfBDUniOverlay(),
		MinUniDBOverlayFrac:                     cfg.GetMinUniDBOverlayFrac(),
		MinConfidenceRefutation:                 cfg.GetMinConfidenceRefutation(),
		MinFracRefutation:                       cfg.GetMinFracRefutation(),
		MinEntropyUncertainty:                   cfg.GetMinEntropyUncertainty(),
		MinFracEntropyUncertain:                 cfg.GetMinFracEntropyUncertain(),
	}
}

// ToConfig writes t's eight thresholds into a copy of base, leaving every
// other field (codes, cluster params, vector-DB, optimiser settings)
// untouched. The Update phase uses it to turn the thresholds loaded from
// thresholds.db (saved there by Store.SaveThresholds) into the config its
// Validator runs with.
func (t Thresholds) ToConfig(base *config.Config) *config.Config {
	out := *base
	out.MinConfidenceConfirmation = &t.MinConfidenceConfirmation
	out.MinFracConfirmation = &t.MinFracConfirmation
	out.MinFracConfirmationFactorIfBDUniOverlay = &t.MinFracConfirmationFactorIfBDUniOverlay
	out.MinUniDBOverlayFrac = &t.MinUniDBOverlayFrac
	out.MinConfidenceRefutation = &t.MinConfidenceRefutation
	out.MinFracRefutation = &t.MinFracRefutation
	out.MinEntropyUncertainty = &t.MinEntropyUncertainty
	out.MinFracEntropyUncertain = &t.MinFracEntropyUncertain
	return &out
}
