package fusion

import "fmt"

// Thresholds are the tunable constants driving strategy selection and
// confidence. The zero value means DefaultThresholds.
type Thresholds struct {
	// DominantGap is the score difference above which one side leads.
	DominantGap float64 `toml:"dominant_gap"`
	// CloseGap is the difference below which both sides are blended block by block.
	CloseGap float64 `toml:"close_gap"`
	// ConversionSignal is the conversion or business value score that counts as a high-value signal.
	ConversionSignal float64 `toml:"conversion_signal"`

	DominantConfidenceFloor float64 `toml:"dominant_confidence_floor"`
	MolecularBonus          float64 `toml:"molecular_bonus"`
	BestOfBothBonus         float64 `toml:"best_of_both_bonus"`
	HybridBonus             float64 `toml:"hybrid_bonus"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		DominantGap:             0.25,
		CloseGap:                0.1,
		ConversionSignal:        0.6,
		DominantConfidenceFloor: 0.9,
		MolecularBonus:          0.15,
		BestOfBothBonus:         0.1,
		HybridBonus:             0.05,
	}
}

// withDefaults fills an unset Thresholds. Once any field is set every
// field is taken as given, so an explicit zero bonus survives.
func (t Thresholds) withDefaults() Thresholds {
	if t == (Thresholds{}) {
		return DefaultThresholds()
	}
	return t
}

// Validate checks that every threshold is a fraction and that the gaps are
// ordered.
func (t Thresholds) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"dominant_gap", t.DominantGap},
		{"close_gap", t.CloseGap},
		{"conversion_signal", t.ConversionSignal},
		{"dominant_confidence_floor", t.DominantConfidenceFloor},
		{"molecular_bonus", t.MolecularBonus},
		{"best_of_both_bonus", t.BestOfBothBonus},
		{"hybrid_bonus", t.HybridBonus},
	}
	for _, f := range fields {
		if f.value < 0 || f.value > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %v", f.name, f.value)
		}
	}
	if t.DominantGap <= 0 {
		return fmt.Errorf("dominant_gap must be positive")
	}
	if t.CloseGap >= t.DominantGap {
		return fmt.Errorf("close_gap (%v) must be below dominant_gap (%v)", t.CloseGap, t.DominantGap)
	}
	return nil
}

// Adaptive merge confidences per query type.
const (
	confidenceFactual        = 0.85
	confidenceCreative       = 0.80
	confidenceTechnical      = 0.87
	confidenceConversational = 0.78
	confidenceGeneral        = 0.75
)

// GenericResponse is returned when a strategy produces no content.
const GenericResponse = "Thank you for your question. We could not put together a complete answer this time, please rephrase it or try again shortly."
