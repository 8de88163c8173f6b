package detector

import (
	"fmt"

	"github.com/sells-group/signal-engine/internal/model"
)

// AlternationParams configures the strict A-B-A-B detector.
type AlternationParams struct {
	MinLength      int     `yaml:"min_length" mapstructure:"min_length"`
	BaseConfidence float64 `yaml:"base_confidence" mapstructure:"base_confidence"`
	PerExtra       float64 `yaml:"per_extra" mapstructure:"per_extra"`
	MaxConfidence  float64 `yaml:"max_confidence" mapstructure:"max_confidence"`
}

// DefaultAlternationParams: four strictly alternating rounds open at 0.65.
func DefaultAlternationParams() AlternationParams {
	return AlternationParams{MinLength: 4, BaseConfidence: 0.65, PerExtra: 0.03, MaxConfidence: 0.82}
}

func (p AlternationParams) validate() error {
	if p.MinLength < 4 {
		return fmt.Errorf("alternation: min_length %d < 4", p.MinLength)
	}
	return validateConfidenceBounds("alternation", p.BaseConfidence, p.MaxConfidence)
}

type alternationDetector struct {
	params AlternationParams
	mode   Mode
}

// NewAlternation creates the alternation detector. In momentum mode it
// expects the zigzag to continue (recommends the other category of the
// pair); in reversion mode it expects the break (recommends a repeat of the
// last category).
func NewAlternation(params AlternationParams, mode Mode) Detector {
	return &alternationDetector{params: params, mode: mode}
}

func (d *alternationDetector) ID() string    { return "alternation" }
func (d *alternationDetector) Priority() int { return 50 }

func (d *alternationDetector) Detect(win []model.OutcomeEvent) *model.PatternCandidate {
	if len(win) < d.params.MinLength {
		return nil
	}

	// Trailing strict alternation between exactly two categories.
	length := 1
	for i := len(win) - 1; i > 0; i-- {
		cur, prev := win[i].Category, win[i-1].Category
		if cur == prev {
			break
		}
		if length >= 2 && prev != win[i+1].Category {
			break
		}
		length++
	}
	if length < d.params.MinLength {
		return nil
	}

	a := win[len(win)-1].Category
	b := win[len(win)-2].Category

	recommended := b
	if d.mode == ModeReversion {
		recommended = a
	}

	bonus := float64(length-d.params.MinLength) * d.params.PerExtra
	return &model.PatternCandidate{
		PatternID:   d.ID(),
		Recommended: recommended,
		Confidence:  boundedConfidence(d.params.BaseConfidence, bonus, d.params.MaxConfidence),
		Evidence:    fmt.Sprintf("%d-round %s/%s alternation", length, a, b),
	}
}
