package detector

import (
	"fmt"

	"github.com/sells-group/signal-engine/internal/model"
)

// GapParams configures the stale-value detector: a target category absent
// for long enough is flagged as due for reversion.
type GapParams struct {
	Target         model.Category `yaml:"target" mapstructure:"target"`
	MinGap         int            `yaml:"min_gap" mapstructure:"min_gap"`
	BaseConfidence float64        `yaml:"base_confidence" mapstructure:"base_confidence"`
	PerExtra       float64        `yaml:"per_extra" mapstructure:"per_extra"`
	MaxConfidence  float64        `yaml:"max_confidence" mapstructure:"max_confidence"`
}

// DefaultGapParams flags white as due after 12 rounds without it.
func DefaultGapParams() GapParams {
	return GapParams{
		Target:         model.CategoryWhite,
		MinGap:         12,
		BaseConfidence: 0.66,
		PerExtra:       0.01,
		MaxConfidence:  0.80,
	}
}

func (p GapParams) validate() error {
	if p.Target == "" {
		return fmt.Errorf("gap: target category is required")
	}
	if p.MinGap < 2 {
		return fmt.Errorf("gap: min_gap %d < 2", p.MinGap)
	}
	return validateConfidenceBounds("gap", p.BaseConfidence, p.MaxConfidence)
}

type gapDetector struct {
	params GapParams
}

// NewGap creates the stale-value detector. The recommendation is always the
// absent target, so the reversion/momentum mode does not apply.
func NewGap(params GapParams) Detector {
	return &gapDetector{params: params}
}

func (d *gapDetector) ID() string    { return "gap_" + string(d.params.Target) }
func (d *gapDetector) Priority() int { return 40 }

func (d *gapDetector) Detect(win []model.OutcomeEvent) *model.PatternCandidate {
	if len(win) < d.params.MinGap {
		return nil
	}

	gap := 0
	for i := len(win) - 1; i >= 0; i-- {
		if win[i].Category == d.params.Target {
			break
		}
		gap++
	}
	if gap < d.params.MinGap {
		return nil
	}

	bonus := float64(gap-d.params.MinGap) * d.params.PerExtra
	return &model.PatternCandidate{
		PatternID:   d.ID(),
		Recommended: d.params.Target,
		Confidence:  boundedConfidence(d.params.BaseConfidence, bonus, d.params.MaxConfidence),
		Evidence:    fmt.Sprintf("%s absent for %d rounds", d.params.Target, gap),
	}
}
