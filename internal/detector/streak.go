package detector

import (
	"fmt"

	"github.com/sells-group/signal-engine/internal/model"
)

// StreakParams configures the consecutive-identical-category detector.
type StreakParams struct {
	MinLength      int     `yaml:"min_length" mapstructure:"min_length"`
	BaseConfidence float64 `yaml:"base_confidence" mapstructure:"base_confidence"`
	PerExtra       float64 `yaml:"per_extra" mapstructure:"per_extra"`
	MaxConfidence  float64 `yaml:"max_confidence" mapstructure:"max_confidence"`
}

// DefaultStreakParams mirrors the tuning the signal feed shipped with:
// six identical rounds open at 0.72, each further round adds 0.05, capped
// at 0.90.
func DefaultStreakParams() StreakParams {
	return StreakParams{MinLength: 6, BaseConfidence: 0.72, PerExtra: 0.05, MaxConfidence: 0.90}
}

func (p StreakParams) validate() error {
	if p.MinLength < 2 {
		return fmt.Errorf("streak: min_length %d < 2", p.MinLength)
	}
	return validateConfidenceBounds("streak", p.BaseConfidence, p.MaxConfidence)
}

type streakDetector struct {
	params StreakParams
	space  Space
	mode   Mode
}

// NewStreak creates the streak detector. In reversion mode it recommends the
// complement of the streaking category; in momentum mode it rides the streak.
func NewStreak(params StreakParams, space Space, mode Mode) Detector {
	return &streakDetector{params: params, space: space, mode: mode}
}

func (d *streakDetector) ID() string    { return "streak" }
func (d *streakDetector) Priority() int { return 70 }

func (d *streakDetector) Detect(win []model.OutcomeEvent) *model.PatternCandidate {
	if len(win) < d.params.MinLength {
		return nil
	}

	last := win[len(win)-1].Category
	length := 0
	for i := len(win) - 1; i >= 0 && win[i].Category == last; i-- {
		length++
	}
	if length < d.params.MinLength {
		return nil
	}

	recommended := last
	if d.mode == ModeReversion {
		recommended = d.space.Opposite(last)
	}

	bonus := float64(length-d.params.MinLength) * d.params.PerExtra
	return &model.PatternCandidate{
		PatternID:   d.ID(),
		Recommended: recommended,
		Confidence:  boundedConfidence(d.params.BaseConfidence, bonus, d.params.MaxConfidence),
		Evidence:    fmt.Sprintf("%d consecutive %s", length, last),
	}
}
