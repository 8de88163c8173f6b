package detector

import (
	"fmt"

	"github.com/sells-group/signal-engine/internal/model"
)

// DominanceParams configures the category-share detector.
type DominanceParams struct {
	Window         int     `yaml:"window" mapstructure:"window"`
	MinShare       float64 `yaml:"min_share" mapstructure:"min_share"`
	BaseConfidence float64 `yaml:"base_confidence" mapstructure:"base_confidence"`
	ShareWeight    float64 `yaml:"share_weight" mapstructure:"share_weight"`
	MaxConfidence  float64 `yaml:"max_confidence" mapstructure:"max_confidence"`
	// FireOnUniform lets dominance claim a window held entirely by one
	// category. Off by default: an unbroken run is the streak detector's
	// territory, and a duplicate candidate would only lose the priority
	// tiebreak.
	FireOnUniform bool `yaml:"fire_on_uniform" mapstructure:"fire_on_uniform"`
}

// DefaultDominanceParams: one category holding more than 75% of the last 12
// rounds opens at 0.68, with the excess share scaled by 2.
func DefaultDominanceParams() DominanceParams {
	return DominanceParams{Window: 12, MinShare: 0.75, BaseConfidence: 0.68, ShareWeight: 2.0, MaxConfidence: 0.85}
}

func (p DominanceParams) validate() error {
	if p.Window < 4 {
		return fmt.Errorf("dominance: window %d < 4", p.Window)
	}
	if p.MinShare <= 0.5 || p.MinShare >= 1 {
		return fmt.Errorf("dominance: min_share %.3f outside (0.5,1)", p.MinShare)
	}
	return validateConfidenceBounds("dominance", p.BaseConfidence, p.MaxConfidence)
}

type dominanceDetector struct {
	params DominanceParams
	space  Space
	mode   Mode
}

// NewDominance creates the dominance detector.
func NewDominance(params DominanceParams, space Space, mode Mode) Detector {
	return &dominanceDetector{params: params, space: space, mode: mode}
}

func (d *dominanceDetector) ID() string    { return "dominance" }
func (d *dominanceDetector) Priority() int { return 60 }

func (d *dominanceDetector) Detect(win []model.OutcomeEvent) *model.PatternCandidate {
	if len(win) < d.params.Window {
		return nil
	}
	win = win[len(win)-d.params.Window:]

	counts := make(map[model.Category]int, len(d.space.Values))
	for _, ev := range win {
		counts[ev.Category]++
	}

	var dominant model.Category
	max := 0
	for cat, n := range counts {
		if n > max {
			dominant, max = cat, n
		}
	}

	share := float64(max) / float64(len(win))
	if share <= d.params.MinShare {
		return nil
	}
	if max == len(win) && !d.params.FireOnUniform {
		return nil
	}

	recommended := dominant
	if d.mode == ModeReversion {
		recommended = d.space.Opposite(dominant)
	}

	bonus := (share - d.params.MinShare) * d.params.ShareWeight
	return &model.PatternCandidate{
		PatternID:   d.ID(),
		Recommended: recommended,
		Confidence:  boundedConfidence(d.params.BaseConfidence, bonus, d.params.MaxConfidence),
		Evidence:    fmt.Sprintf("%s holds %d/%d of last %d", dominant, max, len(win), len(win)),
	}
}
