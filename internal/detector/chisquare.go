package detector

import (
	"fmt"

	"github.com/sells-group/signal-engine/internal/model"
)

// ChiSquareParams configures the frequency-deviation detector, which tests
// observed category counts against their expected distribution.
type ChiSquareParams struct {
	Window int `yaml:"window" mapstructure:"window"`
	// Expected maps each category to its theoretical probability. The values
	// must sum to 1.
	Expected map[model.Category]float64 `yaml:"expected" mapstructure:"expected"`
	// Significance selects the critical value: 0.10, 0.05 or 0.01.
	Significance   float64 `yaml:"significance" mapstructure:"significance"`
	BaseConfidence float64 `yaml:"base_confidence" mapstructure:"base_confidence"`
	// ExcessWeight scales how far the statistic exceeds the critical value
	// into extra confidence.
	ExcessWeight  float64 `yaml:"excess_weight" mapstructure:"excess_weight"`
	MaxConfidence float64 `yaml:"max_confidence" mapstructure:"max_confidence"`
}

// DefaultChiSquareParams tests the double wheel's 7/15, 7/15, 1/15 color
// distribution over the last 30 rounds at the 5% level.
func DefaultChiSquareParams() ChiSquareParams {
	return ChiSquareParams{
		Window: 30,
		Expected: map[model.Category]float64{
			model.CategoryRed:   7.0 / 15.0,
			model.CategoryBlack: 7.0 / 15.0,
			model.CategoryWhite: 1.0 / 15.0,
		},
		Significance:   0.05,
		BaseConfidence: 0.70,
		ExcessWeight:   0.10,
		MaxConfidence:  0.88,
	}
}

// chiSquareCritical holds upper-tail critical values by degrees of freedom,
// for the supported significance levels.
var chiSquareCritical = map[float64][]float64{
	// df:      1      2      3      4      5      6      7      8      9     10
	0.10: {2.706, 4.605, 6.251, 7.779, 9.236, 10.645, 12.017, 13.362, 14.684, 15.987},
	0.05: {3.841, 5.991, 7.815, 9.488, 11.070, 12.592, 14.067, 15.507, 16.919, 18.307},
	0.01: {6.635, 9.210, 11.345, 13.277, 15.086, 16.812, 18.475, 20.090, 21.666, 23.209},
}

func criticalValue(significance float64, df int) (float64, bool) {
	table, ok := chiSquareCritical[significance]
	if !ok || df < 1 || df > len(table) {
		return 0, false
	}
	return table[df-1], true
}

func (p ChiSquareParams) validate() error {
	if p.Window < 20 {
		return fmt.Errorf("chisquare: window %d < 20", p.Window)
	}
	if len(p.Expected) < 2 {
		return fmt.Errorf("chisquare: expected distribution needs at least 2 categories")
	}
	sum := 0.0
	for cat, prob := range p.Expected {
		if prob <= 0 || prob >= 1 {
			return fmt.Errorf("chisquare: expected[%s] %.4f outside (0,1)", cat, prob)
		}
		sum += prob
	}
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("chisquare: expected probabilities sum to %.4f, want 1", sum)
	}
	if _, ok := criticalValue(p.Significance, len(p.Expected)-1); !ok {
		return fmt.Errorf("chisquare: unsupported significance %.3f for df %d", p.Significance, len(p.Expected)-1)
	}
	return validateConfidenceBounds("chisquare", p.BaseConfidence, p.MaxConfidence)
}

type chiSquareDetector struct {
	params   ChiSquareParams
	critical float64
	mode     Mode
}

// NewChiSquare creates the frequency-deviation detector. In reversion mode
// it recommends the most under-represented category (due for correction); in
// momentum mode the most over-represented one.
func NewChiSquare(params ChiSquareParams, mode Mode) Detector {
	crit, _ := criticalValue(params.Significance, len(params.Expected)-1)
	return &chiSquareDetector{params: params, critical: crit, mode: mode}
}

func (d *chiSquareDetector) ID() string    { return "chisquare" }
func (d *chiSquareDetector) Priority() int { return 10 }

func (d *chiSquareDetector) Detect(win []model.OutcomeEvent) *model.PatternCandidate {
	if len(win) < d.params.Window {
		return nil
	}
	win = win[len(win)-d.params.Window:]

	observed := make(map[model.Category]int, len(d.params.Expected))
	for _, ev := range win {
		observed[ev.Category]++
	}

	n := float64(len(win))
	statistic := 0.0
	var over, under model.Category
	maxDev, minDev := 0.0, 0.0
	for cat, prob := range d.params.Expected {
		expected := prob * n
		dev := float64(observed[cat]) - expected
		statistic += dev * dev / expected
		if dev > maxDev || over == "" {
			maxDev, over = dev, cat
		}
		if dev < minDev || under == "" {
			minDev, under = dev, cat
		}
	}

	if statistic <= d.critical {
		return nil
	}

	recommended := under
	if d.mode == ModeMomentum {
		recommended = over
	}

	bonus := (statistic/d.critical - 1) * d.params.ExcessWeight
	return &model.PatternCandidate{
		PatternID:   d.ID(),
		Recommended: recommended,
		Confidence:  boundedConfidence(d.params.BaseConfidence, bonus, d.params.MaxConfidence),
		Evidence: fmt.Sprintf("chi2=%.2f > %.2f over %d rounds (over=%s, under=%s)",
			statistic, d.critical, len(win), over, under),
	}
}
