package detector

import (
	"fmt"

	"github.com/sells-group/signal-engine/internal/model"
)

// BucketParams configures a binary-partition imbalance detector. It
// generalizes dominance to any two-way split of the numeric value space
// (odd/even, low/high) using the same share-based confidence formula.
type BucketParams struct {
	// Name distinguishes multiple bucket detectors, e.g. "parity" or
	// "low_high". The pattern id becomes "bucket_<name>".
	Name string `yaml:"name" mapstructure:"name"`
	// Predicate selects the partition: "parity" (odd vs even values) or
	// "range" (values <= Boundary vs above).
	Predicate string `yaml:"predicate" mapstructure:"predicate"`
	Boundary  int    `yaml:"boundary" mapstructure:"boundary"`
	// RecommendA and RecommendB are the categories associated with each
	// bucket, used to translate the imbalance into a recommendation.
	RecommendA model.Category `yaml:"recommend_a" mapstructure:"recommend_a"`
	RecommendB model.Category `yaml:"recommend_b" mapstructure:"recommend_b"`

	Window         int     `yaml:"window" mapstructure:"window"`
	MinShare       float64 `yaml:"min_share" mapstructure:"min_share"`
	BaseConfidence float64 `yaml:"base_confidence" mapstructure:"base_confidence"`
	ShareWeight    float64 `yaml:"share_weight" mapstructure:"share_weight"`
	MaxConfidence  float64 `yaml:"max_confidence" mapstructure:"max_confidence"`
}

// DefaultLowHighParams partitions the double wheel into its low (1-7, red)
// and high (8-14, black) halves.
func DefaultLowHighParams() BucketParams {
	return BucketParams{
		Name:           "low_high",
		Predicate:      "range",
		Boundary:       7,
		RecommendA:     model.CategoryRed,
		RecommendB:     model.CategoryBlack,
		Window:         12,
		MinShare:       0.75,
		BaseConfidence: 0.68,
		ShareWeight:    2.0,
		MaxConfidence:  0.85,
	}
}

func (p BucketParams) validate() error {
	if p.Name == "" {
		return fmt.Errorf("bucket: name is required")
	}
	if p.Predicate != "parity" && p.Predicate != "range" {
		return fmt.Errorf("bucket %s: predicate %q must be parity or range", p.Name, p.Predicate)
	}
	if p.RecommendA == "" || p.RecommendB == "" {
		return fmt.Errorf("bucket %s: both recommendations are required", p.Name)
	}
	if p.Window < 4 {
		return fmt.Errorf("bucket %s: window %d < 4", p.Name, p.Window)
	}
	if p.MinShare <= 0.5 || p.MinShare >= 1 {
		return fmt.Errorf("bucket %s: min_share %.3f outside (0.5,1)", p.Name, p.MinShare)
	}
	return validateConfidenceBounds("bucket "+p.Name, p.BaseConfidence, p.MaxConfidence)
}

type bucketDetector struct {
	params BucketParams
	mode   Mode
}

// NewBucket creates a binary-partition imbalance detector.
func NewBucket(params BucketParams, mode Mode) Detector {
	return &bucketDetector{params: params, mode: mode}
}

func (d *bucketDetector) ID() string    { return "bucket_" + d.params.Name }
func (d *bucketDetector) Priority() int { return 30 }

func (d *bucketDetector) inBucketA(value int) bool {
	if d.params.Predicate == "parity" {
		return value%2 != 0
	}
	return value <= d.params.Boundary
}

func (d *bucketDetector) Detect(win []model.OutcomeEvent) *model.PatternCandidate {
	if len(win) < d.params.Window {
		return nil
	}
	win = win[len(win)-d.params.Window:]

	inA := 0
	for _, ev := range win {
		if d.inBucketA(ev.Value) {
			inA++
		}
	}

	share := float64(inA) / float64(len(win))
	heavy, light := d.params.RecommendA, d.params.RecommendB
	heavyCount := inA
	if share < 0.5 {
		share = 1 - share
		heavy, light = d.params.RecommendB, d.params.RecommendA
		heavyCount = len(win) - inA
	}
	if share <= d.params.MinShare {
		return nil
	}

	recommended := heavy
	if d.mode == ModeReversion {
		recommended = light
	}

	bonus := (share - d.params.MinShare) * d.params.ShareWeight
	return &model.PatternCandidate{
		PatternID:   d.ID(),
		Recommended: recommended,
		Confidence:  boundedConfidence(d.params.BaseConfidence, bonus, d.params.MaxConfidence),
		Evidence:    fmt.Sprintf("%s bucket holds %d/%d of last %d", d.params.Name, heavyCount, len(win), len(win)),
	}
}
