package detector

import (
	"fmt"

	"github.com/sells-group/signal-engine/internal/model"
)

// AdjacencyParams configures the clustering detector. Ring is the externally
// supplied adjacency ordering of values (e.g. the physical wheel layout);
// recent results landing unusually close together on the ring are evidence
// of locality.
type AdjacencyParams struct {
	Ring []int `yaml:"ring" mapstructure:"ring"`
	// ValueCategories maps values to the category recommended when their
	// region is hot. Values without a mapping fall back to the most frequent
	// recent category.
	ValueCategories map[int]model.Category `yaml:"value_categories" mapstructure:"value_categories"`
	Window          int                    `yaml:"window" mapstructure:"window"`
	// TightnessRatio: cluster when the mean circular distance between
	// consecutive results is below this fraction of the uniform expectation.
	TightnessRatio float64 `yaml:"tightness_ratio" mapstructure:"tightness_ratio"`
	BaseConfidence float64 `yaml:"base_confidence" mapstructure:"base_confidence"`
	// DistanceWeight converts each position of distance below the cluster
	// threshold into extra confidence.
	DistanceWeight float64 `yaml:"distance_weight" mapstructure:"distance_weight"`
	MaxConfidence  float64 `yaml:"max_confidence" mapstructure:"max_confidence"`
}

// DefaultAdjacencyParams lays the double wheel's 15 values out in their
// on-screen order.
func DefaultAdjacencyParams() AdjacencyParams {
	ring := make([]int, 15)
	cats := make(map[int]model.Category, 15)
	for i := 0; i < 15; i++ {
		ring[i] = i
		switch {
		case i == 0:
			cats[i] = model.CategoryWhite
		case i <= 7:
			cats[i] = model.CategoryRed
		default:
			cats[i] = model.CategoryBlack
		}
	}
	return AdjacencyParams{
		Ring:            ring,
		ValueCategories: cats,
		Window:          15,
		TightnessRatio:  0.6,
		BaseConfidence:  0.60,
		DistanceWeight:  0.01,
		MaxConfidence:   0.78,
	}
}

func (p AdjacencyParams) validate() error {
	if len(p.Ring) < 4 {
		return fmt.Errorf("adjacency: ring needs at least 4 values, got %d", len(p.Ring))
	}
	seen := make(map[int]bool, len(p.Ring))
	for _, v := range p.Ring {
		if seen[v] {
			return fmt.Errorf("adjacency: duplicate ring value %d", v)
		}
		seen[v] = true
	}
	if p.Window < 4 {
		return fmt.Errorf("adjacency: window %d < 4", p.Window)
	}
	if p.TightnessRatio <= 0 || p.TightnessRatio >= 1 {
		return fmt.Errorf("adjacency: tightness_ratio %.3f outside (0,1)", p.TightnessRatio)
	}
	return validateConfidenceBounds("adjacency", p.BaseConfidence, p.MaxConfidence)
}

type adjacencyDetector struct {
	params   AdjacencyParams
	position map[int]int
}

// NewAdjacency creates the clustering detector.
func NewAdjacency(params AdjacencyParams) Detector {
	pos := make(map[int]int, len(params.Ring))
	for i, v := range params.Ring {
		pos[v] = i
	}
	return &adjacencyDetector{params: params, position: pos}
}

func (d *adjacencyDetector) ID() string    { return "adjacency" }
func (d *adjacencyDetector) Priority() int { return 20 }

func (d *adjacencyDetector) Detect(win []model.OutcomeEvent) *model.PatternCandidate {
	if len(win) < d.params.Window {
		return nil
	}
	win = win[len(win)-d.params.Window:]

	positions := make([]int, 0, len(win))
	for _, ev := range win {
		if p, ok := d.position[ev.Value]; ok {
			positions = append(positions, p)
		}
	}
	// Values outside the ring thin the sample; require most of the window.
	if len(positions) < (d.params.Window*3)/4 {
		return nil
	}

	ringLen := len(d.params.Ring)
	total := 0
	for i := 1; i < len(positions); i++ {
		dist := positions[i] - positions[i-1]
		if dist < 0 {
			dist = -dist
		}
		if wrap := ringLen - dist; wrap < dist {
			dist = wrap
		}
		total += dist
	}
	mean := float64(total) / float64(len(positions)-1)
	expected := float64(ringLen) / 2
	threshold := expected * d.params.TightnessRatio
	if mean >= threshold {
		return nil
	}

	// Hot region: the value whose ring neighborhood collected the most hits.
	hits := make([]int, ringLen)
	for _, p := range positions {
		for off := -2; off <= 2; off++ {
			hits[((p+off)%ringLen+ringLen)%ringLen]++
		}
	}
	hotPos, hotHits := 0, 0
	for p, n := range hits {
		if n > hotHits {
			hotPos, hotHits = p, n
		}
	}
	hotValue := d.params.Ring[hotPos]

	recommended, ok := d.params.ValueCategories[hotValue]
	if !ok {
		counts := map[model.Category]int{}
		for _, ev := range win {
			counts[ev.Category]++
		}
		best := 0
		for cat, n := range counts {
			if n > best {
				recommended, best = cat, n
			}
		}
	}

	bonus := (threshold - mean) * d.params.DistanceWeight
	return &model.PatternCandidate{
		PatternID:   d.ID(),
		Recommended: recommended,
		Confidence:  boundedConfidence(d.params.BaseConfidence, bonus, d.params.MaxConfidence),
		Evidence: fmt.Sprintf("mean ring distance %.1f < %.1f, hot value %d",
			mean, threshold, hotValue),
	}
}
