// Package detector implements the rolling-window pattern detectors and the
// registry that fans them out over an immutable window snapshot.
//
// Detectors are pure: given a window they either return a candidate or nil.
// A nil return is the normal outcome, not an error. Anything a detector does
// wrong (including panicking) is contained at the registry boundary and
// treated as "no candidate" so a faulty detector can never stall arbitration.
package detector

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/signal-engine/internal/model"
)

// Mode selects how detectors turn an observed trend into a recommendation.
type Mode string

const (
	// ModeReversion recommends against the observed trend (mean reversion).
	ModeReversion Mode = "reversion"
	// ModeMomentum recommends riding the observed trend.
	ModeMomentum Mode = "momentum"
)

// Detector inspects a window of outcomes and proposes at most one candidate.
type Detector interface {
	// ID identifies the pattern for performance tracking and cooldowns.
	ID() string
	// Priority breaks confidence ties in the arbiter; lower values are more
	// statistically specific and win.
	Priority() int
	// Detect returns a candidate or nil. It must not retain or mutate win.
	Detect(win []model.OutcomeEvent) *model.PatternCandidate
}

// Space describes the category universe a session operates over, including
// the complement used by reversion-mode recommendations.
type Space struct {
	Values     []model.Category
	Complement map[model.Category]model.Category
}

// DoubleSpace returns the red/black/white space of the double wheel.
// White has no natural complement and maps to red, matching the upstream
// game's payout asymmetry.
func DoubleSpace() Space {
	return Space{
		Values: []model.Category{model.CategoryRed, model.CategoryBlack, model.CategoryWhite},
		Complement: map[model.Category]model.Category{
			model.CategoryRed:   model.CategoryBlack,
			model.CategoryBlack: model.CategoryRed,
			model.CategoryWhite: model.CategoryRed,
		},
	}
}

// Contains reports whether c is a known category.
func (s Space) Contains(c model.Category) bool {
	for _, v := range s.Values {
		if v == c {
			return true
		}
	}
	return false
}

// Opposite returns the complement category of c, falling back to the first
// category in the space when no complement is configured.
func (s Space) Opposite(c model.Category) model.Category {
	if o, ok := s.Complement[c]; ok {
		return o
	}
	if len(s.Values) > 0 {
		return s.Values[0]
	}
	return c
}

// Registry holds the configured detector set and evaluates it over a window.
type Registry struct {
	detectors []Detector
}

// NewRegistry creates a registry over the given detectors.
func NewRegistry(detectors ...Detector) *Registry {
	return &Registry{detectors: detectors}
}

// Detectors returns the registered detectors in priority order of
// registration.
func (r *Registry) Detectors() []Detector { return r.detectors }

// PriorityOf returns the priority of the detector with the given id, or a
// value sorting after every registered detector when the id is unknown.
func (r *Registry) PriorityOf(id string) int {
	for _, d := range r.detectors {
		if d.ID() == id {
			return d.Priority()
		}
	}
	return 1 << 30
}

// Evaluate runs every detector against the window concurrently and returns
// the surviving candidates stamped with detectedAt. Panics inside a detector
// are recovered, logged, and counted as no candidate.
func (r *Registry) Evaluate(win []model.OutcomeEvent, detectedAt time.Time) []model.PatternCandidate {
	results := make([]*model.PatternCandidate, len(r.detectors))

	var g errgroup.Group
	for i, d := range r.detectors {
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					zap.L().Warn("detector panicked, treating as no candidate",
						zap.String("pattern", d.ID()),
						zap.Any("panic", rec),
					)
				}
			}()
			results[i] = d.Detect(win)
			return nil
		})
	}
	// Detectors never return errors; the group is used purely as a join.
	_ = g.Wait()

	candidates := make([]model.PatternCandidate, 0, len(r.detectors))
	for _, c := range results {
		if c == nil {
			continue
		}
		c.DetectedAt = detectedAt
		candidates = append(candidates, *c)
	}
	return candidates
}
