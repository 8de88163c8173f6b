package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/signal-engine/internal/detector"
	"github.com/sells-group/signal-engine/internal/model"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fixedDetector always proposes the same candidate once the window is
// non-empty.
type fixedDetector struct {
	id         string
	priority   int
	confidence float64
	recommend  model.Category
}

func (d *fixedDetector) ID() string    { return d.id }
func (d *fixedDetector) Priority() int { return d.priority }
func (d *fixedDetector) Detect(win []model.OutcomeEvent) *model.PatternCandidate {
	if len(win) == 0 {
		return nil
	}
	return &model.PatternCandidate{
		PatternID:   d.id,
		Recommended: d.recommend,
		Confidence:  d.confidence,
		Evidence:    "fixed",
	}
}

// recordingHooks captures observer invocations.
type recordingHooks struct {
	mu          sync.Mutex
	signals     []model.Prediction
	resolutions []model.Prediction
	accuracies  []float64
}

func (h *recordingHooks) OnSignal(_ context.Context, p model.Prediction) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signals = append(h.signals, p)
}

func (h *recordingHooks) OnResolution(_ context.Context, p model.Prediction, accuracy float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resolutions = append(h.resolutions, p)
	h.accuracies = append(h.accuracies, accuracy)
}

// stubSettings is a permissive baseline for stub-detector tests.
func stubSettings() Settings {
	s := DefaultSettings()
	s.MinWindowSize = 1
	s.Thresholds.MinResolutions = 1
	return s
}

func stubRegistry(dets ...detector.Detector) *detector.Registry {
	return detector.NewRegistry(dets...)
}
