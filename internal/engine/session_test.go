package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signal-engine/internal/detector"
	"github.com/sells-group/signal-engine/internal/model"
)

func submit(t *testing.T, s *Session, cat model.Category, value int) SubmitResult {
	t.Helper()
	res, err := s.Submit(context.Background(), cat, value, "test", time.Time{})
	require.NoError(t, err)
	return res
}

func TestSession_StreakCycle(t *testing.T) {
	// Window of six identical categories fires the streak detector at 0.72
	// against the 0.72 starting threshold; the differing next outcome is a
	// hit, and the threshold comes down.
	clock := newFakeClock()
	settings := DefaultSettings()
	settings.MinWindowSize = 6
	settings.Thresholds.MinResolutions = 1

	reg, err := detector.Build(detector.DefaultSpecs(), detector.DoubleSpace(), detector.ModeReversion)
	require.NoError(t, err)
	hooks := &recordingHooks{}
	s, err := NewSession("table-1", settings, detector.DoubleSpace(), reg,
		WithClock(clock.Now), WithHooks(hooks))
	require.NoError(t, err)

	var signal *model.Prediction
	for i := 0; i < 6; i++ {
		res := submit(t, s, model.CategoryBlack, 9)
		signal = res.NewSignal
		clock.Advance(20 * time.Second)
	}
	require.NotNil(t, signal)
	assert.Equal(t, "streak", signal.PatternID)
	assert.Equal(t, model.CategoryRed, signal.Recommended)
	assert.InDelta(t, 0.72, signal.Confidence, 1e-9)
	assert.Equal(t, StateSignaled, s.State())
	require.NotNil(t, s.PendingPrediction())

	res := submit(t, s, model.CategoryRed, 3)
	require.NotNil(t, res.Resolved)
	assert.Equal(t, model.PredictionHit, res.Resolved.Status)
	assert.Equal(t, StateIdle, s.State())
	assert.Nil(t, s.PendingPrediction())

	perf := s.Performance()["streak"]
	assert.Equal(t, 1, perf.Total)
	assert.Equal(t, 1, perf.Correct)
	assert.Equal(t, 1.0, perf.Accuracy)
	assert.Less(t, perf.Threshold, settings.Thresholds.Initial)

	// Full reset: only the resolving event remains.
	assert.Equal(t, 1, s.HistoryLen())

	require.Len(t, hooks.signals, 1)
	require.Len(t, hooks.resolutions, 1)
	assert.Equal(t, 1.0, hooks.accuracies[0])
}

func TestSession_MissResolution(t *testing.T) {
	clock := newFakeClock()
	d := &fixedDetector{id: "stub", priority: 1, confidence: 0.9, recommend: model.CategoryRed}
	s, err := NewSession("t", stubSettings(), detector.DoubleSpace(), stubRegistry(d), WithClock(clock.Now))
	require.NoError(t, err)

	res := submit(t, s, model.CategoryBlack, 9)
	require.NotNil(t, res.NewSignal)

	clock.Advance(time.Second)
	res = submit(t, s, model.CategoryBlack, 10)
	require.NotNil(t, res.Resolved)
	assert.Equal(t, model.PredictionMiss, res.Resolved.Status)

	perf := s.Performance()["stub"]
	assert.Equal(t, 1, perf.Total)
	assert.Equal(t, 0, perf.Correct)
	assert.Equal(t, 0.0, perf.Accuracy)
}

func TestSession_GlobalCooldownBlocksNewSignal(t *testing.T) {
	// Scenario: a strong candidate arriving within the global cooldown of a
	// just-emitted prediction creates nothing.
	clock := newFakeClock()
	strong := &fixedDetector{id: "strong", priority: 1, confidence: 0.99, recommend: model.CategoryRed}
	s, err := NewSession("t", stubSettings(), detector.DoubleSpace(), stubRegistry(strong), WithClock(clock.Now))
	require.NoError(t, err)

	res := submit(t, s, model.CategoryBlack, 9)
	require.NotNil(t, res.NewSignal)

	// Next outcome resolves; the resolving cycle never signals.
	clock.Advance(5 * time.Second)
	res = submit(t, s, model.CategoryRed, 3)
	require.NotNil(t, res.Resolved)
	assert.Nil(t, res.NewSignal)

	// Still inside the 180s global cooldown.
	clock.Advance(5 * time.Second)
	res = submit(t, s, model.CategoryBlack, 9)
	assert.Nil(t, res.NewSignal)
	assert.Equal(t, StateIdle, s.State())

	// Once the cooldown lapses the arbiter may fire again.
	clock.Advance(200 * time.Second)
	res = submit(t, s, model.CategoryBlack, 10)
	assert.NotNil(t, res.NewSignal)
}

func TestSession_MinWindowGate(t *testing.T) {
	// Four outcomes against a min window of five: the arbiter stays idle no
	// matter what the detectors would say.
	clock := newFakeClock()
	settings := stubSettings()
	settings.MinWindowSize = 5
	d := &fixedDetector{id: "stub", priority: 1, confidence: 0.99, recommend: model.CategoryRed}
	s, err := NewSession("t", settings, detector.DoubleSpace(), stubRegistry(d), WithClock(clock.Now))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		res := submit(t, s, model.CategoryBlack, 9)
		assert.Nil(t, res.NewSignal)
		clock.Advance(time.Second)
	}
	assert.Equal(t, StateIdle, s.State())

	res := submit(t, s, model.CategoryBlack, 9)
	assert.NotNil(t, res.NewSignal)
}

func TestSession_PendingExpires(t *testing.T) {
	// No resolving outcome within max_wait: the prediction expires and the
	// pattern's counters are untouched.
	clock := newFakeClock()
	settings := stubSettings()
	settings.GlobalCooldown = time.Hour
	d := &fixedDetector{id: "stub", priority: 1, confidence: 0.9, recommend: model.CategoryRed}
	hooks := &recordingHooks{}
	s, err := NewSession("t", settings, detector.DoubleSpace(), stubRegistry(d),
		WithClock(clock.Now), WithHooks(hooks))
	require.NoError(t, err)

	res := submit(t, s, model.CategoryBlack, 9)
	require.NotNil(t, res.NewSignal)

	clock.Advance(301 * time.Second)
	res = submit(t, s, model.CategoryBlack, 10)
	require.NotNil(t, res.Expired)
	assert.Equal(t, model.PredictionExpired, res.Expired.Status)
	assert.Nil(t, res.Resolved)

	perf := s.Performance()["stub"]
	assert.Equal(t, 0, perf.Total)
	assert.Equal(t, stubSettings().Thresholds.Initial, perf.Threshold)

	require.Len(t, hooks.resolutions, 1)
	assert.Equal(t, model.PredictionExpired, hooks.resolutions[0].Status)
}

func TestSession_ExpireViaSweep(t *testing.T) {
	clock := newFakeClock()
	d := &fixedDetector{id: "stub", priority: 1, confidence: 0.9, recommend: model.CategoryRed}
	s, err := NewSession("t", stubSettings(), detector.DoubleSpace(), stubRegistry(d), WithClock(clock.Now))
	require.NoError(t, err)

	submit(t, s, model.CategoryBlack, 9)
	require.NotNil(t, s.PendingPrediction())

	// Not yet due.
	assert.Nil(t, s.ExpirePending(context.Background()))

	clock.Advance(301 * time.Second)
	p := s.ExpirePending(context.Background())
	require.NotNil(t, p)
	assert.Equal(t, model.PredictionExpired, p.Status)
	assert.Equal(t, StateIdle, s.State())
}

func TestSession_RetainContext(t *testing.T) {
	clock := newFakeClock()
	settings := stubSettings()
	settings.MinWindowSize = 4
	settings.RetainContext = 3
	d := &fixedDetector{id: "stub", priority: 1, confidence: 0.9, recommend: model.CategoryRed}
	s, err := NewSession("t", settings, detector.DoubleSpace(), stubRegistry(d), WithClock(clock.Now))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		submit(t, s, model.CategoryBlack, 9)
		clock.Advance(time.Second)
	}
	require.NotNil(t, s.PendingPrediction())

	res := submit(t, s, model.CategoryRed, 3)
	require.NotNil(t, res.Resolved)
	assert.Equal(t, 3, s.HistoryLen())
	assert.Equal(t, 1, s.Performance()["stub"].Total)
}

func TestSession_AtMostOnePending(t *testing.T) {
	clock := newFakeClock()
	settings := stubSettings()
	settings.GlobalCooldown = 0
	settings.PatternCooldown = 0
	d := &fixedDetector{id: "stub", priority: 1, confidence: 0.99, recommend: model.CategoryRed}
	s, err := NewSession("t", settings, detector.DoubleSpace(), stubRegistry(d), WithClock(clock.Now))
	require.NoError(t, err)

	signals := 0
	for i := 0; i < 40; i++ {
		res := submit(t, s, model.CategoryBlack, 9)
		if res.NewSignal != nil {
			signals++
			require.NotNil(t, s.PendingPrediction())
			// While pending, the same submit never also signals.
			assert.Nil(t, res.Resolved)
		}
		if res.Resolved != nil {
			assert.Nil(t, res.NewSignal, "resolving cycle must not signal")
		}
		clock.Advance(time.Second)
	}
	// With zero cooldowns the stream alternates signal/resolve; the single
	// pending invariant keeps signals at half the submissions.
	assert.Equal(t, 20, signals)
}

func TestSession_ThresholdGateFiltersWeakCandidates(t *testing.T) {
	clock := newFakeClock()
	weak := &fixedDetector{id: "weak", priority: 1, confidence: 0.60, recommend: model.CategoryRed}
	s, err := NewSession("t", stubSettings(), detector.DoubleSpace(), stubRegistry(weak), WithClock(clock.Now))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		res := submit(t, s, model.CategoryBlack, 9)
		assert.Nil(t, res.NewSignal)
		clock.Advance(time.Second)
	}
}

func TestSession_TieBreakPrefersSpecificDetector(t *testing.T) {
	clock := newFakeClock()
	generic := &fixedDetector{id: "generic", priority: 60, confidence: 0.80, recommend: model.CategoryRed}
	specific := &fixedDetector{id: "specific", priority: 10, confidence: 0.80, recommend: model.CategoryBlack}
	s, err := NewSession("t", stubSettings(), detector.DoubleSpace(), stubRegistry(generic, specific), WithClock(clock.Now))
	require.NoError(t, err)

	res := submit(t, s, model.CategoryBlack, 9)
	require.NotNil(t, res.NewSignal)
	assert.Equal(t, "specific", res.NewSignal.PatternID)
}

func TestSession_PatternCooldownFallsBackToNextPattern(t *testing.T) {
	clock := newFakeClock()
	settings := stubSettings()
	settings.GlobalCooldown = 0
	settings.PatternCooldown = time.Hour
	a := &fixedDetector{id: "a", priority: 1, confidence: 0.90, recommend: model.CategoryRed}
	b := &fixedDetector{id: "b", priority: 2, confidence: 0.85, recommend: model.CategoryBlack}
	s, err := NewSession("t", settings, detector.DoubleSpace(), stubRegistry(a, b), WithClock(clock.Now))
	require.NoError(t, err)

	res := submit(t, s, model.CategoryBlack, 9)
	require.NotNil(t, res.NewSignal)
	assert.Equal(t, "a", res.NewSignal.PatternID)

	clock.Advance(time.Second)
	submit(t, s, model.CategoryRed, 3) // resolve

	// a is cooling down for an hour; b takes the next slot.
	clock.Advance(time.Second)
	res = submit(t, s, model.CategoryBlack, 9)
	require.NotNil(t, res.NewSignal)
	assert.Equal(t, "b", res.NewSignal.PatternID)
}

func TestSession_RejectsMalformedOutcome(t *testing.T) {
	clock := newFakeClock()
	d := &fixedDetector{id: "stub", priority: 1, confidence: 0.9, recommend: model.CategoryRed}
	s, err := NewSession("t", stubSettings(), detector.DoubleSpace(), stubRegistry(d), WithClock(clock.Now))
	require.NoError(t, err)

	_, err = s.Submit(context.Background(), model.Category("green"), 1, "test", time.Time{})
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	_, err = s.Submit(context.Background(), model.CategoryRed, -1, "test", time.Time{})
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	// Nothing was mutated.
	assert.Equal(t, 0, s.HistoryLen())
	assert.Equal(t, StateIdle, s.State())
}

func TestSession_ConstructionFailsFast(t *testing.T) {
	settings := DefaultSettings()
	settings.Thresholds.Min = 0.9
	settings.Thresholds.Max = 0.7
	d := &fixedDetector{id: "stub", priority: 1, confidence: 0.9, recommend: model.CategoryRed}

	_, err := NewSession("t", settings, detector.DoubleSpace(), stubRegistry(d))
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))

	_, err = NewSession("t", DefaultSettings(), detector.DoubleSpace(), stubRegistry())
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
}

func TestSession_HistoryReturnsRecentEvents(t *testing.T) {
	clock := newFakeClock()
	settings := stubSettings()
	settings.MinWindowSize = 100 // keep the arbiter quiet
	d := &fixedDetector{id: "stub", priority: 1, confidence: 0.9, recommend: model.CategoryRed}
	s, err := NewSession("t", settings, detector.DoubleSpace(), stubRegistry(d), WithClock(clock.Now))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		submit(t, s, model.CategoryRed, i+1)
	}
	got := s.History(3)
	require.Len(t, got, 3)
	assert.Equal(t, int64(8), got[0].Sequence)
	assert.Equal(t, int64(10), got[2].Sequence)
}
