package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/signal-engine/internal/model"
)

// resolutionEvent pairs a terminal prediction with the pattern accuracy to
// hand to observers after the mutex is released.
type resolutionEvent struct {
	prediction model.Prediction
	accuracy   float64
}

// resolveLocked settles the pending prediction against the outcome that
// just arrived: HIT when the category matches the recommendation, MISS
// otherwise. Performance and the adaptive threshold update, then the reset
// policy trims the window. Caller holds s.mu.
func (s *Session) resolveLocked(ev model.OutcomeEvent, now time.Time) resolutionEvent {
	p := *s.pending
	resolvedAt := now
	p.ResolvedAt = &resolvedAt
	p.ResolvedBy = ev.Sequence

	hit := ev.Category == p.Recommended
	if hit {
		p.Status = model.PredictionHit
	} else {
		p.Status = model.PredictionMiss
	}

	stats := s.statsFor(p.PatternID)
	stats.record(hit, s.settings.Thresholds.RollingWindow)
	applyFeedback(stats, s.settings.Thresholds)

	s.pending = nil
	s.state = StateIdle
	s.applyResetLocked()

	zap.L().Info("prediction resolved",
		zap.String("session", s.key),
		zap.String("pattern", p.PatternID),
		zap.String("status", string(p.Status)),
		zap.String("recommended", string(p.Recommended)),
		zap.String("actual", string(ev.Category)),
		zap.Float64("accuracy", stats.accuracy()),
		zap.Float64("threshold", stats.threshold),
	)

	return resolutionEvent{prediction: p, accuracy: stats.accuracy()}
}

// expireLocked transitions the pending prediction to expired. Expiry is the
// stale-stream backstop: it never touches performance counters, the rolling
// window, or thresholds. Caller holds s.mu.
func (s *Session) expireLocked(now time.Time) resolutionEvent {
	p := *s.pending
	resolvedAt := now
	p.ResolvedAt = &resolvedAt
	p.Status = model.PredictionExpired

	s.pending = nil
	s.state = StateIdle

	stats := s.statsFor(p.PatternID)
	zap.L().Warn("prediction expired without resolving outcome",
		zap.String("session", s.key),
		zap.String("pattern", p.PatternID),
		zap.Duration("waited", now.Sub(p.CreatedAt)),
	)

	return resolutionEvent{prediction: p, accuracy: stats.accuracy()}
}

// applyResetLocked trims the transient window after a resolution per the
// retain_context policy. Learning state is deliberately untouched; only the
// window resets, so each cycle starts from fresh evidence while accuracy
// and thresholds persist.
func (s *Session) applyResetLocked() {
	keep := s.settings.RetainContext
	if keep <= 0 {
		keep = 1 // the resolving event anchors the next cycle
	}
	s.buf.TruncateTo(keep)
}
