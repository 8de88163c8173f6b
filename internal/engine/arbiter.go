package engine

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/signal-engine/internal/model"
)

// evaluateLocked runs one arbitration cycle over the current window: fan the
// detectors out, gate the candidates, and promote at most one to a pending
// prediction. Caller holds s.mu.
func (s *Session) evaluateLocked(now time.Time) *model.Prediction {
	if s.buf.Len() < s.settings.MinWindowSize {
		return nil
	}

	win := s.buf.Window(0)
	candidates := s.registry.Evaluate(win, now)
	if len(candidates) == 0 {
		return nil
	}

	best := s.selectCandidate(candidates, now)
	if best == nil {
		return nil
	}

	p := model.Prediction{
		ID:          uuid.New().String(),
		SessionKey:  s.key,
		PatternID:   best.PatternID,
		Recommended: best.Recommended,
		Confidence:  best.Confidence,
		Evidence:    best.Evidence,
		Status:      model.PredictionPending,
		CreatedAt:   now,
	}
	s.pending = &p
	s.state = StateSignaled
	s.lastFired[best.PatternID] = now
	s.lastSignal = now

	zap.L().Info("signal emitted",
		zap.String("session", s.key),
		zap.String("pattern", p.PatternID),
		zap.String("recommended", string(p.Recommended)),
		zap.Float64("confidence", p.Confidence),
		zap.String("evidence", p.Evidence),
	)

	out := p
	return &out
}

// selectCandidate applies the threshold and cooldown gates, then picks the
// strongest survivor. Ties on confidence go to the more statistically
// specific detector (lower priority value).
func (s *Session) selectCandidate(candidates []model.PatternCandidate, now time.Time) *model.PatternCandidate {
	// Global cooldown rejects every candidate at once.
	if !s.lastSignal.IsZero() && now.Sub(s.lastSignal) < s.settings.GlobalCooldown {
		zap.L().Debug("global cooldown active, dropping candidates",
			zap.String("session", s.key),
			zap.Int("candidates", len(candidates)),
		)
		return nil
	}

	var best *model.PatternCandidate
	for i := range candidates {
		c := &candidates[i]
		if c.Confidence < s.statsFor(c.PatternID).threshold {
			continue
		}
		if last, ok := s.lastFired[c.PatternID]; ok {
			if now.Sub(last) < s.settings.cooldownFor(c.PatternID) {
				continue
			}
		}
		if best == nil ||
			c.Confidence > best.Confidence ||
			(c.Confidence == best.Confidence &&
				s.registry.PriorityOf(c.PatternID) < s.registry.PriorityOf(best.PatternID)) {
			best = c
		}
	}
	return best
}
