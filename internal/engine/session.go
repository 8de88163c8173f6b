// Package engine implements the pattern-detection and adaptive signal core:
// per-session outcome ingestion, detector arbitration with at most one
// pending prediction, prediction resolution, and feedback-driven threshold
// tuning.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/signal-engine/internal/detector"
	"github.com/sells-group/signal-engine/internal/history"
	"github.com/sells-group/signal-engine/internal/model"
)

// State is the arbiter's externally visible state.
type State string

const (
	// StateIdle: no pending prediction; new outcomes open an evaluation.
	StateIdle State = "idle"
	// StateSignaled: a prediction is pending; no new prediction may be
	// created until it resolves or expires.
	StateSignaled State = "signaled"
)

// SubmitResult reports what one outcome submission did to the session.
type SubmitResult struct {
	Event model.OutcomeEvent `json:"event"`
	// Expired is set when a pending prediction timed out before this
	// outcome was considered.
	Expired *model.Prediction `json:"expired,omitempty"`
	// Resolved is set when this outcome resolved the pending prediction.
	Resolved *model.Prediction `json:"resolved,omitempty"`
	// NewSignal is set when this outcome led the arbiter to emit a
	// prediction.
	NewSignal *model.Prediction `json:"new_signal,omitempty"`
}

// Session owns one stream's full engine state: history buffer, arbiter,
// cooldowns, and pattern performance. Sessions are independent; all methods
// are safe for concurrent use, with ingestion and arbitration serialized by
// the session mutex. The mutex is never held across hook invocations.
type Session struct {
	key      string
	settings Settings
	space    detector.Space
	registry *detector.Registry
	hooks    Hooks
	now      func() time.Time

	mu         sync.Mutex
	buf        *history.Buffer
	seq        int64
	state      State
	pending    *model.Prediction
	perf       map[string]*patternStats
	lastFired  map[string]time.Time
	lastSignal time.Time
}

// Option customizes a Session.
type Option func(*Session)

// WithHooks installs the lifecycle observer.
func WithHooks(h Hooks) Option {
	return func(s *Session) { s.hooks = h }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession validates the settings and creates a session. Invalid settings
// fail fast with a ConfigurationError.
func NewSession(key string, settings Settings, space detector.Space, registry *detector.Registry, opts ...Option) (*Session, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if registry == nil || len(registry.Detectors()) == 0 {
		return nil, &ConfigurationError{Reason: "registry has no detectors"}
	}
	s := &Session{
		key:       key,
		settings:  settings,
		space:     space,
		registry:  registry,
		hooks:     NopHooks{},
		now:       time.Now,
		buf:       history.New(settings.HistorySize),
		state:     StateIdle,
		perf:      make(map[string]*patternStats),
		lastFired: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Key returns the session key.
func (s *Session) Key() string { return s.key }

// Submit ingests one outcome: it appends to the history, resolves or expires
// a pending prediction, and otherwise lets the arbiter evaluate the window.
// Malformed outcomes are rejected with a ValidationError and mutate nothing.
func (s *Session) Submit(ctx context.Context, category model.Category, value int, source string, at time.Time) (SubmitResult, error) {
	if !s.space.Contains(category) {
		return SubmitResult{}, &ValidationError{Field: "category", Reason: "unknown category " + string(category)}
	}
	if value < 0 {
		return SubmitResult{}, &ValidationError{Field: "value", Reason: "negative value"}
	}

	s.mu.Lock()
	now := s.now()
	if at.IsZero() {
		at = now
	}

	s.seq++
	ev := model.OutcomeEvent{
		Sequence:  s.seq,
		Category:  category,
		Value:     value,
		Timestamp: at,
		Source:    source,
	}
	s.buf.Append(ev)
	result := SubmitResult{Event: ev}

	// Resolution path: a pending prediction is settled by the very next
	// outcome, unless it already sat past its wait budget.
	var resolutions []resolutionEvent
	if s.pending != nil {
		if now.Sub(s.pending.CreatedAt) > s.settings.MaxWait {
			expired := s.expireLocked(now)
			result.Expired = &expired.prediction
			resolutions = append(resolutions, expired)
		} else {
			resolved := s.resolveLocked(ev, now)
			result.Resolved = &resolved.prediction
			resolutions = append(resolutions, resolved)
		}
	}

	// Arbitration path: only when idle and this outcome did not just settle
	// a prediction; the cycle that resolves never also signals.
	if s.pending == nil && result.Resolved == nil {
		if signal := s.evaluateLocked(now); signal != nil {
			result.NewSignal = signal
		}
	}
	s.mu.Unlock()

	for _, r := range resolutions {
		s.hooks.OnResolution(ctx, r.prediction, r.accuracy)
	}
	if result.NewSignal != nil {
		s.hooks.OnSignal(ctx, *result.NewSignal)
	}
	return result, nil
}

// ExpirePending transitions a pending prediction past its wait budget to
// expired. It exists for liveness: a stalled upstream must not leave the
// arbiter signaled forever. Returns the expired prediction, or nil.
func (s *Session) ExpirePending(ctx context.Context) *model.Prediction {
	s.mu.Lock()
	now := s.now()
	if s.pending == nil || now.Sub(s.pending.CreatedAt) <= s.settings.MaxWait {
		s.mu.Unlock()
		return nil
	}
	expired := s.expireLocked(now)
	s.mu.Unlock()

	s.hooks.OnResolution(ctx, expired.prediction, expired.accuracy)
	return &expired.prediction
}

// State returns the arbiter state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PendingPrediction returns a copy of the pending prediction, or nil.
func (s *Session) PendingPrediction() *model.Prediction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	p := *s.pending
	return &p
}

// Performance returns the per-pattern performance snapshot. Patterns that
// never signaled report the initial threshold and zero counts.
func (s *Session) Performance() map[string]model.PatternPerformance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.PatternPerformance, len(s.registry.Detectors()))
	for _, d := range s.registry.Detectors() {
		out[d.ID()] = s.statsFor(d.ID()).snapshot(d.ID())
	}
	return out
}

// History returns up to limit most recent events, oldest first. limit <= 0
// returns the full buffer.
func (s *Session) History(limit int) []model.OutcomeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Window(limit)
}

// HistoryLen returns the buffered event count.
func (s *Session) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

func (s *Session) statsFor(patternID string) *patternStats {
	st, ok := s.perf[patternID]
	if !ok {
		st = newPatternStats(s.settings.Thresholds.Initial)
		s.perf[patternID] = st
	}
	return st
}
