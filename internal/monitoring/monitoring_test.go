package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signal-engine/internal/config"
	"github.com/sells-group/signal-engine/internal/detector"
	"github.com/sells-group/signal-engine/internal/engine"
	"github.com/sells-group/signal-engine/internal/model"
	"github.com/sells-group/signal-engine/internal/store"
)

// alwaysRed proposes red at a fixed confidence for any non-empty window.
type alwaysRed struct{}

func (alwaysRed) ID() string    { return "stub" }
func (alwaysRed) Priority() int { return 1 }
func (alwaysRed) Detect(win []model.OutcomeEvent) *model.PatternCandidate {
	if len(win) == 0 {
		return nil
	}
	return &model.PatternCandidate{PatternID: "stub", Recommended: model.CategoryRed, Confidence: 0.9}
}

type fakeSummaries struct {
	summaries map[string][]store.PatternSummary
}

func (f *fakeSummaries) PatternSummaries(_ context.Context, session string) ([]store.PatternSummary, error) {
	return f.summaries[session], nil
}

// newTestManager builds a manager with one session that has resolved one
// prediction as a miss and holds another pending.
func newTestManager(t *testing.T) *engine.Manager {
	t.Helper()
	settings := engine.DefaultSettings()
	settings.MinWindowSize = 1
	settings.GlobalCooldown = 0
	settings.PatternCooldown = 0
	settings.Thresholds.MinResolutions = 1

	m := engine.NewManager(func(key string) (*engine.Session, error) {
		return engine.NewSession(key, settings, detector.DoubleSpace(), detector.NewRegistry(alwaysRed{}))
	})
	s, err := m.GetOrCreate("table-1")
	require.NoError(t, err)

	ctx := context.Background()
	// Signal, then a black outcome misses it, then signal again.
	for i := 0; i < 3; i++ {
		_, err := s.Submit(ctx, model.CategoryBlack, 9, "test", time.Time{})
		require.NoError(t, err)
	}
	return m
}

func TestCollector_Collect(t *testing.T) {
	m := newTestManager(t)
	fs := &fakeSummaries{summaries: map[string][]store.PatternSummary{
		"table-1": {{PatternID: "stub", Misses: 1, Expired: 2}},
	}}

	snap, err := NewCollector(m, fs).Collect(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Sessions, 1)
	sm := snap.Sessions[0]
	assert.Equal(t, "table-1", sm.Session)
	assert.Equal(t, engine.StateSignaled, sm.State)
	require.Len(t, sm.Patterns, 1)
	assert.Equal(t, "stub", sm.Patterns[0].PatternID)
	assert.Equal(t, 1, sm.Patterns[0].Total)
	assert.Equal(t, 0, sm.Patterns[0].Correct)
	assert.Equal(t, 2, sm.Patterns[0].Expired)

	assert.Equal(t, 1, snap.PendingCount)
	assert.Equal(t, 1, snap.TotalResolved)
	assert.Equal(t, 0.0, snap.OverallAccuracy)
}

func TestCollector_NilStore(t *testing.T) {
	m := newTestManager(t)

	snap, err := NewCollector(m, nil).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Sessions, 1)
	assert.Equal(t, 0, snap.Sessions[0].Patterns[0].Expired)
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{AlertAccuracy: 0.45, AlertMinTotal: 10})

	snap := &MetricsSnapshot{
		Sessions: []SessionMetrics{{
			Session:  "table-1",
			Patterns: []PatternMetric{{PatternID: "streak", Correct: 1, Total: 2, Accuracy: 0.5}},
		}},
		TotalResolved:   2,
		TotalHits:       1,
		OverallAccuracy: 0.5,
	}
	// Below the minimum sample size no alert fires.
	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_LowPatternAccuracy(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{AlertAccuracy: 0.45, AlertMinTotal: 10})

	snap := &MetricsSnapshot{
		Sessions: []SessionMetrics{{
			Session: "table-1",
			Patterns: []PatternMetric{
				{PatternID: "streak", Correct: 3, Total: 12, Accuracy: 0.25},
				{PatternID: "dominance", Correct: 9, Total: 12, Accuracy: 0.75},
			},
		}},
		TotalResolved:   24,
		TotalHits:       12,
		OverallAccuracy: 0.5,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertPatternAccuracy, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "streak")
	assert.Equal(t, "table-1", alerts[0].Details["session"])
}

func TestAlerter_Evaluate_OverallAccuracy(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{AlertAccuracy: 0.45, AlertMinTotal: 10})

	snap := &MetricsSnapshot{
		TotalResolved:   20,
		TotalHits:       6,
		OverallAccuracy: 0.3,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertOverallAccuracy, alerts[0].Type)
}

func TestAlerter_SendAlerts(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var alert Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertPatternAccuracy, Severity: "high", Message: "test", Timestamp: time.Now()},
		{Type: AlertOverallAccuracy, Severity: "high", Message: "test", Timestamp: time.Now()},
	})

	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertPatternAccuracy, Severity: "high", Message: "test", Timestamp: time.Now()},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertPatternAccuracy, Severity: "high", Message: "test", Timestamp: time.Now()},
	})
	assert.Equal(t, 0, sent)
}
