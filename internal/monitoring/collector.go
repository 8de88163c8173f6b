// Package monitoring samples engine and store state into point-in-time
// snapshots and raises webhook alerts when pattern accuracy degrades.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/signal-engine/internal/engine"
	"github.com/sells-group/signal-engine/internal/store"
)

// PatternMetric is one pattern's live and persisted performance for a session.
type PatternMetric struct {
	PatternID string  `json:"pattern_id"`
	Correct   int     `json:"correct"`
	Total     int     `json:"total"`
	Accuracy  float64 `json:"accuracy"`
	Threshold float64 `json:"threshold"`
	Expired   int     `json:"expired"`
}

// SessionMetrics is the live view of one session.
type SessionMetrics struct {
	Session    string          `json:"session"`
	State      engine.State    `json:"state"`
	HistoryLen int             `json:"history_len"`
	Patterns   []PatternMetric `json:"patterns"`
}

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	Sessions []SessionMetrics `json:"sessions"`

	// Aggregates across all sessions.
	TotalResolved   int     `json:"total_resolved"`
	TotalHits       int     `json:"total_hits"`
	OverallAccuracy float64 `json:"overall_accuracy"`
	PendingCount    int     `json:"pending_count"`

	CollectedAt time.Time `json:"collected_at"`
}

// SummaryQuerier abstracts the store methods the collector needs.
type SummaryQuerier interface {
	PatternSummaries(ctx context.Context, session string) ([]store.PatternSummary, error)
}

// Collector gathers metrics from live sessions and the audit store.
type Collector struct {
	manager *engine.Manager
	store   SummaryQuerier
}

// NewCollector creates a metrics collector. st may be nil, in which case
// expiry counts are omitted.
func NewCollector(manager *engine.Manager, st SummaryQuerier) *Collector {
	return &Collector{manager: manager, store: st}
}

// Collect gathers a snapshot across all known sessions.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{CollectedAt: time.Now().UTC()}

	for _, key := range c.manager.Keys() {
		s := c.manager.Get(key)
		if s == nil {
			continue
		}

		sm := SessionMetrics{
			Session:    key,
			State:      s.State(),
			HistoryLen: s.HistoryLen(),
		}
		if s.PendingPrediction() != nil {
			snap.PendingCount++
		}

		expired := map[string]int{}
		if c.store != nil {
			summaries, err := c.store.PatternSummaries(ctx, key)
			if err != nil {
				return nil, eris.Wrapf(err, "monitoring: summaries for %s", key)
			}
			for _, ps := range summaries {
				expired[ps.PatternID] = ps.Expired
			}
		}

		for id, perf := range s.Performance() {
			sm.Patterns = append(sm.Patterns, PatternMetric{
				PatternID: id,
				Correct:   perf.Correct,
				Total:     perf.Total,
				Accuracy:  perf.Accuracy,
				Threshold: perf.Threshold,
				Expired:   expired[id],
			})
			snap.TotalResolved += perf.Total
			snap.TotalHits += perf.Correct
		}
		snap.Sessions = append(snap.Sessions, sm)
	}

	if snap.TotalResolved > 0 {
		snap.OverallAccuracy = float64(snap.TotalHits) / float64(snap.TotalResolved)
	}
	return snap, nil
}
