// Package store persists the engine's audit trail: every outcome, every
// prediction and its resolution, and the accuracy snapshots taken at
// resolution time. The engine itself never reads from the store; it exists
// for replay, reporting and monitoring.
package store

import (
	"context"
	"time"

	"github.com/sells-group/signal-engine/internal/model"
)

// PredictionFilter specifies criteria for listing predictions.
type PredictionFilter struct {
	Session   string                `json:"session,omitempty"`
	PatternID string                `json:"pattern_id,omitempty"`
	Status    model.PredictionStatus `json:"status,omitempty"`
	Limit     int                   `json:"limit,omitempty"`
	Offset    int                   `json:"offset,omitempty"`
}

// PatternSummary aggregates a pattern's stored resolutions for one session.
// Expired predictions are counted but excluded from the accuracy ratio.
type PatternSummary struct {
	PatternID string  `json:"pattern_id"`
	Hits      int     `json:"hits"`
	Misses    int     `json:"misses"`
	Expired   int     `json:"expired"`
	Pending   int     `json:"pending"`
	Accuracy  float64 `json:"accuracy"`
}

// Store defines the persistence interface for the signal audit trail.
type Store interface {
	// Outcomes
	RecordOutcome(ctx context.Context, session string, ev model.OutcomeEvent) error
	ListOutcomes(ctx context.Context, session string, limit int) ([]model.OutcomeEvent, error)

	// Predictions
	SavePrediction(ctx context.Context, p model.Prediction) error
	ResolvePrediction(ctx context.Context, p model.Prediction) error
	GetPrediction(ctx context.Context, id string) (*model.Prediction, error)
	ListPredictions(ctx context.Context, filter PredictionFilter) ([]model.Prediction, error)

	// Accuracy trail
	RecordAccuracy(ctx context.Context, session, patternID string, accuracy float64, at time.Time) error
	PatternSummaries(ctx context.Context, session string) ([]PatternSummary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
