package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/signal-engine/internal/model"
)

// Recorder bridges engine lifecycle events into the audit store. It
// implements engine.Hooks; persistence failures are logged, never propagated,
// so a broken store cannot stall signal processing.
type Recorder struct {
	store Store
}

// NewRecorder creates a Recorder around the given store.
func NewRecorder(s Store) *Recorder {
	return &Recorder{store: s}
}

func (r *Recorder) OnSignal(ctx context.Context, p model.Prediction) {
	if err := r.store.SavePrediction(ctx, p); err != nil {
		zap.L().Error("record signal",
			zap.String("prediction", p.ID),
			zap.String("pattern", p.PatternID),
			zap.Error(err))
	}
}

func (r *Recorder) OnResolution(ctx context.Context, p model.Prediction, accuracy float64) {
	if err := r.store.ResolvePrediction(ctx, p); err != nil {
		zap.L().Error("record resolution",
			zap.String("prediction", p.ID),
			zap.String("status", string(p.Status)),
			zap.Error(err))
		return
	}
	// Expired predictions leave the accuracy trail untouched.
	if p.Status == model.PredictionExpired || p.ResolvedAt == nil {
		return
	}
	if err := r.store.RecordAccuracy(ctx, p.SessionKey, p.PatternID, accuracy, *p.ResolvedAt); err != nil {
		zap.L().Error("record accuracy",
			zap.String("pattern", p.PatternID),
			zap.Error(err))
	}
}
