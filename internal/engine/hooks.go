package engine

import (
	"context"

	"github.com/sells-group/signal-engine/internal/model"
)

// Hooks receives engine lifecycle events. Implementations are invoked after
// the session mutex has been released, so they may block on I/O, but they
// must tolerate being called from multiple sessions concurrently.
type Hooks interface {
	// OnSignal fires when the arbiter emits a new pending prediction.
	OnSignal(ctx context.Context, p model.Prediction)
	// OnResolution fires when a prediction reaches a terminal state. For
	// expired predictions accuracy is the pattern's accuracy at expiry,
	// unchanged by the expiry itself.
	OnResolution(ctx context.Context, p model.Prediction, accuracy float64)
}

// NopHooks is the default no-op observer.
type NopHooks struct{}

func (NopHooks) OnSignal(context.Context, model.Prediction)               {}
func (NopHooks) OnResolution(context.Context, model.Prediction, float64) {}

// MultiHooks fans events out to several observers in order.
type MultiHooks []Hooks

func (m MultiHooks) OnSignal(ctx context.Context, p model.Prediction) {
	for _, h := range m {
		h.OnSignal(ctx, p)
	}
}

func (m MultiHooks) OnResolution(ctx context.Context, p model.Prediction, accuracy float64) {
	for _, h := range m {
		h.OnResolution(ctx, p, accuracy)
	}
}
