package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/signal-engine/internal/engine"
	"github.com/sells-group/signal-engine/internal/store"
)

// Poller drives one session from the feed: each tick it fetches recent
// outcomes, drops the ones already seen, and submits the rest in order.
type Poller struct {
	client   *Client
	session  *engine.Session
	store    store.Store // may be nil
	interval time.Duration

	lastSeen int64
}

// NewPoller creates a poller feeding the given session. st may be nil to
// skip outcome persistence.
func NewPoller(client *Client, session *engine.Session, st store.Store, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		client:   client,
		session:  session,
		store:    st,
		interval: interval,
	}
}

// Run polls until the context is cancelled. Feed errors are logged and the
// loop keeps going; the retry and breaker layers inside the client decide
// how hard to push a failing upstream.
func (p *Poller) Run(ctx context.Context) {
	log := zap.L().With(
		zap.String("component", "ingest.poller"),
		zap.String("session", p.session.Key()),
	)
	log.Info("starting feed poller", zap.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("feed poller stopped")
			return
		case <-ticker.C:
			if err := p.poll(ctx, log); err != nil {
				log.Warn("feed poll failed", zap.Error(err))
			}
		}
	}
}

// poll fetches and submits one batch. Exposed to tests via Poll.
func (p *Poller) poll(ctx context.Context, log *zap.Logger) error {
	records, err := p.client.Recent(ctx)
	if err != nil {
		return err
	}

	submitted := 0
	for _, rec := range records {
		if rec.Sequence <= p.lastSeen {
			continue
		}
		category, err := ParseCategory(rec.Category)
		if err != nil {
			log.Warn("skipping malformed feed record",
				zap.Int64("feed_sequence", rec.Sequence),
				zap.Error(err))
			p.lastSeen = rec.Sequence
			continue
		}

		res, err := p.session.Submit(ctx, category, rec.Value, "feed", rec.Timestamp)
		if err != nil {
			log.Warn("outcome rejected",
				zap.Int64("feed_sequence", rec.Sequence),
				zap.Error(err))
			p.lastSeen = rec.Sequence
			continue
		}
		p.lastSeen = rec.Sequence
		submitted++

		if p.store != nil {
			if err := p.store.RecordOutcome(ctx, p.session.Key(), res.Event); err != nil {
				log.Error("persist outcome", zap.Error(err))
			}
		}
		logSubmit(log, res)
	}

	if submitted > 0 {
		log.Debug("feed batch applied", zap.Int("submitted", submitted))
	}
	return nil
}

// Poll runs a single fetch-and-submit cycle.
func (p *Poller) Poll(ctx context.Context) error {
	return p.poll(ctx, zap.L().With(zap.String("component", "ingest.poller")))
}

// LastSeen returns the highest feed sequence applied so far.
func (p *Poller) LastSeen() int64 { return p.lastSeen }

func logSubmit(log *zap.Logger, res engine.SubmitResult) {
	if res.Expired != nil {
		log.Warn("prediction expired", zap.String("prediction", res.Expired.ID))
	}
	if res.Resolved != nil {
		log.Info("prediction resolved",
			zap.String("prediction", res.Resolved.ID),
			zap.String("status", string(res.Resolved.Status)))
	}
	if res.NewSignal != nil {
		log.Info("signal emitted",
			zap.String("prediction", res.NewSignal.ID),
			zap.String("pattern", res.NewSignal.PatternID),
			zap.String("recommended", string(res.NewSignal.Recommended)),
			zap.Float64("confidence", res.NewSignal.Confidence))
	}
}
