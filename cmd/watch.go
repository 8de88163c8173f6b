package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/signal-engine/internal/engine"
	"github.com/sells-group/signal-engine/internal/ingest"
	"github.com/sells-group/signal-engine/internal/resilience"
	"github.com/sells-group/signal-engine/internal/store"
)

var (
	watchSession string
	watchNoStore bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the upstream outcome feed and drive a live session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("watch"); err != nil {
			return err
		}

		key := watchSession
		if key == "" {
			key = cfg.Ingest.Session
		}

		var st store.Store
		if !watchNoStore {
			var err error
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
		}

		registry, err := buildRegistry()
		if err != nil {
			return err
		}
		manager := newManager(registry, recorderFor(st))
		session, err := manager.GetOrCreate(key)
		if err != nil {
			return err
		}

		// A quiet or broken feed must not leave a prediction pending past
		// its wait budget; only the sweeper expires it without a new
		// outcome arriving.
		sweep := time.Duration(cfg.Server.SweepSecs) * time.Second
		if sweep > 0 {
			go manager.RunSweeper(ctx, sweep)
		}

		breakerCfg := resilience.DefaultCircuitBreakerConfig()
		breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("feed circuit state changed",
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
		client := ingest.NewClient(cfg.Ingest.FeedURL, ingest.ClientOptions{
			RequestsPerSec: cfg.Ingest.RequestsPerSec,
			Retry:          resilience.FromConfig(cfg.Ingest.Retries, cfg.Ingest.RetryBackoffSecs*1000),
			Breaker:        resilience.NewCircuitBreaker(breakerCfg),
		})

		zap.L().Info("watching feed",
			zap.String("feed", cfg.Ingest.FeedURL),
			zap.String("session", key),
		)
		poller := ingest.NewPoller(client, session, st, time.Duration(cfg.Ingest.PollSecs)*time.Second)
		poller.Run(ctx)
		return nil
	},
}

// recorderFor returns nil hooks (not a typed nil) when persistence is off.
func recorderFor(st store.Store) engine.Hooks {
	if st == nil {
		return nil
	}
	return store.NewRecorder(st)
}

func init() {
	watchCmd.Flags().StringVar(&watchSession, "session", "", "session key (default from config)")
	watchCmd.Flags().BoolVar(&watchNoStore, "no-store", false, "disable prediction persistence")
	rootCmd.AddCommand(watchCmd)
}
