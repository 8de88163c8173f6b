package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/signal-engine/internal/monitoring"
	"github.com/sells-group/signal-engine/internal/server"
	"github.com/sells-group/signal-engine/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for outcome ingestion and signal queries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		registry, err := buildRegistry()
		if err != nil {
			return err
		}
		manager := newManager(registry, store.NewRecorder(st))

		// Expire stale pending predictions even when a session's feed
		// goes quiet.
		sweep := time.Duration(cfg.Server.SweepSecs) * time.Second
		if sweep > 0 {
			go manager.RunSweeper(ctx, sweep)
		}

		collector := monitoring.NewCollector(manager, st)
		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		serverCfg := cfg.Server
		if servePort != 0 {
			serverCfg.Port = servePort
		}

		zap.L().Info("engine ready",
			zap.String("store", cfg.Store.Driver),
			zap.String("mode", cfg.Detectors.Mode),
		)
		return server.New(manager, st, collector, serverCfg).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
