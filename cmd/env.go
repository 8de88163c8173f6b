package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/signal-engine/internal/detector"
	"github.com/sells-group/signal-engine/internal/engine"
	"github.com/sells-group/signal-engine/internal/store"
)

// initStore opens the configured audit store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "signal-engine.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// buildRegistry constructs the detector registry from config: the spec file
// when one is set, otherwise the stock detector set.
func buildRegistry() (*detector.Registry, error) {
	specs := detector.DefaultSpecs()
	if cfg.Detectors.SpecFile != "" {
		loaded, err := detector.LoadSpecs(cfg.Detectors.SpecFile)
		if err != nil {
			return nil, err
		}
		specs = loaded
	}
	return detector.Build(specs, detector.DoubleSpace(), detector.Mode(cfg.Detectors.Mode))
}

// newManager builds the session manager. Every session shares the detector
// registry and engine settings; hooks are optional.
func newManager(registry *detector.Registry, hooks engine.Hooks) *engine.Manager {
	settings := cfg.Engine.EngineSettings()
	return engine.NewManager(func(key string) (*engine.Session, error) {
		opts := []engine.Option{}
		if hooks != nil {
			opts = append(opts, engine.WithHooks(hooks))
		}
		return engine.NewSession(key, settings, detector.DoubleSpace(), registry, opts...)
	})
}
