// Package config loads application configuration from config.yaml and
// SIGNAL_-prefixed environment variables, with defaults matching the tuning
// the engine shipped with.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/signal-engine/internal/engine"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Detectors  DetectorsConfig  `yaml:"detectors" mapstructure:"detectors"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the prediction audit store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins  []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	SweepSecs       int      `yaml:"sweep_secs" mapstructure:"sweep_secs"`
	ShutdownTimeout int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// EngineConfig configures per-session arbitration and threshold tuning.
// Durations are expressed in seconds to keep the YAML flat.
type EngineConfig struct {
	HistorySize        int     `yaml:"history_size" mapstructure:"history_size"`
	MinWindowSize      int     `yaml:"min_window_size" mapstructure:"min_window_size"`
	GlobalCooldownSecs int     `yaml:"global_cooldown_secs" mapstructure:"global_cooldown_secs"`
	PatternCooldownSec int     `yaml:"pattern_cooldown_secs" mapstructure:"pattern_cooldown_secs"`
	MaxWaitSecs        int     `yaml:"max_wait_secs" mapstructure:"max_wait_secs"`
	RetainContext      int     `yaml:"retain_context" mapstructure:"retain_context"`
	ThresholdInitial   float64 `yaml:"threshold_initial" mapstructure:"threshold_initial"`
	ThresholdMin       float64 `yaml:"threshold_min" mapstructure:"threshold_min"`
	ThresholdMax       float64 `yaml:"threshold_max" mapstructure:"threshold_max"`
	DeltaUp            float64 `yaml:"delta_up" mapstructure:"delta_up"`
	DeltaUpStrong      float64 `yaml:"delta_up_strong" mapstructure:"delta_up_strong"`
	DeltaDown          float64 `yaml:"delta_down" mapstructure:"delta_down"`
	HighAccuracy       float64 `yaml:"high_accuracy" mapstructure:"high_accuracy"`
	LowAccuracy        float64 `yaml:"low_accuracy" mapstructure:"low_accuracy"`
	FloorAccuracy      float64 `yaml:"floor_accuracy" mapstructure:"floor_accuracy"`
	MinResolutions     int     `yaml:"min_resolutions" mapstructure:"min_resolutions"`
	RollingWindow      int     `yaml:"rolling_window" mapstructure:"rolling_window"`
}

// DetectorsConfig selects the detector set and arbitration mode.
type DetectorsConfig struct {
	// Mode is "reversion" or "momentum".
	Mode string `yaml:"mode" mapstructure:"mode"`
	// SpecFile optionally points at a YAML detector spec; empty uses the
	// built-in defaults.
	SpecFile string `yaml:"spec_file" mapstructure:"spec_file"`
}

// IngestConfig configures the upstream outcome feed poller.
type IngestConfig struct {
	FeedURL          string  `yaml:"feed_url" mapstructure:"feed_url"`
	Session          string  `yaml:"session" mapstructure:"session"`
	PollSecs         int     `yaml:"poll_secs" mapstructure:"poll_secs"`
	RequestsPerSec   float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Retries          int     `yaml:"retries" mapstructure:"retries"`
	RetryBackoffSecs int     `yaml:"retry_backoff_secs" mapstructure:"retry_backoff_secs"`
}

// MonitoringConfig configures metrics sampling and webhook alerts.
type MonitoringConfig struct {
	WebhookURL    string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	SampleSecs    int     `yaml:"sample_secs" mapstructure:"sample_secs"`
	AlertAccuracy float64 `yaml:"alert_accuracy" mapstructure:"alert_accuracy"`
	AlertMinTotal int     `yaml:"alert_min_total" mapstructure:"alert_min_total"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SIGNAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "signal-engine.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.sweep_secs", 15)
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("engine.history_size", 120)
	v.SetDefault("engine.min_window_size", 8)
	v.SetDefault("engine.global_cooldown_secs", 180)
	v.SetDefault("engine.pattern_cooldown_secs", 60)
	v.SetDefault("engine.max_wait_secs", 300)
	v.SetDefault("engine.retain_context", 0)
	v.SetDefault("engine.threshold_initial", 0.72)
	v.SetDefault("engine.threshold_min", 0.65)
	v.SetDefault("engine.threshold_max", 0.80)
	v.SetDefault("engine.delta_up", 0.01)
	v.SetDefault("engine.delta_up_strong", 0.03)
	v.SetDefault("engine.delta_down", 0.02)
	v.SetDefault("engine.high_accuracy", 0.75)
	v.SetDefault("engine.low_accuracy", 0.60)
	v.SetDefault("engine.floor_accuracy", 0.50)
	v.SetDefault("engine.min_resolutions", 5)
	v.SetDefault("engine.rolling_window", 20)
	v.SetDefault("detectors.mode", "reversion")
	v.SetDefault("ingest.session", "default")
	v.SetDefault("ingest.poll_secs", 2)
	v.SetDefault("ingest.requests_per_sec", 1.0)
	v.SetDefault("ingest.retries", 3)
	v.SetDefault("ingest.retry_backoff_secs", 1)
	v.SetDefault("monitoring.sample_secs", 60)
	v.SetDefault("monitoring.alert_accuracy", 0.45)
	v.SetDefault("monitoring.alert_min_total", 10)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields the given run mode requires. Engine settings
// are validated separately when the session is built.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			problems = append(problems, "store.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	if c.Detectors.Mode != "reversion" && c.Detectors.Mode != "momentum" {
		problems = append(problems, "detectors.mode must be reversion or momentum")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Server.SweepSecs <= 0 {
			problems = append(problems, "server.sweep_secs must be > 0")
		}
	case "watch":
		if c.Ingest.FeedURL == "" {
			problems = append(problems, "ingest.feed_url is required")
		}
		if c.Ingest.PollSecs <= 0 {
			problems = append(problems, "ingest.poll_secs must be > 0")
		}
		if c.Ingest.RequestsPerSec <= 0 {
			problems = append(problems, "ingest.requests_per_sec must be > 0")
		}
	case "replay":
		// Replay only needs the store and detector settings.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// EngineSettings translates the flat YAML engine block into engine.Settings.
// The result is validated by engine.NewSession, not here.
func (c EngineConfig) EngineSettings() engine.Settings {
	return engine.Settings{
		HistorySize:     c.HistorySize,
		MinWindowSize:   c.MinWindowSize,
		GlobalCooldown:  time.Duration(c.GlobalCooldownSecs) * time.Second,
		PatternCooldown: time.Duration(c.PatternCooldownSec) * time.Second,
		MaxWait:         time.Duration(c.MaxWaitSecs) * time.Second,
		RetainContext:   c.RetainContext,
		Thresholds: engine.ThresholdSettings{
			Initial:        c.ThresholdInitial,
			Min:            c.ThresholdMin,
			Max:            c.ThresholdMax,
			DeltaUp:        c.DeltaUp,
			DeltaUpStrong:  c.DeltaUpStrong,
			DeltaDown:      c.DeltaDown,
			HighAccuracy:   c.HighAccuracy,
			LowAccuracy:    c.LowAccuracy,
			FloorAccuracy:  c.FloorAccuracy,
			MinResolutions: c.MinResolutions,
			RollingWindow:  c.RollingWindow,
		},
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
