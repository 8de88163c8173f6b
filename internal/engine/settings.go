package engine

import (
	"fmt"
	"time"
)

// ThresholdSettings configures the adaptive confidence threshold controller.
// The controller is a bounded feedback loop, not a learned model; every
// constant is supplied here and nothing is embedded in the tuner.
type ThresholdSettings struct {
	// Initial is the threshold a pattern starts at before any feedback.
	Initial float64
	// Min and Max clamp the threshold after every adjustment.
	Min float64
	Max float64
	// DeltaDown is subtracted while rolling accuracy is high; DeltaUp is
	// added while it sags, and DeltaUpStrong while it collapses.
	DeltaUp       float64
	DeltaUpStrong float64
	DeltaDown     float64
	// HighAccuracy, LowAccuracy and FloorAccuracy are the band edges of the
	// feedback table.
	HighAccuracy  float64
	LowAccuracy   float64
	FloorAccuracy float64
	// MinResolutions is how many resolutions a pattern needs before the
	// tuner starts moving its threshold.
	MinResolutions int
	// RollingWindow is the number of recent resolutions accuracy is
	// computed over.
	RollingWindow int
}

// Settings configures a session. Zero values are not usable; start from
// DefaultSettings.
type Settings struct {
	// HistorySize bounds the per-session outcome buffer (K).
	HistorySize int
	// MinWindowSize is the evaluation gate: no detector runs over a smaller
	// window.
	MinWindowSize int
	// GlobalCooldown is the minimum gap between any two signals of the
	// session.
	GlobalCooldown time.Duration
	// PatternCooldown is the default per-pattern cooldown, overridable per
	// pattern id via PatternCooldowns.
	PatternCooldown  time.Duration
	PatternCooldowns map[string]time.Duration
	// MaxWait bounds how long a pending prediction waits for its resolving
	// outcome before expiring.
	MaxWait time.Duration
	// RetainContext is the number of events kept after a resolution; 0
	// keeps only the resolving event (full reset).
	RetainContext int

	Thresholds ThresholdSettings
}

// DefaultSettings mirrors the tuning the original signal feed ran with.
func DefaultSettings() Settings {
	return Settings{
		HistorySize:     120,
		MinWindowSize:   8,
		GlobalCooldown:  180 * time.Second,
		PatternCooldown: 60 * time.Second,
		MaxWait:         300 * time.Second,
		RetainContext:   0,
		Thresholds: ThresholdSettings{
			Initial:        0.72,
			Min:            0.65,
			Max:            0.80,
			DeltaUp:        0.01,
			DeltaUpStrong:  0.03,
			DeltaDown:      0.02,
			HighAccuracy:   0.75,
			LowAccuracy:    0.60,
			FloorAccuracy:  0.50,
			MinResolutions: 5,
			RollingWindow:  20,
		},
	}
}

// Validate checks the settings and returns a ConfigurationError describing
// the first violation found.
func (s Settings) Validate() error {
	if s.HistorySize < 1 {
		return &ConfigurationError{Reason: fmt.Sprintf("history_size %d < 1", s.HistorySize)}
	}
	if s.MinWindowSize < 1 || s.MinWindowSize > s.HistorySize {
		return &ConfigurationError{Reason: fmt.Sprintf("min_window_size %d outside [1,%d]", s.MinWindowSize, s.HistorySize)}
	}
	if s.GlobalCooldown < 0 {
		return &ConfigurationError{Reason: "global_cooldown is negative"}
	}
	if s.PatternCooldown < 0 {
		return &ConfigurationError{Reason: "pattern_cooldown is negative"}
	}
	for id, cd := range s.PatternCooldowns {
		if cd < 0 {
			return &ConfigurationError{Reason: fmt.Sprintf("cooldown for pattern %q is negative", id)}
		}
	}
	if s.MaxWait <= 0 {
		return &ConfigurationError{Reason: "max_wait must be positive"}
	}
	if s.RetainContext < 0 {
		return &ConfigurationError{Reason: "retain_context is negative"}
	}
	return s.Thresholds.validate()
}

func (t ThresholdSettings) validate() error {
	if t.Min > t.Max {
		return &ConfigurationError{Reason: fmt.Sprintf("threshold_min %.3f > threshold_max %.3f", t.Min, t.Max)}
	}
	if t.Min < 0 || t.Max > 1 {
		return &ConfigurationError{Reason: "threshold bounds outside [0,1]"}
	}
	if t.Initial < t.Min || t.Initial > t.Max {
		return &ConfigurationError{Reason: fmt.Sprintf("initial threshold %.3f outside [%.3f,%.3f]", t.Initial, t.Min, t.Max)}
	}
	if t.DeltaUp <= 0 || t.DeltaDown <= 0 {
		return &ConfigurationError{Reason: "threshold deltas must be positive"}
	}
	if t.DeltaUpStrong < t.DeltaUp {
		return &ConfigurationError{Reason: "delta_up_strong must be at least delta_up"}
	}
	if !(t.FloorAccuracy < t.LowAccuracy && t.LowAccuracy < t.HighAccuracy && t.HighAccuracy < 1) {
		return &ConfigurationError{Reason: "accuracy bands must satisfy floor < low < high < 1"}
	}
	if t.MinResolutions < 1 {
		return &ConfigurationError{Reason: "min_resolutions must be at least 1"}
	}
	if t.RollingWindow < 1 {
		return &ConfigurationError{Reason: "rolling_window must be at least 1"}
	}
	return nil
}

// cooldownFor returns the effective cooldown for a pattern id.
func (s Settings) cooldownFor(patternID string) time.Duration {
	if cd, ok := s.PatternCooldowns[patternID]; ok {
		return cd
	}
	return s.PatternCooldown
}
