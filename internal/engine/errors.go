package engine

import "errors"

// ValidationError marks a malformed outcome submission. It is returned to
// the caller synchronously; no session state is mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid outcome: " + e.Field + ": " + e.Reason
}

// IsValidation reports whether err (or any error in its chain) is a
// ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ConfigurationError marks invalid engine settings. It is raised at
// construction only; a running session never produces one.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid engine configuration: " + e.Reason
}

// IsConfiguration reports whether err (or any error in its chain) is a
// ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
