package detector

import "fmt"

// boundedConfidence implements the shared confidence contract: every
// detector scores as base plus a non-negative evidence bonus, clamped to its
// configured maximum. No detector may claim near-certainty, so maximums stay
// well below 1.
func boundedConfidence(base, bonus, max float64) float64 {
	conf := base
	if bonus > 0 {
		conf += bonus
	}
	if conf > max {
		conf = max
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}

// validateConfidenceBounds checks the shared contract for a detector's
// confidence parameters.
func validateConfidenceBounds(name string, base, max float64) error {
	if base <= 0 || base > 1 {
		return fmt.Errorf("%s: base_confidence %.3f outside (0,1]", name, base)
	}
	if max < base || max > 1 {
		return fmt.Errorf("%s: max_confidence %.3f outside [base,1]", name, max)
	}
	return nil
}
