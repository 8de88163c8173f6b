package engine

// applyFeedback adjusts a pattern's threshold from its rolling accuracy
// after a HIT or MISS resolution. The policy is the bounded feedback table:
//
//	accuracy > high          -> threshold - delta_down (pattern earns trust)
//	accuracy in [low, high]  -> unchanged
//	accuracy in [floor, low) -> threshold + delta_up
//	accuracy < floor         -> threshold + delta_up_strong
//
// The result is clamped to [min, max]. Nothing moves until the pattern has
// accumulated MinResolutions resolutions.
func applyFeedback(stats *patternStats, ts ThresholdSettings) {
	if stats.total < ts.MinResolutions {
		return
	}

	acc := stats.rollingAccuracy()
	threshold := stats.threshold
	switch {
	case acc > ts.HighAccuracy:
		threshold -= ts.DeltaDown
	case acc >= ts.LowAccuracy:
		// Within the comfortable band; leave it alone.
	case acc >= ts.FloorAccuracy:
		threshold += ts.DeltaUp
	default:
		threshold += ts.DeltaUpStrong
	}

	if threshold < ts.Min {
		threshold = ts.Min
	}
	if threshold > ts.Max {
		threshold = ts.Max
	}
	stats.threshold = threshold
}
