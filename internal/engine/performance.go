package engine

import "github.com/sells-group/signal-engine/internal/model"

// patternStats is the per-pattern learning state: lifetime counters, the
// rolling resolution window the tuner reads, and the adaptive threshold.
// Expired predictions touch none of it.
type patternStats struct {
	correct   int
	total     int
	threshold float64
	recent    []bool // last RollingWindow resolutions, oldest first
}

func newPatternStats(initial float64) *patternStats {
	return &patternStats{threshold: initial}
}

// record registers a HIT or MISS resolution.
func (p *patternStats) record(hit bool, window int) {
	p.total++
	if hit {
		p.correct++
	}
	p.recent = append(p.recent, hit)
	if len(p.recent) > window {
		p.recent = p.recent[len(p.recent)-window:]
	}
}

// accuracy is the lifetime hit rate; 0 before the first resolution.
func (p *patternStats) accuracy() float64 {
	if p.total == 0 {
		return 0
	}
	return float64(p.correct) / float64(p.total)
}

// rollingAccuracy is the hit rate over the retained recent resolutions.
func (p *patternStats) rollingAccuracy() float64 {
	if len(p.recent) == 0 {
		return 0
	}
	hits := 0
	for _, h := range p.recent {
		if h {
			hits++
		}
	}
	return float64(hits) / float64(len(p.recent))
}

// snapshot renders the exported view.
func (p *patternStats) snapshot(patternID string) model.PatternPerformance {
	return model.PatternPerformance{
		PatternID: patternID,
		Correct:   p.correct,
		Total:     p.total,
		Accuracy:  p.accuracy(),
		Threshold: p.threshold,
	}
}
