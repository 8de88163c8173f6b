package model

import "time"

// PredictionStatus represents the lifecycle state of a prediction.
type PredictionStatus string

const (
	PredictionPending PredictionStatus = "pending"
	PredictionHit     PredictionStatus = "hit"
	PredictionMiss    PredictionStatus = "miss"
	PredictionExpired PredictionStatus = "expired"
)

// Terminal reports whether the status is a final state.
func (s PredictionStatus) Terminal() bool {
	return s == PredictionHit || s == PredictionMiss || s == PredictionExpired
}

// Prediction is the single active recommendation emitted by the arbiter for
// a session. It is created in pending state and mutated exactly once, by the
// validator, when the resolving outcome arrives or the wait times out.
type Prediction struct {
	ID          string           `json:"id"`
	SessionKey  string           `json:"session_key"`
	PatternID   string           `json:"pattern_id"`
	Recommended Category         `json:"recommended"`
	Confidence  float64          `json:"confidence"`
	Evidence    string           `json:"evidence,omitempty"`
	Status      PredictionStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty"`
	// ResolvedBy is the sequence number of the outcome that resolved the
	// prediction. Zero for pending and expired predictions.
	ResolvedBy int64 `json:"resolved_by,omitempty"`
}

// PatternPerformance holds cross-cycle accuracy statistics and the adaptive
// confidence threshold for one pattern. It survives window resets.
type PatternPerformance struct {
	PatternID string  `json:"pattern_id"`
	Correct   int     `json:"correct"`
	Total     int     `json:"total"`
	Accuracy  float64 `json:"accuracy"`
	Threshold float64 `json:"threshold"`
}
