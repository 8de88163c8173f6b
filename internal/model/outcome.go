package model

import "time"

// Category is the discrete outcome class of a single round (e.g. "red",
// "black", "white" for the double wheel).
type Category string

const (
	CategoryRed   Category = "red"
	CategoryBlack Category = "black"
	CategoryWhite Category = "white"
)

// OutcomeEvent is one observed round result. Events are immutable once
// appended to a session's history; Sequence is assigned by the session and
// is strictly increasing.
type OutcomeEvent struct {
	Sequence  int64     `json:"sequence"`
	Category  Category  `json:"category"`
	Value     int       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

// PatternCandidate is a detector's proposal for the current cycle. It is
// transient: the arbiter either promotes one candidate to a Prediction or
// discards them all.
type PatternCandidate struct {
	PatternID   string    `json:"pattern_id"`
	Recommended Category  `json:"recommended"`
	Confidence  float64   `json:"confidence"`
	Evidence    string    `json:"evidence"`
	DetectedAt  time.Time `json:"detected_at"`
}
