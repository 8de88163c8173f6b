package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/signal-engine/internal/model"
	"github.com/sells-group/signal-engine/internal/store"
)

func TestFormatPredictionsList(t *testing.T) {
	preds := []model.Prediction{
		{
			ID:          "a1b2c3d4-0000-0000-0000-000000000000",
			SessionKey:  "table-1",
			PatternID:   "streak",
			Recommended: model.CategoryRed,
			Confidence:  0.74,
			Status:      model.PredictionHit,
			CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			ID:          "e5f6a7b8-0000-0000-0000-000000000000",
			SessionKey:  "table-2",
			PatternID:   "dominance",
			Recommended: model.CategoryBlack,
			Confidence:  0.68,
			Status:      model.PredictionPending,
			CreatedAt:   time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	formatPredictionsList(&buf, preds)

	out := buf.String()
	assert.Contains(t, out, "a1b2c3d4")
	assert.NotContains(t, out, "a1b2c3d4-0000")
	assert.Contains(t, out, "streak")
	assert.Contains(t, out, "0.74")
	assert.Contains(t, out, "hit")
	assert.Contains(t, out, "2026-03-01 12:05")
}

func TestFormatPatternSummaries(t *testing.T) {
	summaries := []store.PatternSummary{
		{PatternID: "streak", Hits: 3, Misses: 1, Expired: 1, Pending: 0, Accuracy: 0.75},
		{PatternID: "gap", Hits: 0, Misses: 0, Expired: 0, Pending: 1, Accuracy: 0},
	}

	var buf bytes.Buffer
	formatPatternSummaries(&buf, summaries)

	out := buf.String()
	assert.Contains(t, out, "PATTERN")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "gap")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "a1b2c3d4", truncateID("a1b2c3d4-0000-0000-0000-000000000000"))
	assert.Equal(t, "short", truncateID("short"))
}
