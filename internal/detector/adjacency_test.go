package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signal-engine/internal/model"
)

func adjacencyWindow(values ...int) []model.OutcomeEvent {
	events := make([]model.OutcomeEvent, len(values))
	for i, v := range values {
		cat := model.CategoryBlack
		switch {
		case v == 0:
			cat = model.CategoryWhite
		case v <= 7:
			cat = model.CategoryRed
		}
		events[i] = model.OutcomeEvent{
			Sequence:  int64(i + 1),
			Category:  cat,
			Value:     v,
			Timestamp: time.Unix(int64(i), 0),
		}
	}
	return events
}

func TestAdjacency_TightClusterFires(t *testing.T) {
	d := NewAdjacency(DefaultAdjacencyParams())

	// All values within positions 3..6: mean ring distance stays far below
	// the 0.6 * 7.5 = 4.5 threshold.
	c := d.Detect(adjacencyWindow(3, 4, 5, 4, 3, 6, 5, 4, 3, 5, 4, 6, 3, 4, 5))
	require.NotNil(t, c)
	assert.Equal(t, "adjacency", c.PatternID)
	// The hot region sits in the low half of the wheel, which is red.
	assert.Equal(t, model.CategoryRed, c.Recommended)
	assert.LessOrEqual(t, c.Confidence, 0.78)
	assert.GreaterOrEqual(t, c.Confidence, 0.60)
}

func TestAdjacency_SpreadResultsDoNotFire(t *testing.T) {
	d := NewAdjacency(DefaultAdjacencyParams())

	// Alternating opposite sides of the ring: mean distance ~7.
	c := d.Detect(adjacencyWindow(0, 7, 14, 7, 0, 8, 1, 9, 2, 10, 3, 11, 4, 12, 5))
	assert.Nil(t, c)
}

func TestAdjacency_WindowTooSmall(t *testing.T) {
	d := NewAdjacency(DefaultAdjacencyParams())
	assert.Nil(t, d.Detect(adjacencyWindow(3, 4, 5)))
}

func TestAdjacency_UnknownValuesThinTheSample(t *testing.T) {
	d := NewAdjacency(DefaultAdjacencyParams())

	// A third of the window falls outside the ring; below the 3/4 coverage
	// requirement the detector abstains.
	c := d.Detect(adjacencyWindow(3, 4, 5, 99, 98, 97, 96, 95, 3, 4, 5, 94, 93, 92, 91))
	assert.Nil(t, c)
}

func TestAdjacencyParams_Validate(t *testing.T) {
	p := DefaultAdjacencyParams()
	assert.NoError(t, p.validate())

	p.Ring = []int{1, 2, 2, 3}
	assert.Error(t, p.validate())

	p = DefaultAdjacencyParams()
	p.TightnessRatio = 1.0
	assert.Error(t, p.validate())

	p = DefaultAdjacencyParams()
	p.Ring = []int{1, 2}
	assert.Error(t, p.validate())
}
