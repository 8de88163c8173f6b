package detector

import (
	"time"

	"github.com/sells-group/signal-engine/internal/model"
)

// window builds an outcome window from category runs, assigning sequence
// numbers and values in order. Values cycle 1..14 unless the category is
// white, which gets 0.
func window(cats ...model.Category) []model.OutcomeEvent {
	events := make([]model.OutcomeEvent, len(cats))
	for i, cat := range cats {
		value := i%14 + 1
		if cat == model.CategoryWhite {
			value = 0
		} else if cat == model.CategoryRed && value > 7 {
			value -= 7
		} else if cat == model.CategoryBlack && value <= 7 {
			value += 7
		}
		events[i] = model.OutcomeEvent{
			Sequence:  int64(i + 1),
			Category:  cat,
			Value:     value,
			Timestamp: time.Unix(int64(i), 0),
		}
	}
	return events
}

// repeat returns n copies of cat.
func repeat(cat model.Category, n int) []model.Category {
	out := make([]model.Category, n)
	for i := range out {
		out[i] = cat
	}
	return out
}

// flatten concatenates category slices.
func flatten(groups ...[]model.Category) []model.Category {
	var out []model.Category
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
