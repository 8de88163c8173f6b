package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signal-engine/internal/model"
)

func TestChiSquare_FiresOnSkewedWindow(t *testing.T) {
	d := NewChiSquare(DefaultChiSquareParams(), ModeReversion)

	// 25 red / 5 black / 0 white over 30 rounds. Expected 14/14/2.
	// chi2 = 121/14 + 81/14 + 4/2 = 16.43 > 5.991 (df=2, 0.05).
	win := window(flatten(repeat(model.CategoryRed, 25), repeat(model.CategoryBlack, 5))...)
	c := d.Detect(win)
	require.NotNil(t, c)
	assert.Equal(t, "chisquare", c.PatternID)
	// Black is the most under-represented (-9 vs white's -2).
	assert.Equal(t, model.CategoryBlack, c.Recommended)
	assert.GreaterOrEqual(t, c.Confidence, 0.70)
	assert.LessOrEqual(t, c.Confidence, 0.88)
}

func TestChiSquare_MomentumRecommendsOverrepresented(t *testing.T) {
	d := NewChiSquare(DefaultChiSquareParams(), ModeMomentum)

	win := window(flatten(repeat(model.CategoryRed, 25), repeat(model.CategoryBlack, 5))...)
	c := d.Detect(win)
	require.NotNil(t, c)
	assert.Equal(t, model.CategoryRed, c.Recommended)
}

func TestChiSquare_NearExpectedDoesNotFire(t *testing.T) {
	d := NewChiSquare(DefaultChiSquareParams(), ModeReversion)

	// 14 red / 14 black / 2 white matches the expectation exactly.
	win := window(flatten(
		repeat(model.CategoryRed, 14),
		repeat(model.CategoryBlack, 14),
		repeat(model.CategoryWhite, 2),
	)...)
	assert.Nil(t, d.Detect(win))
}

func TestChiSquare_WindowTooSmall(t *testing.T) {
	d := NewChiSquare(DefaultChiSquareParams(), ModeReversion)
	assert.Nil(t, d.Detect(window(repeat(model.CategoryRed, 29)...)))
}

func TestChiSquareParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ChiSquareParams)
	}{
		{"tiny window", func(p *ChiSquareParams) { p.Window = 10 }},
		{"one category", func(p *ChiSquareParams) {
			p.Expected = map[model.Category]float64{model.CategoryRed: 1}
		}},
		{"probabilities do not sum to 1", func(p *ChiSquareParams) {
			p.Expected = map[model.Category]float64{
				model.CategoryRed:   0.5,
				model.CategoryBlack: 0.3,
			}
		}},
		{"unsupported significance", func(p *ChiSquareParams) { p.Significance = 0.20 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultChiSquareParams()
			tt.mutate(&p)
			assert.Error(t, p.validate())
		})
	}
	assert.NoError(t, DefaultChiSquareParams().validate())
}

func TestCriticalValue(t *testing.T) {
	v, ok := criticalValue(0.05, 2)
	require.True(t, ok)
	assert.InDelta(t, 5.991, v, 1e-9)

	_, ok = criticalValue(0.05, 11)
	assert.False(t, ok)
	_, ok = criticalValue(0.025, 2)
	assert.False(t, ok)
}
