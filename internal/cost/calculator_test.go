package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() map[string]Rate {
	return map[string]Rate{
		"gemini-2.0-flash":          {Input: 0.10, Output: 0.40},
		"claude-haiku-4-5-20251001": {Input: 1.00, Output: 5.00},
	}
}

func TestEstimate(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates(), "")

	tests := []struct {
		name  string
		model string
		in    int
		out   int
		want  float64
	}{
		{name: "gemini", model: "gemini-2.0-flash", in: 1000, out: 500, want: 0.0003},
		{name: "haiku million", model: "claude-haiku-4-5-20251001", in: 1_000_000, out: 100_000, want: 1.5},
		{name: "zero tokens", model: "gemini-2.0-flash", want: 0},
		{name: "unknown model", model: "mystery", in: 1000, out: 1000, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, calc.Estimate(tt.model, tt.in, tt.out), 1e-9)
		})
	}
}

func TestEstimate_Linear(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates(), "")

	one := calc.Estimate("claude-haiku-4-5-20251001", 2000, 300)
	two := calc.Estimate("claude-haiku-4-5-20251001", 4000, 600)
	assert.InDelta(t, 2*one, two, 1e-9)
}

func TestFallback(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates(), "gemini-2.0-flash")

	r, found := calc.Rate("unlisted")
	assert.False(t, found)
	assert.Equal(t, Rate{Input: 0.10, Output: 0.40}, r)
	assert.InDelta(t, 0.0003, calc.Estimate("unlisted", 1000, 500), 1e-9)
}

func TestNewCalculator_CopiesRates(t *testing.T) {
	t.Parallel()
	rates := testRates()
	calc := NewCalculator(rates, "")
	rates["gemini-2.0-flash"] = Rate{Input: 99}

	r, ok := calc.Rate("gemini-2.0-flash")
	assert.True(t, ok)
	assert.InDelta(t, 0.10, r.Input, 1e-9)
}
