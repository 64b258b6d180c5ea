// Package cost estimates the USD price of AI completions.
package cost

import "math"

// Rate is a model's price in USD per million tokens.
type Rate struct {
	Input  float64
	Output float64
}

// Calculator prices token usage with a flat rate per model. Cost is linear
// in both token counts.
type Calculator struct {
	rates    map[string]Rate
	fallback string
}

// NewCalculator creates a Calculator. Unknown models are priced at the
// fallback model's rate when fallback names a known model, else at zero.
func NewCalculator(rates map[string]Rate, fallback string) *Calculator {
	cp := make(map[string]Rate, len(rates))
	for k, v := range rates {
		cp[k] = v
	}
	return &Calculator{rates: cp, fallback: fallback}
}

// Rate returns the rate used for model and whether it was found directly.
func (c *Calculator) Rate(model string) (Rate, bool) {
	if r, ok := c.rates[model]; ok {
		return r, true
	}
	return c.rates[c.fallback], false
}

// Estimate returns the USD cost of a completion, rounded to 1e-8.
func (c *Calculator) Estimate(model string, inputTokens, outputTokens int) float64 {
	r, _ := c.Rate(model)
	usd := float64(inputTokens)/1e6*r.Input + float64(outputTokens)/1e6*r.Output
	return math.Round(usd*1e8) / 1e8
}
