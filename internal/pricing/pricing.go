// Package pricing computes the monetary cost of model calls from a per-model
// rate table.
package pricing

import "strings"

// Rate holds USD prices per million tokens.
type Rate struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// Usage mirrors the token counts reported by a provider call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Cost is the computed dollar cost of one or more calls.
type Cost struct {
	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	TotalCost  float64 `json:"total_cost"`
}

// rates is keyed by model id. Local inference models are intentionally
// absent: they have no metered cost and resolve to an unknown (nil) cost.
var rates = map[string]Rate{
	"claude-sonnet-4-5-20250929": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-sonnet-4-20250514":   {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-opus-20240229":     {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"claude-3-haiku-20240307":    {InputPerMTok: 0.25, OutputPerMTok: 1.25},
	"gpt-4o":                     {InputPerMTok: 2.50, OutputPerMTok: 10.00},
	"gpt-4o-mini":                {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	"gpt-4.1":                    {InputPerMTok: 2.00, OutputPerMTok: 8.00},
}

// For returns the rate for a model id.
func For(model string) (Rate, bool) {
	r, ok := rates[strings.TrimSpace(model)]
	return r, ok
}

// Compute returns the cost of the given usage, or nil when the model id is
// not in the rate table. An unknown model is never an error.
func Compute(model string, usage Usage) *Cost {
	r, ok := For(model)
	if !ok {
		return nil
	}
	in := float64(usage.InputTokens) / 1e6 * r.InputPerMTok
	out := float64(usage.OutputTokens) / 1e6 * r.OutputPerMTok
	return &Cost{
		InputCost:  in,
		OutputCost: out,
		TotalCost:  in + out,
	}
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// Add accumulates other into c. A nil other leaves c unchanged.
func (c *Cost) Add(other *Cost) {
	if other == nil {
		return
	}
	c.InputCost += other.InputCost
	c.OutputCost += other.OutputCost
	c.TotalCost += other.TotalCost
}
