package pricing

import (
	"math"
	"testing"
)

func TestComputeKnownModel(t *testing.T) {
	t.Parallel()

	cost := Compute("gpt-4o", Usage{InputTokens: 1_000_000, OutputTokens: 500_000})
	if cost == nil {
		t.Fatalf("Compute returned nil for known model")
	}
	if math.Abs(cost.InputCost-2.50) > 1e-9 {
		t.Errorf("input cost=%v want 2.50", cost.InputCost)
	}
	if math.Abs(cost.OutputCost-5.00) > 1e-9 {
		t.Errorf("output cost=%v want 5.00", cost.OutputCost)
	}
	if math.Abs(cost.TotalCost-7.50) > 1e-9 {
		t.Errorf("total cost=%v want 7.50", cost.TotalCost)
	}
}

func TestComputeUnknownModel(t *testing.T) {
	t.Parallel()

	if cost := Compute("llama3.2:3b", Usage{InputTokens: 100}); cost != nil {
		t.Fatalf("unknown model must yield nil cost, got %+v", cost)
	}
}

func TestUsageAdd(t *testing.T) {
	t.Parallel()

	u := Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3}
	u.Add(Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30})
	if u.InputTokens != 11 || u.OutputTokens != 22 || u.TotalTokens != 33 {
		t.Fatalf("got %+v", u)
	}
}

func TestCostAddNil(t *testing.T) {
	t.Parallel()

	c := Cost{TotalCost: 1}
	c.Add(nil)
	if c.TotalCost != 1 {
		t.Fatalf("nil add mutated cost: %+v", c)
	}
	c.Add(&Cost{InputCost: 0.5, OutputCost: 0.25, TotalCost: 0.75})
	if math.Abs(c.TotalCost-1.75) > 1e-9 {
		t.Fatalf("total=%v want 1.75", c.TotalCost)
	}
}
