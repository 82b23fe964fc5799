package llm

import (
	"context"

	"github.com/stellarlinkco/model-eval/internal/pricing"
)

// Provider is a single-completion text generation backend. All pipeline
// stages (ground truth generation, experiments, judging) talk to models
// through this interface.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req *Request) (*Result, error)
}

// Request describes one prompt sent to a provider. Model overrides the
// provider's configured default when set.
type Request struct {
	System      string
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Result carries the generated text plus whatever usage accounting the
// backend reports. Usage is zero-valued for backends that report none.
type Result struct {
	Text  string
	Model string
	Usage pricing.Usage
}
