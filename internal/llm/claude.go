package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/stellarlinkco/model-eval/internal/claude"
	"github.com/stellarlinkco/model-eval/internal/pricing"
)

type ClaudeProvider struct {
	client *claude.Client
}

func NewClaudeProvider(apiKey string, baseURL string, model string) *ClaudeProvider {
	opts := make([]claude.Option, 0, 2)
	if v := strings.TrimSpace(baseURL); v != "" {
		opts = append(opts, claude.WithBaseURL(v))
	}
	if v := strings.TrimSpace(model); v != "" {
		opts = append(opts, claude.WithModel(v))
	}
	return &ClaudeProvider{
		client: claude.NewClient(strings.TrimSpace(apiKey), opts...),
	}
}

func (p *ClaudeProvider) Name() string {
	return "claude"
}

func (p *ClaudeProvider) Model() string {
	if p == nil || p.client == nil {
		return ""
	}
	return p.client.Model()
}

func (p *ClaudeProvider) Generate(ctx context.Context, req *Request) (*Result, error) {
	if p == nil || p.client == nil {
		return nil, errors.New("llm: claude: nil client")
	}
	if req == nil {
		return nil, errors.New("llm: claude: nil request")
	}

	cReq := &claude.Request{
		Model:       strings.TrimSpace(req.Model),
		Messages:    []claude.Message{{Role: "user", Content: req.Prompt}},
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Temperature: req.Temperature,
	}
	if cReq.MaxTokens <= 0 {
		cReq.MaxTokens = 4096
	}

	resp, err := p.client.Complete(ctx, cReq)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("llm: claude: nil response")
	}

	usage := pricing.Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens

	return &Result{
		Text:  resp.Text,
		Model: resp.Model,
		Usage: usage,
	}, nil
}
