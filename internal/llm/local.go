package llm

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const defaultLocalBaseURL = "http://localhost:8000/api/v1"

// LocalProvider talks to an OpenAI-compatible local inference server
// (Lemonade, Ollama, vLLM). No API key is required; token accounting
// comes back only when the server reports it.
type LocalProvider struct {
	client *openai.Client
	model  string
}

func NewLocalProvider(baseURL string, model string) *LocalProvider {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		base = defaultLocalBaseURL
	}

	cfg := openai.DefaultConfig("unused")
	cfg.BaseURL = strings.TrimRight(base, "/")

	return &LocalProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  strings.TrimSpace(model),
	}
}

func (p *LocalProvider) Name() string {
	return "local"
}

func (p *LocalProvider) Model() string {
	if p == nil {
		return ""
	}
	return p.model
}

func (p *LocalProvider) Generate(ctx context.Context, req *Request) (*Result, error) {
	if p == nil || p.client == nil {
		return nil, errors.New("llm: local: nil client")
	}
	return chatComplete(ctx, p.client, p.model, "local", req)
}
