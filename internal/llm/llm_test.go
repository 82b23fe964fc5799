package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stellarlinkco/model-eval/internal/config"
	"github.com/stellarlinkco/model-eval/internal/pricing"
)

type fakeProvider struct {
	name string
}

func (f *fakeProvider) Name() string  { return f.name }
func (f *fakeProvider) Model() string { return "fake-model" }
func (f *fakeProvider) Generate(ctx context.Context, req *Request) (*Result, error) {
	return &Result{Text: "ok"}, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(&fakeProvider{name: " Claude "})
	r.Register(nil)
	r.Register(&fakeProvider{name: ""})

	if _, ok := r.Get("claude"); !ok {
		t.Fatalf("lookup by normalized name failed")
	}
	if _, ok := r.Get("CLAUDE"); !ok {
		t.Fatalf("lookup must be case-insensitive")
	}
	if _, ok := r.Get("openai"); ok {
		t.Fatalf("unexpected provider")
	}
	if _, ok := r.Get(""); ok {
		t.Fatalf("empty name must not resolve")
	}
}

func TestRegistryNilSafe(t *testing.T) {
	t.Parallel()

	var r *Registry
	r.Register(&fakeProvider{name: "x"})
	if _, ok := r.Get("x"); ok {
		t.Fatalf("nil registry must not resolve providers")
	}
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.Providers = map[string]config.ProviderConfig{
		"claude": {APIKey: "k1"},
		"openai": {APIKey: "k2"},
		"local":  {BaseURL: "http://localhost:8000/api/v1", Model: "llama3.2:3b"},
	}

	r, err := NewRegistryFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewRegistryFromConfig: %v", err)
	}
	for _, name := range []string{"claude", "openai", "local"} {
		if _, ok := r.Get(name); !ok {
			t.Errorf("provider %q not registered", name)
		}
	}
}

func TestNewRegistryFromConfigUnknownProvider(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.LLM.Providers = map[string]config.ProviderConfig{
		"mystery": {APIKey: "k"},
	}
	if _, err := NewRegistryFromConfig(cfg); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestDefaultProviderFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.DefaultProvider = "openai"
	cfg.LLM.Providers = map[string]config.ProviderConfig{
		"openai": {APIKey: "k"},
	}

	p, err := DefaultProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("DefaultProviderFromConfig: %v", err)
	}
	if p.Name() != "openai" {
		t.Fatalf("name=%q", p.Name())
	}
}

func TestDefaultProviderFallsBackToOnlyProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.DefaultProvider = "claude"
	cfg.LLM.Providers = map[string]config.ProviderConfig{
		"local": {BaseURL: "http://localhost:8000/api/v1"},
	}

	p, err := DefaultProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("DefaultProviderFromConfig: %v", err)
	}
	if p.Name() != "local" {
		t.Fatalf("name=%q", p.Name())
	}
}

func TestDefaultProviderNotConfigured(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.LLM.DefaultProvider = "claude"
	cfg.LLM.Providers = map[string]config.ProviderConfig{
		"openai": {APIKey: "a"},
		"local":  {BaseURL: "http://x"},
	}
	_, err := DefaultProviderFromConfig(cfg)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "local, openai") {
		t.Fatalf("available list not sorted: %v", err)
	}
}

func newChatCompletionServer(t *testing.T, model string, onRequest func(body map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if onRequest != nil {
			onRequest(body)
		}
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"id":    "chatcmpl-1",
			"model": model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "The answer is 42."},
			}},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19},
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
}

func TestOpenAIProviderGenerate(t *testing.T) {
	var gotModel string
	srv := newChatCompletionServer(t, "gpt-4o-mini", func(body map[string]any) {
		gotModel, _ = body["model"].(string)
	})
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL+"/v1", "gpt-4o-mini")
	res, err := p.Generate(context.Background(), &Request{
		System:    "Answer briefly.",
		Prompt:    "What is six times seven?",
		MaxTokens: 64,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Text != "The answer is 42." {
		t.Errorf("text=%q", res.Text)
	}
	if gotModel != "gpt-4o-mini" {
		t.Errorf("request model=%q", gotModel)
	}
	want := pricing.Usage{InputTokens: 12, OutputTokens: 7, TotalTokens: 19}
	if res.Usage != want {
		t.Errorf("usage=%+v want %+v", res.Usage, want)
	}
}

func TestLocalProviderGenerateModelOverride(t *testing.T) {
	var gotModel string
	srv := newChatCompletionServer(t, "qwen2.5", func(body map[string]any) {
		gotModel, _ = body["model"].(string)
	})
	defer srv.Close()

	p := NewLocalProvider(srv.URL+"/api/v1", "llama3.2:3b")
	res, err := p.Generate(context.Background(), &Request{
		Prompt: "hi",
		Model:  "qwen2.5",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gotModel != "qwen2.5" {
		t.Errorf("request model=%q want override", gotModel)
	}
	if res.Model != "qwen2.5" {
		t.Errorf("result model=%q", res.Model)
	}
}

func TestLocalProviderDefaults(t *testing.T) {
	t.Parallel()

	p := NewLocalProvider("", "m")
	if p.Model() != "m" {
		t.Fatalf("model=%q", p.Model())
	}
	if _, err := p.Generate(context.Background(), nil); err == nil {
		t.Fatalf("nil request must error")
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	type verdict struct {
		Rating string `json:"rating"`
	}

	cases := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "plain", raw: `{"rating":"good"}`, want: "good"},
		{name: "fenced", raw: "```json\n{\"rating\":\"excellent\"}\n```", want: "excellent"},
		{name: "surrounding prose", raw: "Here you go:\n{\"rating\":\"fair\"}\nHope that helps.", want: "fair"},
		{name: "empty", raw: "  ", wantErr: true},
		{name: "no object", raw: "sorry, I cannot", wantErr: true},
		{name: "malformed", raw: `{"rating":}`, wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var v verdict
			err := ParseJSON(tc.raw, &v)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseJSON: %v", err)
			}
			if v.Rating != tc.want {
				t.Fatalf("rating=%q want %q", v.Rating, tc.want)
			}
		})
	}
}
