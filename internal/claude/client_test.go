package claude

import (
	"errors"
	"net"
	"testing"
	"time"
)

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("key")
	if c.baseURL != defaultBaseURL {
		t.Fatalf("baseURL=%q want %q", c.baseURL, defaultBaseURL)
	}
	if c.model != defaultModel {
		t.Fatalf("model=%q want %q", c.model, defaultModel)
	}
	if c.retryMax != defaultRetryMax {
		t.Fatalf("retryMax=%d want %d", c.retryMax, defaultRetryMax)
	}
}

func TestNewClientOptions(t *testing.T) {
	c := NewClient("key",
		WithBaseURL(" https://proxy.example/v1/ "),
		WithModel(" custom-model "),
		WithRetry(10),
		WithTimeout(5*time.Second),
	)
	if c.baseURL != "https://proxy.example/v1" {
		t.Fatalf("baseURL=%q", c.baseURL)
	}
	if c.model != "custom-model" {
		t.Fatalf("model=%q", c.model)
	}
	if c.retryMax != maxRetryMax {
		t.Fatalf("retryMax=%d want clamped %d", c.retryMax, maxRetryMax)
	}
	if c.httpClient.Timeout != 5*time.Second {
		t.Fatalf("timeout=%v", c.httpClient.Timeout)
	}
}

func TestEnsureAuthMissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "")

	c := NewClient("")
	c.apiKey = ""
	c.authToken = ""
	if err := c.ensureAuth(); err == nil {
		t.Fatalf("ensureAuth: expected error with no credentials")
	}
}

func TestAPIErrorString(t *testing.T) {
	t.Parallel()

	e := &APIError{Status: "429 Too Many Requests", Type: "rate_limit_error", Message: "slow down"}
	want := "claude: api error (429 Too Many Requests): rate_limit_error: slow down"
	if got := e.Error(); got != want {
		t.Fatalf("Error()=%q want %q", got, want)
	}

	var nilErr *APIError
	if got := nilErr.Error(); got != "claude: api error <nil>" {
		t.Fatalf("nil Error()=%q", got)
	}
}

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	if shouldRetry(nil) {
		t.Fatalf("nil error must not retry")
	}
	if !shouldRetry(&APIError{StatusCode: 529}) {
		t.Fatalf("5xx must retry")
	}
	if shouldRetry(&APIError{StatusCode: 401}) {
		t.Fatalf("auth errors must not retry")
	}
	if shouldRetry(errors.New("boom")) {
		t.Fatalf("plain errors must not retry")
	}

	var timeoutErr net.Error = &net.DNSError{IsTimeout: true}
	if !shouldRetry(timeoutErr) {
		t.Fatalf("network timeouts must retry")
	}
}

func TestRetryBackoff(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	if got := retryBackoff(base, 0); got != base {
		t.Fatalf("attempt 0: %v", got)
	}
	if got := retryBackoff(base, 2); got != 4*base {
		t.Fatalf("attempt 2: %v", got)
	}
	if got := retryBackoff(0, 2); got != 0 {
		t.Fatalf("zero base: %v", got)
	}
}

func TestSDKBaseURLStripsV1(t *testing.T) {
	t.Parallel()

	if got := sdkBaseURL("https://api.anthropic.com/v1"); got != "https://api.anthropic.com" {
		t.Fatalf("got %q", got)
	}
	if got := sdkBaseURL("https://proxy.example"); got != "https://proxy.example" {
		t.Fatalf("got %q", got)
	}
}
