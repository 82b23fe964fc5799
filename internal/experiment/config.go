// Package experiment runs batches of model configurations over a shared
// dataset and writes one result artifact per configuration.
package experiment

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

type Type string

const (
	TypeQA            Type = "qa"
	TypeSummarization Type = "summarization"
)

// ConfigError marks a configuration problem. Configuration errors are
// fatal: nothing runs until the config parses and validates.
type ConfigError struct {
	Path string
	Msg  string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "experiment: config error <nil>"
	}
	if e.Path != "" {
		return fmt.Sprintf("experiment: config %q: %s", e.Path, e.Msg)
	}
	return "experiment: config: " + e.Msg
}

// Config describes one model configuration in a batch.
type Config struct {
	Name         string  `json:"name"`
	Provider     string  `json:"provider"`
	LLMType      string  `json:"llm_type,omitempty"` // legacy alias for Provider
	Model        string  `json:"model"`
	Type         Type    `json:"experiment_type"`
	SystemPrompt string  `json:"system_prompt"`
	MaxTokens    int     `json:"max_tokens"`
	Temperature  float64 `json:"temperature"`
	BaseURL      string  `json:"base_url,omitempty"`
}

// ProviderName resolves the provider, honoring the legacy llm_type key.
func (c *Config) ProviderName() string {
	if v := strings.TrimSpace(c.Provider); v != "" {
		return strings.ToLower(v)
	}
	return strings.ToLower(strings.TrimSpace(c.LLMType))
}

// BackendKey identifies the backend lane a config is dispatched on.
// Configurations sharing a backend run sequentially; distinct backends
// run concurrently.
func (c *Config) BackendKey() string {
	return c.ProviderName() + "|" + strings.TrimSpace(c.BaseURL)
}

// BatchConfig is the parsed batch configuration file.
type BatchConfig struct {
	Description string   `json:"description,omitempty"`
	Experiments []Config `json:"experiments"`
}

// LoadConfig parses and validates a batch configuration file.
func LoadConfig(path string) (*BatchConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Msg: err.Error()}
	}

	var cfg BatchConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, &ConfigError{Path: path, Msg: "parse: " + err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		if ce, ok := err.(*ConfigError); ok {
			ce.Path = path
		}
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every experiment entry. The first problem found is
// returned; a batch with any invalid entry runs nothing.
func (b *BatchConfig) Validate() error {
	if b == nil {
		return &ConfigError{Msg: "nil config"}
	}
	if len(b.Experiments) == 0 {
		return &ConfigError{Msg: "no experiments defined"}
	}

	seen := make(map[string]bool, len(b.Experiments))
	for i, exp := range b.Experiments {
		name := strings.TrimSpace(exp.Name)
		if name == "" {
			return &ConfigError{Msg: fmt.Sprintf("experiment %d: missing name", i)}
		}
		if seen[name] {
			return &ConfigError{Msg: fmt.Sprintf("experiment %d: duplicate name %q", i, name)}
		}
		seen[name] = true

		if exp.ProviderName() == "" {
			return &ConfigError{Msg: fmt.Sprintf("experiment %q: missing provider", name)}
		}
		if strings.TrimSpace(exp.Model) == "" {
			return &ConfigError{Msg: fmt.Sprintf("experiment %q: missing model", name)}
		}
		switch exp.Type {
		case TypeQA, TypeSummarization:
		default:
			return &ConfigError{Msg: fmt.Sprintf("experiment %q: unsupported experiment_type %q", name, exp.Type)}
		}
		if exp.MaxTokens < 0 {
			return &ConfigError{Msg: fmt.Sprintf("experiment %q: negative max_tokens", name)}
		}
		if exp.Temperature < 0 || exp.Temperature > 2 {
			return &ConfigError{Msg: fmt.Sprintf("experiment %q: temperature out of range", name)}
		}
	}
	return nil
}

// SafeName converts an experiment name into a filesystem-safe base name.
func SafeName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			sb.WriteRune(r)
		}
	}
	out := strings.TrimRight(sb.String(), " ")
	return strings.ReplaceAll(out, " ", "_")
}
