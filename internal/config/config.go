package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Paths      PathsConfig      `yaml:"paths"`
	Storage    StorageConfig    `yaml:"storage"`
}

type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider,omitempty"`
	Providers       map[string]ProviderConfig `yaml:"providers,omitempty"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

type EvaluationConfig struct {
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	JudgeRetries        int           `yaml:"judge_retries,omitempty"`
	Concurrency         int           `yaml:"concurrency,omitempty"`
	Timeout             time.Duration `yaml:"timeout,omitempty"`
}

// PathsConfig locates the artifact directories shared by the pipeline
// stages and the visualization service.
type PathsConfig struct {
	GroundTruthDir string `yaml:"groundtruth_dir,omitempty"`
	ExperimentsDir string `yaml:"experiments_dir,omitempty"`
	EvaluationsDir string `yaml:"evaluations_dir,omitempty"`
	TestDataDir    string `yaml:"testdata_dir,omitempty"`
	ReportsDir     string `yaml:"reports_dir,omitempty"`
}

type StorageConfig struct {
	Type string `yaml:"type,omitempty"` // "sqlite" or "memory"
	Path string `yaml:"path,omitempty"` // SQLite file path
}

func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// Default returns a usable configuration when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = make(map[string]ProviderConfig)
	}
	if strings.TrimSpace(cfg.LLM.DefaultProvider) == "" {
		cfg.LLM.DefaultProvider = "claude"
	}

	if cfg.Evaluation.SimilarityThreshold <= 0 {
		cfg.Evaluation.SimilarityThreshold = 0.7
	}
	if cfg.Evaluation.JudgeRetries <= 0 {
		cfg.Evaluation.JudgeRetries = 2
	}
	if cfg.Evaluation.Concurrency <= 0 {
		cfg.Evaluation.Concurrency = 4
	}

	if strings.TrimSpace(cfg.Paths.GroundTruthDir) == "" {
		cfg.Paths.GroundTruthDir = "output/groundtruth"
	}
	if strings.TrimSpace(cfg.Paths.ExperimentsDir) == "" {
		cfg.Paths.ExperimentsDir = "output/experiments"
	}
	if strings.TrimSpace(cfg.Paths.EvaluationsDir) == "" {
		cfg.Paths.EvaluationsDir = "output/evaluations"
	}
	if strings.TrimSpace(cfg.Paths.TestDataDir) == "" {
		cfg.Paths.TestDataDir = "output/test-data"
	}
	if strings.TrimSpace(cfg.Paths.ReportsDir) == "" {
		cfg.Paths.ReportsDir = "output/reports"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		p := cfg.LLM.Providers["claude"]
		p.APIKey = v
		cfg.LLM.Providers["claude"] = p
	} else if v := strings.TrimSpace(os.Getenv("ANTHROPIC_AUTH_TOKEN")); v != "" {
		p := cfg.LLM.Providers["claude"]
		p.APIKey = v
		cfg.LLM.Providers["claude"] = p
	}

	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		p := cfg.LLM.Providers["openai"]
		p.APIKey = v
		cfg.LLM.Providers["openai"] = p
	}

	if v := strings.TrimSpace(os.Getenv("LOCAL_LLM_BASE_URL")); v != "" {
		p := cfg.LLM.Providers["local"]
		p.BaseURL = v
		cfg.LLM.Providers["local"] = p
	}
}
