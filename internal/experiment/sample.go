package experiment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stellarlinkco/model-eval/internal/groundtruth"
)

// SampleConfig returns a starter batch covering both experiment types and
// both hosted and local backends.
func SampleConfig() *BatchConfig {
	return &BatchConfig{
		Description: "Batch experiment configuration for transcript evaluation (both Q&A and summarization)",
		Experiments: []Config{
			{
				Name:         "Claude-Sonnet-QA-Standard",
				Provider:     "claude",
				Model:        "claude-sonnet-4-20250514",
				Type:         TypeQA,
				SystemPrompt: "You are a helpful assistant that answers questions about meeting transcripts. Provide accurate, concise answers based on the transcript content.",
				MaxTokens:    512,
				Temperature:  0.1,
			},
			{
				Name:         "Claude-Sonnet-Summarization-Standard",
				Provider:     "claude",
				Model:        "claude-sonnet-4-20250514",
				Type:         TypeSummarization,
				SystemPrompt: "You are an expert meeting analyst. Analyze the transcript carefully and provide clear, accurate information based on the content.",
				MaxTokens:    512,
				Temperature:  0.1,
			},
			{
				Name:         "Claude-Sonnet-QA-Detailed",
				Provider:     "claude",
				Model:        "claude-sonnet-4-20250514",
				Type:         TypeQA,
				SystemPrompt: "You are an expert meeting analyst. Provide comprehensive, detailed answers about meeting transcripts including context, participants, and implications. Be thorough and precise.",
				MaxTokens:    1024,
				Temperature:  0.2,
			},
			{
				Name:         "Local-Llama-QA-Standard",
				Provider:     "local",
				Model:        "llama3.2:3b",
				Type:         TypeQA,
				SystemPrompt: "Answer questions about meeting transcripts clearly and accurately. Focus on the key information requested.",
				MaxTokens:    512,
				Temperature:  0.1,
				BaseURL:      "http://127.0.0.1:8000/api/v1",
			},
			{
				Name:         "Local-Llama-Summarization-Creative",
				Provider:     "local",
				Model:        "llama3.2:3b",
				Type:         TypeSummarization,
				SystemPrompt: "You are a creative meeting analyst. Analyze the transcript thoughtfully and provide insightful information that captures key insights and implications.",
				MaxTokens:    512,
				Temperature:  0.7,
				BaseURL:      "http://127.0.0.1:8000/api/v1",
			},
		},
	}
}

// ConfigFromGroundTruth derives a batch from the metadata of an existing
// ground-truth record: the original model/prompt plus model and
// temperature variations against the same prompt.
func ConfigFromGroundTruth(groundTruthPath string) (*BatchConfig, error) {
	rec, err := groundtruth.Load(groundTruthPath)
	if err != nil {
		return nil, err
	}

	useCase := rec.Metadata.UseCase
	expType := TypeQA
	if useCase == groundtruth.UseCaseSummarization {
		expType = TypeSummarization
	}

	model := strings.TrimSpace(rec.Metadata.Model)
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	prompt := strings.TrimSpace(rec.Metadata.SystemPrompt)
	if prompt == "" {
		switch expType {
		case TypeQA:
			prompt = "You are an expert meeting analyst. Answer questions about the transcript accurately and concisely based only on the provided information."
		default:
			prompt = "You are an expert meeting analyst. Create a concise summary of the transcript including key topics, decisions, and action items."
		}
	}

	maxTokens := rec.Metadata.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
		if expType == TypeSummarization {
			maxTokens = 1024
		}
	}
	temperature := rec.Metadata.Temperature

	baseName := strings.TrimPrefix(model, "claude-")
	experiments := []Config{{
		Name:         baseName + "-Original",
		Provider:     "claude",
		Model:        model,
		Type:         expType,
		SystemPrompt: prompt,
		MaxTokens:    maxTokens,
		Temperature:  temperature,
	}}

	variants := []struct {
		model string
		label string
	}{
		{"claude-3-haiku-20240307", "Haiku"},
		{"claude-3-opus-20240229", "Opus"},
		{"claude-sonnet-4-20250514", "Sonnet-4"},
	}
	for _, v := range variants {
		if v.model == model {
			continue
		}
		experiments = append(experiments, Config{
			Name:         "Claude-" + v.label + "-Same-Prompt",
			Provider:     "claude",
			Model:        v.model,
			Type:         expType,
			SystemPrompt: prompt,
			MaxTokens:    maxTokens,
			Temperature:  temperature,
		})
	}

	if temperature != 0 {
		creative := temperature + 0.3
		if creative > 0.7 {
			creative = 0.7
		}
		experiments = append(experiments,
			Config{
				Name:         baseName + "-Creative",
				Provider:     "claude",
				Model:        model,
				Type:         expType,
				SystemPrompt: prompt,
				MaxTokens:    maxTokens,
				Temperature:  creative,
			},
			Config{
				Name:         baseName + "-Deterministic",
				Provider:     "claude",
				Model:        model,
				Type:         expType,
				SystemPrompt: prompt,
				MaxTokens:    maxTokens,
				Temperature:  0,
			},
		)
	}

	base := filepath.Base(groundTruthPath)
	return &BatchConfig{
		Description: "Configuration generated from ground-truth metadata: " + strings.TrimSuffix(base, filepath.Ext(base)),
		Experiments: experiments,
	}, nil
}

// WriteConfig saves a batch configuration as indented JSON.
func WriteConfig(path string, cfg *BatchConfig) error {
	if cfg == nil {
		return &ConfigError{Path: path, Msg: "nil config"}
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("experiment: marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("experiment: create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("experiment: write config: %w", err)
	}
	return nil
}
