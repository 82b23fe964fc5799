package experiment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stellarlinkco/model-eval/internal/groundtruth"
	"github.com/stellarlinkco/model-eval/internal/pricing"
)

// Metadata describes how an experiment artifact was produced.
type Metadata struct {
	ExperimentName      string        `json:"experiment_name"`
	ExperimentType      Type          `json:"experiment_type"`
	Provider            string        `json:"provider"`
	Model               string        `json:"model"`
	SystemPrompt        string        `json:"system_prompt"`
	MaxTokens           int           `json:"max_tokens"`
	Temperature         float64       `json:"temperature"`
	Timestamp           string        `json:"timestamp"`
	SimilarityThreshold float64       `json:"similarity_threshold"`
	TotalItems          int           `json:"total_items"`
	TotalUsage          pricing.Usage `json:"total_usage"`
	TotalCost           *pricing.Cost `json:"total_cost,omitempty"`
	Errors              []string      `json:"errors"`
	Interrupted         bool          `json:"interrupted,omitempty"`
}

// QAResult is one question answered against a known ground truth.
type QAResult struct {
	Query       string `json:"query"`
	GroundTruth string `json:"ground_truth"`
	Response    string `json:"response"`
}

// QueryResponse is one question answered against a raw document, with no
// ground truth available.
type QueryResponse struct {
	Query    string `json:"query"`
	Response string `json:"response"`
}

// TranscriptQAResult groups the answers produced for one raw document.
type TranscriptQAResult struct {
	Transcript string          `json:"transcript"`
	SourceFile string          `json:"source_file"`
	QAResults  []QueryResponse `json:"qa_results"`
}

// SummarizationResult carries the generated summary components for one
// document, alongside reference summaries when the dataset provides them.
type SummarizationResult struct {
	Transcript           string                 `json:"transcript"`
	SourceFile           string                 `json:"source_file"`
	GeneratedSummaries   *groundtruth.Summaries `json:"generated_summaries"`
	GroundTruthSummaries *groundtruth.Summaries `json:"groundtruth_summaries,omitempty"`
}

// Analysis holds exactly one of the result shapes, keyed the way the
// evaluator expects.
type Analysis struct {
	QAResults            []QAResult            `json:"qa_results,omitempty"`
	TranscriptQAResults  []TranscriptQAResult  `json:"transcript_qa_results,omitempty"`
	SummarizationResults []SummarizationResult `json:"summarization_results,omitempty"`
}

// Document is the complete experiment artifact.
type Document struct {
	Metadata Metadata `json:"metadata"`
	Analysis Analysis `json:"analysis"`
}

// WriteDocument persists an experiment artifact atomically: the file is
// staged in full and renamed into place, so readers never observe a
// syntactically incomplete document.
func WriteDocument(dir string, doc *Document) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("experiment: nil document")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("experiment: create output dir: %w", err)
	}

	name := SafeName(doc.Metadata.ExperimentName) + ".experiment.json"
	path := filepath.Join(dir, name)

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("experiment: marshal %q: %w", name, err)
	}

	tmp, err := os.CreateTemp(dir, ".experiment-*")
	if err != nil {
		return "", fmt.Errorf("experiment: temp file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("experiment: write %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("experiment: close %q: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("experiment: rename %q: %w", name, err)
	}
	return path, nil
}

// LoadDocument reads an experiment artifact.
func LoadDocument(path string) (*Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("experiment: read %q: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("experiment: parse %q: %w", path, err)
	}
	return &doc, nil
}
