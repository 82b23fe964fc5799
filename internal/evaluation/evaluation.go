// Package evaluation scores experiment artifacts against their ground
// truth, combining lexical similarity with an LLM judge.
package evaluation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stellarlinkco/model-eval/internal/pricing"
)

// Rating is one judged criterion.
type Rating struct {
	Rating      string `json:"rating"`
	Explanation string `json:"explanation"`
}

// Qualitative is the judge's per-item verdict.
type Qualitative struct {
	Correctness  Rating `json:"correctness"`
	Completeness Rating `json:"completeness"`
	Conciseness  Rating `json:"conciseness"`
	Relevance    Rating `json:"relevance"`
}

// ItemEval is the evaluation of a single experiment item. Qualitative is
// nil when the judge was unavailable for this item; the item then counts
// on similarity alone.
type ItemEval struct {
	Query       string       `json:"query,omitempty"`
	Component   string       `json:"component,omitempty"`
	GroundTruth string       `json:"ground_truth"`
	Response    string       `json:"response"`
	Similarity  float64      `json:"similarity"`
	Threshold   float64      `json:"threshold"`
	Pass        bool         `json:"pass"`
	Qualitative *Qualitative `json:"qualitative,omitempty"`
	JudgeError  string       `json:"judge_error,omitempty"`
}

// Metrics aggregates an evaluation run.
type Metrics struct {
	NumItems       int            `json:"num_items"`
	NumPassed      int            `json:"num_passed"`
	NumFailed      int            `json:"num_failed"`
	PassRate       float64        `json:"pass_rate"`
	QualityScore   float64        `json:"quality_score"`
	QualityRating  string         `json:"quality_rating"`
	MeanSimilarity float64        `json:"mean_similarity"`
	MinSimilarity  float64        `json:"min_similarity"`
	MaxSimilarity  float64        `json:"max_similarity"`
	RatingCounts   map[string]int `json:"rating_counts,omitempty"`
	JudgedItems    int            `json:"judged_items"`
}

// Summary carries the aggregate metrics plus the judge's free-text
// overall assessment.
type Summary struct {
	Metrics         Metrics  `json:"metrics"`
	OverallAnalysis string   `json:"overall_analysis,omitempty"`
	Strengths       []string `json:"strengths,omitempty"`
	Weaknesses      []string `json:"weaknesses,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Metadata records provenance for an evaluation artifact.
type Metadata struct {
	ExperimentFile      string        `json:"experiment_file"`
	GroundTruthFile     string        `json:"groundtruth_file,omitempty"`
	ExperimentName      string        `json:"experiment_name"`
	ExperimentType      string        `json:"experiment_type"`
	Model               string        `json:"model"`
	Provider            string        `json:"provider"`
	JudgeModel          string        `json:"judge_model,omitempty"`
	Timestamp           string        `json:"timestamp"`
	SimilarityThreshold float64       `json:"similarity_threshold"`
	JudgeUsage          pricing.Usage `json:"judge_usage"`
	JudgeCost           *pricing.Cost `json:"judge_cost,omitempty"`
}

// Document is the complete evaluation artifact.
type Document struct {
	Metadata Metadata   `json:"metadata"`
	Items    []ItemEval `json:"items"`
	Summary  Summary    `json:"summary"`
}

// Criterion weights for the composite quality score. Correctness and
// completeness dominate.
var criterionWeights = []struct {
	name   string
	weight float64
	get    func(*Qualitative) string
}{
	{"correctness", 0.4, func(q *Qualitative) string { return q.Correctness.Rating }},
	{"completeness", 0.3, func(q *Qualitative) string { return q.Completeness.Rating }},
	{"conciseness", 0.15, func(q *Qualitative) string { return q.Conciseness.Rating }},
	{"relevance", 0.15, func(q *Qualitative) string { return q.Relevance.Rating }},
}

var ratingScores = map[string]float64{
	"excellent": 4,
	"good":      3,
	"fair":      2,
	"poor":      1,
}

// CompositeScore reduces a qualitative verdict to the legacy 1-4 scale
// using the criterion weights. Unknown ratings score as poor.
func CompositeScore(q *Qualitative) float64 {
	if q == nil {
		return 0
	}
	var total, weights float64
	for _, c := range criterionWeights {
		score, ok := ratingScores[strings.ToLower(strings.TrimSpace(c.get(q)))]
		if !ok {
			score = 1
		}
		total += score * c.weight
		weights += c.weight
	}
	if weights == 0 {
		return 0
	}
	return total / weights
}

// NormalizeQuality maps a quality score onto the 0-100 scale. Scores at
// or below 4 are treated as legacy 1-4 scale values and stretched with
// (s-1)/3*100; anything above 4 is assumed to already be a percentage.
// A true percentage of 4 or less is indistinguishable from a legacy
// score and gets stretched too.
func NormalizeQuality(score float64) float64 {
	if score <= 4 {
		pct := (score - 1) / 3 * 100
		if pct < 0 {
			pct = 0
		}
		return pct
	}
	if score > 100 {
		return 100
	}
	return score
}

// ClassifyQuality buckets a 0-100 quality score.
func ClassifyQuality(pct float64) string {
	switch {
	case pct < 34:
		return "Poor"
	case pct < 67:
		return "Fair"
	case pct < 85:
		return "Good"
	default:
		return "Excellent"
	}
}

// WriteDocument persists an evaluation artifact atomically.
func WriteDocument(path string, doc *Document) error {
	if doc == nil {
		return fmt.Errorf("evaluation: nil document")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("evaluation: create output dir: %w", err)
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("evaluation: marshal %q: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".eval-*")
	if err != nil {
		return fmt.Errorf("evaluation: temp file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("evaluation: write %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("evaluation: close %q: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("evaluation: rename %q: %w", path, err)
	}
	return nil
}

// LoadDocument reads an evaluation artifact.
func LoadDocument(path string) (*Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("evaluation: read %q: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("evaluation: parse %q: %w", path, err)
	}
	return &doc, nil
}
