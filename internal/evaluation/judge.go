package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stellarlinkco/model-eval/internal/llm"
	"github.com/stellarlinkco/model-eval/internal/pricing"
)

const judgeMaxTokens = 1024

// judgeRetryDelay is a var so tests can drop the backoff.
var judgeRetryDelay = time.Second

// Judge drives an LLM to rate responses. Retries bounded by Retries; a
// verdict that still fails after retries is reported as an error and the
// caller degrades the item to quantitative-only.
type Judge struct {
	provider llm.Provider
	Retries  int
}

func NewJudge(provider llm.Provider, retries int) *Judge {
	if retries < 0 {
		retries = 0
	}
	return &Judge{provider: provider, Retries: retries}
}

func (j *Judge) Model() string {
	if j == nil || j.provider == nil {
		return ""
	}
	return j.provider.Model()
}

const itemPromptFormat = `Analyze this test result from a model evaluation run and provide detailed insights.

Query: %s
Ground Truth: %s
System Response: %s
Similarity Score: %.3f

Evaluate the response on these criteria, providing both a rating (excellent/good/fair/poor) and detailed explanation:
1. Correctness: Is it factually correct compared to ground truth?
2. Completeness: Does it fully answer the question?
3. Conciseness: Is it appropriately brief while maintaining accuracy?
4. Relevance: Does it directly address the query?

Return your analysis in this exact JSON format:
{
    "correctness": {"rating": "one of: excellent/good/fair/poor", "explanation": "analysis of factual correctness"},
    "completeness": {"rating": "one of: excellent/good/fair/poor", "explanation": "analysis of answer completeness"},
    "conciseness": {"rating": "one of: excellent/good/fair/poor", "explanation": "analysis of brevity and clarity"},
    "relevance": {"rating": "one of: excellent/good/fair/poor", "explanation": "analysis of how well it addresses the query"}
}`

// JudgeItem rates one item. Malformed output and transport errors both
// count against the retry budget.
func (j *Judge) JudgeItem(ctx context.Context, item *ItemEval) (*Qualitative, pricing.Usage, error) {
	if j == nil || j.provider == nil {
		return nil, pricing.Usage{}, errors.New("evaluation: nil judge")
	}
	if item == nil {
		return nil, pricing.Usage{}, errors.New("evaluation: nil item")
	}

	prompt := fmt.Sprintf(itemPromptFormat, item.Query, item.GroundTruth, item.Response, item.Similarity)

	var total pricing.Usage
	var lastErr error
	for attempt := 0; attempt <= j.Retries; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, judgeRetryDelay); err != nil {
				return nil, total, err
			}
		}

		res, err := j.provider.Generate(ctx, &llm.Request{
			Prompt:    prompt,
			MaxTokens: judgeMaxTokens,
		})
		if res != nil {
			total.Add(res.Usage)
		}
		if err != nil {
			lastErr = err
			continue
		}
		if res == nil {
			lastErr = errors.New("evaluation: nil judge result")
			continue
		}

		var verdict Qualitative
		if err := llm.ParseJSON(res.Text, &verdict); err != nil {
			lastErr = fmt.Errorf("evaluation: parse verdict: %w", err)
			continue
		}
		if err := validateVerdict(&verdict); err != nil {
			lastErr = err
			continue
		}
		return &verdict, total, nil
	}

	return nil, total, fmt.Errorf("evaluation: judge failed after %d attempts: %w", j.Retries+1, lastErr)
}

func validateVerdict(q *Qualitative) error {
	for _, c := range criterionWeights {
		rating := strings.ToLower(strings.TrimSpace(c.get(q)))
		if _, ok := ratingScores[rating]; !ok {
			return fmt.Errorf("evaluation: invalid %s rating %q", c.name, rating)
		}
	}
	return nil
}

const overallPromptFormat = `Review these model evaluation results and provide an overall analysis.

Number of items: %d
Similarity threshold: %.3f
Number passed threshold: %d
Pass rate: %.3f
Quality score (0-100): %.1f
Mean similarity: %.3f

Provide a comprehensive analysis including overall assessment, strengths, weaknesses, and recommendations.

Return your analysis in this exact JSON format:
{
    "overall_analysis": "general assessment",
    "strengths": ["strength 1", "strength 2"],
    "weaknesses": ["weakness 1", "weakness 2"],
    "recommendations": ["recommendation 1", "recommendation 2"]
}`

type overallVerdict struct {
	OverallAnalysis string   `json:"overall_analysis"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendations []string `json:"recommendations"`
}

// JudgeOverall produces the free-text summary assessment. On failure the
// caller substitutes degraded text; evaluation never aborts over it.
func (j *Judge) JudgeOverall(ctx context.Context, m *Metrics, threshold float64) (*overallVerdict, pricing.Usage, error) {
	if j == nil || j.provider == nil {
		return nil, pricing.Usage{}, errors.New("evaluation: nil judge")
	}
	if m == nil {
		return nil, pricing.Usage{}, errors.New("evaluation: nil metrics")
	}

	prompt := fmt.Sprintf(overallPromptFormat,
		m.NumItems, threshold, m.NumPassed, m.PassRate, m.QualityScore, m.MeanSimilarity)

	var total pricing.Usage
	var lastErr error
	for attempt := 0; attempt <= j.Retries; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, judgeRetryDelay); err != nil {
				return nil, total, err
			}
		}

		res, err := j.provider.Generate(ctx, &llm.Request{
			Prompt:    prompt,
			MaxTokens: judgeMaxTokens,
		})
		if res != nil {
			total.Add(res.Usage)
		}
		if err != nil {
			lastErr = err
			continue
		}

		var verdict overallVerdict
		if err := llm.ParseJSON(res.Text, &verdict); err != nil {
			lastErr = fmt.Errorf("evaluation: parse overall verdict: %w", err)
			continue
		}
		return &verdict, total, nil
	}

	return nil, total, fmt.Errorf("evaluation: overall judge failed after %d attempts: %w", j.Retries+1, lastErr)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
