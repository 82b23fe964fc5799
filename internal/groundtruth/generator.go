package groundtruth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/stellarlinkco/model-eval/internal/llm"
	"github.com/stellarlinkco/model-eval/internal/pricing"
)

const (
	defaultNumQuestions = 5
	defaultMaxTokens    = 2048
	defaultThreshold    = 0.7

	timestampLayout = "2006-01-02 15:04:05"
)

// Generator drives a provider to produce reference content from source
// document text.
type Generator struct {
	provider llm.Provider

	NumQuestions        int
	MaxTokens           int
	Temperature         float64
	SimilarityThreshold float64
}

func NewGenerator(provider llm.Provider) *Generator {
	return &Generator{
		provider:            provider,
		NumQuestions:        defaultNumQuestions,
		MaxTokens:           defaultMaxTokens,
		SimilarityThreshold: defaultThreshold,
	}
}

// now is a seam for tests.
var now = time.Now

// GenerateFile reads the source document and generates a record for it.
func (g *Generator) GenerateFile(ctx context.Context, sourcePath string, useCase UseCase) (*Record, error) {
	b, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("groundtruth: read source %q: %w", sourcePath, err)
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return nil, fmt.Errorf("groundtruth: empty source file %q", sourcePath)
	}
	return g.Generate(ctx, sourcePath, text, useCase)
}

// Generate produces a record from already loaded document text.
func (g *Generator) Generate(ctx context.Context, sourcePath, text string, useCase UseCase) (*Record, error) {
	if g == nil || g.provider == nil {
		return nil, errors.New("groundtruth: nil generator")
	}
	if !useCase.Valid() {
		return nil, fmt.Errorf("groundtruth: invalid use case %q", useCase)
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("groundtruth: empty document text")
	}

	rec := &Record{
		Metadata: Metadata{
			SourceFile:          sourcePath,
			UseCase:             useCase,
			Model:               g.provider.Model(),
			MaxTokens:           g.maxTokens(),
			Temperature:         g.Temperature,
			Timestamp:           now().Format(timestampLayout),
			SimilarityThreshold: g.threshold(),
		},
	}

	var usage pricing.Usage
	switch useCase {
	case UseCaseQA:
		pairs, u, err := g.generateQA(ctx, text)
		if err != nil {
			return nil, err
		}
		rec.Analysis.QAPairs = pairs
		usage = u
	case UseCaseSummarization:
		summaries, u, err := g.generateSummaries(ctx, text)
		if err != nil {
			return nil, err
		}
		rec.Analysis.Summaries = summaries
		usage = u
	case UseCaseEmail:
		email, u, err := g.generateEmail(ctx, text)
		if err != nil {
			return nil, err
		}
		rec.Analysis.Email = email
		usage = u
	}

	rec.Metadata.Usage = usage
	rec.Metadata.Cost = pricing.Compute(rec.Metadata.Model, usage)
	return rec, nil
}

func (g *Generator) generateQA(ctx context.Context, text string) ([]QAPair, pricing.Usage, error) {
	n := g.NumQuestions
	if n <= 0 {
		n = defaultNumQuestions
	}

	prompt := fmt.Sprintf(`Read the following document and produce %d question/answer pairs that test comprehension of its key content. Answers must be grounded strictly in the document.

Document:
%s

Return your output in this exact JSON format:
{
  "qa_pairs": [
    {"query": "the question", "response": "the reference answer"}
  ]
}`, n, text)

	res, err := g.call(ctx, prompt)
	if err != nil {
		return nil, pricing.Usage{}, err
	}

	var parsed struct {
		QAPairs []QAPair `json:"qa_pairs"`
	}
	if err := llm.ParseJSON(res.Text, &parsed); err != nil {
		return nil, res.Usage, fmt.Errorf("groundtruth: parse qa output: %w", err)
	}
	if len(parsed.QAPairs) == 0 {
		return nil, res.Usage, errors.New("groundtruth: no qa pairs generated")
	}
	return parsed.QAPairs, res.Usage, nil
}

// summaryComponents enumerates the independent generation calls a
// summarization record is built from, in output order.
var summaryComponents = []struct {
	key    string
	prompt string
	list   bool
}{
	{"executive_summary", "Write a 2-3 sentence executive summary of this document.", false},
	{"detailed_summary", "Write a detailed summary of this document covering all substantive points.", false},
	{"action_items", "List the action items from this document, including owners where stated.", true},
	{"key_decisions", "List the decisions recorded in this document.", true},
	{"participants", "List the participants mentioned in this document.", true},
	{"topics_discussed", "List the main topics discussed in this document.", true},
}

func (g *Generator) generateSummaries(ctx context.Context, text string) (*Summaries, pricing.Usage, error) {
	var total pricing.Usage
	out := &Summaries{}

	for _, comp := range summaryComponents {
		format := `{"result": "the text"}`
		if comp.list {
			format = `{"result": ["item 1", "item 2"]}`
		}
		prompt := fmt.Sprintf(`%s

Document:
%s

Return your output in this exact JSON format:
%s`, comp.prompt, text, format)

		res, err := g.call(ctx, prompt)
		if err != nil {
			return nil, total, fmt.Errorf("groundtruth: %s: %w", comp.key, err)
		}
		total.Add(res.Usage)

		if comp.list {
			var parsed struct {
				Result []string `json:"result"`
			}
			if err := llm.ParseJSON(res.Text, &parsed); err != nil {
				return nil, total, fmt.Errorf("groundtruth: parse %s: %w", comp.key, err)
			}
			switch comp.key {
			case "action_items":
				out.ActionItems = parsed.Result
			case "key_decisions":
				out.KeyDecisions = parsed.Result
			case "participants":
				out.Participants = parsed.Result
			case "topics_discussed":
				out.TopicsDiscussed = parsed.Result
			}
			continue
		}

		var parsed struct {
			Result string `json:"result"`
		}
		if err := llm.ParseJSON(res.Text, &parsed); err != nil {
			return nil, total, fmt.Errorf("groundtruth: parse %s: %w", comp.key, err)
		}
		switch comp.key {
		case "executive_summary":
			out.ExecutiveSummary = parsed.Result
		case "detailed_summary":
			out.DetailedSummary = parsed.Result
		}
	}

	return out, total, nil
}

func (g *Generator) generateEmail(ctx context.Context, text string) (*EmailFields, pricing.Usage, error) {
	prompt := fmt.Sprintf(`Extract the key fields from this email.

Email:
%s

Return your output in this exact JSON format:
{
  "subject": "the subject line",
  "sender": "who sent it",
  "recipients": ["recipient 1"],
  "summary": "2-3 sentence summary of the email content",
  "action_items": ["action item 1"]
}`, text)

	res, err := g.call(ctx, prompt)
	if err != nil {
		return nil, pricing.Usage{}, err
	}

	var parsed EmailFields
	if err := llm.ParseJSON(res.Text, &parsed); err != nil {
		return nil, res.Usage, fmt.Errorf("groundtruth: parse email output: %w", err)
	}
	return &parsed, res.Usage, nil
}

func (g *Generator) call(ctx context.Context, prompt string) (*llm.Result, error) {
	res, err := g.provider.Generate(ctx, &llm.Request{
		Prompt:      prompt,
		MaxTokens:   g.maxTokens(),
		Temperature: g.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("groundtruth: provider %s: %w", g.provider.Name(), err)
	}
	if res == nil {
		return nil, errors.New("groundtruth: nil provider result")
	}
	return res, nil
}

func (g *Generator) maxTokens() int {
	if g.MaxTokens > 0 {
		return g.MaxTokens
	}
	return defaultMaxTokens
}

func (g *Generator) threshold() float64 {
	if g.SimilarityThreshold > 0 {
		return g.SimilarityThreshold
	}
	return defaultThreshold
}
