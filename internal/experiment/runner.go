package experiment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/stellarlinkco/model-eval/internal/groundtruth"
	"github.com/stellarlinkco/model-eval/internal/llm"
	"github.com/stellarlinkco/model-eval/internal/pricing"
)

const timestampLayout = "2006-01-02 15:04:05"

// now is a seam for tests.
var now = time.Now

// Runner executes a batch of experiment configurations over a dataset.
// Configurations targeting the same backend run strictly sequentially in
// input order; distinct backends run concurrently up to MaxLanes.
type Runner struct {
	registry  *llm.Registry
	outDir    string
	threshold float64

	// MaxLanes bounds concurrent backend lanes. Zero means no bound
	// beyond the number of distinct backends.
	MaxLanes int

	// Delay between provider calls within a lane, to be polite to
	// rate-limited backends.
	Delay time.Duration

	// Logf defaults to log.Printf.
	Logf func(format string, args ...any)

	// resolve maps a config to its provider; overridable in tests.
	resolve func(cfg *Config) (llm.Provider, error)
}

func NewRunner(registry *llm.Registry, outDir string, threshold float64) *Runner {
	r := &Runner{
		registry:  registry,
		outDir:    strings.TrimSpace(outDir),
		threshold: threshold,
		Logf:      log.Printf,
	}
	r.resolve = r.resolveProvider
	return r
}

func (r *Runner) resolveProvider(cfg *Config) (llm.Provider, error) {
	name := cfg.ProviderName()
	if base := strings.TrimSpace(cfg.BaseURL); base != "" && name == "local" {
		return llm.NewLocalProvider(base, cfg.Model), nil
	}
	p, ok := r.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("experiment: provider %q not configured", name)
	}
	return p, nil
}

// RunAll executes every configuration in the batch and returns the paths
// of the artifacts written, in batch order. Each configuration draws its
// items from src in the shape its experiment type needs. Per-item
// provider failures are recorded in the artifact and do not stop the
// run; a cancelled context stops dispatch but completed items are still
// flushed, so every started configuration yields a well-formed artifact.
func (r *Runner) RunAll(ctx context.Context, batch *BatchConfig, src *Source) ([]string, error) {
	if r == nil {
		return nil, errors.New("experiment: nil runner")
	}
	if ctx == nil {
		return nil, errors.New("experiment: nil context")
	}
	if batch == nil {
		return nil, &ConfigError{Msg: "nil config"}
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, errors.New("experiment: nil dataset source")
	}

	// Group configs into lanes by backend, preserving batch order within
	// each lane.
	laneOrder := make([]string, 0, len(batch.Experiments))
	lanes := make(map[string][]int)
	for i := range batch.Experiments {
		key := batch.Experiments[i].BackendKey()
		if _, ok := lanes[key]; !ok {
			laneOrder = append(laneOrder, key)
		}
		lanes[key] = append(lanes[key], i)
	}

	sem := make(chan struct{}, laneBound(r.MaxLanes, len(laneOrder)))
	var wg sync.WaitGroup

	paths := make([]string, len(batch.Experiments))
	errs := make([]error, len(batch.Experiments))

	for _, key := range laneOrder {
		indices := lanes[key]
		wg.Add(1)
		go func(key string, indices []int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			for _, i := range indices {
				cfg := &batch.Experiments[i]
				r.logf("experiment: lane %s: running %q", key, cfg.Name)
				paths[i], errs[i] = r.runOne(ctx, cfg, src)
			}
		}(key, indices)
	}
	wg.Wait()

	var firstErr error
	for _, err := range errs {
		if err != nil {
			firstErr = err
			break
		}
	}
	return paths, firstErr
}

func laneBound(max, lanes int) int {
	if max <= 0 || max > lanes {
		if lanes < 1 {
			return 1
		}
		return lanes
	}
	return max
}

// runOne executes one configuration over the dataset and always writes
// its artifact, even when cancelled partway through.
func (r *Runner) runOne(ctx context.Context, cfg *Config, src *Source) (string, error) {
	items, err := src.Items(cfg.Type)
	if err != nil {
		return "", err
	}

	provider, err := r.resolve(cfg)
	if err != nil {
		return "", err
	}

	doc := &Document{
		Metadata: Metadata{
			ExperimentName:      cfg.Name,
			ExperimentType:      cfg.Type,
			Provider:            cfg.ProviderName(),
			Model:               cfg.Model,
			SystemPrompt:        cfg.SystemPrompt,
			MaxTokens:           cfg.MaxTokens,
			Temperature:         cfg.Temperature,
			Timestamp:           now().Format(timestampLayout),
			SimilarityThreshold: r.threshold,
			TotalItems:          len(items),
			Errors:              []string{},
		},
	}

	var totalUsage pricing.Usage
	totalCost := &pricing.Cost{}
	priced := false

	for i := range items {
		if ctx.Err() != nil {
			doc.Metadata.Interrupted = true
			r.logf("experiment: %q cancelled after %d/%d items", cfg.Name, i, len(items))
			break
		}

		item := &items[i]
		usage, err := r.runItem(ctx, provider, cfg, item, doc)
		totalUsage.Add(usage)
		if cost := pricing.Compute(cfg.Model, usage); cost != nil {
			totalCost.Add(cost)
			priced = true
		}
		if err != nil {
			doc.Metadata.Errors = append(doc.Metadata.Errors, fmt.Sprintf("item %d: %v", i+1, err))
		}

		if r.Delay > 0 && i < len(items)-1 {
			sleepWithContext(ctx, r.Delay)
		}
	}

	doc.Metadata.TotalUsage = totalUsage
	if priced {
		doc.Metadata.TotalCost = totalCost
	}

	return WriteDocument(r.outDir, doc)
}

// runItem dispatches one dataset item and appends its result entry to the
// document. The entry is appended even on failure, with an empty response,
// so output order always matches input order.
func (r *Runner) runItem(ctx context.Context, provider llm.Provider, cfg *Config, item *Item, doc *Document) (pricing.Usage, error) {
	switch item.Type {
	case "qa":
		return r.runQA(ctx, provider, cfg, item, doc)
	case "qa_raw":
		return r.runQARaw(ctx, provider, cfg, item, doc)
	case "summarization":
		return r.runSummarization(ctx, provider, cfg, item, doc)
	}
	return pricing.Usage{}, fmt.Errorf("unsupported item type %q", item.Type)
}

func (r *Runner) runQA(ctx context.Context, provider llm.Provider, cfg *Config, item *Item, doc *Document) (pricing.Usage, error) {
	entry := QAResult{
		Query:       item.Query,
		GroundTruth: item.GroundTruth,
	}

	res, err := provider.Generate(ctx, &llm.Request{
		System:      cfg.SystemPrompt,
		Prompt:      item.Query,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})

	var usage pricing.Usage
	if res != nil {
		entry.Response = strings.TrimSpace(res.Text)
		usage = res.Usage
	}
	doc.Analysis.QAResults = append(doc.Analysis.QAResults, entry)
	return usage, err
}

func (r *Runner) runQARaw(ctx context.Context, provider llm.Provider, cfg *Config, item *Item, doc *Document) (pricing.Usage, error) {
	entry := TranscriptQAResult{
		Transcript: preview(item.Transcript),
		SourceFile: item.SourceFile,
	}

	var total pricing.Usage
	var errMsgs []string

	for _, query := range item.Queries {
		if ctx.Err() != nil {
			doc.Metadata.Interrupted = true
			break
		}

		prompt := fmt.Sprintf("%s\n\nTranscript:\n%s\n\nQuestion: %s\n\nAnswer:",
			cfg.SystemPrompt, item.Transcript, query)

		qr := QueryResponse{Query: query}
		res, err := provider.Generate(ctx, &llm.Request{
			Prompt:      prompt,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
		if res != nil {
			qr.Response = strings.TrimSpace(res.Text)
			total.Add(res.Usage)
		}
		if err != nil {
			errMsgs = append(errMsgs, fmt.Sprintf("%s: %v", query, err))
		}
		entry.QAResults = append(entry.QAResults, qr)
	}

	doc.Analysis.TranscriptQAResults = append(doc.Analysis.TranscriptQAResults, entry)
	if len(errMsgs) > 0 {
		return total, errors.New(strings.Join(errMsgs, "; "))
	}
	return total, nil
}

func (r *Runner) runSummarization(ctx context.Context, provider llm.Provider, cfg *Config, item *Item, doc *Document) (pricing.Usage, error) {
	entry := SummarizationResult{
		Transcript:           preview(item.Transcript),
		SourceFile:           item.SourceFile,
		GroundTruthSummaries: item.Summaries,
		GeneratedSummaries:   &groundtruth.Summaries{},
	}

	var total pricing.Usage
	var errMsgs []string

	// One independent call per summary component.
	for _, comp := range summaryTasks {
		if ctx.Err() != nil {
			doc.Metadata.Interrupted = true
			break
		}

		prompt := fmt.Sprintf("%s\n\nDocument:\n%s\n\n%s", cfg.SystemPrompt, item.Transcript, comp.instruction)
		res, err := provider.Generate(ctx, &llm.Request{
			Prompt:      prompt,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			errMsgs = append(errMsgs, fmt.Sprintf("%s: %v", comp.key, err))
			continue
		}
		if res == nil {
			errMsgs = append(errMsgs, comp.key+": empty result")
			continue
		}
		total.Add(res.Usage)
		comp.assign(entry.GeneratedSummaries, strings.TrimSpace(res.Text))
	}

	doc.Analysis.SummarizationResults = append(doc.Analysis.SummarizationResults, entry)
	if len(errMsgs) > 0 {
		return total, errors.New(strings.Join(errMsgs, "; "))
	}
	return total, nil
}

// summaryTasks drives the independent per-component summarization calls.
var summaryTasks = []struct {
	key         string
	instruction string
	assign      func(*groundtruth.Summaries, string)
}{
	{
		key:         "executive_summary",
		instruction: "Write a 2-3 sentence executive summary of this document.",
		assign:      func(s *groundtruth.Summaries, v string) { s.ExecutiveSummary = v },
	},
	{
		key:         "detailed_summary",
		instruction: "Write a detailed summary of this document covering all substantive points.",
		assign:      func(s *groundtruth.Summaries, v string) { s.DetailedSummary = v },
	},
	{
		key:         "action_items",
		instruction: "List the action items from this document, one per line.",
		assign:      func(s *groundtruth.Summaries, v string) { s.ActionItems = splitLines(v) },
	},
	{
		key:         "key_decisions",
		instruction: "List the decisions recorded in this document, one per line.",
		assign:      func(s *groundtruth.Summaries, v string) { s.KeyDecisions = splitLines(v) },
	},
	{
		key:         "participants",
		instruction: "List the participants mentioned in this document, one per line.",
		assign:      func(s *groundtruth.Summaries, v string) { s.Participants = splitLines(v) },
	},
	{
		key:         "topics_discussed",
		instruction: "List the main topics discussed in this document, one per line.",
		assign:      func(s *groundtruth.Summaries, v string) { s.TopicsDiscussed = splitLines(v) },
	},
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*• "))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func (r *Runner) logf(format string, args ...any) {
	if r.Logf != nil {
		r.Logf(format, args...)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
