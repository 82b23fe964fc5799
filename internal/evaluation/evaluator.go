package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stellarlinkco/model-eval/internal/artifact"
	"github.com/stellarlinkco/model-eval/internal/experiment"
	"github.com/stellarlinkco/model-eval/internal/groundtruth"
	"github.com/stellarlinkco/model-eval/internal/llm"
	"github.com/stellarlinkco/model-eval/internal/pricing"
	"github.com/stellarlinkco/model-eval/internal/similarity"
)

const (
	// DefaultThreshold is the similarity pass bar when neither the
	// artifact nor the caller supplies one.
	DefaultThreshold = 0.7

	// DefaultJudgeRetries bounds judge retry attempts per item.
	DefaultJudgeRetries = 2

	defaultConcurrency = 4

	// ConsolidatedName is the rolling cross-file summary refreshed by
	// incremental runs.
	ConsolidatedName = "consolidated.eval-summary.json"

	timestampLayout = "2006-01-02 15:04:05"
)

// ErrExists is returned when an evaluation artifact already exists and
// Force is not set.
var ErrExists = errors.New("evaluation: artifact exists")

// now is a seam for tests.
var now = time.Now

// Options tunes an evaluation run. The zero value uses defaults.
type Options struct {
	// Threshold overrides the experiment's similarity threshold.
	Threshold float64
	// Force recomputes evaluations that already exist.
	Force bool
	// JudgeRetries bounds judge attempts per item; zero means default.
	JudgeRetries int
	// Concurrency bounds parallel judge calls; zero means default.
	Concurrency int
	// GroundTruth optionally names the matched reference record. Its
	// content backfills references the experiment artifact lacks, which
	// makes raw-document runs evaluable.
	GroundTruth string
}

// Evaluator scores experiment artifacts.
type Evaluator struct {
	judge      llm.Provider
	similarity similarity.Func

	// Logf defaults to log.Printf.
	Logf func(format string, args ...any)
}

// NewEvaluator builds an evaluator. judge may be nil, in which case every
// item is quantitative-only. sim nil selects the default lexical scorer.
func NewEvaluator(judge llm.Provider, sim similarity.Func) *Evaluator {
	if sim == nil {
		sim = similarity.Score
	}
	return &Evaluator{judge: judge, similarity: sim, Logf: log.Printf}
}

// EvalPath returns the evaluation artifact path for an experiment file.
func EvalPath(outDir, experimentFile string) string {
	id := artifact.DeriveID(experimentFile, artifact.KindExperiment)
	return filepath.Join(outDir, id.Base+".experiment.eval.json")
}

// EvaluateFile scores one experiment artifact and writes its evaluation.
// Existing evaluations are skipped with ErrExists unless opts.Force.
func (e *Evaluator) EvaluateFile(ctx context.Context, experimentPath, outDir string, opts Options) (string, error) {
	if e == nil {
		return "", errors.New("evaluation: nil evaluator")
	}
	if ctx == nil {
		return "", errors.New("evaluation: nil context")
	}

	outPath := EvalPath(outDir, filepath.Base(experimentPath))
	if !opts.Force {
		if _, err := os.Stat(outPath); err == nil {
			return outPath, fmt.Errorf("%w: %s", ErrExists, outPath)
		}
	}

	doc, err := experiment.LoadDocument(experimentPath)
	if err != nil {
		return "", err
	}

	eval, err := e.Evaluate(ctx, doc, opts)
	if err != nil {
		return "", err
	}
	eval.Metadata.ExperimentFile = filepath.Base(experimentPath)

	if err := WriteDocument(outPath, eval); err != nil {
		return "", err
	}
	return outPath, nil
}

// Evaluate scores an already loaded experiment document.
func (e *Evaluator) Evaluate(ctx context.Context, doc *experiment.Document, opts Options) (*Document, error) {
	if doc == nil {
		return nil, errors.New("evaluation: nil experiment document")
	}

	var gtFile string
	if p := strings.TrimSpace(opts.GroundTruth); p != "" {
		rec, err := groundtruth.Load(p)
		if err != nil {
			return nil, err
		}
		backfillReferences(doc, rec)
		gtFile = filepath.Base(p)
	}

	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = doc.Metadata.SimilarityThreshold
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	items := e.collectItems(doc, threshold)
	if len(items) == 0 {
		return nil, errors.New("evaluation: experiment has no evaluable items")
	}

	judgeUsage := e.judgeItems(ctx, items, opts)

	out := &Document{
		Metadata: Metadata{
			GroundTruthFile:     gtFile,
			ExperimentName:      doc.Metadata.ExperimentName,
			ExperimentType:      string(doc.Metadata.ExperimentType),
			Model:               doc.Metadata.Model,
			Provider:            doc.Metadata.Provider,
			Timestamp:           now().Format(timestampLayout),
			SimilarityThreshold: threshold,
		},
		Items: items,
	}

	out.Summary.Metrics = computeMetrics(items)

	if e.judge != nil {
		out.Metadata.JudgeModel = e.judge.Model()
		retries := opts.JudgeRetries
		if retries <= 0 {
			retries = DefaultJudgeRetries
		}
		j := NewJudge(e.judge, retries)
		verdict, usage, err := j.JudgeOverall(ctx, &out.Summary.Metrics, threshold)
		judgeUsage.Add(usage)
		if err != nil {
			e.logf("evaluation: overall analysis degraded: %v", err)
			out.Summary.OverallAnalysis = degradedAnalysis(&out.Summary.Metrics)
		} else {
			out.Summary.OverallAnalysis = verdict.OverallAnalysis
			out.Summary.Strengths = verdict.Strengths
			out.Summary.Weaknesses = verdict.Weaknesses
			out.Summary.Recommendations = verdict.Recommendations
		}
	} else {
		out.Summary.OverallAnalysis = degradedAnalysis(&out.Summary.Metrics)
	}

	out.Metadata.JudgeUsage = judgeUsage
	if e.judge != nil {
		out.Metadata.JudgeCost = pricing.Compute(e.judge.Model(), judgeUsage)
	}

	return out, nil
}

// backfillReferences joins an experiment document with its matched
// reference record. Summarization results missing reference summaries
// inherit the record's; raw-document QA results are promoted to scored
// QA items by matching their queries against the record's pairs.
// Unmatched queries stay unscored.
func backfillReferences(doc *experiment.Document, rec *groundtruth.Record) {
	if doc == nil || rec == nil {
		return
	}

	for i := range doc.Analysis.SummarizationResults {
		sr := &doc.Analysis.SummarizationResults[i]
		if sr.GroundTruthSummaries == nil {
			sr.GroundTruthSummaries = rec.Analysis.Summaries
		}
	}

	if len(rec.Analysis.QAPairs) == 0 {
		return
	}
	answers := make(map[string]string, len(rec.Analysis.QAPairs))
	for _, p := range rec.Analysis.QAPairs {
		answers[normalizeQuery(p.Query)] = p.Response
	}
	for _, tr := range doc.Analysis.TranscriptQAResults {
		for _, qr := range tr.QAResults {
			truth, ok := answers[normalizeQuery(qr.Query)]
			if !ok {
				continue
			}
			doc.Analysis.QAResults = append(doc.Analysis.QAResults, experiment.QAResult{
				Query:       qr.Query,
				GroundTruth: truth,
				Response:    qr.Response,
			})
		}
	}
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// collectItems flattens the experiment analysis into evaluable items with
// similarity scored against ground truth. Raw-document QA items carry no
// ground truth and are excluded unless backfillReferences promoted them.
func (e *Evaluator) collectItems(doc *experiment.Document, threshold float64) []ItemEval {
	var items []ItemEval

	for _, qa := range doc.Analysis.QAResults {
		sim := e.similarity(qa.GroundTruth, qa.Response)
		items = append(items, ItemEval{
			Query:       qa.Query,
			GroundTruth: qa.GroundTruth,
			Response:    qa.Response,
			Similarity:  sim,
			Threshold:   threshold,
			Pass:        sim >= threshold,
		})
	}

	for _, sr := range doc.Analysis.SummarizationResults {
		if sr.GroundTruthSummaries == nil || sr.GeneratedSummaries == nil {
			continue
		}
		ref, gen := sr.GroundTruthSummaries, sr.GeneratedSummaries
		components := []struct {
			name     string
			ref, gen string
		}{
			{"executive_summary", ref.ExecutiveSummary, gen.ExecutiveSummary},
			{"detailed_summary", ref.DetailedSummary, gen.DetailedSummary},
			{"action_items", strings.Join(ref.ActionItems, "\n"), strings.Join(gen.ActionItems, "\n")},
			{"key_decisions", strings.Join(ref.KeyDecisions, "\n"), strings.Join(gen.KeyDecisions, "\n")},
			{"participants", strings.Join(ref.Participants, "\n"), strings.Join(gen.Participants, "\n")},
			{"topics_discussed", strings.Join(ref.TopicsDiscussed, "\n"), strings.Join(gen.TopicsDiscussed, "\n")},
		}
		for _, c := range components {
			if strings.TrimSpace(c.ref) == "" {
				continue
			}
			sim := e.similarity(c.ref, c.gen)
			items = append(items, ItemEval{
				Component:   c.name,
				GroundTruth: c.ref,
				Response:    c.gen,
				Similarity:  sim,
				Threshold:   threshold,
				Pass:        sim >= threshold,
			})
		}
	}

	return items
}

// judgeItems runs bounded-parallel judge calls, writing verdicts back by
// item index so results stay aligned regardless of completion order.
func (e *Evaluator) judgeItems(ctx context.Context, items []ItemEval, opts Options) pricing.Usage {
	if e.judge == nil {
		return pricing.Usage{}
	}

	retries := opts.JudgeRetries
	if retries <= 0 {
		retries = DefaultJudgeRetries
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	j := NewJudge(e.judge, retries)
	usages := make([]pricing.Usage, len(items))

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			verdict, usage, err := j.JudgeItem(ctx, &items[i])
			usages[i] = usage
			if err != nil {
				items[i].JudgeError = err.Error()
				return
			}
			items[i].Qualitative = verdict
		}(i)
	}
	wg.Wait()

	var total pricing.Usage
	for _, u := range usages {
		total.Add(u)
	}
	return total
}

func computeMetrics(items []ItemEval) Metrics {
	m := Metrics{
		NumItems:      len(items),
		MinSimilarity: math.Inf(1),
		RatingCounts:  make(map[string]int),
	}

	var simSum float64
	var compositeSum float64

	for _, it := range items {
		if it.Pass {
			m.NumPassed++
		}
		simSum += it.Similarity
		if it.Similarity < m.MinSimilarity {
			m.MinSimilarity = it.Similarity
		}
		if it.Similarity > m.MaxSimilarity {
			m.MaxSimilarity = it.Similarity
		}

		if it.Qualitative != nil {
			m.JudgedItems++
			compositeSum += CompositeScore(it.Qualitative)
			for _, c := range criterionWeights {
				m.RatingCounts[strings.ToLower(strings.TrimSpace(c.get(it.Qualitative)))]++
			}
		}
	}

	m.NumFailed = m.NumItems - m.NumPassed
	if m.NumItems > 0 {
		m.PassRate = float64(m.NumPassed) / float64(m.NumItems)
		m.MeanSimilarity = simSum / float64(m.NumItems)
	}
	if math.IsInf(m.MinSimilarity, 1) {
		m.MinSimilarity = 0
	}

	if m.JudgedItems > 0 {
		m.QualityScore = NormalizeQuality(compositeSum / float64(m.JudgedItems))
	} else {
		// No qualitative signal: scale the pass rate instead.
		m.QualityScore = m.PassRate * 100
	}
	m.QualityRating = ClassifyQuality(m.QualityScore)

	if len(m.RatingCounts) == 0 {
		m.RatingCounts = nil
	}
	return m
}

func degradedAnalysis(m *Metrics) string {
	return fmt.Sprintf(
		"Qualitative analysis unavailable. %d/%d items passed the similarity threshold (pass rate %.3f, mean similarity %.3f).",
		m.NumPassed, m.NumItems, m.PassRate, m.MeanSimilarity)
}

// ConsolidatedEntry is one row of the rolling cross-file summary.
type ConsolidatedEntry struct {
	EvaluationFile string  `json:"evaluation_file"`
	ExperimentName string  `json:"experiment_name"`
	Model          string  `json:"model"`
	PassRate       float64 `json:"pass_rate"`
	QualityScore   float64 `json:"quality_score"`
	QualityRating  string  `json:"quality_rating"`
}

// Consolidated is the cross-file summary artifact.
type Consolidated struct {
	GeneratedAt string              `json:"generated_at"`
	Evaluations []ConsolidatedEntry `json:"evaluations"`
}

// EvaluateDir evaluates experiment artifacts in experimentsDir. By
// default files whose evaluation exists are skipped; Force recomputes
// them. The consolidated summary is refreshed from all evaluations
// present afterwards, without touching per-file artifacts it skipped.
func (e *Evaluator) EvaluateDir(ctx context.Context, experimentsDir, outDir string, opts Options) ([]string, error) {
	entries, err := os.ReadDir(experimentsDir)
	if err != nil {
		return nil, fmt.Errorf("evaluation: read %q: %w", experimentsDir, err)
	}

	var written []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".experiment.json") {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		path, err := e.EvaluateFile(ctx, filepath.Join(experimentsDir, entry.Name()), outDir, opts)
		if errors.Is(err, ErrExists) {
			e.logf("evaluation: skipping %s (exists)", entry.Name())
			continue
		}
		if err != nil {
			e.logf("evaluation: %s failed: %v", entry.Name(), err)
			continue
		}
		written = append(written, path)
	}

	if err := e.WriteConsolidated(outDir); err != nil {
		return written, err
	}
	return written, nil
}

// WriteConsolidated rebuilds the consolidated summary from every
// evaluation artifact in outDir.
func (e *Evaluator) WriteConsolidated(outDir string) error {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("evaluation: read %q: %w", outDir, err)
	}

	cons := &Consolidated{
		GeneratedAt: now().Format(timestampLayout),
		Evaluations: []ConsolidatedEntry{},
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".eval.json") {
			continue
		}
		doc, err := LoadDocument(filepath.Join(outDir, entry.Name()))
		if err != nil {
			e.logf("evaluation: consolidated: skipping %s: %v", entry.Name(), err)
			continue
		}
		cons.Evaluations = append(cons.Evaluations, ConsolidatedEntry{
			EvaluationFile: entry.Name(),
			ExperimentName: doc.Metadata.ExperimentName,
			Model:          doc.Metadata.Model,
			PassRate:       doc.Summary.Metrics.PassRate,
			QualityScore:   doc.Summary.Metrics.QualityScore,
			QualityRating:  doc.Summary.Metrics.QualityRating,
		})
	}

	sort.Slice(cons.Evaluations, func(i, k int) bool {
		a, b := cons.Evaluations[i], cons.Evaluations[k]
		if a.QualityScore != b.QualityScore {
			return a.QualityScore > b.QualityScore
		}
		if a.PassRate != b.PassRate {
			return a.PassRate > b.PassRate
		}
		return a.EvaluationFile < b.EvaluationFile
	})

	return writeJSON(filepath.Join(outDir, ConsolidatedName), cons)
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("evaluation: marshal %q: %w", path, err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("evaluation: write %q: %w", path, err)
	}
	return nil
}

func (e *Evaluator) logf(format string, args ...any) {
	if e != nil && e.Logf != nil {
		e.Logf(format, args...)
	}
}
