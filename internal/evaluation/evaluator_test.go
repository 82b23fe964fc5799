package evaluation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stellarlinkco/model-eval/internal/experiment"
	"github.com/stellarlinkco/model-eval/internal/groundtruth"
	"github.com/stellarlinkco/model-eval/internal/llm"
	"github.com/stellarlinkco/model-eval/internal/pricing"
)

const goodVerdict = `{
	"correctness": {"rating": "good", "explanation": "matches"},
	"completeness": {"rating": "good", "explanation": "covers it"},
	"conciseness": {"rating": "excellent", "explanation": "tight"},
	"relevance": {"rating": "good", "explanation": "on topic"}
}`

const overallVerdictJSON = `{
	"overall_analysis": "Solid performance overall.",
	"strengths": ["accurate"],
	"weaknesses": ["verbose"],
	"recommendations": ["trim answers"]
}`

// judgeStub answers item prompts with verdict and the overall prompt
// with overall. failFirst makes every item call fail n times first.
type judgeStub struct {
	mu        sync.Mutex
	model     string
	verdict   string
	overall   string
	failFirst int
	calls     int
	itemCalls int
}

func (s *judgeStub) Name() string  { return "claude" }
func (s *judgeStub) Model() string { return s.model }
func (s *judgeStub) Generate(ctx context.Context, req *llm.Request) (*llm.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	usage := pricing.Usage{InputTokens: 20, OutputTokens: 10, TotalTokens: 30}
	if strings.Contains(req.Prompt, "Review these model evaluation results") {
		return &llm.Result{Text: s.overall, Model: s.model, Usage: usage}, nil
	}

	s.itemCalls++
	if s.itemCalls <= s.failFirst {
		return nil, errors.New("judge transient failure")
	}
	return &llm.Result{Text: s.verdict, Model: s.model, Usage: usage}, nil
}

func fixedSimilarity(scores map[string]float64) func(a, b string) float64 {
	return func(a, b string) float64 {
		if s, ok := scores[b]; ok {
			return s
		}
		return 0
	}
}

func qaDocument(name string, sims map[string]float64) *experiment.Document {
	doc := &experiment.Document{
		Metadata: experiment.Metadata{
			ExperimentName:      name,
			ExperimentType:      experiment.TypeQA,
			Provider:            "claude",
			Model:               "claude-3-haiku-20240307",
			SimilarityThreshold: 0.7,
		},
	}
	i := 0
	for resp := range sims {
		doc.Analysis.QAResults = append(doc.Analysis.QAResults, experiment.QAResult{
			Query:       fmt.Sprintf("q%d", i),
			GroundTruth: "truth",
			Response:    resp,
		})
		i++
	}
	return doc
}

func TestEvaluateQuantitativeAndQualitative(t *testing.T) {
	judge := &judgeStub{model: "claude-3-haiku-20240307", verdict: goodVerdict, overall: overallVerdictJSON}
	sims := map[string]float64{"r0": 0.9, "r1": 0.65, "r2": 0.71, "r3": 0.5}
	e := NewEvaluator(judge, fixedSimilarity(sims))
	e.Logf = func(string, ...any) {}

	doc := qaDocument("Exp", sims)
	out, err := e.Evaluate(context.Background(), doc, Options{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	m := out.Summary.Metrics
	if m.NumItems != 4 || m.NumPassed != 2 {
		t.Fatalf("metrics=%+v", m)
	}
	if m.PassRate != 0.5 {
		t.Errorf("pass rate=%v", m.PassRate)
	}
	if m.JudgedItems != 4 {
		t.Errorf("judged=%d", m.JudgedItems)
	}
	if out.Summary.OverallAnalysis != "Solid performance overall." {
		t.Errorf("overall=%q", out.Summary.OverallAnalysis)
	}
	if len(out.Summary.Strengths) != 1 || len(out.Summary.Recommendations) != 1 {
		t.Errorf("summary lists=%+v", out.Summary)
	}
	if out.Metadata.JudgeUsage.TotalTokens == 0 {
		t.Errorf("judge usage not accumulated")
	}
	if out.Metadata.JudgeCost == nil {
		t.Errorf("judge cost missing for priced model")
	}
}

func TestEvaluateJudgeDegradation(t *testing.T) {
	old := judgeRetryDelay
	judgeRetryDelay = 0
	defer func() { judgeRetryDelay = old }()

	// Fails every item attempt; the overall prompt still succeeds.
	judge := &judgeStub{model: "m", verdict: goodVerdict, overall: overallVerdictJSON, failFirst: 1 << 30}
	sims := map[string]float64{"r0": 0.9}
	e := NewEvaluator(judge, fixedSimilarity(sims))
	e.Logf = func(string, ...any) {}

	out, err := e.Evaluate(context.Background(), qaDocument("Exp", sims), Options{JudgeRetries: 1})
	if err != nil {
		t.Fatalf("Evaluate must degrade, not fail: %v", err)
	}

	item := out.Items[0]
	if item.Qualitative != nil {
		t.Errorf("degraded item must have nil qualitative")
	}
	if item.JudgeError == "" {
		t.Errorf("degraded item must record the judge error")
	}
	if !item.Pass {
		t.Errorf("similarity verdict must survive judge failure")
	}
	// Quality falls back to scaled pass rate.
	if out.Summary.Metrics.QualityScore != 100 {
		t.Errorf("quality=%v", out.Summary.Metrics.QualityScore)
	}
}

func TestEvaluateJudgeRetrySucceeds(t *testing.T) {
	old := judgeRetryDelay
	judgeRetryDelay = 0
	defer func() { judgeRetryDelay = old }()

	judge := &judgeStub{model: "m", verdict: goodVerdict, overall: overallVerdictJSON, failFirst: 1}
	sims := map[string]float64{"r0": 0.9}
	e := NewEvaluator(judge, fixedSimilarity(sims))
	e.Logf = func(string, ...any) {}

	out, err := e.Evaluate(context.Background(), qaDocument("Exp", sims), Options{JudgeRetries: 2})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out.Items[0].Qualitative == nil {
		t.Fatalf("retry should have produced a verdict")
	}
}

func TestEvaluateMalformedVerdictRetried(t *testing.T) {
	old := judgeRetryDelay
	judgeRetryDelay = 0
	defer func() { judgeRetryDelay = old }()

	judge := &judgeStub{model: "m", verdict: `{"correctness": {"rating": "superb"}}`, overall: overallVerdictJSON}
	sims := map[string]float64{"r0": 0.9}
	e := NewEvaluator(judge, fixedSimilarity(sims))
	e.Logf = func(string, ...any) {}

	out, err := e.Evaluate(context.Background(), qaDocument("Exp", sims), Options{JudgeRetries: 1})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out.Items[0].Qualitative != nil {
		t.Fatalf("invalid ratings must not produce a verdict")
	}
	if judge.itemCalls != 2 {
		t.Errorf("item calls=%d want retries exhausted", judge.itemCalls)
	}
}

func TestEvaluateNoJudge(t *testing.T) {
	sims := map[string]float64{"r0": 0.9, "r1": 0.1}
	e := NewEvaluator(nil, fixedSimilarity(sims))
	e.Logf = func(string, ...any) {}

	out, err := e.Evaluate(context.Background(), qaDocument("Exp", sims), Options{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out.Summary.Metrics.JudgedItems != 0 {
		t.Errorf("judged=%d", out.Summary.Metrics.JudgedItems)
	}
	if out.Summary.OverallAnalysis == "" {
		t.Errorf("degraded analysis text missing")
	}
}

func TestEvaluateSummarizationComponents(t *testing.T) {
	ref := &groundtruth.Summaries{
		ExecutiveSummary: "ref exec",
		DetailedSummary:  "ref detail",
		ActionItems:      []string{"a"},
	}
	gen := &groundtruth.Summaries{
		ExecutiveSummary: "gen exec",
		DetailedSummary:  "gen detail",
		ActionItems:      []string{"a"},
	}

	doc := &experiment.Document{
		Metadata: experiment.Metadata{
			ExperimentName:      "Summ",
			ExperimentType:      experiment.TypeSummarization,
			SimilarityThreshold: 0.7,
		},
	}
	doc.Analysis.SummarizationResults = []experiment.SummarizationResult{{
		GroundTruthSummaries: ref,
		GeneratedSummaries:   gen,
	}}

	e := NewEvaluator(nil, func(a, b string) float64 {
		if a == b {
			return 1
		}
		return 0.4
	})
	e.Logf = func(string, ...any) {}

	out, err := e.Evaluate(context.Background(), doc, Options{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	// Only components with reference content are evaluated.
	if len(out.Items) != 3 {
		t.Fatalf("items=%d want 3", len(out.Items))
	}
	byComponent := map[string]ItemEval{}
	for _, it := range out.Items {
		byComponent[it.Component] = it
	}
	if !byComponent["action_items"].Pass {
		t.Errorf("identical action items must pass")
	}
	if byComponent["executive_summary"].Pass {
		t.Errorf("dissimilar summary must fail")
	}
}

func TestEvaluateBackfillsRawQAFromGroundTruth(t *testing.T) {
	rec := &groundtruth.Record{
		Metadata: groundtruth.Metadata{SourceFile: "meeting.txt", UseCase: groundtruth.UseCaseQA},
		Analysis: groundtruth.Analysis{QAPairs: []groundtruth.QAPair{
			{Query: "What Was Decided?", Response: "Ship it."},
			{Query: "who attended?", Response: "Alice and Bob."},
		}},
	}
	gtPath, err := groundtruth.NewStore(t.TempDir()).Write(rec, false)
	if err != nil {
		t.Fatal(err)
	}

	doc := &experiment.Document{
		Metadata: experiment.Metadata{
			ExperimentName:      "Raw",
			ExperimentType:      experiment.TypeQA,
			SimilarityThreshold: 0.7,
		},
	}
	doc.Analysis.TranscriptQAResults = []experiment.TranscriptQAResult{{
		SourceFile: "meeting.txt",
		QAResults: []experiment.QueryResponse{
			{Query: "what was decided?", Response: "Ship it."},
			{Query: "Who attended?", Response: "Just Alice."},
			{Query: "anything else?", Response: "No."},
		},
	}}

	e := NewEvaluator(nil, func(a, b string) float64 {
		if a == b {
			return 1
		}
		return 0.2
	})
	e.Logf = func(string, ...any) {}

	// Without the reference record the artifact has nothing to score.
	if _, err := e.Evaluate(context.Background(), doc, Options{}); err == nil {
		t.Fatalf("raw-document artifact must not be scorable on its own")
	}

	out, err := e.Evaluate(context.Background(), doc, Options{GroundTruth: gtPath})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	// Queries match the record case-insensitively; unmatched ones stay
	// unscored.
	if len(out.Items) != 2 {
		t.Fatalf("items=%d want 2", len(out.Items))
	}
	byQuery := map[string]ItemEval{}
	for _, it := range out.Items {
		byQuery[strings.ToLower(it.Query)] = it
	}
	if it := byQuery["what was decided?"]; it.GroundTruth != "Ship it." || !it.Pass {
		t.Errorf("matched item=%+v", it)
	}
	if it := byQuery["who attended?"]; it.Pass {
		t.Errorf("dissimilar answer must fail: %+v", it)
	}
	if got := out.Metadata.GroundTruthFile; got != filepath.Base(gtPath) {
		t.Errorf("groundtruth file=%q want %q", got, filepath.Base(gtPath))
	}
}

func TestEvaluateBackfillsSummariesFromGroundTruth(t *testing.T) {
	rec := &groundtruth.Record{
		Metadata: groundtruth.Metadata{SourceFile: "meeting.txt", UseCase: groundtruth.UseCaseSummarization},
		Analysis: groundtruth.Analysis{Summaries: &groundtruth.Summaries{
			ExecutiveSummary: "ref exec",
			ActionItems:      []string{"a"},
		}},
	}
	gtPath, err := groundtruth.NewStore(t.TempDir()).Write(rec, false)
	if err != nil {
		t.Fatal(err)
	}

	doc := &experiment.Document{
		Metadata: experiment.Metadata{
			ExperimentName:      "Summ",
			ExperimentType:      experiment.TypeSummarization,
			SimilarityThreshold: 0.7,
		},
	}
	doc.Analysis.SummarizationResults = []experiment.SummarizationResult{{
		SourceFile:         "meeting.txt",
		GeneratedSummaries: &groundtruth.Summaries{ExecutiveSummary: "gen exec", ActionItems: []string{"a"}},
	}}

	e := NewEvaluator(nil, func(a, b string) float64 {
		if a == b {
			return 1
		}
		return 0.2
	})
	e.Logf = func(string, ...any) {}

	out, err := e.Evaluate(context.Background(), doc, Options{GroundTruth: gtPath})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(out.Items) != 2 {
		t.Fatalf("items=%d want 2", len(out.Items))
	}
	byComponent := map[string]ItemEval{}
	for _, it := range out.Items {
		byComponent[it.Component] = it
	}
	if !byComponent["action_items"].Pass {
		t.Errorf("identical action items must pass")
	}
	if byComponent["executive_summary"].GroundTruth != "ref exec" {
		t.Errorf("reference summary not inherited: %+v", byComponent["executive_summary"])
	}
}

func TestEvaluateFileSkipAndForce(t *testing.T) {
	expDir := t.TempDir()
	evalDir := t.TempDir()

	doc := qaDocument("My Exp", map[string]float64{"r0": 0.9})
	expPath, err := experiment.WriteDocument(expDir, doc)
	if err != nil {
		t.Fatal(err)
	}

	e := NewEvaluator(nil, func(a, b string) float64 { return 0.9 })
	e.Logf = func(string, ...any) {}

	outPath, err := e.EvaluateFile(context.Background(), expPath, evalDir, Options{})
	if err != nil {
		t.Fatalf("EvaluateFile: %v", err)
	}
	if filepath.Base(outPath) != "My_Exp.experiment.eval.json" {
		t.Errorf("path=%q", outPath)
	}

	if _, err := e.EvaluateFile(context.Background(), expPath, evalDir, Options{}); !errors.Is(err, ErrExists) {
		t.Fatalf("second run err=%v want ErrExists", err)
	}
	if _, err := e.EvaluateFile(context.Background(), expPath, evalDir, Options{Force: true}); err != nil {
		t.Fatalf("forced run: %v", err)
	}
}

func TestEvaluateDirWritesConsolidated(t *testing.T) {
	expDir := t.TempDir()
	evalDir := t.TempDir()

	for i, sim := range []float64{0.9, 0.3} {
		doc := qaDocument(fmt.Sprintf("Exp%d", i), map[string]float64{"r0": sim})
		if _, err := experiment.WriteDocument(expDir, doc); err != nil {
			t.Fatal(err)
		}
	}

	simByQuery := func(a, b string) float64 {
		if b == "r0" {
			return 0.9
		}
		return 0
	}
	e := NewEvaluator(nil, simByQuery)
	e.Logf = func(string, ...any) {}

	written, err := e.EvaluateDir(context.Background(), expDir, evalDir, Options{})
	if err != nil {
		t.Fatalf("EvaluateDir: %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("written=%v", written)
	}

	consPath := filepath.Join(evalDir, ConsolidatedName)
	if _, err := os.Stat(consPath); err != nil {
		t.Fatalf("consolidated summary missing: %v", err)
	}

	// A second incremental run touches nothing but refreshes the summary.
	before, _ := os.ReadFile(written[0])
	written2, err := e.EvaluateDir(context.Background(), expDir, evalDir, Options{})
	if err != nil {
		t.Fatalf("second EvaluateDir: %v", err)
	}
	if len(written2) != 0 {
		t.Errorf("incremental rerun rewrote %v", written2)
	}
	after, _ := os.ReadFile(written[0])
	if string(before) != string(after) {
		t.Errorf("existing evaluation modified by incremental run")
	}
}
