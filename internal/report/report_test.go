package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stellarlinkco/model-eval/internal/evaluation"
)

func writeEval(t *testing.T, dir, name string, quality, passRate float64) {
	t.Helper()
	doc := &evaluation.Document{
		Metadata: evaluation.Metadata{
			ExperimentName: strings.TrimSuffix(name, ".experiment.eval.json"),
			Model:          "model-" + name,
		},
	}
	doc.Summary.Metrics = evaluation.Metrics{
		NumItems:     4,
		PassRate:     passRate,
		QualityScore: quality,
	}
	doc.Summary.Strengths = []string{"fast"}
	if err := evaluation.WriteDocument(filepath.Join(dir, name), doc); err != nil {
		t.Fatal(err)
	}
}

func TestAggregateRanksByQualityThenPassRate(t *testing.T) {
	dir := t.TempDir()
	writeEval(t, dir, "low.experiment.eval.json", 40, 0.9)
	writeEval(t, dir, "high.experiment.eval.json", 90, 0.2)
	writeEval(t, dir, "tie-a.experiment.eval.json", 70, 0.5)
	writeEval(t, dir, "tie-b.experiment.eval.json", 70, 0.8)

	rep, err := Aggregate(dir)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(rep.Entries) != 4 {
		t.Fatalf("entries=%d", len(rep.Entries))
	}

	order := make([]string, 0, 4)
	for _, e := range rep.Entries {
		order = append(order, e.EvaluationFile)
	}
	want := []string{
		"high.experiment.eval.json",
		"tie-b.experiment.eval.json", // tie on quality broken by pass rate
		"tie-a.experiment.eval.json",
		"low.experiment.eval.json",
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order=%v want %v", order, want)
		}
	}
	for i, e := range rep.Entries {
		if e.Rank != i+1 {
			t.Errorf("entry %d rank=%d", i, e.Rank)
		}
	}
}

func TestAggregateEmptyAndMissingDir(t *testing.T) {
	t.Parallel()

	rep, err := Aggregate(t.TempDir())
	if err != nil {
		t.Fatalf("empty dir: %v", err)
	}
	if len(rep.Entries) != 0 {
		t.Fatalf("entries=%v", rep.Entries)
	}

	rep, err = Aggregate(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("missing dir: %v", err)
	}
	if len(rep.Entries) != 0 {
		t.Fatalf("entries=%v", rep.Entries)
	}
}

func TestAggregateSkipsUnparsableFiles(t *testing.T) {
	dir := t.TempDir()
	writeEval(t, dir, "ok.experiment.eval.json", 50, 0.5)
	if err := os.WriteFile(filepath.Join(dir, "broken.eval.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	rep, err := Aggregate(dir)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(rep.Entries) != 1 {
		t.Fatalf("entries=%d want unparsable file skipped", len(rep.Entries))
	}
}

func TestMarkdownRendersMissingQualitativeAsNA(t *testing.T) {
	t.Parallel()

	rep := &Report{Entries: []Entry{{
		Rank:           1,
		ExperimentName: "Exp",
		Model:          "m",
		QualityScore:   75,
	}}}

	md := Markdown(rep)
	if !strings.Contains(md, "| n/a |") {
		t.Errorf("missing rating not rendered as n/a:\n%s", md)
	}
	if !strings.Contains(md, "- n/a") {
		t.Errorf("missing strengths not rendered as n/a")
	}
}

func TestMarkdownEmptyReport(t *testing.T) {
	t.Parallel()

	md := Markdown(&Report{})
	if !strings.Contains(md, "No evaluations found.") {
		t.Fatalf("empty report rendering:\n%s", md)
	}
}

func TestWriteProducesBothFormats(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "reports")
	writeEval(t, dir, "a.experiment.eval.json", 60, 0.5)

	rep, err := Aggregate(dir)
	if err != nil {
		t.Fatal(err)
	}
	mdPath, jsonPath, err := Write(rep, out)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	for _, p := range []string{mdPath, jsonPath} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing output %q: %v", p, err)
		}
	}
}
