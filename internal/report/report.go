// Package report aggregates evaluation artifacts into ranked comparison
// reports.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/stellarlinkco/model-eval/internal/evaluation"
)

const timestampLayout = "2006-01-02 15:04:05"

// now is a seam for tests.
var now = time.Now

// Entry is one evaluated configuration in the ranking.
type Entry struct {
	Rank           int      `json:"rank"`
	EvaluationFile string   `json:"evaluation_file"`
	ExperimentName string   `json:"experiment_name"`
	Model          string   `json:"model"`
	Provider       string   `json:"provider"`
	PassRate       float64  `json:"pass_rate"`
	QualityScore   float64  `json:"quality_score"`
	QualityRating  string   `json:"quality_rating"`
	MeanSimilarity float64  `json:"mean_similarity"`
	NumItems       int      `json:"num_items"`
	Strengths      []string `json:"strengths,omitempty"`
	Weaknesses     []string `json:"weaknesses,omitempty"`
}

// Report is the aggregated comparison across all evaluations in a
// directory.
type Report struct {
	GeneratedAt string  `json:"generated_at"`
	SourceDir   string  `json:"source_dir"`
	Entries     []Entry `json:"entries"`
}

// Aggregate reads every evaluation artifact in dir and ranks them by
// quality score descending, breaking ties by pass rate descending. An
// absent or empty directory yields an empty report, not an error.
func Aggregate(dir string) (*Report, error) {
	rep := &Report{
		GeneratedAt: now().Format(timestampLayout),
		SourceDir:   dir,
		Entries:     []Entry{},
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return rep, nil
		}
		return nil, fmt.Errorf("report: read %q: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".eval.json") {
			continue
		}
		doc, err := evaluation.LoadDocument(filepath.Join(dir, e.Name()))
		if err != nil {
			// Unreadable artifacts are skipped rather than sinking the
			// whole report.
			continue
		}
		m := doc.Summary.Metrics
		rep.Entries = append(rep.Entries, Entry{
			EvaluationFile: e.Name(),
			ExperimentName: doc.Metadata.ExperimentName,
			Model:          doc.Metadata.Model,
			Provider:       doc.Metadata.Provider,
			PassRate:       m.PassRate,
			QualityScore:   m.QualityScore,
			QualityRating:  m.QualityRating,
			MeanSimilarity: m.MeanSimilarity,
			NumItems:       m.NumItems,
			Strengths:      doc.Summary.Strengths,
			Weaknesses:     doc.Summary.Weaknesses,
		})
	}

	sort.SliceStable(rep.Entries, func(i, k int) bool {
		a, b := rep.Entries[i], rep.Entries[k]
		if a.QualityScore != b.QualityScore {
			return a.QualityScore > b.QualityScore
		}
		return a.PassRate > b.PassRate
	})
	for i := range rep.Entries {
		rep.Entries[i].Rank = i + 1
	}

	return rep, nil
}

// Markdown renders the report for humans.
func Markdown(rep *Report) string {
	var sb strings.Builder
	sb.WriteString("# Model Evaluation Report\n\n")
	if rep == nil || len(rep.Entries) == 0 {
		sb.WriteString("No evaluations found.\n")
		return sb.String()
	}
	fmt.Fprintf(&sb, "Generated: %s\n\n", rep.GeneratedAt)

	sb.WriteString("## Ranking\n\n")
	sb.WriteString("| Rank | Experiment | Model | Quality | Rating | Pass Rate | Mean Similarity | Items |\n")
	sb.WriteString("|------|------------|-------|---------|--------|-----------|-----------------|-------|\n")
	for _, e := range rep.Entries {
		fmt.Fprintf(&sb, "| %d | %s | %s | %.1f | %s | %.1f%% | %.3f | %d |\n",
			e.Rank, e.ExperimentName, e.Model, e.QualityScore,
			orNA(e.QualityRating), e.PassRate*100, e.MeanSimilarity, e.NumItems)
	}

	sb.WriteString("\n## Per-Configuration Analysis\n")
	for _, e := range rep.Entries {
		fmt.Fprintf(&sb, "\n### %d. %s (%s)\n\n", e.Rank, e.ExperimentName, e.Model)
		writeList(&sb, "Strengths", e.Strengths)
		writeList(&sb, "Weaknesses", e.Weaknesses)
	}

	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	fmt.Fprintf(sb, "**%s:**\n\n", title)
	if len(items) == 0 {
		sb.WriteString("- n/a\n\n")
		return
	}
	for _, it := range items {
		fmt.Fprintf(sb, "- %s\n", it)
	}
	sb.WriteString("\n")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "n/a"
	}
	return s
}

// Write renders the report to outDir as both markdown and JSON, returning
// the two paths.
func Write(rep *Report, outDir string) (mdPath, jsonPath string, err error) {
	if rep == nil {
		return "", "", fmt.Errorf("report: nil report")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", "", fmt.Errorf("report: create output dir: %w", err)
	}

	stamp := now().Format("20060102-150405")
	mdPath = filepath.Join(outDir, "report-"+stamp+".md")
	jsonPath = filepath.Join(outDir, "report-"+stamp+".json")

	if err := os.WriteFile(mdPath, []byte(Markdown(rep)), 0o644); err != nil {
		return "", "", fmt.Errorf("report: write markdown: %w", err)
	}

	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("report: marshal: %w", err)
	}
	if err := os.WriteFile(jsonPath, b, 0o644); err != nil {
		return "", "", fmt.Errorf("report: write json: %w", err)
	}

	return mdPath, jsonPath, nil
}
