package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/model-eval/internal/evaluation"
	"github.com/stellarlinkco/model-eval/internal/llm"
	"github.com/stellarlinkco/model-eval/internal/store"
)

type evalOptions struct {
	outDir      string
	force       bool
	threshold   float64
	retries     int
	concurrency int
	noJudge     bool
	groundTruth string
}

func newEvalCmd(st *cliState) *cobra.Command {
	var opts evalOptions

	cmd := &cobra.Command{
		Use:     "eval <experiment-file-or-dir>",
		Short:   "Score experiment artifacts against their reference records",
		Args:    cobra.ExactArgs(1),
		PreRunE: loadState(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, st, &opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.outDir, "out", "", "output directory (defaults to configured evaluations dir)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "recompute evaluations that already exist")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "similarity pass threshold (overrides artifact)")
	cmd.Flags().IntVar(&opts.retries, "retries", 0, "judge retries per item (0 = default)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "parallel judge calls (0 = default)")
	cmd.Flags().BoolVar(&opts.noJudge, "no-judge", false, "skip the qualitative judge, quantitative metrics only")
	cmd.Flags().StringVar(&opts.groundTruth, "groundtruth", "", "matched reference record backfilling missing ground truth (single file only)")

	return cmd
}

func runEval(cmd *cobra.Command, st *cliState, opts *evalOptions, target string) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("eval: missing config (internal error)")
	}

	var judge llm.Provider
	if !opts.noJudge {
		p, err := defaultProviderFromConfig(st.cfg)
		if err != nil {
			return err
		}
		judge = p
	}
	ev := evaluation.NewEvaluator(judge, nil)

	evalOpts := evaluation.Options{
		Threshold:    opts.threshold,
		Force:        opts.force,
		JudgeRetries: opts.retries,
		Concurrency:  opts.concurrency,
		GroundTruth:  opts.groundTruth,
	}
	if evalOpts.Threshold == 0 {
		evalOpts.Threshold = st.cfg.Evaluation.SimilarityThreshold
	}
	if evalOpts.JudgeRetries == 0 {
		evalOpts.JudgeRetries = st.cfg.Evaluation.JudgeRetries
	}
	if evalOpts.Concurrency == 0 {
		evalOpts.Concurrency = st.cfg.Evaluation.Concurrency
	}

	outDir := strings.TrimSpace(opts.outDir)
	if outDir == "" {
		outDir = st.cfg.Paths.EvaluationsDir
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("eval: stat target: %w", err)
	}

	out := cmd.OutOrStdout()
	var written []string
	if info.IsDir() {
		if strings.TrimSpace(opts.groundTruth) != "" {
			return fmt.Errorf("eval: --groundtruth pairs one reference record with one experiment file, not a directory")
		}
		written, err = ev.EvaluateDir(cmd.Context(), target, outDir, evalOpts)
		if err != nil {
			return err
		}
	} else {
		path, err := ev.EvaluateFile(cmd.Context(), target, outDir, evalOpts)
		switch {
		case errors.Is(err, evaluation.ErrExists):
			// Existing evaluations are a skip in directory mode; a
			// named file gets the same treatment.
			fmt.Fprintf(out, "skipping %s (exists; use --force to recompute)\n", filepath.Base(target))
		case err != nil:
			return err
		default:
			written = []string{path}
		}
		if err := ev.WriteConsolidated(outDir); err != nil {
			return err
		}
	}

	var recorded []*store.Run
	for _, path := range written {
		doc, err := evaluation.LoadDocument(path)
		if err != nil {
			fmt.Fprintf(stderrWriter, "warning: reread %s: %v\n", path, err)
			continue
		}
		m := doc.Summary.Metrics
		fmt.Fprintf(out, "wrote %s pass_rate=%.2f quality=%.1f (%s)\n",
			path, m.PassRate, m.QualityScore, m.QualityRating)

		recorded = append(recorded, &store.Run{
			Kind:         store.KindEvaluation,
			Name:         doc.Metadata.ExperimentName,
			ArtifactPath: path,
			Model:        doc.Metadata.Model,
			Provider:     doc.Metadata.Provider,
			PassRate:     m.PassRate,
			QualityScore: m.QualityScore,
		})
	}
	recordRuns(st, recorded)

	if len(written) == 0 {
		fmt.Fprintln(out, "nothing to evaluate (all artifacts up to date)")
	} else {
		fmt.Fprintf(out, "consolidated summary: %s\n", filepath.Join(outDir, evaluation.ConsolidatedName))
	}
	return nil
}
