package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/model-eval/internal/groundtruth"
	"github.com/stellarlinkco/model-eval/internal/store"
)

type groundTruthOptions struct {
	useCase     string
	outDir      string
	force       bool
	questions   int
	maxTokens   int
	temperature float64
}

func newGroundTruthCmd(st *cliState) *cobra.Command {
	var opts groundTruthOptions

	cmd := &cobra.Command{
		Use:     "groundtruth <source-file-or-dir>",
		Short:   "Generate reference records from source documents",
		Args:    cobra.ExactArgs(1),
		PreRunE: loadState(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGroundTruth(cmd, st, &opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.useCase, "use-case", "qa", "use case: qa|summarization|email")
	cmd.Flags().StringVar(&opts.outDir, "out", "", "output directory (defaults to configured groundtruth dir)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "overwrite existing records")
	cmd.Flags().IntVar(&opts.questions, "questions", 0, "number of QA pairs to generate (overrides default)")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 0, "max tokens per provider call (overrides default)")
	cmd.Flags().Float64Var(&opts.temperature, "temperature", 0, "sampling temperature")

	return cmd
}

func runGroundTruth(cmd *cobra.Command, st *cliState, opts *groundTruthOptions, source string) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("groundtruth: missing config (internal error)")
	}

	useCase := groundtruth.UseCase(strings.ToLower(strings.TrimSpace(opts.useCase)))
	if !useCase.Valid() {
		return fmt.Errorf("groundtruth: invalid use case %q (expected qa|summarization|email)", opts.useCase)
	}

	sources, err := collectSourceFiles(source)
	if err != nil {
		return err
	}

	provider, err := defaultProviderFromConfig(st.cfg)
	if err != nil {
		return err
	}

	gen := groundtruth.NewGenerator(provider)
	if opts.questions > 0 {
		gen.NumQuestions = opts.questions
	}
	if opts.maxTokens > 0 {
		gen.MaxTokens = opts.maxTokens
	}
	if opts.temperature > 0 {
		gen.Temperature = opts.temperature
	}
	if st.cfg.Evaluation.SimilarityThreshold > 0 {
		gen.SimilarityThreshold = st.cfg.Evaluation.SimilarityThreshold
	}

	outDir := strings.TrimSpace(opts.outDir)
	if outDir == "" {
		outDir = st.cfg.Paths.GroundTruthDir
	}
	recStore := groundtruth.NewStore(outDir)

	out := cmd.OutOrStdout()
	var recorded []*store.Run
	for _, src := range sources {
		rec, err := gen.GenerateFile(cmd.Context(), src, useCase)
		if err != nil {
			return err
		}

		path, err := recStore.Write(rec, opts.force)
		if err != nil {
			if errors.Is(err, groundtruth.ErrExists) {
				return fmt.Errorf("%w (use --force to overwrite)", err)
			}
			return err
		}

		fmt.Fprintf(out, "wrote %s\n", path)
		run := &store.Run{
			Kind:         store.KindGroundTruth,
			Name:         filepath.Base(path),
			ArtifactPath: path,
			Model:        rec.Metadata.Model,
		}
		if rec.Metadata.Cost != nil {
			run.TotalCost = rec.Metadata.Cost.TotalCost
		}
		recorded = append(recorded, run)
	}

	recordRuns(st, recorded)
	return nil
}

// collectSourceFiles expands a directory argument into its text documents.
func collectSourceFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("groundtruth: stat source: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("groundtruth: read source dir: %w", err)
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".txt", ".md":
			out = append(out, filepath.Join(path, entry.Name()))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("groundtruth: no .txt or .md files in %s", path)
	}
	sort.Strings(out)
	return out, nil
}
