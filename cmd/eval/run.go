package main

import (
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/model-eval/internal/experiment"
	"github.com/stellarlinkco/model-eval/internal/store"
)

var errItemsFailed = errors.New("model-eval: some items failed")

type runOptions struct {
	input   string
	queries string
	outDir  string
	lanes   int
	delay   time.Duration
}

func newRunCmd(st *cliState) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:     "run <batch-config.json>",
		Short:   "Run a batch of experiment configurations over a dataset",
		Args:    cobra.ExactArgs(1),
		PreRunE: loadState(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperiments(cmd, st, &opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.input, "input", "", "dataset: ground truth file, document or directory (required)")
	cmd.Flags().StringVar(&opts.queries, "queries", "", "ground truth file supplying queries for raw documents")
	cmd.Flags().StringVar(&opts.outDir, "out", "", "output directory (defaults to configured experiments dir)")
	cmd.Flags().IntVar(&opts.lanes, "lanes", 0, "max concurrent backend lanes (0 = one per backend)")
	cmd.Flags().DurationVar(&opts.delay, "delay", 0, "delay between provider calls within a lane")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runExperiments(cmd *cobra.Command, st *cliState, opts *runOptions, configPath string) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("run: missing config (internal error)")
	}

	batch, err := experiment.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := batch.Validate(); err != nil {
		return err
	}

	// Each experiment type sees the input in its own shape, so a mixed
	// batch loads the dataset once per distinct type. Preloading keeps
	// dataset problems fatal before any provider call.
	src := experiment.NewSource(opts.input, opts.queries)
	for i := range batch.Experiments {
		if _, err := src.Items(batch.Experiments[i].Type); err != nil {
			return err
		}
	}

	registry, err := newRegistryFromConfig(st.cfg)
	if err != nil {
		return err
	}

	outDir := strings.TrimSpace(opts.outDir)
	if outDir == "" {
		outDir = st.cfg.Paths.ExperimentsDir
	}

	runner := experiment.NewRunner(registry, outDir, st.cfg.Evaluation.SimilarityThreshold)
	runner.MaxLanes = opts.lanes
	runner.Delay = opts.delay

	// Interrupts flush partial artifacts instead of discarding work.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	paths, runErr := runner.RunAll(ctx, batch, src)

	out := cmd.OutOrStdout()
	var recorded []*store.Run
	failed := false
	for _, path := range paths {
		if path == "" {
			failed = true
			continue
		}
		doc, err := experiment.LoadDocument(path)
		if err != nil {
			fmt.Fprintf(stderrWriter, "warning: reread %s: %v\n", path, err)
			continue
		}
		status := "ok"
		if len(doc.Metadata.Errors) > 0 {
			status = fmt.Sprintf("%d item errors", len(doc.Metadata.Errors))
			failed = true
		}
		if doc.Metadata.Interrupted {
			status += " (interrupted)"
		}
		fmt.Fprintf(out, "wrote %s [%s]\n", path, status)

		run := &store.Run{
			Kind:         store.KindExperiment,
			Name:         doc.Metadata.ExperimentName,
			ArtifactPath: path,
			Model:        doc.Metadata.Model,
			Provider:     doc.Metadata.Provider,
		}
		if doc.Metadata.TotalCost != nil {
			run.TotalCost = doc.Metadata.TotalCost.TotalCost
		}
		recorded = append(recorded, run)
	}
	recordRuns(st, recorded)

	if runErr != nil {
		var cfgErr *experiment.ConfigError
		if errors.As(runErr, &cfgErr) {
			return runErr
		}
		fmt.Fprintln(stderrWriter, runErr)
		return errItemsFailed
	}
	if failed {
		return errItemsFailed
	}
	if ctx.Err() != nil {
		fmt.Fprintln(stderrWriter, "interrupted: partial artifacts flushed to", filepath.Clean(outDir))
		return errItemsFailed
	}
	return nil
}
