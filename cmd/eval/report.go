package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/model-eval/internal/report"
)

type reportOptions struct {
	evalDir string
	outDir  string
	quiet   bool
}

func newReportCmd(st *cliState) *cobra.Command {
	var opts reportOptions

	cmd := &cobra.Command{
		Use:     "report",
		Short:   "Aggregate evaluations into a ranked comparison report",
		Args:    cobra.NoArgs,
		PreRunE: loadState(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, st, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.evalDir, "evaluations", "", "evaluations directory (defaults to configured dir)")
	cmd.Flags().StringVar(&opts.outDir, "out", "", "report output directory (defaults to configured reports dir)")
	cmd.Flags().BoolVar(&opts.quiet, "quiet", false, "suppress the ranking table")

	return cmd
}

func runReport(cmd *cobra.Command, st *cliState, opts *reportOptions) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("report: missing config (internal error)")
	}

	evalDir := strings.TrimSpace(opts.evalDir)
	if evalDir == "" {
		evalDir = st.cfg.Paths.EvaluationsDir
	}
	outDir := strings.TrimSpace(opts.outDir)
	if outDir == "" {
		outDir = st.cfg.Paths.ReportsDir
	}

	rep, err := report.Aggregate(evalDir)
	if err != nil {
		return err
	}

	mdPath, jsonPath, err := report.Write(rep, outDir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !opts.quiet {
		if len(rep.Entries) == 0 {
			fmt.Fprintln(out, "No evaluations found.")
		} else {
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tEXPERIMENT\tMODEL\tQUALITY\tRATING\tPASS_RATE")
			for _, e := range rep.Entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f\t%s\t%.2f\n",
					e.Rank, e.ExperimentName, e.Model, e.QualityScore, e.QualityRating, e.PassRate)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}
	}

	fmt.Fprintf(out, "wrote %s\nwrote %s\n", mdPath, jsonPath)
	return nil
}
