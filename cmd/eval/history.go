package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/model-eval/internal/store"
)

type historyOptions struct {
	kind  string
	model string
	limit int
}

func newHistoryCmd(st *cliState) *cobra.Command {
	var opts historyOptions

	cmd := &cobra.Command{
		Use:     "history",
		Short:   "Show recorded pipeline runs",
		Args:    cobra.NoArgs,
		PreRunE: loadState(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, st, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.kind, "kind", "", "filter by kind: groundtruth|experiment|evaluation")
	cmd.Flags().StringVar(&opts.model, "model", "", "filter by model")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "max runs to list")

	return cmd
}

func runHistory(cmd *cobra.Command, st *cliState, opts *historyOptions) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("history: missing config (internal error)")
	}

	stor, err := openStore(st.cfg)
	if err != nil {
		return err
	}
	defer stor.Close()

	runs, err := stor.ListRuns(store.Filter{
		Kind:  store.RunKind(strings.ToLower(strings.TrimSpace(opts.kind))),
		Model: opts.model,
		Limit: opts.limit,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tNAME\tMODEL\tPASS_RATE\tQUALITY\tCOST\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%.1f\t%.4f\t%s\n",
			r.ID, r.Kind, r.Name, r.Model, r.PassRate, r.QualityScore,
			r.TotalCost, r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}
