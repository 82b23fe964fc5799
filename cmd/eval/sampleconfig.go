package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/model-eval/internal/experiment"
)

func newSampleConfigCmd() *cobra.Command {
	var fromGroundTruth string

	cmd := &cobra.Command{
		Use:   "sample-config [output-path]",
		Short: "Write a starter batch configuration",
		Long: "Write a starter batch configuration. With --from-groundtruth the\n" +
			"configuration replays the recorded generation settings plus model and\n" +
			"temperature variants for comparison.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "experiment-config.json"
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				path = args[0]
			}

			var (
				batch *experiment.BatchConfig
				err   error
			)
			if strings.TrimSpace(fromGroundTruth) != "" {
				batch, err = experiment.ConfigFromGroundTruth(fromGroundTruth)
				if err != nil {
					return err
				}
			} else {
				batch = experiment.SampleConfig()
			}

			if err := experiment.WriteConfig(path, batch); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d experiments)\n", path, len(batch.Experiments))
			return nil
		},
	}

	cmd.Flags().StringVar(&fromGroundTruth, "from-groundtruth", "", "derive variants from a ground truth record")
	return cmd
}
