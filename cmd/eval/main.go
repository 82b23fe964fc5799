package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/model-eval/internal/config"
)

type cliState struct {
	configPath string
	cfg        *config.Config
}

var (
	osExit                 = os.Exit
	stderrWriter io.Writer = os.Stderr
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, errItemsFailed) {
			osExit(1)
			return
		}
		fmt.Fprintln(stderrWriter, err)
		osExit(1)
	}
}

func newRootCmd() *cobra.Command {
	st := &cliState{configPath: config.DefaultPath}

	root := &cobra.Command{
		Use:           "model-eval",
		Short:         "Generate ground truth, run model experiments and evaluate the results",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&st.configPath, "config", st.configPath, "path to config file")

	root.AddCommand(newGroundTruthCmd(st))
	root.AddCommand(newRunCmd(st))
	root.AddCommand(newEvalCmd(st))
	root.AddCommand(newReportCmd(st))
	root.AddCommand(newHistoryCmd(st))
	root.AddCommand(newSampleConfigCmd())
	return root
}

// loadState is the shared PreRunE that resolves configuration once per
// invocation.
func loadState(st *cliState) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(st.configPath)
		if err != nil {
			// A missing file at the default location is not an error:
			// the pipeline runs fine on built-in defaults.
			if st.configPath == config.DefaultPath && errors.Is(err, os.ErrNotExist) {
				st.cfg = config.Default()
				return nil
			}
			return err
		}
		st.cfg = cfg
		return nil
	}
}
