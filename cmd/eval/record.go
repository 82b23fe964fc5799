package main

import (
	"fmt"

	"github.com/stellarlinkco/model-eval/internal/store"
)

// recordRuns appends history rows for produced artifacts. History is an
// index over artifacts already on disk, so failures warn instead of
// failing the command that did the real work.
func recordRuns(st *cliState, runs []*store.Run) {
	if st == nil || st.cfg == nil || len(runs) == 0 {
		return
	}

	stor, err := openStore(st.cfg)
	if err != nil {
		fmt.Fprintf(stderrWriter, "warning: history unavailable: %v\n", err)
		return
	}
	defer stor.Close()

	for _, r := range runs {
		if err := stor.RecordRun(r); err != nil {
			fmt.Fprintf(stderrWriter, "warning: record run %q: %v\n", r.Name, err)
		}
	}
}
