package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/engine"
)

// PrintStats writes the session statistics.
func PrintStats(w io.Writer, stats engine.Stats) {
	fmt.Fprintln(w, "=== Run Statistics ===")
	fmt.Fprintf(w, "Transactions: %d\n", stats.Total)
	fmt.Fprintf(w, "Committed: %d\n", stats.Committed)
	fmt.Fprintf(w, "Aborted: %d\n", stats.Aborted)
	fmt.Fprintf(w, "Commit Rate: %.2f%%\n", stats.CommitRate()*100)
	fmt.Fprintf(w, "Injected Faults: %d\n", stats.Failures)
	fmt.Fprintf(w, "Scenarios Passed/Failed: %d/%d\n", stats.Passed, stats.Failed)
}

// PrintRun writes the outcome of one scripted run.
func PrintRun(w io.Writer, res engine.RunResult) {
	fmt.Fprintf(w, "=== Plan %s ===\n", res.Plan)
	if !res.Terminal {
		fmt.Fprintf(w, "Not terminal after %.1f ms\n", res.Now)
	} else {
		fmt.Fprintf(w, "Outcome: %s at %.1f ms\n", res.Outcome, res.Now)
	}
	fmt.Fprintf(w, "Verdict: %s", res.Verdict)
	if res.Reason != "" {
		fmt.Fprintf(w, " (%s)", res.Reason)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Matches expectation: %t\n", res.Matches)

	ids := make([]core.NodeID, 0, len(res.States))
	for id := range res.States {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fmt.Fprintf(w, "  %-3s %s\n", id.Label(), res.States[id])
	}
}
