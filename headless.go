package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/engine"
)

// runHeadless plays the configured failure mode once and prints the result.
func runHeadless(a *app, out io.Writer) error {
	cfg := a.cfg
	mode := cfg.FailureMode
	if mode == "" {
		mode = "none"
	}
	plan, err := engine.PresetPlan(mode, cfg.Participants, cfg.Engine)
	if err != nil {
		return err
	}
	GetLogger().Infof("Running %s: %s", plan.Name, plan.Description)
	res, err := engine.RunPlan(a.session, plan, cfg.StepMs, cfg.UntilMs)
	if err != nil {
		return err
	}
	PrintRun(out, res)
	fmt.Fprintln(out)
	PrintStats(out, a.session.Stats())
	printTraffic(out, a)
	if !res.Terminal {
		return fmt.Errorf("plan %s did not reach a terminal state within %.0f ms", plan.Name, cfg.UntilMs)
	}
	return nil
}

func printTraffic(w io.Writer, a *app) {
	snap := a.counters.Snapshot()
	types := make([]string, 0, len(snap.Sent))
	for t := range snap.Sent {
		types = append(types, string(t))
	}
	sort.Strings(types)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Traffic ===")
	for _, t := range types {
		typ := core.MessageType(t)
		fmt.Fprintf(w, "%-15s sent %3d delivered %3d\n", t, snap.Sent[typ], snap.Delivered[typ])
	}
	if a.dropper != nil && a.dropper.Dropped() > 0 {
		fmt.Fprintf(w, "Lost to lossy links: %d\n", a.dropper.Dropped())
	}
}
