package scenario

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Readm/commit_sim/core"
)

// Expectation is the predicate a scenario places on the final decision.
type Expectation string

const (
	ExpectCommit    Expectation = "GLOBAL_COMMIT"
	ExpectAbort     Expectation = "GLOBAL_ABORT"
	ExpectAgreement Expectation = "AGREEMENT" // any decision, as long as everyone agrees
)

// Matches reports whether outcome satisfies the expectation.
func (e Expectation) Matches(outcome core.Outcome) bool {
	switch e {
	case ExpectCommit:
		return outcome == core.OutcomeCommit
	case ExpectAbort:
		return outcome == core.OutcomeAbort
	case ExpectAgreement:
		return outcome == core.OutcomeCommit || outcome == core.OutcomeAbort
	default:
		return false
	}
}

// NodeReport is what the validator needs to know about one node.
type NodeReport struct {
	ID    core.NodeID
	Role  core.Role
	State core.State
	Alive bool
	Log   []core.LogRecord
}

// Result is the outcome of grading one terminal transaction.
type Result struct {
	Verdict core.Verdict `json:"verdict"`
	Reason  string       `json:"reason,omitempty"`
}

func failed(format string, args ...interface{}) Result {
	return Result{Verdict: core.VerdictFailed, Reason: fmt.Sprintf(format, args...)}
}

// RecordOutcome maps a log record to the decision it implies, if any.
func RecordOutcome(record string) (core.Outcome, bool) {
	switch record {
	case "COMMIT", "DONE_COMMIT":
		return core.OutcomeCommit, true
	case "ABORT", "DONE_ABORT":
		return core.OutcomeAbort, true
	default:
		return "", false
	}
}

// CheckAgreement scans every log and returns an error naming the nodes whose
// logs hold conflicting decisions.
func CheckAgreement(nodes []NodeReport) error {
	holders := map[core.Outcome][]string{}
	for _, n := range nodes {
		seen := map[core.Outcome]bool{}
		for _, rec := range n.Log {
			if o, ok := RecordOutcome(rec.Record); ok && !seen[o] {
				seen[o] = true
				holders[o] = append(holders[o], n.ID.Label())
			}
		}
	}
	commits, aborts := holders[core.OutcomeCommit], holders[core.OutcomeAbort]
	if len(commits) > 0 && len(aborts) > 0 {
		sort.Strings(commits)
		sort.Strings(aborts)
		return fmt.Errorf("agreement violated: COMMIT logged by %s, ABORT logged by %s",
			strings.Join(commits, ","), strings.Join(aborts, ","))
	}
	return nil
}

// Grade evaluates a terminal transaction. It never passes a run in which two
// logs disagree, whatever the predicate says.
func Grade(sc Scenario, remaining Budget, decision core.Outcome, nodes []NodeReport) Result {
	if decision == "" {
		return failed("no global decision was made")
	}
	if !remaining.Valid() {
		return failed("fault budget went negative: %s", remaining)
	}
	if err := CheckAgreement(nodes); err != nil {
		return failed("%v", err)
	}
	for _, n := range nodes {
		if n.Role == core.RoleCoordinator || !n.Alive {
			continue
		}
		if held, ok := n.State.Outcome(); ok && held != decision {
			return failed("%s holds %s but the coordinator decided %s", n.ID.Label(), held, decision)
		}
	}
	if !sc.Expect.Matches(decision) {
		return failed("expected %s, got %s", sc.Expect, decision)
	}
	return Result{Verdict: core.VerdictPassed}
}
