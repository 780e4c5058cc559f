package engine

import "github.com/Readm/commit_sim/core"

// Stats aggregates the transactions run over the session lifetime.
type Stats struct {
	Total     int `json:"total"`
	Committed int `json:"committed"`
	Aborted   int `json:"aborted"`
	Failures  int `json:"failures"` // injected faults
	Passed    int `json:"passed"`
	Failed    int `json:"failed"`
}

func (st *Stats) record(outcome core.Outcome, verdict core.Verdict) {
	st.Total++
	switch outcome {
	case core.OutcomeCommit:
		st.Committed++
	case core.OutcomeAbort:
		st.Aborted++
	}
	switch verdict {
	case core.VerdictPassed:
		st.Passed++
	case core.VerdictFailed:
		st.Failed++
	}
}

// CommitRate returns the share of transactions that committed.
func (st Stats) CommitRate() float64 {
	if st.Total == 0 {
		return 0
	}
	return float64(st.Committed) / float64(st.Total)
}
