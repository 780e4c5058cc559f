package core

// Verdict is the grading state of a scenario run.
type Verdict string

const (
	VerdictPending Verdict = "pending"
	VerdictPassed  Verdict = "passed"
	VerdictFailed  Verdict = "failed"
)

// LogRecord is one entry of a node's write-ahead log.
type LogRecord struct {
	At     float64 `json:"at"`
	Record string  `json:"record"`
}

// TransactionSummary captures the outcome of one completed transaction.
// It is what gets archived and shown in run listings.
type TransactionSummary struct {
	ID          string                 `json:"id"`
	SessionID   string                 `json:"sessionID"`
	Sequence    int                    `json:"sequence"` // n-th transaction of the session
	Scenario    string                 `json:"scenario"`
	StartedAt   float64                `json:"startedAt"`
	CompletedAt float64                `json:"completedAt"`
	Outcome     Outcome                `json:"outcome"`
	Verdict     Verdict                `json:"verdict"`
	Reason      string                 `json:"reason,omitempty"`
	States      map[string]State       `json:"states"`
	Logs        map[string][]LogRecord `json:"logs"`
	Remaining   map[string]int         `json:"remaining"`
	Faults      int                    `json:"faults"`
	Messages    int                    `json:"messages"`
}
