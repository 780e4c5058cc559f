package engine

import (
	"fmt"
	"sort"

	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/scenario"
)

// StepOp is a scripted fault operation.
type StepOp string

const (
	OpFail    StepOp = "fail"
	OpRecover StepOp = "recover"
	OpToggle  StepOp = "toggle"
	OpDrop    StepOp = "drop" // first in-flight message of Type addressed to Node
)

// Step is one timed operation of a plan. At is simulated ms after the
// transaction starts.
type Step struct {
	At   float64          `json:"at"`
	Op   StepOp           `json:"op"`
	Node core.NodeID      `json:"node"`
	Peer core.NodeID      `json:"peer,omitempty"`
	Type core.MessageType `json:"type,omitempty"`
}

// Plan is a scripted failure mode.
type Plan struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Steps       []Step               `json:"steps"`
	Expect      scenario.Expectation `json:"expect"`
}

// RunResult is what RunPlan observed.
type RunResult struct {
	Plan     string                     `json:"plan"`
	Outcome  core.Outcome               `json:"outcome"`
	Terminal bool                       `json:"terminal"`
	Verdict  core.Verdict               `json:"verdict"`
	Reason   string                     `json:"reason,omitempty"`
	Now      float64                    `json:"now"`
	States   map[core.NodeID]core.State `json:"states"`
	Matches  bool                       `json:"matches"` // outcome satisfies the plan's expectation
}

var failureModes = []string{
	"none",
	"coordinator_phase1",
	"coordinator_phase2",
	"participant_phase1",
	"participant_phase2",
	"network_partition",
	"timeout",
}

// FailureModes lists the preset plan names.
func FailureModes() []string {
	return append([]string(nil), failureModes...)
}

// PresetPlan returns the plan for a failure mode. Step times assume the
// default timing (2.5s links, 5s timeouts) scaled by cfg.
func PresetPlan(mode string, participants int, cfg Config) (Plan, error) {
	if participants < 1 {
		return Plan{}, fmt.Errorf("preset %q needs at least one participant", mode)
	}
	lat := cfg.LinkLatencyMs / cfg.ClockSpeed
	vote := cfg.VoteTimeoutMs
	switch mode {
	case "none":
		return Plan{Name: mode, Description: "No failures", Expect: scenario.ExpectCommit}, nil
	case "coordinator_phase1":
		return Plan{
			Name:        mode,
			Description: "Coordinator fails during prepare phase and restarts",
			Expect:      scenario.ExpectAgreement,
			Steps: []Step{
				{At: lat / 2, Op: OpFail, Node: core.CoordinatorID},
				{At: vote + lat/2, Op: OpRecover, Node: core.CoordinatorID},
			},
		}, nil
	case "coordinator_phase2":
		return Plan{
			Name:        mode,
			Description: "Coordinator fails during commit phase and restarts",
			Expect:      scenario.ExpectCommit,
			Steps: []Step{
				{At: 2*lat + lat/5, Op: OpFail, Node: core.CoordinatorID},
				{At: 3*lat + lat/2, Op: OpRecover, Node: core.CoordinatorID},
			},
		}, nil
	case "participant_phase1":
		return Plan{
			Name:        mode,
			Description: "Participant fails during prepare phase",
			Expect:      scenario.ExpectAbort,
			Steps:       []Step{{At: lat / 2, Op: OpFail, Node: 1}},
		}, nil
	case "participant_phase2":
		return Plan{
			Name:        mode,
			Description: "Participant fails during commit phase and recovers",
			Expect:      scenario.ExpectCommit,
			Steps: []Step{
				{At: 2*lat + lat/5, Op: OpFail, Node: 1},
				{At: 4*lat + vote/2, Op: OpRecover, Node: 1},
			},
		}, nil
	case "network_partition":
		plan := Plan{
			Name:        mode,
			Description: "Network partition isolates half of the participants",
			Expect:      scenario.ExpectAbort,
		}
		cut := (participants + 1) / 2
		for p := cut + 1; p <= participants; p++ {
			plan.Steps = append(plan.Steps, Step{At: 0, Op: OpToggle, Node: core.CoordinatorID, Peer: core.NodeID(p)})
		}
		if len(plan.Steps) == 0 {
			plan.Steps = append(plan.Steps, Step{At: 0, Op: OpToggle, Node: core.CoordinatorID, Peer: 1})
		}
		return plan, nil
	case "timeout":
		return Plan{
			Name:        mode,
			Description: "Only some participants receive PREPARE",
			Expect:      scenario.ExpectAbort,
			Steps:       []Step{{At: lat / 4, Op: OpDrop, Node: core.NodeID(participants), Type: core.MsgPrepare}},
		}, nil
	default:
		return Plan{}, fmt.Errorf("unknown failure mode %q", mode)
	}
}

// Apply executes one step against the session.
func (st Step) Apply(s *Session) error {
	switch st.Op {
	case OpFail:
		return s.FailNode(st.Node)
	case OpRecover:
		return s.RecoverNode(st.Node)
	case OpToggle:
		return s.ToggleLink(st.Node, st.Peer)
	case OpDrop:
		for _, m := range s.InFlightMessages() {
			if m.Type == st.Type && m.Receiver == st.Node {
				return s.DropMessage(m.ID)
			}
		}
		return core.NewCommandError("drop", fmt.Errorf("no in-flight %s to %s: %w", st.Type, st.Node.Label(), core.ErrUnknownMessage))
	default:
		return core.NewCommandError(string(st.Op), core.ErrInvalidCommand)
	}
}

// RunPlan starts a transaction on an initialized session and drives it in
// increments of step simulated ms, applying plan steps as their time comes,
// until the session is quiescent with no steps left or until limit.
func RunPlan(s *Session, plan Plan, step, limit float64) (RunResult, error) {
	if step <= 0 {
		return RunResult{}, fmt.Errorf("step must be positive, got %.1f", step)
	}
	steps := append([]Step(nil), plan.Steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].At < steps[j].At })

	if err := s.StartTransaction(); err != nil {
		return RunResult{}, err
	}
	base := s.Now()
	speed := s.Config().ClockSpeed
	next := 0
	for {
		elapsed := s.Now() - base
		for next < len(steps) && steps[next].At <= elapsed {
			if err := steps[next].Apply(s); err != nil {
				return RunResult{}, fmt.Errorf("plan %s step %d: %w", plan.Name, next, err)
			}
			next++
		}
		if (s.Quiescent() && next == len(steps)) || elapsed >= limit {
			break
		}
		advance := step
		if next < len(steps) && steps[next].At-elapsed < advance {
			advance = steps[next].At - elapsed
		}
		if elapsed+advance > limit {
			advance = limit - elapsed
		}
		if err := s.Tick(advance / speed); err != nil {
			return RunResult{}, err
		}
	}

	res := RunResult{
		Plan:    plan.Name,
		Now:     s.Now(),
		States:  s.NodeStates(),
		Verdict: s.verdict(),
		Reason:  s.result.Reason,
	}
	if tv, ok := s.Transaction(); ok {
		res.Outcome = tv.Decision
		res.Terminal = tv.Terminal
	}
	res.Matches = res.Terminal && (plan.Expect == "" || plan.Expect.Matches(res.Outcome))
	return res, nil
}
