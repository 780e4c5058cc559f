package protocol

import (
	"fmt"

	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/timer"
)

func (n *Node) participantHandle(msg core.Message) error {
	switch {
	case msg.Type == core.MsgPrepare:
		return n.onPrepare()
	case msg.Type.IsDecision():
		outcome, _ := msg.Type.Outcome()
		return n.onDecision(outcome)
	default:
		n.note("ignored unexpected %s from %s", msg.Type, msg.Sender.Label())
		return nil
	}
}

func (n *Node) onPrepare() error {
	switch n.state {
	case core.StateInit:
		if n.policy.VoteCommit(n.id) {
			if err := n.apply(InVoteYes, "voted commit"); err != nil {
				return err
			}
			n.arm(timer.KindReady, n.timeouts.Decision)
			return n.send(core.CoordinatorID, core.MsgVoteCommit)
		}
		if err := n.apply(InVoteNo, "voted abort"); err != nil {
			return err
		}
		n.decision = core.OutcomeAbort
		return n.send(core.CoordinatorID, core.MsgVoteAbort)
	case core.StateReady:
		n.note("repeated PREPARE, re-sending %s", core.MsgVoteCommit)
		return n.send(core.CoordinatorID, core.MsgVoteCommit)
	case core.StateAbort, core.StateDoneAbort:
		n.note("repeated PREPARE, re-sending %s", core.MsgVoteAbort)
		return n.send(core.CoordinatorID, core.MsgVoteAbort)
	default:
		n.note("ignored PREPARE in %s", n.state)
		return nil
	}
}

func (n *Node) onDecision(outcome core.Outcome) error {
	if held, ok := n.state.Outcome(); ok {
		if held != outcome {
			n.env.Emit(core.EventViolation, n.id,
				fmt.Sprintf("%s: received %s while holding %s, rejected", n.id.Label(), outcome, held))
			return nil
		}
		n.note("repeated %s, re-acknowledging", outcome)
		return n.send(core.CoordinatorID, outcome.Ack())
	}

	in := InApplyAbort
	if outcome == core.OutcomeCommit {
		in = InApplyCommit
	}
	if !n.machine.Allows(n.state, in) {
		n.note("ignored %s in %s", outcome, n.state)
		return nil
	}
	if err := n.apply(in, "applied "+string(outcome)); err != nil {
		return err
	}
	n.cancelTimer()
	n.decision = outcome
	return n.send(core.CoordinatorID, outcome.Ack())
}

// Finalize moves a participant holding outcome into its DONE state once the
// transaction is terminal.
func (n *Node) Finalize(outcome core.Outcome) error {
	if n.IsCoordinator() {
		return fmt.Errorf("coordinator finalizes itself: %w", core.ErrInvalidCommand)
	}
	if !n.alive {
		return fmt.Errorf("%s is failed: %w", n.id.Label(), core.ErrInvalidCommand)
	}
	if n.state != outcome.Applied() {
		return fmt.Errorf("%s cannot finalize %s from %s: %w", n.id.Label(), outcome, n.state, core.ErrInvalidTransition)
	}
	n.cancelTimer()
	return n.apply(InFinalize, "transaction complete")
}

// QueryDecision sends QUERY_DECISION when the participant is blocked in READY.
// It reports whether a query was sent.
func (n *Node) QueryDecision(reason string) (bool, error) {
	if n.IsCoordinator() || !n.alive || n.state != core.StateReady {
		return false, nil
	}
	n.note("querying decision (%s)", reason)
	return true, n.send(core.CoordinatorID, core.MsgQueryDecision)
}

func (n *Node) participantTimeout(kind timer.Kind) error {
	if kind != timer.KindReady || n.state != core.StateReady {
		return nil
	}
	n.arm(timer.KindReady, n.timeouts.Decision)
	_, err := n.QueryDecision("ready timeout")
	return err
}

func (n *Node) participantRecover() error {
	switch n.state {
	case core.StateReady:
		n.arm(timer.KindReady, n.timeouts.Decision)
		_, err := n.QueryDecision("recovered in READY")
		return err
	case core.StateCommit, core.StateAbort:
		n.note("recovered holding %s, re-acknowledging", n.decision)
		return n.send(core.CoordinatorID, n.decision.Ack())
	default:
		return nil
	}
}
