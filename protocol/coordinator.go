package protocol

import (
	"fmt"

	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/timer"
)

// Start opens phase 1: log PREPARE, broadcast it and arm the vote timeout.
func (n *Node) Start() error {
	if !n.IsCoordinator() {
		return fmt.Errorf("%s cannot start a transaction: %w", n.id.Label(), core.ErrInvalidCommand)
	}
	if !n.alive {
		return fmt.Errorf("coordinator is failed: %w", core.ErrInvalidCommand)
	}
	if err := n.apply(InStart, "transaction started"); err != nil {
		return err
	}
	n.arm(timer.KindVote, n.timeouts.Vote)
	return n.broadcast(core.MsgPrepare)
}

// Decide makes the global decision. It is a no-op when the coordinator is
// failed or has already decided.
func (n *Node) Decide(outcome core.Outcome, reason string) error {
	if !n.IsCoordinator() {
		return fmt.Errorf("%s cannot decide: %w", n.id.Label(), core.ErrInvalidCommand)
	}
	if !n.alive || n.decision != "" {
		return nil
	}
	in := InDecideAbort
	if outcome == core.OutcomeCommit {
		in = InDecideCommit
	}
	if err := n.apply(in, reason); err != nil {
		return err
	}
	n.decision = outcome
	n.acks = make(map[core.NodeID]struct{})
	if len(n.queries) > 0 {
		n.note("answering %d queued decision queries with %s", len(n.queries), outcome)
		n.queries = make(map[core.NodeID]struct{})
	}
	n.arm(timer.KindDecision, n.timeouts.Decision)
	return n.broadcast(outcome.Message())
}

func (n *Node) complete(reason string) error {
	n.cancelTimer()
	return n.apply(InComplete, reason)
}

func (n *Node) coordinatorHandle(msg core.Message) error {
	from := msg.Sender
	switch msg.Type {
	case core.MsgVoteCommit:
		if n.state != core.StateWaitVotes {
			n.note("ignored %s from %s in %s", msg.Type, from.Label(), n.state)
			return nil
		}
		n.votes[from] = struct{}{}
		n.note("received %s from %s (%d/%d)", msg.Type, from.Label(), len(n.votes), len(n.participants))
		if len(n.votes) < len(n.participants) {
			return nil
		}
		n.cancelTimer()
		return n.env.Decide(core.OutcomeCommit, "all votes commit")

	case core.MsgVoteAbort:
		if n.state != core.StateWaitVotes {
			n.note("ignored %s from %s in %s", msg.Type, from.Label(), n.state)
			return nil
		}
		n.note("received %s from %s", msg.Type, from.Label())
		n.cancelTimer()
		return n.env.Decide(core.OutcomeAbort, from.Label()+" voted abort")

	case core.MsgAckCommit, core.MsgAckAbort:
		outcome, _ := msg.Type.Outcome()
		if !n.state.IsDecided() || outcome != n.decision {
			n.note("ignored %s from %s in %s", msg.Type, from.Label(), n.state)
			return nil
		}
		n.acks[from] = struct{}{}
		n.note("received %s from %s (%d/%d)", msg.Type, from.Label(), len(n.acks), len(n.participants))
		if len(n.acks) < len(n.participants) {
			return nil
		}
		return n.complete("all acknowledgments received")

	case core.MsgQueryDecision:
		if n.decision == "" {
			n.queries[from] = struct{}{}
			n.note("%v from %s, query queued", core.ErrUndecidedQuery, from.Label())
			return nil
		}
		n.note("answering %s query with %s", from.Label(), n.decision)
		return n.send(from, n.decision.Message())

	default:
		n.note("ignored unexpected %s from %s", msg.Type, from.Label())
		return nil
	}
}

func (n *Node) coordinatorTimeout(kind timer.Kind) error {
	switch kind {
	case timer.KindVote:
		if n.state != core.StateWaitVotes {
			return nil
		}
		n.note("vote timeout with %d/%d votes", len(n.votes), len(n.participants))
		return n.env.Decide(core.OutcomeAbort, "vote timeout")
	case timer.KindDecision:
		if !n.state.IsDecided() {
			return nil
		}
		return n.complete(fmt.Sprintf("decision timeout with %d/%d acknowledgments", len(n.acks), len(n.participants)))
	default:
		return nil
	}
}

func (n *Node) coordinatorRecover() error {
	switch {
	case n.state == core.StateWaitVotes:
		n.note("re-broadcasting PREPARE")
		n.arm(timer.KindVote, n.timeouts.Vote)
		return n.broadcast(core.MsgPrepare)
	case n.state.IsDecided():
		n.note("re-broadcasting %s", n.decision)
		n.arm(timer.KindDecision, n.timeouts.Decision)
		return n.broadcast(n.decision.Message())
	case n.state.IsDone():
		n.note("re-broadcasting %s", n.decision)
		return n.broadcast(n.decision.Message())
	default:
		return nil
	}
}
