package protocol

import (
	"math/rand"

	"github.com/Readm/commit_sim/core"
)

// VotePolicy decides how a participant answers PREPARE.
type VotePolicy interface {
	VoteCommit(id core.NodeID) bool
}

// AlwaysCommit votes yes unconditionally.
type AlwaysCommit struct{}

func (AlwaysCommit) VoteCommit(core.NodeID) bool { return true }

// ProbabilisticVote votes yes with probability P using a seeded source so
// runs are reproducible.
type ProbabilisticVote struct {
	P   float64
	rng *rand.Rand
}

// NewProbabilisticVote returns a policy voting yes with probability p.
func NewProbabilisticVote(p float64, seed int64) *ProbabilisticVote {
	return &ProbabilisticVote{P: p, rng: rand.New(rand.NewSource(seed))}
}

func (v *ProbabilisticVote) VoteCommit(core.NodeID) bool {
	if v.P >= 1 {
		return true
	}
	if v.P <= 0 {
		return false
	}
	return v.rng.Float64() < v.P
}

// FixedVotes answers no for the listed participants and yes for everybody else.
type FixedVotes map[core.NodeID]bool

func (f FixedVotes) VoteCommit(id core.NodeID) bool {
	commit, ok := f[id]
	if !ok {
		return true
	}
	return commit
}

// PolicyFor picks the policy for a yes-probability: certainty maps to
// AlwaysCommit so that no random numbers are drawn.
func PolicyFor(p float64, seed int64) VotePolicy {
	if p >= 1 {
		return AlwaysCommit{}
	}
	return NewProbabilisticVote(p, seed)
}
