package core

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeID identifies a process in the simulation. The coordinator is always 0.
type NodeID int

// CoordinatorID is the id assigned to the coordinator at setup.
const CoordinatorID NodeID = 0

// Role represents the 2PC role of a node.
type Role string

const (
	RoleCoordinator Role = "Coordinator"
	RoleParticipant Role = "Participant"
)

// Label returns the display label: "C" for the coordinator, "P<n>" otherwise.
func (id NodeID) Label() string {
	if id == CoordinatorID {
		return "C"
	}
	return fmt.Sprintf("P%d", int(id))
}

// ParseNodeID accepts a label ("C", "P2") or a bare number ("0", "2").
func ParseNodeID(s string) (NodeID, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.EqualFold(s, "C"):
		return CoordinatorID, nil
	case len(s) > 1 && (s[0] == 'P' || s[0] == 'p'):
		s = s[1:]
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%q: %w", s, ErrUnknownNode)
	}
	return NodeID(n), nil
}

// NodeInfo represents node information for status readouts.
type NodeInfo struct {
	ID    NodeID `json:"id"`
	Label string `json:"label"`
	Role  Role   `json:"role"`
	State State  `json:"state"`
	Alive bool   `json:"alive"`
}

// LinkKey identifies the undirected link between two nodes. A is always the smaller id.
type LinkKey struct {
	A NodeID `json:"a"`
	B NodeID `json:"b"`
}

// NewLinkKey normalizes the pair so that {a,b} and {b,a} map to the same key.
func NewLinkKey(a, b NodeID) LinkKey {
	if a > b {
		a, b = b, a
	}
	return LinkKey{A: a, B: b}
}

// Touches reports whether the link has id as one of its endpoints.
func (k LinkKey) Touches(id NodeID) bool {
	return k.A == id || k.B == id
}

// Other returns the endpoint opposite to id.
func (k LinkKey) Other(id NodeID) NodeID {
	if k.A == id {
		return k.B
	}
	return k.A
}

func (k LinkKey) String() string {
	return k.A.Label() + "<->" + k.B.Label()
}
