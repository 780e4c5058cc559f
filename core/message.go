package core

// MessageType represents 2PC protocol message types.
type MessageType string

const (
	MsgPrepare       MessageType = "PREPARE"
	MsgVoteCommit    MessageType = "VOTE_COMMIT"
	MsgVoteAbort     MessageType = "VOTE_ABORT"
	MsgGlobalCommit  MessageType = "GLOBAL_COMMIT"
	MsgGlobalAbort   MessageType = "GLOBAL_ABORT"
	MsgAckCommit     MessageType = "ACK_COMMIT"
	MsgAckAbort      MessageType = "ACK_ABORT"
	MsgQueryDecision MessageType = "QUERY_DECISION"
)

// IsVote returns true for VOTE_COMMIT and VOTE_ABORT.
func (t MessageType) IsVote() bool {
	return t == MsgVoteCommit || t == MsgVoteAbort
}

// IsDecision returns true for GLOBAL_COMMIT and GLOBAL_ABORT.
func (t MessageType) IsDecision() bool {
	return t == MsgGlobalCommit || t == MsgGlobalAbort
}

// IsAck returns true for ACK_COMMIT and ACK_ABORT.
func (t MessageType) IsAck() bool {
	return t == MsgAckCommit || t == MsgAckAbort
}

// Outcome returns the outcome carried by a decision or ack message.
func (t MessageType) Outcome() (Outcome, bool) {
	switch t {
	case MsgGlobalCommit, MsgAckCommit:
		return OutcomeCommit, true
	case MsgGlobalAbort, MsgAckAbort:
		return OutcomeAbort, true
	default:
		return "", false
	}
}

// Message is the envelope of one protocol message on a link.
// It is immutable once the transport has enqueued it.
type Message struct {
	ID        int64       `json:"id"`
	Seq       int64       `json:"seq"` // send order, breaks arrival ties
	Type      MessageType `json:"type"`
	Sender    NodeID      `json:"sender"`
	Receiver  NodeID      `json:"receiver"`
	SentAt    float64     `json:"sentAt"`
	ArrivalAt float64     `json:"arrivalAt"`
	Link      LinkKey     `json:"link"`
}

// Deliverable reports whether simulated time has reached the arrival time.
func (m *Message) Deliverable(now float64) bool {
	if m == nil {
		return false
	}
	return now >= m.ArrivalAt
}

// Progress returns the fraction of the trip completed at now, within [0,1].
func (m *Message) Progress(now float64) float64 {
	if m == nil {
		return 0
	}
	span := m.ArrivalAt - m.SentAt
	if span <= 0 {
		return 1
	}
	p := (now - m.SentAt) / span
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Before orders messages by arrival time, then by send order.
func (m *Message) Before(other *Message) bool {
	if m.ArrivalAt != other.ArrivalAt {
		return m.ArrivalAt < other.ArrivalAt
	}
	return m.Seq < other.Seq
}

// MessageInfo represents an in-flight message for visualization.
type MessageInfo struct {
	ID       int64       `json:"id"`
	Type     MessageType `json:"type"`
	Sender   NodeID      `json:"sender"`
	Receiver NodeID      `json:"receiver"`
	Progress float64     `json:"progress"`
	LinkUp   bool        `json:"linkUp"`
}

// MessageIDAllocator provides unique ids for messages.
type MessageIDAllocator struct {
	next int64
}

func NewMessageIDAllocator() *MessageIDAllocator {
	return &MessageIDAllocator{next: 1}
}

func (a *MessageIDAllocator) Allocate() int64 {
	id := a.next
	a.next++
	return id
}
