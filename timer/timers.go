package timer

import "github.com/Readm/commit_sim/core"

// Kind names the purpose of a timeout.
type Kind string

const (
	KindVote     Kind = "vote-timeout"     // coordinator waiting for votes
	KindDecision Kind = "decision-timeout" // coordinator waiting for acks
	KindReady    Kind = "ready-timeout"    // participant blocked in READY
)

// Handle references an armed timer. The generation makes handles of
// superseded timers compare unequal, so a stale handle can never cancel or
// observe a newer timer. The zero Handle is never valid.
type Handle struct {
	Owner core.NodeID
	Gen   uint64
}

// Valid reports whether the handle was produced by Arm.
func (h Handle) Valid() bool {
	return h.Gen != 0
}

// Timer is a scheduled timeout owned by one node.
type Timer struct {
	Handle   Handle
	Kind     Kind
	Deadline float64
	seq      int64
}

// Wheel keeps at most one pending timer per owner.
type Wheel struct {
	slots map[core.NodeID]*Timer
	gen   uint64
	seq   int64
}

// NewWheel creates an empty timer wheel.
func NewWheel() *Wheel {
	return &Wheel{slots: make(map[core.NodeID]*Timer)}
}

// Arm schedules a timer for owner, replacing any timer it already had.
func (w *Wheel) Arm(owner core.NodeID, kind Kind, deadline float64) Handle {
	w.gen++
	w.seq++
	t := &Timer{
		Handle:   Handle{Owner: owner, Gen: w.gen},
		Kind:     kind,
		Deadline: deadline,
		seq:      w.seq,
	}
	w.slots[owner] = t
	return t.Handle
}

// Cancel removes the timer referenced by h. It returns false when h is stale
// or the timer already fired.
func (w *Wheel) Cancel(h Handle) bool {
	if w == nil || !h.Valid() {
		return false
	}
	t, ok := w.slots[h.Owner]
	if !ok || t.Handle != h {
		return false
	}
	delete(w.slots, h.Owner)
	return true
}

// Pending returns the timer owner has armed, if any.
func (w *Wheel) Pending(owner core.NodeID) (Timer, bool) {
	if w == nil {
		return Timer{}, false
	}
	t, ok := w.slots[owner]
	if !ok {
		return Timer{}, false
	}
	return *t, true
}

// Peek returns the earliest timer regardless of deadline. Ties go to the
// timer armed first.
func (w *Wheel) Peek() (Timer, bool) {
	if w == nil {
		return Timer{}, false
	}
	var best *Timer
	for _, t := range w.slots {
		if best == nil || t.Deadline < best.Deadline || (t.Deadline == best.Deadline && t.seq < best.seq) {
			best = t
		}
	}
	if best == nil {
		return Timer{}, false
	}
	return *best, true
}

// Len returns the number of pending timers.
func (w *Wheel) Len() int {
	if w == nil {
		return 0
	}
	return len(w.slots)
}
