package simulator

import "github.com/Readm/commit_sim/visual"

// VisualBridge forwards snapshots to a visualizer unless running headless.
type VisualBridge struct {
	target    visual.Visualizer
	published int
	lastSeq   int64
	lastNow   float64
	lastPause bool
}

// NewVisualBridge constructs a bridge around target. A nil target behaves
// as headless.
func NewVisualBridge(target visual.Visualizer) *VisualBridge {
	return &VisualBridge{target: target, lastSeq: -1}
}

// IsHeadless reports whether visualization output is disabled.
func (v *VisualBridge) IsHeadless() bool {
	if v == nil || v.target == nil {
		return true
	}
	return v.target.IsHeadless()
}

// Publish emits snap unless nothing changed since the previous one.
func (v *VisualBridge) Publish(snap *visual.Snapshot) bool {
	if v == nil || snap == nil || v.IsHeadless() {
		return false
	}
	f := snap.Frame
	if f.LastEvent == v.lastSeq && f.Now == v.lastNow && snap.Paused == v.lastPause && snap.LastError == "" {
		return false
	}
	v.lastSeq, v.lastNow, v.lastPause = f.LastEvent, f.Now, snap.Paused
	v.published++
	v.target.PublishFrame(snap)
	return true
}

// Force publishes snap even if it looks unchanged.
func (v *VisualBridge) Force(snap *visual.Snapshot) {
	if v == nil {
		return
	}
	v.lastSeq = -1
	v.Publish(snap)
}

// Published returns the number of snapshots handed to the visualizer.
func (v *VisualBridge) Published() int {
	if v == nil {
		return 0
	}
	return v.published
}
