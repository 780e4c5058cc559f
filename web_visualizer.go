package main

import (
	"context"

	"github.com/Readm/commit_sim/visual"
)

// WebVisualizer bridges the driver with the web server.
type WebVisualizer struct {
	headless bool
	server   *WebServer
}

// NewWebVisualizer wraps a started server.
func NewWebVisualizer(server *WebServer) *WebVisualizer {
	return &WebVisualizer{server: server}
}

// SetHeadless switches headless state.
func (w *WebVisualizer) SetHeadless(headless bool) {
	w.headless = headless
}

// IsHeadless returns whether visualizer runs without UI.
func (w *WebVisualizer) IsHeadless() bool {
	return w.headless
}

// PublishFrame updates the server with the latest snapshot.
func (w *WebVisualizer) PublishFrame(snap *visual.Snapshot) {
	if w.server != nil {
		w.server.UpdateFrame(snap)
	}
}

// NextCommand returns the next control command if available, non-blocking.
func (w *WebVisualizer) NextCommand() (visual.ControlCommand, bool) {
	if w.server == nil {
		return visual.ControlCommand{Type: visual.CommandNone}, false
	}
	return w.server.NextCommand()
}

// WaitCommand blocks until a command arrives or ctx ends.
func (w *WebVisualizer) WaitCommand(ctx context.Context) (visual.ControlCommand, bool) {
	if w.server == nil {
		<-ctx.Done()
		return visual.ControlCommand{Type: visual.CommandNone}, false
	}
	return w.server.WaitCommand(ctx)
}
