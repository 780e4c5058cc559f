package visual

import (
	"context"

	"github.com/Readm/commit_sim/engine"
	"github.com/Readm/commit_sim/scenario"
)

// ControlCommandType represents types of control instructions from UI.
type ControlCommandType string

const (
	CommandNone     ControlCommandType = "none"
	CommandPause    ControlCommandType = "pause"
	CommandResume   ControlCommandType = "resume"
	CommandReset    ControlCommandType = "reset"
	CommandStep     ControlCommandType = "step"
	CommandStart    ControlCommandType = "start"
	CommandFail     ControlCommandType = "fail"
	CommandRecover  ControlCommandType = "recover"
	CommandToggle   ControlCommandType = "toggle"
	CommandDrop     ControlCommandType = "drop"
	CommandScenario ControlCommandType = "scenario"
	CommandConfig   ControlCommandType = "config"
	CommandPlan     ControlCommandType = "plan"
)

// ControlCommand captures a control instruction for the simulator.
// Node and Peer are labels ("C", "P2"); StepMs is simulated time for step.
type ControlCommand struct {
	Type         ControlCommandType `json:"type"`
	Node         string             `json:"node,omitempty"`
	Peer         string             `json:"peer,omitempty"`
	Message      int64              `json:"message,omitempty"`
	Scenario     string             `json:"scenario,omitempty"`
	Plan         string             `json:"plan,omitempty"`
	Participants int                `json:"participants,omitempty"`
	StepMs       float64            `json:"stepMs,omitempty"`
	Config       *engine.Config     `json:"config,omitempty"`
}

// Snapshot is what the driver publishes after every change.
type Snapshot struct {
	Frame      engine.Frame     `json:"frame"`
	Paused     bool             `json:"paused"`
	Scenarios  []scenario.Entry `json:"scenarios"`
	ConfigHash string           `json:"configHash,omitempty"`
	LastError  string           `json:"lastError,omitempty"`
}

// Visualizer defines methods for visualization implementations.
type Visualizer interface {
	SetHeadless(headless bool)
	IsHeadless() bool
	PublishFrame(snap *Snapshot)
	NextCommand() (ControlCommand, bool)
	WaitCommand(ctx context.Context) (ControlCommand, bool)
}

// NullVisualizer is a no-op implementation used for headless mode.
type NullVisualizer struct {
	headless bool
	last     *Snapshot
}

// NewNullVisualizer creates a new NullVisualizer.
func NewNullVisualizer() *NullVisualizer {
	return &NullVisualizer{headless: true}
}

func (n *NullVisualizer) SetHeadless(headless bool) {
	n.headless = headless
}

func (n *NullVisualizer) IsHeadless() bool {
	return n.headless
}

// PublishFrame keeps only the latest snapshot.
func (n *NullVisualizer) PublishFrame(snap *Snapshot) {
	n.last = snap
}

// Last returns the most recently published snapshot.
func (n *NullVisualizer) Last() *Snapshot {
	return n.last
}

func (n *NullVisualizer) NextCommand() (ControlCommand, bool) {
	return ControlCommand{Type: CommandNone}, false
}

func (n *NullVisualizer) WaitCommand(ctx context.Context) (ControlCommand, bool) {
	<-ctx.Done()
	return ControlCommand{Type: CommandNone}, false
}
