package simulator

import (
	"context"

	"github.com/Readm/commit_sim/visual"
)

// CommandSource provides control commands from an external producer.
type CommandSource interface {
	NextCommand() (visual.ControlCommand, bool)
	WaitCommand(context.Context) (visual.ControlCommand, bool)
}

// CommandHandlerFunc applies one command. Returning false stops the loop.
type CommandHandlerFunc func(visual.ControlCommand) bool

// CommandLoop drains and dispatches control commands.
type CommandLoop struct {
	source  CommandSource
	handler CommandHandlerFunc
	handled int
}

// NewCommandLoop creates a command loop with the given source and handler.
func NewCommandLoop(source CommandSource, handler CommandHandlerFunc) *CommandLoop {
	return &CommandLoop{
		source:  source,
		handler: handler,
	}
}

// Handled returns how many commands were dispatched so far.
func (c *CommandLoop) Handled() int {
	if c == nil {
		return 0
	}
	return c.handled
}

// DrainPending dispatches every queued command without blocking. It returns
// false once the handler asks to stop.
func (c *CommandLoop) DrainPending() bool {
	if c == nil || c.handler == nil || c.source == nil {
		return true
	}
	for {
		cmd, ok := c.source.NextCommand()
		if !ok {
			return true
		}
		if !c.dispatch(cmd) {
			return false
		}
	}
}

// WaitAndHandle blocks until a command is available or ctx ends.
func (c *CommandLoop) WaitAndHandle(ctx context.Context) bool {
	if c == nil || c.handler == nil || c.source == nil {
		return true
	}
	cmd, ok := c.source.WaitCommand(ctx)
	if !ok {
		return true
	}
	return c.dispatch(cmd)
}

func (c *CommandLoop) dispatch(cmd visual.ControlCommand) bool {
	if cmd.Type == visual.CommandNone {
		return true
	}
	c.handled++
	return c.handler(cmd)
}
