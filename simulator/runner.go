package simulator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/engine"
	"github.com/Readm/commit_sim/visual"
)

const (
	DefaultTickInterval = 50 * time.Millisecond
	DefaultStepMs       = 250.0
)

// planEpsilon absorbs float drift when matching step times.
const planEpsilon = 1e-6

// Options tune the real-time driver.
type Options struct {
	Participants int
	TickInterval time.Duration
	StepMs       float64 // simulated ms advanced by a manual step
	StartPaused  bool
	OnError      func(error)
	ConfigHash   func(engine.Config) string
}

// planRun tracks a scripted plan played back in real time.
type planRun struct {
	plan  engine.Plan
	steps []engine.Step
	base  float64
	next  int
}

func (p *planRun) applyDue(s *engine.Session) error {
	elapsed := s.Now() - p.base
	for p.next < len(p.steps) && p.steps[p.next].At <= elapsed+planEpsilon {
		if err := p.steps[p.next].Apply(s); err != nil {
			p.next++
			return fmt.Errorf("plan %s step %d: %w", p.plan.Name, p.next-1, err)
		}
		p.next++
	}
	return nil
}

func (p *planRun) nextAt() (float64, bool) {
	if p.next >= len(p.steps) {
		return 0, false
	}
	return p.base + p.steps[p.next].At, true
}

// Runner owns a session and drives it from wall-clock time and control
// commands. It is not safe for concurrent use; run it on one goroutine.
type Runner struct {
	session *engine.Session
	loop    *CommandLoop
	bridge  *VisualBridge
	opts    Options

	paused  bool
	plan    *planRun
	lastErr error
	stopped bool
}

// NewRunner wires a session to a command source and a visual bridge.
func NewRunner(session *engine.Session, source CommandSource, bridge *VisualBridge, opts Options) *Runner {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.StepMs <= 0 {
		opts.StepMs = DefaultStepMs
	}
	if opts.Participants <= 0 {
		opts.Participants = 3
	}
	r := &Runner{session: session, bridge: bridge, opts: opts, paused: opts.StartPaused}
	r.loop = NewCommandLoop(source, r.handleCommand)
	return r
}

// Session returns the driven session.
func (r *Runner) Session() *engine.Session { return r.session }

// Paused reports whether real-time advancement is suspended.
func (r *Runner) Paused() bool { return r.paused }

// LastError returns the error of the most recent failed command.
func (r *Runner) LastError() error { return r.lastErr }

// Run advances the session in real time until ctx ends. While paused it
// blocks on the command source instead of ticking.
func (r *Runner) Run(ctx context.Context) error {
	if !r.session.Initialized() {
		if err := r.session.Initialize(r.opts.Participants); err != nil {
			return err
		}
	}
	r.publish(true)
	ticker := time.NewTicker(r.opts.TickInterval)
	defer ticker.Stop()
	last := time.Now()
	for {
		if r.paused {
			if !r.loop.WaitAndHandle(ctx) || r.stopped {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			last = time.Now()
			r.publish(false)
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if !r.loop.DrainPending() || r.stopped {
				return nil
			}
			if !r.paused {
				wall := float64(now.Sub(last)) / float64(time.Millisecond)
				if err := r.advance(wall); err != nil {
					r.fail(err)
				}
				if err := r.session.Fatal(); err != nil {
					return err
				}
			}
			last = now
			r.publish(false)
		}
	}
}

// Handle applies one command synchronously.
func (r *Runner) Handle(cmd visual.ControlCommand) error {
	s := r.session
	switch cmd.Type {
	case visual.CommandNone:
		return nil
	case visual.CommandPause:
		r.paused = true
	case visual.CommandResume:
		r.paused = false
	case visual.CommandStep:
		ms := cmd.StepMs
		if ms <= 0 {
			ms = r.opts.StepMs
		}
		return r.advance(ms / s.Config().ClockSpeed)
	case visual.CommandStart:
		if !s.Initialized() {
			if err := s.Initialize(r.opts.Participants); err != nil {
				return err
			}
		}
		return s.StartTransaction()
	case visual.CommandReset:
		return r.reset(cmd)
	case visual.CommandFail, visual.CommandRecover:
		id, err := core.ParseNodeID(cmd.Node)
		if err != nil {
			return core.NewCommandError(string(cmd.Type), err)
		}
		if cmd.Type == visual.CommandFail {
			return s.FailNode(id)
		}
		return s.RecoverNode(id)
	case visual.CommandToggle:
		a, err := core.ParseNodeID(cmd.Node)
		if err != nil {
			return core.NewCommandError("toggle", err)
		}
		b, err := core.ParseNodeID(cmd.Peer)
		if err != nil {
			return core.NewCommandError("toggle", err)
		}
		return s.ToggleLink(a, b)
	case visual.CommandDrop:
		return s.DropMessage(cmd.Message)
	case visual.CommandScenario:
		r.plan = nil
		return s.SetScenario(cmd.Scenario)
	case visual.CommandConfig:
		if cmd.Config == nil {
			return core.NewCommandError("config", fmt.Errorf("missing config: %w", core.ErrInvalidCommand))
		}
		return s.SetConfig(*cmd.Config)
	case visual.CommandPlan:
		return r.startPlan(cmd.Plan)
	default:
		return core.NewCommandError(string(cmd.Type), core.ErrInvalidCommand)
	}
	return nil
}

// Stop makes Run return after the current command.
func (r *Runner) Stop() { r.stopped = true }

// Snapshot builds the published view of the session.
func (r *Runner) Snapshot() *visual.Snapshot {
	snap := &visual.Snapshot{
		Frame:     r.session.Frame(),
		Paused:    r.paused,
		Scenarios: r.session.Catalog().Entries(),
	}
	if r.opts.ConfigHash != nil {
		snap.ConfigHash = r.opts.ConfigHash(r.session.Config())
	}
	if r.lastErr != nil {
		snap.LastError = r.lastErr.Error()
	}
	return snap
}

func (r *Runner) handleCommand(cmd visual.ControlCommand) bool {
	if err := r.Handle(cmd); err != nil {
		r.fail(err)
	} else {
		r.lastErr = nil
	}
	return !r.stopped
}

func (r *Runner) fail(err error) {
	r.lastErr = err
	if r.opts.OnError != nil {
		r.opts.OnError(err)
	}
}

func (r *Runner) publish(force bool) {
	if r.bridge == nil || r.bridge.IsHeadless() {
		return
	}
	if force {
		r.bridge.Force(r.Snapshot())
		return
	}
	r.bridge.Publish(r.Snapshot())
}

func (r *Runner) reset(cmd visual.ControlCommand) error {
	s := r.session
	r.plan = nil
	n := cmd.Participants
	if n <= 0 {
		n = s.Participants()
	}
	if n <= 0 {
		n = r.opts.Participants
	}
	if err := s.Initialize(n); err != nil {
		return err
	}
	if cmd.Config != nil {
		return s.SetConfig(*cmd.Config)
	}
	return nil
}

func (r *Runner) startPlan(name string) error {
	s := r.session
	if !s.Initialized() {
		if err := s.Initialize(r.opts.Participants); err != nil {
			return err
		}
	}
	plan, err := engine.PresetPlan(name, s.Participants(), s.Config())
	if err != nil {
		return core.NewCommandError("plan", fmt.Errorf("%v: %w", err, core.ErrInvalidCommand))
	}
	if err := s.StartTransaction(); err != nil {
		return err
	}
	steps := append([]engine.Step(nil), plan.Steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].At < steps[j].At })
	r.plan = &planRun{plan: plan, steps: steps, base: s.Now()}
	return r.plan.applyDue(s)
}

// advance moves the session forward by wallMs of wall-clock time, pausing
// at scripted step times so steps land exactly when due.
func (r *Runner) advance(wallMs float64) error {
	s := r.session
	speed := s.Config().ClockSpeed
	for wallMs > 0 {
		chunk := wallMs
		if p := r.plan; p != nil {
			if err := p.applyDue(s); err != nil {
				return err
			}
			if at, ok := p.nextAt(); ok {
				if wait := (at - s.Now()) / speed; wait < chunk {
					chunk = wait
				}
			}
		}
		if err := s.Tick(chunk); err != nil {
			return err
		}
		wallMs -= chunk
	}
	if p := r.plan; p != nil {
		if err := p.applyDue(s); err != nil {
			return err
		}
		if _, ok := p.nextAt(); !ok {
			r.plan = nil
		}
	}
	return nil
}
