package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Readm/commit_sim/archive"
	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/engine"
	"github.com/Readm/commit_sim/hooks"
	pluginarchive "github.com/Readm/commit_sim/plugins/archive"
	"github.com/Readm/commit_sim/plugins/chaos"
	"github.com/Readm/commit_sim/plugins/instrumentation"
	"github.com/Readm/commit_sim/simulator"
	"github.com/Readm/commit_sim/visual"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		GetLogger().Errorf("%v", err)
		os.Exit(1)
	}
}

type options struct {
	cfg       *Config
	unlockAll bool
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("commit_sim", flag.ContinueOnError)
	configName := fs.String("config", "", "Predefined configuration name (e.g. 'classic', 'fast_forward')")
	headless := fs.Bool("headless", false, "Run one scripted transaction without the web UI and exit")
	participants := fs.Int("participants", 0, "Number of participants")
	scenarioKey := fs.String("scenario", "", "Scenario name or tier")
	unlockAll := fs.Bool("unlock-all", false, "Unlock every scenario tier")
	failureMode := fs.String("failure-mode", "", "Scripted failure mode: "+strings.Join(engine.FailureModes(), ", "))
	addr := fs.String("addr", "", "Web server listen address")
	archiveDir := fs.String("archive", "", "Directory of the pebble run archive (disabled when empty)")
	plugins := fs.String("plugins", "", "Comma-separated plugins to load; node plugins take @node, e.g. chaos/flaky@P2")
	dropProb := fs.Float64("drop-prob", 0, "Probability that a send is lost (loads chaos/drop)")
	logLevel := fs.String("log-level", "", "error, warn, info or debug")
	until := fs.Float64("until", 0, "Simulated ms limit for headless runs")
	speed := fs.Float64("speed", 0, "Clock speed multiplier")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if *configName != "" {
		if cfg = GetConfigByName(*configName); cfg == nil {
			return nil, fmt.Errorf("configuration %q not found", *configName)
		}
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["headless"] {
		cfg.Headless = *headless
	}
	if *participants != 0 {
		cfg.Participants = *participants
	}
	if *scenarioKey != "" {
		cfg.Scenario = *scenarioKey
	}
	if *failureMode != "" {
		cfg.FailureMode = *failureMode
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *archiveDir != "" {
		cfg.ArchiveDir = *archiveDir
	}
	if *plugins != "" {
		for _, p := range strings.Split(*plugins, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Plugins = append(cfg.Plugins, p)
			}
		}
	}
	if set["drop-prob"] {
		cfg.DropProbability = *dropProb
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *until != 0 {
		cfg.UntilMs = *until
	}
	if *speed != 0 {
		if cfg.Engine == (engine.Config{}) {
			cfg.Engine = engine.DefaultConfig()
		}
		cfg.Engine.ClockSpeed = *speed
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &options{cfg: cfg, unlockAll: *unlockAll}, nil
}

// app is the wired process: session, plugins and optional archive.
type app struct {
	cfg      *Config
	broker   *hooks.PluginBroker
	registry *hooks.Registry
	session  *engine.Session
	store    *archive.Store
	counters *instrumentation.Counters
	dropper  *chaos.Dropper
}

func newApp(opts *options) (*app, error) {
	cfg := opts.cfg
	level, _ := ParseLogLevel(cfg.LogLevel)
	GetLogger().SetLevel(level)

	a := &app{cfg: cfg, broker: hooks.NewPluginBroker(), counters: instrumentation.NewCounters()}
	a.registry = hooks.NewRegistry(a.broker)
	if err := instrumentation.Register(a.registry, instrumentation.Options{
		Factories: map[string]instrumentation.Factory{"log": installEventLogging},
		Counters:  a.counters,
	}); err != nil {
		return nil, err
	}
	dropper, err := chaos.Register(a.registry, chaos.Options{DropProbability: cfg.DropProbability, Seed: cfg.Engine.Seed})
	if err != nil {
		return nil, err
	}
	a.dropper = dropper

	names := []string{instrumentation.PluginName("log"), instrumentation.CountersPluginName}
	if cfg.DropProbability > 0 {
		names = append(names, chaos.DropPluginName)
	}
	if cfg.ArchiveDir != "" {
		store, err := archive.Open(cfg.ArchiveDir, archive.Options{Sync: true})
		if err != nil {
			return nil, err
		}
		a.store = store
		if err := pluginarchive.Register(a.registry, pluginarchive.Options{
			Store: store,
			OnArchived: func(r archive.RunReport) {
				GetLogger().Infof("archived run %s (%s, %s)", r.ID, r.Summary.Outcome, r.Summary.Verdict)
			},
		}); err != nil {
			a.Close()
			return nil, err
		}
		names = append(names, pluginarchive.PluginName)
	}
	names = append(names, cfg.Plugins...)
	a.registry.SetParticipants(cfg.Participants)
	if err := loadPlugins(a.registry, dedupe(names)); err != nil {
		a.Close()
		return nil, err
	}

	session, err := engine.NewSession(cfg.Engine, engine.WithBroker(a.broker), engine.WithEventLimit(eventFeedLimit))
	if err != nil {
		a.Close()
		return nil, err
	}
	if opts.unlockAll {
		session.Catalog().UnlockAll()
	}
	if err := session.Initialize(cfg.Participants); err != nil {
		a.Close()
		return nil, err
	}
	if cfg.Scenario != "" {
		if err := session.SetScenario(cfg.Scenario); err != nil {
			a.Close()
			return nil, err
		}
	}
	a.session = session
	return a, nil
}

// Close releases the archive.
func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// loadPlugins loads global plugins by name and node plugins given as name@node.
func loadPlugins(reg *hooks.Registry, names []string) error {
	for _, name := range names {
		plugin, node, scoped := strings.Cut(name, "@")
		if !scoped {
			if err := reg.LoadGlobal([]string{plugin}); err != nil {
				return err
			}
			continue
		}
		id, err := core.ParseNodeID(node)
		if err != nil {
			return fmt.Errorf("plugin %s: %w", name, err)
		}
		if err := reg.LoadForNode(id, []string{plugin}); err != nil {
			return err
		}
	}
	return nil
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func run(args []string, out io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Headless {
		return runHeadless(a, out)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runInteractive(ctx, a, out)
}

// runInteractive drives the session in real time until ctx ends.
func runInteractive(ctx context.Context, a *app, out io.Writer) error {
	cfg := a.cfg
	var server *WebServer
	if cfg.VisualMode == "web" {
		server = NewWebServer(cfg.Addr, a.store, a.broker)
		a.broker.RegisterEvent(server.recordEvent)
		if err := server.Start(); err != nil {
			return fmt.Errorf("start web server: %w", err)
		}
		GetLogger().Infof("Web server started at http://%s", server.Addr())
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}
	v, err := selectVisualizer(a.registry, cfg, server)
	if err != nil {
		return err
	}
	runner := simulator.NewRunner(a.session, v, simulator.NewVisualBridge(v), simulator.Options{
		Participants: cfg.Participants,
		TickInterval: cfg.TickInterval(),
		StepMs:       cfg.StepMs,
		OnError:      func(err error) { GetLogger().Warnf("command failed: %v", err) },
		ConfigHash:   computeConfigHash,
	})
	if cfg.FailureMode != "" {
		if err := runner.Handle(visual.ControlCommand{Type: visual.CommandPlan, Plan: cfg.FailureMode}); err != nil {
			return err
		}
	}
	err = runner.Run(ctx)
	PrintStats(out, a.session.Stats())
	return err
}
