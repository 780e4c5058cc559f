package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/engine"
	"github.com/Readm/commit_sim/hooks"
)

func contextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}

func quietLogger(t *testing.T) {
	t.Helper()
	prev := GetLogger()
	var buf bytes.Buffer
	SetLogger(NewLoggerTo(&buf, LogLevelError, "[2PC] "))
	t.Cleanup(func() { SetLogger(prev) })
}

func TestHeadlessRunPrintsOutcome(t *testing.T) {
	quietLogger(t)
	var out bytes.Buffer
	if err := run([]string{"-headless", "-failure-mode", "participant_phase1", "-log-level", "error"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	text := out.String()
	for _, want := range []string{"=== Plan participant_phase1 ===", "Outcome: GLOBAL_ABORT", "Matches expectation: true", "PREPARE"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestHeadlessRunArchivesReport(t *testing.T) {
	quietLogger(t)
	dir := t.TempDir()
	var out bytes.Buffer
	if err := run([]string{"-headless", "-archive", dir, "-log-level", "error"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	opts, err := parseFlags([]string{"-headless", "-archive", dir})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	a, err := newApp(opts)
	if err != nil {
		t.Fatalf("reopen archive: %v", err)
	}
	defer a.Close()
	n, err := a.store.Count()
	if err != nil || n != 1 {
		t.Fatalf("expected 1 archived run, got %d (%v)", n, err)
	}
}

func TestParseFlagsOverridesPreset(t *testing.T) {
	opts, err := parseFlags([]string{"-config", "reluctant_participants", "-participants", "2", "-speed", "4", "-plugins", "chaos/flaky@P1, instrumentation/counters"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	cfg := opts.cfg
	if cfg.Participants != 2 || cfg.Engine.ClockSpeed != 4 || cfg.Engine.VoteYesProbability != 0.8 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if len(cfg.Plugins) != 2 || cfg.Plugins[0] != "chaos/flaky@P1" {
		t.Errorf("unexpected plugins %v", cfg.Plugins)
	}
	if _, err := parseFlags([]string{"-config", "missing"}); err == nil {
		t.Errorf("unknown preset should fail")
	}
	if _, err := parseFlags([]string{"-failure-mode", "meteor"}); err == nil {
		t.Errorf("unknown failure mode should fail")
	}
}

func TestNewAppLoadsNodePlugins(t *testing.T) {
	quietLogger(t)
	opts, err := parseFlags([]string{"-headless", "-plugins", "chaos/flaky@P2", "-drop-prob", "1"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	a, err := newApp(opts)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()
	got := map[string]bool{}
	for _, d := range a.broker.ListAllPlugins() {
		got[d.Name] = true
	}
	for _, want := range []string{"chaos/drop", "chaos/flaky", "instrumentation/log", "instrumentation/counters"} {
		if !got[want] {
			t.Errorf("plugin %s not loaded, have %v", want, got)
		}
	}

	reg := hooks.NewRegistry(nil)
	if err := loadPlugins(reg, []string{"chaos/flaky@Q"}); err == nil {
		t.Errorf("bad node label should fail")
	}

	opts, err = parseFlags([]string{"-headless", "-participants", "3", "-plugins", "chaos/flaky@P9"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if _, err := newApp(opts); !errors.Is(err, core.ErrUnknownNode) {
		t.Errorf("plugin for P9 with 3 participants: expected ErrUnknownNode, got %v", err)
	}
}

func TestRunInteractiveStopsWithContext(t *testing.T) {
	quietLogger(t)
	opts, err := parseFlags([]string{"-addr", "127.0.0.1:0", "-speed", "50", "-failure-mode", "none"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	a, err := newApp(opts)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()
	ctx, cancel := contextWithTimeout(300 * time.Millisecond)
	defer cancel()
	var out bytes.Buffer
	if err := runInteractive(ctx, a, &out); err != nil {
		t.Fatalf("runInteractive: %v", err)
	}
	if a.session.Stats().Total != 1 || !strings.Contains(out.String(), "Committed: 1") {
		t.Errorf("expected one committed transaction, stats %+v", a.session.Stats())
	}
}

func TestPresetsValidate(t *testing.T) {
	for _, nc := range GetPredefinedConfigs() {
		cfg := GetConfigByName(nc.Name)
		if err := ValidateConfig(cfg); err != nil {
			t.Errorf("%s: %v", nc.Name, err)
		}
		if cfg.Name != nc.Name {
			t.Errorf("%s: name not copied", nc.Name)
		}
	}
	if GetConfigByName("nope") != nil {
		t.Errorf("unknown name should return nil")
	}
}

func TestValidateConfigDefaults(t *testing.T) {
	cfg := &Config{Headless: true}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("ValidateConfig: %v", err)
	}
	if cfg.Participants != DefaultParticipants || cfg.VisualMode != "none" || cfg.Engine != engine.DefaultConfig() {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	bad := []*Config{
		{Participants: -1},
		{DropProbability: 2},
		{VisualMode: "fyne"},
		{LogLevel: "loud"},
		{Engine: engine.Config{VoteTimeoutMs: -1}},
	}
	for i, c := range bad {
		if err := ValidateConfig(c); err == nil {
			t.Errorf("case %d should fail", i)
		}
	}
	if ValidateConfig(nil) == nil {
		t.Errorf("nil config should fail")
	}
}

func TestConfigHashTracksEngineConfig(t *testing.T) {
	a := engine.DefaultConfig()
	b := a
	b.LinkLatencyMs = 100
	if computeConfigHash(a) == computeConfigHash(b) || computeConfigHash(a) != computeConfigHash(engine.DefaultConfig()) {
		t.Errorf("hash should depend only on the config values")
	}
}

func TestEventLevels(t *testing.T) {
	var buf bytes.Buffer
	prev := GetLogger()
	SetLogger(NewLoggerTo(&buf, LogLevelInfo, "[2PC] "))
	defer SetLogger(prev)

	b := hooks.NewPluginBroker()
	installEventLogging(b)
	s, _ := engine.NewSession(engine.DefaultConfig(), engine.WithBroker(b))
	s.Initialize(1)
	s.StartTransaction()
	s.Tick(100)
	text := buf.String()
	if !strings.Contains(text, "[2PC] ") || !strings.Contains(text, "WAIT_VOTES") {
		t.Errorf("state changes should be logged at info:\n%s", text)
	}
	if strings.Contains(text, "sent PREPARE") {
		t.Errorf("sends are debug-level and should be filtered:\n%s", text)
	}
}

func TestNewAppBoundsSessionEventLog(t *testing.T) {
	quietLogger(t)
	opts, err := parseFlags([]string{"-headless", "-participants", "1"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	a, err := newApp(opts)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()
	s := a.session
	if err := s.StartTransaction(); err != nil {
		t.Fatalf("StartTransaction: %v", err)
	}
	if err := s.Tick(2600); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if err := s.FailNode(0); err != nil {
		t.Fatalf("FailNode: %v", err)
	}
	// P1 keeps re-querying a dead coordinator.
	if err := s.Tick(5e6); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := len(s.Events()); got != eventFeedLimit {
		t.Fatalf("expected %d retained events, got %d", eventFeedLimit, got)
	}
}
