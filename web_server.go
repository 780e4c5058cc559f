package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Readm/commit_sim/archive"
	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/hooks"
	"github.com/Readm/commit_sim/visual"
)

const (
	commandQueueSize = 32
	eventFeedLimit   = 2000
)

// WebServer provides HTTP and WebSocket endpoints for visualization and control.
// The driver goroutine publishes snapshots; handlers only read them.
type WebServer struct {
	mu       sync.RWMutex
	latest   *visual.Snapshot
	events   []core.Event
	commands CommandQueue
	store    *archive.Store
	broker   *hooks.PluginBroker
	hub      *wsHub
	server   *http.Server
	addr     string
}

// NewWebServer creates a server. store and broker may be nil.
func NewWebServer(addr string, store *archive.Store, broker *hooks.PluginBroker) *WebServer {
	ws := &WebServer{
		commands: newChannelCommandQueue(commandQueueSize),
		store:    store,
		broker:   broker,
		hub:      newHub(),
		addr:     addr,
	}
	ws.server = &http.Server{
		Addr:              addr,
		Handler:           NewRouter(ws),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

func (ws *WebServer) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/frame", ws.handleFrame)
	mux.HandleFunc("/api/events", ws.handleEvents)
	mux.HandleFunc("/api/stats", ws.handleStats)
	mux.HandleFunc("/api/scenario", ws.handleScenario)
	mux.HandleFunc("/api/scenarios", ws.handleScenarios)
	mux.HandleFunc("/api/configs", ws.handleConfigs)
	mux.HandleFunc("/api/plans", ws.handlePlans)
	mux.HandleFunc("/api/plugins", ws.handlePlugins)
	mux.HandleFunc("/api/runs", ws.handleRuns)
	mux.HandleFunc("/api/runs/", ws.handleRun)
	mux.HandleFunc("/api/control", ws.handleControl)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.hub.handle(ws, w, r)
	})
}

// Start listens on the configured address and serves in a goroutine.
func (ws *WebServer) Start() error {
	ln, err := net.Listen("tcp", ws.addr)
	if err != nil {
		return err
	}
	ws.addr = ln.Addr().String()
	go func() {
		if err := ws.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			GetLogger().Errorf("web server stopped: %v", err)
		}
	}()
	return nil
}

// Addr returns the listen address, resolved once Start has run.
func (ws *WebServer) Addr() string {
	return ws.addr
}

// Shutdown stops the HTTP server and the WebSocket hub.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	ws.hub.stop()
	return ws.server.Shutdown(ctx)
}

// UpdateFrame stores the latest snapshot and pushes it to WebSocket clients.
func (ws *WebServer) UpdateFrame(snap *visual.Snapshot) {
	if snap == nil {
		return
	}
	ws.mu.Lock()
	ws.latest = snap
	ws.mu.Unlock()
	ws.hub.broadcastFrame(snap)
}

func (ws *WebServer) snapshot() *visual.Snapshot {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.latest
}

// recordEvent is an event hook feeding /api/events.
func (ws *WebServer) recordEvent(ctx *hooks.EventContext) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.events = append(ws.events, ctx.Event)
	if over := len(ws.events) - eventFeedLimit; over > 0 {
		ws.events = append([]core.Event(nil), ws.events[over:]...)
	}
	return nil
}

func (ws *WebServer) eventsSince(seq int64) []core.Event {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	out := make([]core.Event, 0)
	for _, ev := range ws.events {
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}

// NextCommand returns the next control command if available, non-blocking.
func (ws *WebServer) NextCommand() (visual.ControlCommand, bool) {
	return ws.commands.TryDequeue()
}

// WaitCommand blocks until a command is queued or ctx ends.
func (ws *WebServer) WaitCommand(ctx context.Context) (visual.ControlCommand, bool) {
	return ws.commands.Next(ctx)
}

func (ws *WebServer) queueCommand(cmd visual.ControlCommand) bool {
	return ws.commands.Enqueue(cmd)
}
