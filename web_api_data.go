package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Readm/commit_sim/archive"
	"github.com/Readm/commit_sim/engine"
	"github.com/Readm/commit_sim/hooks"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (ws *WebServer) handleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := ws.snapshot()
	if snap == nil {
		http.Error(w, "No frame available", http.StatusNotFound)
		return
	}
	writeJSON(w, snap)
}

func (ws *WebServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "Invalid since parameter", http.StatusBadRequest)
			return
		}
		since = v
	}
	writeJSON(w, ws.eventsSince(since))
}

func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := ws.snapshot()
	if snap == nil {
		http.Error(w, "No stats available", http.StatusNotFound)
		return
	}
	writeJSON(w, snap.Frame.Stats)
}

func (ws *WebServer) handleScenario(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := ws.snapshot()
	if snap == nil {
		http.Error(w, "No scenario available", http.StatusNotFound)
		return
	}
	writeJSON(w, snap.Frame.Scenario)
}

func (ws *WebServer) handleScenarios(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := ws.snapshot()
	if snap == nil {
		http.Error(w, "No scenarios available", http.StatusNotFound)
		return
	}
	writeJSON(w, snap.Scenarios)
}

func (ws *WebServer) handleConfigs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, GetPredefinedConfigs())
}

func (ws *WebServer) handlePlans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cfg := engine.DefaultConfig()
	participants := DefaultParticipants
	if snap := ws.snapshot(); snap != nil {
		cfg = snap.Frame.Config
		if n := len(snap.Frame.Nodes) - 1; n > 0 {
			participants = n
		}
	}
	plans := make([]engine.Plan, 0, len(engine.FailureModes()))
	for _, mode := range engine.FailureModes() {
		p, err := engine.PresetPlan(mode, participants, cfg)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		plans = append(plans, p)
	}
	writeJSON(w, plans)
}

func (ws *WebServer) handlePlugins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var plugins []hooks.PluginDescriptor
	if ws.broker != nil {
		plugins = ws.broker.ListAllPlugins()
	}
	if plugins == nil {
		plugins = []hooks.PluginDescriptor{}
	}
	writeJSON(w, plugins)
}

func (ws *WebServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ws.store == nil {
		http.Error(w, "Run archive not enabled", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	var (
		runs []archive.RunReport
		err  error
	)
	if session := q.Get("session"); session != "" {
		runs, err = ws.store.ListSession(session)
	} else {
		limit := 50
		if raw := q.Get("limit"); raw != "" {
			if limit, err = strconv.Atoi(raw); err != nil {
				http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
				return
			}
		}
		runs, err = ws.store.List(limit)
	}
	if err != nil {
		GetLogger().Errorf("list runs: %v", err)
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []archive.RunReport{}
	}
	writeJSON(w, runs)
}

func (ws *WebServer) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ws.store == nil {
		http.Error(w, "Run archive not enabled", http.StatusServiceUnavailable)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/")
	if id == "" {
		http.Error(w, "Missing run id", http.StatusBadRequest)
		return
	}
	run, err := ws.store.Get(id)
	if errors.Is(err, archive.ErrNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		GetLogger().Errorf("get run %s: %v", id, err)
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, run)
}
