package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/engine"
	"github.com/Readm/commit_sim/visual"
)

type controlRequest struct {
	Type         string         `json:"type"`
	Node         string         `json:"node,omitempty"`
	Peer         string         `json:"peer,omitempty"`
	Message      int64          `json:"message,omitempty"`
	Scenario     string         `json:"scenario,omitempty"`
	Plan         string         `json:"plan,omitempty"`
	Participants int            `json:"participants,omitempty"`
	StepMs       float64        `json:"stepMs,omitempty"`
	Config       *engine.Config `json:"config,omitempty"`
	ConfigName   string         `json:"configName,omitempty"`
}

func (ws *WebServer) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		GetLogger().Debugf("Error reading request body: %v", err)
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}
	GetLogger().Debugf("Received /api/control request: %s", string(bodyBytes))

	var req controlRequest
	if err := json.Unmarshal(bodyBytes, &req); err != nil {
		GetLogger().Debugf("Error decoding JSON: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cmd, err := ws.processControlRequest(&req)
	if err != nil {
		GetLogger().Debugf("Error processing control request: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !ws.queueCommand(*cmd) {
		GetLogger().Warnf("Command queue full, cannot accept %s", cmd.Type)
		http.Error(w, "Command queue full", http.StatusServiceUnavailable)
		return
	}

	GetLogger().Debugf("Command queued: Type=%s Node=%s Peer=%s", cmd.Type, cmd.Node, cmd.Peer)
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte("Command accepted"))
}

// processControlRequest checks a request's shape and turns it into a command.
// Budget and state checks happen later, in the session.
func (ws *WebServer) processControlRequest(req *controlRequest) (*visual.ControlCommand, error) {
	cmd := &visual.ControlCommand{
		Type:         visual.ControlCommandType(strings.ToLower(req.Type)),
		Node:         req.Node,
		Peer:         req.Peer,
		Message:      req.Message,
		Scenario:     req.Scenario,
		Plan:         req.Plan,
		Participants: req.Participants,
		StepMs:       req.StepMs,
		Config:       req.Config,
	}
	switch cmd.Type {
	case visual.CommandPause, visual.CommandResume, visual.CommandStart:
	case visual.CommandStep:
		if cmd.StepMs < 0 || cmd.StepMs > MaxStepMs {
			return nil, fmt.Errorf("stepMs must be within [0, %.0f]", MaxStepMs)
		}
	case visual.CommandFail, visual.CommandRecover:
		if _, err := core.ParseNodeID(cmd.Node); err != nil {
			return nil, err
		}
	case visual.CommandToggle:
		if _, err := core.ParseNodeID(cmd.Node); err != nil {
			return nil, err
		}
		if _, err := core.ParseNodeID(cmd.Peer); err != nil {
			return nil, err
		}
	case visual.CommandDrop:
		if cmd.Message <= 0 {
			return nil, fmt.Errorf("drop needs a message id")
		}
	case visual.CommandScenario:
		if cmd.Scenario == "" {
			return nil, fmt.Errorf("scenario needs a name or tier")
		}
	case visual.CommandPlan:
		if !knownFailureMode(cmd.Plan) {
			return nil, fmt.Errorf("unknown failure mode %q", cmd.Plan)
		}
	case visual.CommandConfig, visual.CommandReset:
		if err := applyConfigName(cmd, req.ConfigName); err != nil {
			return nil, err
		}
		if cmd.Participants < 0 {
			return nil, fmt.Errorf("participants must be non-negative")
		}
		if cmd.Config != nil {
			if err := cmd.Config.Validate(); err != nil {
				return nil, fmt.Errorf("invalid config: %w", err)
			}
		} else if cmd.Type == visual.CommandConfig {
			return nil, fmt.Errorf("config command needs config or configName")
		}
	default:
		return nil, fmt.Errorf("invalid command type %q", req.Type)
	}
	return cmd, nil
}

func applyConfigName(cmd *visual.ControlCommand, name string) error {
	if name == "" {
		return nil
	}
	preset := GetConfigByName(name)
	if preset == nil {
		return fmt.Errorf("unknown config %q", name)
	}
	if cmd.Config == nil {
		c := preset.Engine
		cmd.Config = &c
	}
	if cmd.Participants == 0 && cmd.Type == visual.CommandReset {
		cmd.Participants = preset.Participants
	}
	return nil
}
