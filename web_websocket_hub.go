package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Readm/commit_sim/visual"
)

type wsHub struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	register  chan *websocket.Conn
	remove    chan *websocket.Conn
	broadcast chan []byte
	done      chan struct{}
	stopOnce  sync.Once
}

func newHub() *wsHub {
	hub := &wsHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[*websocket.Conn]bool),
		register:  make(chan *websocket.Conn),
		remove:    make(chan *websocket.Conn),
		broadcast: make(chan []byte, 16),
		done:      make(chan struct{}),
	}
	go hub.run()
	return hub
}

func (h *wsHub) run() {
	for {
		select {
		case <-h.done:
			for conn := range h.clients {
				conn.Close()
			}
			return
		case conn := <-h.register:
			h.clients[conn] = true
		case conn := <-h.remove:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
		case msg := <-h.broadcast:
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					GetLogger().Warnf("Failed to send frame to WebSocket client: %v", err)
					delete(h.clients, conn)
					conn.Close()
				}
			}
		}
	}
}

func (h *wsHub) stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *wsHub) handle(ws *WebServer, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		GetLogger().Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	if snap := ws.snapshot(); snap != nil {
		if data, err := json.Marshal(snap); err == nil {
			conn.WriteMessage(websocket.TextMessage, data)
		}
	}

	go func() {
		defer func() {
			select {
			case h.remove <- conn:
			case <-h.done:
			}
		}()
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					GetLogger().Warnf("WebSocket error: %v", err)
				}
				return
			}
			// Only the hub goroutine writes to conn; rejected requests are logged.
			var req controlRequest
			if err := json.Unmarshal(message, &req); err != nil {
				GetLogger().Debugf("WebSocket control: invalid request body: %v", err)
				continue
			}
			cmd, err := ws.processControlRequest(&req)
			if err != nil {
				GetLogger().Debugf("WebSocket control %q rejected: %v", req.Type, err)
				continue
			}
			if !ws.queueCommand(*cmd) {
				GetLogger().Warnf("WebSocket control %q dropped: command queue full", req.Type)
			}
		}
	}()
}

func (h *wsHub) broadcastFrame(snap *visual.Snapshot) {
	if snap == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		GetLogger().Errorf("Failed to marshal frame for WebSocket: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		GetLogger().Debugf("WebSocket broadcast queue full, frame skipped")
	}
}
