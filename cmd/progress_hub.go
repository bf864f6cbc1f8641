package cmd

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/airframesio/report-archiver/cmd/pipeline"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool {
		return true // the route is behind token auth
	},
}

// WebSocket message types
const (
	wsTypeProgress = "progress"
	wsTypeLog      = "log"
)

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type LogMessage struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// clientWrapper wraps a websocket connection with a write mutex to ensure thread-safe writes
type clientWrapper struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// writeJSON safely writes JSON to the websocket connection with mutex protection
func (cw *clientWrapper) writeJSON(v interface{}) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	_ = cw.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return cw.conn.WriteJSON(v)
}

// progressHub fans pipeline events and log lines out to websocket clients
type progressHub struct {
	clients   map[*websocket.Conn]*clientWrapper
	clientsMu sync.RWMutex
	broadcast chan WSMessage

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

func newProgressHub() *progressHub {
	return &progressHub{
		clients:   make(map[*websocket.Conn]*clientWrapper),
		broadcast: make(chan WSMessage, 1000),
		done:      make(chan struct{}),
	}
}

// start launches the broadcast manager once
func (h *progressHub) start() {
	h.startOnce.Do(func() {
		go h.broadcastManager()
	})
}

func (h *progressHub) stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.clientsMu.Lock()
		for conn := range h.clients {
			conn.Close()
			delete(h.clients, conn)
		}
		h.clientsMu.Unlock()
	})
}

// publish queues msg without blocking; messages are dropped when the buffer is full
func (h *progressHub) publish(msg WSMessage) {
	select {
	case h.broadcast <- msg:
	default:
	}
}

// Observe implements pipeline.Observer
func (h *progressHub) Observe(e pipeline.Event) {
	h.publish(WSMessage{Type: wsTypeProgress, Data: e})
}

func (h *progressHub) publishLog(msg LogMessage) {
	h.publish(WSMessage{Type: wsTypeLog, Data: msg})
}

func (h *progressHub) clientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// broadcastManager sends messages to all connected clients
func (h *progressHub) broadcastManager() {
	for {
		var msg WSMessage
		select {
		case <-h.done:
			return
		case msg = <-h.broadcast:
		}

		h.clientsMu.RLock()
		// Collect failed clients while holding read lock
		var failedClients []*websocket.Conn
		for conn, wrapper := range h.clients {
			if err := wrapper.writeJSON(msg); err != nil {
				failedClients = append(failedClients, conn)
			}
		}
		h.clientsMu.RUnlock()

		// Clean up failed clients with write lock
		if len(failedClients) > 0 {
			h.clientsMu.Lock()
			for _, conn := range failedClients {
				if wrapper, exists := h.clients[conn]; exists {
					wrapper.conn.Close()
					delete(h.clients, conn)
				}
			}
			h.clientsMu.Unlock()
		}
	}
}

// serveWebSocket upgrades the request and holds the connection until the client leaves
func (h *progressHub) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	h.clientsMu.Lock()
	h.clients[conn] = &clientWrapper{conn: conn}
	h.clientsMu.Unlock()

	// Clean up on disconnect
	defer func() {
		h.clientsMu.Lock()
		delete(h.clients, conn)
		h.clientsMu.Unlock()
	}()

	// Keep connection alive; clients never send anything meaningful
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
