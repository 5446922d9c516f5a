// Package livereload pushes reload notifications to connected pages over
// WebSocket. It is only active when the server runs with live reload enabled.
package livereload

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/1ureka/pageshare/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// reloadMessage is the text frame sent to every connected page when the
// document root changes. The injected script matches on it verbatim.
const reloadMessage = "reload"

// Hub tracks the pages currently connected to the reload endpoint.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]struct{})}
}

// ServeHTTP upgrades the request and keeps the connection registered until
// the page disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()

	util.LogDebug("reload client connected from %s (%d active)", r.RemoteAddr, n)

	// Drain the connection so close frames from the page are processed;
	// pages never send anything meaningful.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast tells every connected page to reload. Connections that fail to
// take the message are dropped.
func (h *Hub) Broadcast() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	if len(conns) == 0 {
		return
	}
	util.LogDebug("broadcasting reload to %d page(s)", len(conns))

	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, []byte(reloadMessage)); err != nil {
			h.drop(c)
		}
	}
}

// Close sends a close frame to every connection and empties the hub.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for c := range conns {
		c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		c.Close()
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()
}
