package livereload

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialHub connects a websocket client to a hub served by httptest and waits
// until the hub has registered it.
func dialHub(t *testing.T, hub *Hub, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.Lock()
		n := len(hub.conns)
		hub.mu.Unlock()
		if n > 0 {
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("hub never registered the connection")
	return nil
}

func TestBroadcastReachesConnectedPage(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, hub, srv)

	hub.Broadcast()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(msg) != reloadMessage {
		t.Errorf("got message %q, want %q", msg, reloadMessage)
	}
}

func TestBroadcastWithNoPages(t *testing.T) {
	hub := NewHub()
	// Must not panic or block.
	hub.Broadcast()
}

func TestCloseDropsConnections(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, hub, srv)

	hub.Close()

	hub.mu.Lock()
	n := len(hub.conns)
	hub.mu.Unlock()
	if n != 0 {
		t.Errorf("hub still tracks %d connection(s) after Close", n)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected close error reading from a closed hub connection")
	}
}
