package tunnel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClient returns a Client wired to a fake agent API, with the agent
// process already "started" so Connect never execs anything.
func fakeClient(srv *httptest.Server) *Client {
	return &Client{
		path:   "ngrok",
		apiURL: srv.URL,
		httpc:  &http.Client{Timeout: 2 * time.Second},
		proc:   &agentProcess{cmd: &exec.Cmd{}},
	}
}

func TestDetectMissingBinary(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, err := Detect()
	if !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("Detect() error = %v, want ErrClientNotFound", err)
	}
}

func TestDetectFindsBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("PATH fakery is unix-only")
	}

	dir := t.TempDir()
	bin := filepath.Join(dir, AgentBinary)
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir)

	c, err := Detect()
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if c.path != bin {
		t.Errorf("resolved path = %q, want %q", c.path, bin)
	}
}

func TestConnectReturnsPublicURL(t *testing.T) {
	var gotReq tunnelRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/tunnels" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Handle{
			Name:      gotReq.Name,
			PublicURL: "https://abc123.ngrok-free.app",
		})
	}))
	defer srv.Close()

	h, err := fakeClient(srv).Connect(context.Background(), 8000)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if h.PublicURL != "https://abc123.ngrok-free.app" {
		t.Errorf("public URL = %q", h.PublicURL)
	}
	if gotReq.Proto != "http" {
		t.Errorf("proto = %q, want http", gotReq.Proto)
	}
	if gotReq.Addr != "localhost:8000" {
		t.Errorf("addr = %q, want localhost:8000", gotReq.Addr)
	}
}

func TestConnectSurfacesAgentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error_code":103,"msg":"account limit reached"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := fakeClient(srv).Connect(context.Background(), 8000)
	if err == nil {
		t.Fatal("expected error from agent refusal")
	}
}

func TestConnectRejectsEmptyPublicURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"name":"pageshare"}`))
	}))
	defer srv.Close()

	_, err := fakeClient(srv).Connect(context.Background(), 8000)
	if err == nil {
		t.Fatal("expected error for response without public_url")
	}
}

func TestDisconnectDeletesTunnelOnce(t *testing.T) {
	var deletes atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("unexpected method %s", r.Method)
		}
		if r.URL.Path != "/api/tunnels/pageshare" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		deletes.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := fakeClient(srv)
	h := &Handle{Name: "pageshare", PublicURL: "https://abc123.ngrok-free.app"}

	if err := c.Disconnect(h); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if n := deletes.Load(); n != 1 {
		t.Errorf("DELETE issued %d times, want 1", n)
	}
}

func TestDisconnectNilHandle(t *testing.T) {
	c := &Client{httpc: http.DefaultClient}
	if err := c.Disconnect(nil); err != nil {
		t.Fatalf("Disconnect(nil) = %v, want nil", err)
	}
}

func TestParseWebAddr(t *testing.T) {
	testCases := []struct {
		name string
		line string
		addr string
		ok   bool
	}{
		{
			name: "standard startup line",
			line: `t=2026-01-01T00:00:00+0000 lvl=info msg="starting web service" obj=web addr=127.0.0.1:4040 allow_hosts=[]`,
			addr: "127.0.0.1:4040",
			ok:   true,
		},
		{
			name: "custom address",
			line: `lvl=info msg="starting web service" obj=web addr=localhost:5050`,
			addr: "localhost:5050",
			ok:   true,
		},
		{
			name: "unrelated line",
			line: `lvl=info msg="client session established" obj=tunnels.session`,
			ok:   false,
		},
		{
			name: "startup line without addr",
			line: `lvl=info msg="starting web service" obj=web`,
			ok:   false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			addr, ok := parseWebAddr(tc.line)
			if ok != tc.ok || addr != tc.addr {
				t.Errorf("parseWebAddr() = (%q, %v), want (%q, %v)", addr, ok, tc.addr, tc.ok)
			}
		})
	}
}

func TestKillWithoutProcess(t *testing.T) {
	c := &Client{}
	if err := c.Kill(); err != nil {
		t.Fatalf("Kill without process = %v, want nil", err)
	}
}
