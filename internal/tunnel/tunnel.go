// Package tunnel publishes the local server through the ngrok agent.
//
// The agent is an optional runtime dependency: Detect reports whether the
// binary is installed, and every failure past that point degrades to
// local-only serving instead of stopping the process. The agent's own
// protocol is out of scope here; this package only drives it through its
// local web API, mirroring connect / disconnect / kill.
package tunnel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"time"
)

// AgentBinary is the name of the tunnel agent looked up on PATH.
const AgentBinary = "ngrok"

// ErrClientNotFound is returned by Detect when the agent binary is not
// installed. Callers treat it as "serve locally only", never as fatal.
var ErrClientNotFound = errors.New("ngrok agent not found on PATH")

// Handle identifies one active tunnel session. At most one exists at a time.
type Handle struct {
	Name      string `json:"name"`
	PublicURL string `json:"public_url"`
}

// Client drives a single agent process and its local web API.
type Client struct {
	path   string // agent binary, resolved by Detect
	apiURL string // agent web API base, discovered from agent logs
	httpc  *http.Client
	proc   *agentProcess
}

// Detect looks for the agent binary and returns a client bound to it.
// Returns ErrClientNotFound when the binary is not installed.
func Detect() (*Client, error) {
	path, err := exec.LookPath(AgentBinary)
	if err != nil {
		return nil, ErrClientNotFound
	}
	return &Client{
		path:  path,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// tunnelRequest is the agent API body for creating a tunnel.
type tunnelRequest struct {
	Name  string `json:"name"`
	Addr  string `json:"addr"`
	Proto string `json:"proto"`
}

// Connect starts the agent, waits for its web API, and requests an HTTP
// tunnel forwarding to localhost:port. A single attempt is made; any failure
// is returned for the caller to log and continue without a tunnel.
func (c *Client) Connect(ctx context.Context, port int) (*Handle, error) {
	if c.proc == nil {
		proc, apiURL, err := startAgent(ctx, c.path)
		if err != nil {
			return nil, fmt.Errorf("start agent: %w", err)
		}
		c.proc = proc
		c.apiURL = apiURL
	}

	reqBody, _ := json.Marshal(tunnelRequest{
		Name:  "pageshare",
		Addr:  fmt.Sprintf("localhost:%d", port),
		Proto: "http",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiURL+"/api/tunnels", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent API: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent refused tunnel (%s): %s", resp.Status, bytes.TrimSpace(body))
	}

	var h Handle
	if err := json.Unmarshal(body, &h); err != nil {
		return nil, fmt.Errorf("decode agent response: %w", err)
	}
	if h.PublicURL == "" {
		return nil, errors.New("agent response is missing a public URL")
	}
	return &h, nil
}

// Disconnect tears down the specific tunnel behind the handle.
func (c *Client) Disconnect(h *Handle) error {
	if h == nil {
		return nil
	}

	req, err := http.NewRequest(http.MethodDelete, c.apiURL+"/api/tunnels/"+h.Name, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent refused disconnect: %s", resp.Status)
	}
	return nil
}

// Kill terminates the agent's background process. Safe to call when no
// process was ever started.
func (c *Client) Kill() error {
	if c.proc == nil {
		return nil
	}
	return c.proc.kill()
}
