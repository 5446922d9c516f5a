package tunnel

import (
	"bufio"
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/1ureka/pageshare/internal/util"
)

// startupTimeout bounds how long we wait for the agent's web API to come up.
const startupTimeout = 15 * time.Second

// defaultAPIURL is where the agent's web API conventionally listens when the
// address never shows up in the agent's own logs.
const defaultAPIURL = "http://127.0.0.1:4040"

// agentProcess wraps the running agent binary.
type agentProcess struct {
	cmd      *exec.Cmd
	killOnce sync.Once
	killErr  error
}

// startAgent launches the agent with no tunnels and discovers its web API
// address from the startup logs. The agent keeps running in the background
// until kill is called.
func startAgent(ctx context.Context, path string) (*agentProcess, string, error) {
	cmd := exec.Command(path, "start", "--none", "--log", "stdout")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, "", err
	}

	if err := cmd.Start(); err != nil {
		return nil, "", err
	}
	proc := &agentProcess{cmd: cmd}

	// Scan the agent's logfmt output for the web service address, then keep
	// draining the pipe so the agent never blocks on a full buffer.
	addrCh := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := scanner.Text()
			util.LogDebug("agent: %s", line)
			if addr, ok := parseWebAddr(line); ok {
				select {
				case addrCh <- addr:
				default:
				}
			}
		}
	}()

	select {
	case addr := <-addrCh:
		return proc, "http://" + addr, nil
	case <-time.After(startupTimeout):
		// The agent may log elsewhere; fall back to the conventional address.
		util.LogDebug("agent web address not seen in logs, assuming %s", defaultAPIURL)
		return proc, defaultAPIURL, nil
	case <-ctx.Done():
		proc.kill()
		return nil, "", ctx.Err()
	}
}

// kill terminates the agent and reaps it. Safe to call more than once.
func (p *agentProcess) kill() error {
	p.killOnce.Do(func() {
		if p.cmd.Process == nil {
			return
		}
		if err := p.cmd.Process.Kill(); err != nil {
			p.killErr = err
			return
		}
		// Wait returns an ExitError for a killed process; that is expected.
		var exitErr *exec.ExitError
		if err := p.cmd.Wait(); err != nil && !errors.As(err, &exitErr) {
			p.killErr = err
		}
	})
	return p.killErr
}

// parseWebAddr extracts the listen address from the agent's "starting web
// service" logfmt line, e.g.
//
//	t=... lvl=info msg="starting web service" obj=web addr=127.0.0.1:4040
func parseWebAddr(line string) (string, bool) {
	if !strings.Contains(line, "starting web service") {
		return "", false
	}
	for _, field := range strings.Fields(line) {
		if addr, ok := strings.CutPrefix(field, "addr="); ok && addr != "" {
			return addr, true
		}
	}
	return "", false
}
