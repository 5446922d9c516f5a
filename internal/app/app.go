// Package app wires the server, tunnel, watcher and reload hub together and
// owns the run/shutdown lifecycle.
package app

import (
	"context"
	"errors"

	"github.com/pterm/pterm"
	"golang.org/x/sync/errgroup"

	"github.com/1ureka/pageshare/internal/config"
	"github.com/1ureka/pageshare/internal/livereload"
	"github.com/1ureka/pageshare/internal/server"
	"github.com/1ureka/pageshare/internal/tunnel"
	"github.com/1ureka/pageshare/internal/util"
	"github.com/1ureka/pageshare/internal/watch"
)

// Run executes the full lifecycle:
//  1. Build the handler (with a reload hub when live reload is on)
//  2. Bind the listening socket — the only fatal failure past config
//  3. Attempt the tunnel (absence and failure both degrade to local-only)
//  4. Serve, plus the watcher, until ctx is cancelled
//  5. Tear down in reverse order; teardown failures never change the outcome
func Run(ctx context.Context, cfg config.Config) error {
	var hub *livereload.Hub
	if cfg.LiveReload {
		hub = livereload.NewHub()
	}

	srv := server.New(cfg.Addr(), server.NewHandler(cfg.Root, hub))
	port, err := srv.Start()
	if err != nil {
		return err
	}

	util.LogInfo("serving %s", cfg.Root)
	util.LogInfo("listening on %s port %d (http://localhost:%d/)", cfg.Host, port, port)
	if cfg.LiveReload {
		util.LogInfo("live reload enabled — pages refresh when files change")
	}

	// ── Tunnel (optional, single attempt, degraded on failure) ─────────
	var client *tunnel.Client
	var handle *tunnel.Handle
	if cfg.NoTunnel {
		util.LogDebug("tunnel disabled by configuration")
	} else {
		client, handle = openTunnel(ctx, port)
	}

	util.StartStatsReporter(ctx)
	pterm.Println()
	pterm.Info.Println("Press Ctrl+C to stop.")

	// ── Serve until cancellation ────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx) })

	if hub != nil {
		w, err := watch.New(cfg.Root, hub.Broadcast)
		if err != nil {
			util.LogWarning("live reload watcher unavailable: %v", err)
		} else {
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	runErr := g.Wait()

	// ── Teardown, reverse order of startup ─────────────────────────────
	pterm.Println()
	util.LogInfo("shutting down")

	srv.Close()
	if hub != nil {
		hub.Close()
	}
	if handle != nil {
		if err := client.Disconnect(handle); err != nil {
			util.LogDebug("tunnel disconnect: %v", err)
		}
	}
	if client != nil {
		if err := client.Kill(); err != nil {
			util.LogDebug("tunnel agent kill: %v", err)
		}
	}

	return runErr
}

// openTunnel makes the single tunnel attempt. It returns a nil handle when
// no tunnel could be created; the client is returned even then so a started
// agent process can be reaped at shutdown.
func openTunnel(ctx context.Context, port int) (*tunnel.Client, *tunnel.Handle) {
	client, err := tunnel.Detect()
	if err != nil {
		pterm.Println()
		if errors.Is(err, tunnel.ErrClientNotFound) {
			util.LogInfo("ngrok is not installed — skipping public tunnel. " +
				"Install it from https://ngrok.com/download and run again to enable Internet sharing.")
		} else {
			util.LogWarning("tunnel client unavailable: %v — continuing without it", err)
		}
		pterm.Println()
		return nil, nil
	}

	handle, err := client.Connect(ctx, port)
	if err != nil {
		pterm.Println()
		util.LogWarning("failed to create tunnel: %v — continuing without it", err)
		pterm.Println()
		return client, nil
	}

	pterm.Println()
	util.LogSuccess("public tunnel created")
	pterm.Info.Println(" -> " + handle.PublicURL)
	pterm.Println()
	return client, handle
}
