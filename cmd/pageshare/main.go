// Pageshare — CLI entry point.
//
// This tool serves a static page directory over HTTP, binding all network
// interfaces so the page is reachable from other machines on the network.
// Unless disabled, it also creates a public Internet-accessible tunnel with
// ngrok and prints the public URL.
//
// Usage:
//
//	pageshare [port] [--no-tunnel] [--dir DIR] [--live-reload]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/1ureka/pageshare/internal/app"
	"github.com/1ureka/pageshare/internal/config"
	"github.com/1ureka/pageshare/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cliApp := &cli.App{
		Name:      "pageshare",
		Usage:     "serve a static page over HTTP and share it through an ngrok tunnel",
		Version:   version,
		ArgsUsage: "[port]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "no-tunnel",
				Usage:   "do not create an Internet-accessible ngrok tunnel",
				EnvVars: []string{"PAGESHARE_NO_TUNNEL"},
			},
			&cli.StringFlag{
				Name:    "dir",
				Usage:   "document root (default: the directory containing the executable)",
				EnvVars: []string{"PAGESHARE_ROOT"},
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML configuration file",
				EnvVars: []string{"PAGESHARE_CONFIG"},
			},
			&cli.BoolFlag{
				Name:    "live-reload",
				Usage:   "watch the document root and refresh connected pages on change",
				EnvVars: []string{"PAGESHARE_LIVE_RELOAD"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Action: run,
	}

	if err := cliApp.RunContext(ctx, os.Args); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}
	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("pageshare — v%s", version))
	pterm.Println()

	return app.Run(c.Context, cfg)
}

// buildConfig assembles the configuration with flags taking the highest
// priority, then validates it.
func buildConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}

	if c.IsSet("dir") {
		cfg.Root = c.String("dir")
	}
	if c.Bool("no-tunnel") {
		cfg.NoTunnel = true
	}
	if c.Bool("live-reload") {
		cfg.LiveReload = true
	}
	if c.Bool("debug") {
		cfg.Debug = true
	}

	switch c.NArg() {
	case 0:
	case 1:
		port, err := strconv.Atoi(c.Args().First())
		if err != nil {
			return cfg, fmt.Errorf("invalid port %q: must be an integer", c.Args().First())
		}
		cfg.Port = port
	default:
		return cfg, fmt.Errorf("too many arguments: expected at most one port, got %d", c.NArg())
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
