// Package config holds the server configuration and its loading logic.
//
// Configuration is assembled once at startup from, in increasing priority:
// built-in defaults, an optional YAML file, PAGESHARE_* environment
// variables, and CLI flags. The resulting Config is never mutated afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultPort is the TCP port used when none is given on the command line.
	DefaultPort = 8000

	// DefaultHost binds all network interfaces so the page is reachable from
	// other machines on the same network.
	DefaultHost = "0.0.0.0"
)

// Config stores all parameters gathered from defaults, file, env and flags.
type Config struct {
	Host       string `koanf:"host"`        // bind address
	Port       int    `koanf:"port"`        // TCP port, 0 lets the OS pick
	Root       string `koanf:"root"`        // document root (absolute after Validate)
	NoTunnel   bool   `koanf:"no_tunnel"`   // skip tunnel creation
	LiveReload bool   `koanf:"live_reload"` // watch the root and push reloads
	Debug      bool   `koanf:"debug"`       // debug logging
}

// Default returns the built-in configuration. The document root defaults to
// the directory containing the executable, so relative page resolution is
// stable regardless of the invocation directory. The working directory is
// never changed.
func Default() Config {
	return Config{
		Host: DefaultHost,
		Port: DefaultPort,
		Root: executableDir(),
	}
}

// Validate checks the configuration and resolves Root to an absolute path.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0 ~ 65535", c.Port)
	}

	root, err := filepath.Abs(c.Root)
	if err != nil {
		return fmt.Errorf("resolve document root %q: %w", c.Root, err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("document root %q: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("document root %q is not a directory", root)
	}

	c.Root = root
	return nil
}

// Addr returns the host:port the server should bind.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}
