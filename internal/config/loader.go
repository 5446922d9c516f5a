package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// PAGESHARE_PORT=9000 or PAGESHARE_NO_TUNNEL=true.
const EnvPrefix = "PAGESHARE_"

// Load builds a Config from defaults, then an optional YAML file, then
// PAGESHARE_* environment variables. CLI flags are applied by the caller on
// top of the result, so the full priority order is:
//
//	defaults < file < env < flags
func Load(filePath string) (Config, error) {
	cfg := Default()

	k := koanf.New(".")

	if filePath != "" {
		if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("load config file %s: %w", filePath, err)
		}
	}

	// PAGESHARE_LIVE_RELOAD -> live_reload. Keys are flat, so underscores
	// inside a key are preserved rather than treated as nesting.
	transform := func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", transform), nil); err != nil {
		return cfg, fmt.Errorf("load env: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}
