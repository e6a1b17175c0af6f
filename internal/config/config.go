// Package config resolves tbox settings from the environment.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/ykai55/tbox/internal/store"
)

// env is the raw environment surface. TBOX_DIR is deliberately absent:
// store.DefaultDir reads it together with the XDG fallbacks, so directory
// resolution lives in one place.
type env struct {
	Selector    string `envconfig:"TBOX_SELECTOR"`
	TmuxBin     string `envconfig:"TBOX_TMUX_BIN"`
	PsBin       string `envconfig:"TBOX_PS_BIN"`
	RunCommands *bool  `envconfig:"TBOX_RUN_COMMANDS"`
}

type Config struct {
	TmuxBin  string
	PsBin    string
	DataDir  string
	Selector string
	// RunCommands is the default command-replay policy; select/restore
	// flags override it per invocation.
	RunCommands     bool
	ThrottleDefault time.Duration
}

func Default() Config {
	return Config{
		TmuxBin:         "tmux",
		PsBin:           "ps",
		DataDir:         store.DefaultDir(),
		RunCommands:     true,
		ThrottleDefault: 3 * time.Second,
	}
}

// Load merges the environment over the defaults.
func Load() (Config, error) {
	cfg := Default()
	var e env
	if err := envconfig.Process("", &e); err != nil {
		return cfg, err
	}
	if e.TmuxBin != "" {
		cfg.TmuxBin = e.TmuxBin
	}
	if e.PsBin != "" {
		cfg.PsBin = e.PsBin
	}
	if e.Selector != "" {
		cfg.Selector = e.Selector
	}
	if e.RunCommands != nil {
		cfg.RunCommands = *e.RunCommands
	}
	return cfg, nil
}
