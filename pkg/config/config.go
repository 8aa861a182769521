// Package config loads this module's runtime configuration the same way
// the teacher relay does (SPEC_FULL.md AMBIENT STACK): go-simpler.org/env
// struct-tag driven env loading, with adrg/xdg supplying defaults for
// locations env doesn't set. The env prefix is NOSTRWORKER_, this module's
// own identity, rather than the teacher's ORLY_.
package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
	"go-simpler.org/env"

	"lol.mleku.dev/chk"
)

// C holds every tunable named across spec.md §5/§6: relay connection
// defaults, reconnect backoff parameters, buffer sizing, and where the
// signer session store lives.
type C struct {
	AppName string `env:"NOSTRWORKER_APP_NAME" default:"nostrworker"`

	// StateDir holds the signer session store (spec.md §6 "Persistent
	// state"); defaults under the XDG state directory.
	StateDir string `env:"NOSTRWORKER_STATE_DIR"`

	LogLevel string `env:"NOSTRWORKER_LOG_LEVEL" default:"info"`

	// DefaultRelays seeds SendToRelays calls that don't name their own
	// relay set.
	DefaultRelays []string `env:"NOSTRWORKER_DEFAULT_RELAYS"`

	// Relay connection defaults (spec.md §5 "Resource caps").
	ConnectTimeoutMs     int `env:"NOSTRWORKER_CONNECT_TIMEOUT_MS" default:"5000"`
	IdleTimeoutMs        int `env:"NOSTRWORKER_IDLE_TIMEOUT_MS" default:"300000"`
	CooldownMs           int `env:"NOSTRWORKER_COOLDOWN_MS" default:"60000"`
	CloseDelayMs         int `env:"NOSTRWORKER_CLOSE_DELAY_MS" default:"1000"`
	MaxReconnectAttempts int `env:"NOSTRWORKER_MAX_RECONNECT_ATTEMPTS" default:"2"`

	// Backoff shape (spec.md §4.B "Reconnect policy").
	BackoffBaseMs     int     `env:"NOSTRWORKER_BACKOFF_BASE_MS" default:"300"`
	BackoffMaxMs      int     `env:"NOSTRWORKER_BACKOFF_MAX_MS" default:"10000"`
	BackoffMultiplier float64 `env:"NOSTRWORKER_BACKOFF_MULTIPLIER" default:"1.6"`
	BackoffJitter     float64 `env:"NOSTRWORKER_BACKOFF_JITTER" default:"0.1"`

	// BytesPerEvent is the default subscribe-options buffer-sizing hint
	// (spec.md §4.D "calculateBufferSize").
	BytesPerEvent int `env:"NOSTRWORKER_BYTES_PER_EVENT" default:"3072"`
}

// New loads C from the environment, filling in XDG-derived defaults for
// any path left unset.
func New() (cfg *C, err error) {
	cfg = &C{}
	if err = env.Load(cfg, &env.Options{SliceSep: ","}); chk.E(err) {
		return nil, err
	}
	if cfg.StateDir == "" {
		cfg.StateDir = filepath.Join(xdg.StateHome, cfg.AppName)
	}
	return cfg, nil
}

// SignerStorePath is where the pubkey->session store (spec.md §6) is kept.
func (c *C) SignerStorePath() string {
	return filepath.Join(c.StateDir, "signer.json")
}
