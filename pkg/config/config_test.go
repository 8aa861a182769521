package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppliesDefaults(t *testing.T) {
	t.Setenv("NOSTRWORKER_STATE_DIR", "")
	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "nostrworker", cfg.AppName)
	assert.Equal(t, 5000, cfg.ConnectTimeoutMs)
	assert.Equal(t, 2, cfg.MaxReconnectAttempts)
	assert.NotEmpty(t, cfg.StateDir)
}

func TestNewReadsOverrides(t *testing.T) {
	t.Setenv("NOSTRWORKER_MAX_RECONNECT_ATTEMPTS", "5")
	t.Setenv("NOSTRWORKER_DEFAULT_RELAYS", "wss://a,wss://b")
	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, []string{"wss://a", "wss://b"}, cfg.DefaultRelays)
}

func TestSignerStorePathUnderStateDir(t *testing.T) {
	t.Setenv("NOSTRWORKER_STATE_DIR", "/tmp/nostrworker-test-state")
	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/nostrworker-test-state/signer.json", cfg.SignerStorePath())
}
