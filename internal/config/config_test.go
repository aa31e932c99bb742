package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":3000", cfg.HTTPAddr)
	assert.Equal(t, 4, cfg.Room.MaxPlayers)
	assert.Equal(t, 8, cfg.Room.MaxSpectators)
	assert.Equal(t, 2, cfg.Room.MinPlayers)
	assert.Equal(t, 30*time.Second, cfg.Room.IdleTimeout)
	assert.Equal(t, 32, cfg.WS.OutboxSize)
	assert.Equal(t, int64(4096), cfg.WS.ReadLimit)
	assert.Equal(t, 5*time.Second, cfg.WS.WriteTimeout)
	assert.Equal(t, 20*time.Second, cfg.WS.PingInterval)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ROOM_MAX_PLAYERS", "6")
	t.Setenv("ROOM_IDLE_TIMEOUT", "1m")
	t.Setenv("WS_ORIGIN_PATTERNS", "localhost:*,example.com")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Room.MaxPlayers)
	assert.Equal(t, time.Minute, cfg.Room.IdleTimeout)
	assert.Equal(t, []string{"localhost:*", "example.com"}, cfg.WS.OriginPatterns)
	assert.Equal(t, 6, cfg.Limits().MaxPlayers)
}

func TestLoad_DotenvFile(t *testing.T) {
	// Register cleanup for the keys the file sets, then clear them.
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("ROOM_MAX_SPECTATORS", "")
	require.NoError(t, os.Unsetenv("HTTP_ADDR"))
	require.NoError(t, os.Unsetenv("ROOM_MAX_SPECTATORS"))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_ADDR=:9999\nROOM_MAX_SPECTATORS=0\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, 0, cfg.Room.MaxSpectators)
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("ROOM_MAX_PLAYERS", "lots")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	var cfg Config
	cfg.Room.MinPlayers = 1
	cfg.Room.MaxPlayers = 0
	cfg.Room.MaxSpectators = -1

	err := cfg.Validate()
	require.Error(t, err)
	// min players, max players, spectators, outbox, read limit, write timeout, shutdown
	assert.Len(t, multierr.Errors(err), 7)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("ROOM_MIN_PLAYERS", "5")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ROOM_MAX_PLAYERS")
}
