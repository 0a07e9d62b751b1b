package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightcouncil/werewolf-server/internal/match"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err, "a missing config file falls back to defaults")

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 4, cfg.Game.AgentWorkers)
	assert.Equal(t, 3, cfg.Game.MissedResponseThreshold)
	assert.Equal(t, 90*time.Second, cfg.Game.NightDuration)
	assert.Equal(t, 4, cfg.Game.NightRounds)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9999"
logging:
  level: debug
game:
  night_duration: 2m
  agent_workers: 8
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 2*time.Minute, cfg.Game.NightDuration)
	assert.Equal(t, 8, cfg.Game.AgentWorkers)
	// Untouched keys keep their defaults.
	assert.Equal(t, 45*time.Second, cfg.Game.DayVoteDuration)
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("game:\n  agent_workers: 0\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent_workers")
}

func TestMatchConfigProjection(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	mc := cfg.MatchConfig()
	def := match.DefaultConfig()
	assert.Equal(t, def.PhaseDurations[match.PhaseNight], mc.PhaseDurations[match.PhaseNight])
	assert.Equal(t, def.MaxMatchDuration, mc.MaxMatchDuration)
	assert.Equal(t, def.RoundsPerPhase[match.PhaseNight], mc.RoundsPerPhase[match.PhaseNight])
	assert.Equal(t, def.MaxMessageLength, mc.MaxMessageLength)
}
