package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max_agents", func(c *Config) { c.MaxAgents = 0 }},
		{"zero batch_size", func(c *Config) { c.Sim.BatchSize = 0 }},
		{"urgency out of range", func(c *Config) { c.Sim.UrgencyThreshold = 120 }},
		{"generation chance over 1", func(c *Config) { c.Favors.GenerationChance = 1.5 }},
		{"gift chance negative", func(c *Config) { c.Social.NPCGiftChance = -0.1 }},
		{"positive grudge threshold", func(c *Config) { c.Social.GrudgeThreshold = 5 }},
		{"zero snapshot interval", func(c *Config) { c.Snapshot.IntervalSecs = 0 }},
		{"zero action rate limit", func(c *Config) { c.API.ActionRateLimit = 0 }},
		{"zero action rate window", func(c *Config) { c.API.ActionRateWindowSecs = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_port: 9090
max_agents: 12
sim:
  batch_size: 8
favors:
  generation_chance: 0.5
api:
  action_rate_limit: 10
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.APIPort)
	assert.Equal(t, 12, cfg.MaxAgents)
	assert.Equal(t, 8, cfg.Sim.BatchSize)
	assert.Equal(t, 0.5, cfg.Favors.GenerationChance)

	assert.Equal(t, 10, cfg.API.ActionRateLimit)

	// Unmentioned keys keep their defaults.
	assert.Equal(t, 8081, cfg.ObserverPort)
	assert.Equal(t, 5400.0, cfg.Favors.DurationSecs)
	assert.Equal(t, 250.0, cfg.Sim.LODRadius)
	assert.Equal(t, 60.0, cfg.API.ActionRateWindowSecs)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_agents: 0\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
