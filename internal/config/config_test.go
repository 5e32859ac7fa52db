package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args ...string) *Config {
	t.Helper()
	fs := pflag.NewFlagSet("harvestgraph", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse(args))
	cfg, err := Load(fs)
	require.NoError(t, err)
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := load(t)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "debug.log", cfg.LogName)
	assert.Equal(t, 7, cfg.MaxLogFiles)
	assert.Equal(t, "harvester", cfg.Process)
	assert.Equal(t, 15*time.Minute, cfg.BucketWidth)
	assert.Equal(t, 4*24*7, cfg.Buckets())
	assert.Equal(t, 180, cfg.BucketCapacity)
	assert.Equal(t, "viridis", cfg.Ramp)
	assert.Equal(t, 0.1, cfg.Rate)
	assert.True(t, cfg.AltScreen)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("HARVESTGRAPH_RAMP", "inferno")
	t.Setenv("HARVESTGRAPH_MAX_LOGFILES", "3")
	cfg := load(t)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "inferno", cfg.Ramp)
	assert.Equal(t, 3, cfg.MaxLogFiles)
}

func TestFlagsBeatEnvironment(t *testing.T) {
	t.Setenv("HARVESTGRAPH_RAMP", "inferno")
	cfg := load(t, "--ramp", "mono", "--bucket-width", "5m", "--window", "2h")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "mono", cfg.Ramp)
	assert.Equal(t, 24, cfg.Buckets())
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harvestgraph.yaml")
	content := `
ramp: heat
bucket_width: 10m
window: 24h
family: flax
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	cfg := load(t, "--config", path)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "heat", cfg.Ramp)
	assert.Equal(t, "flax", cfg.Family)
	assert.Equal(t, 144, cfg.Buckets())
}

func TestValidateErrors(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"window not multiple": func(c *Config) { c.Window = 20 * time.Minute },
		"window too small":    func(c *Config) { c.Window = time.Minute },
		"fractional width":    func(c *Config) { c.BucketWidth = 1500 * time.Millisecond },
		"unknown ramp":        func(c *Config) { c.Ramp = "rainbow" },
		"zero rate":           func(c *Config) { c.Rate = 0 },
		"no capacity":         func(c *Config) { c.BucketCapacity = 0 },
		"bad level":           func(c *Config) { c.LogLevel = "trace" },
		"no process":          func(c *Config) { c.Process = "" },
		"negative files":      func(c *Config) { c.MaxLogFiles = -1 },
		"tiny max line":       func(c *Config) { c.MaxLine = 10 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := load(t)
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	fs := pflag.NewFlagSet("harvestgraph", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}))
	_, err := Load(fs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file: ")
}
