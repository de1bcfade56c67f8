package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/cmdkit/internal/process"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadConfig(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, process.DefaultShell, cfg.Shell)
	assert.Equal(t, process.DefaultTimeout, cfg.CommandTimeout)
	assert.Equal(t, int64(process.DefaultMaxOutputSize), cfg.MaxOutputBytes)
	assert.True(t, cfg.LiveOutput)
	assert.False(t, cfg.StrictVars)
	assert.Equal(t, "cmdkit.db", filepath.Base(cfg.DBPath))
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".cmdkit")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(
		"log_level: debug\nmax_parallel: 4\ncommand_timeout: 90s\nstrict_vars: true\n"), 0o644))

	t.Setenv("CMDKIT_MAX_PARALLEL", "2")

	cfg, err := loadConfig(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2, cfg.MaxParallel)
	assert.Equal(t, 90*time.Second, cfg.CommandTimeout)
	assert.True(t, cfg.StrictVars)
}

func TestLoadConfig_ExplicitFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "custom.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"db_path": "/tmp/other.db", "log_format": "json"}`), 0o644))

	cfg, err := loadConfig(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.DBPath)
	assert.Equal(t, "json", cfg.LogFormat)

	_, err = loadConfig(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CMDKIT_LOG_LEVEL", "loud")
	t.Setenv("CMDKIT_MAX_PARALLEL", "-1")

	_, err := loadConfig(viper.New(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log level")
	assert.Contains(t, err.Error(), "max_parallel")
}
