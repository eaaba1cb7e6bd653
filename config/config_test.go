package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileIsDefault(t *testing.T) {
	cfg, err := LoadConfig("", viper.New())
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigExplicitMissingFileFails(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"), viper.New())
	require.Error(t, err)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[main]
max-duration = "100h"
network-hrp = "vvtest"

[logging]
level = "debug"
`), 0o600))

	cfg, err := LoadConfig(path, viper.New())
	require.NoError(t, err)
	require.Equal(t, 100*time.Hour, cfg.MaxDuration)
	require.Equal(t, "vvtest", cfg.NetworkHRP)
	require.Equal(t, "debug", cfg.LOGGING.Level)
	// untouched fields keep their defaults
	require.Equal(t, DefaultConfig().DatabaseConnections, cfg.DatabaseConnections)
}
