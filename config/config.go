// Package config contains vestvault configuration definitions.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	defaultConfigFileName = "./config.toml"
	defaultDataDirName    = "vestvault"
)

// Config defines the top level configuration for the vault service.
type Config struct {
	BaseConfig `mapstructure:"main"`
	LOGGING    LoggerConfig `mapstructure:"logging"`
}

// BaseConfig defines the default configuration options for the vault service.
type BaseConfig struct {
	DataDirParent string `mapstructure:"data-folder"`

	ConfigFile string `mapstructure:"config"`

	// MaxDuration is the policy ceiling on how far in the future a vesting
	// schedule may unlock.
	MaxDuration time.Duration `mapstructure:"max-duration"`

	// NetworkHRP is the Human-Readable-Part of bech32 addresses.
	NetworkHRP string `mapstructure:"network-hrp"`

	DatabaseConnections int `mapstructure:"db-connections"`
}

// LoggerConfig holds the logging configuration.
type LoggerConfig struct {
	Encoder string `mapstructure:"log-encoder"`
	Level   string `mapstructure:"level"`
}

// DataDir returns the absolute path to use for the service's data.
func (cfg *Config) DataDir() string {
	dir, err := filepath.Abs(cfg.DataDirParent)
	if err != nil {
		return cfg.DataDirParent
	}
	return dir
}

// DefaultConfig returns the default configuration for the vault service.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		BaseConfig: BaseConfig{
			DataDirParent:       filepath.Join(home, defaultDataDirName),
			ConfigFile:          defaultConfigFileName,
			MaxDuration:         4 * 365 * 24 * time.Hour,
			NetworkHRP:          "vv",
			DatabaseConnections: 16,
		},
		LOGGING: LoggerConfig{
			Encoder: "console",
			Level:   "info",
		},
	}
}

// LoadConfig loads config from file and applies it on top of the defaults.
func LoadConfig(fileLocation string, vip *viper.Viper) (cfg Config, err error) {
	cfg = DefaultConfig()
	if fileLocation == "" {
		fileLocation = defaultConfigFileName
	}
	vip.SetConfigFile(fileLocation)
	if err = vip.ReadInConfig(); err != nil {
		if fileLocation != defaultConfigFileName || !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read config file %s: %w", fileLocation, err)
		}
		// the default config file is optional
		return cfg, nil
	}
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err = vip.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", fileLocation, err)
	}
	return cfg, nil
}
