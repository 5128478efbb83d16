// Package config loads memdb settings from an optional file and the
// environment.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/stevemurr/memdb/logger"
	"github.com/stevemurr/memdb/store"
)

// DefaultPrefix is the environment variable prefix used by Load.
const DefaultPrefix = "MEMDB"

// Config is the full memdb configuration.
type Config struct {
	Store        store.Config  `mapstructure:"store"`
	DefaultLimit int           `mapstructure:"default_limit"`
	Log          logger.Config `mapstructure:"log"`
}

// Load reads configuration from file (if non-empty) and from environment
// variables named <prefix>_<KEY>, e.g. MEMDB_STORE_BACKEND or
// MEMDB_LOG_LEVEL. Environment variables win over the file.
func Load(prefix, file string) (Config, error) {
	v := viper.New()

	v.SetDefault("store.backend", "json")
	v.SetDefault("store.data_dir", "./data")
	v.SetDefault("store.dsn", "")
	v.SetDefault("default_limit", 1000)
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.add_source", false)

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if prefix == "" {
		prefix = DefaultPrefix
	}
	v.SetEnvPrefix(strings.TrimSuffix(prefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}
