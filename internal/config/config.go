package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ExchangeConfig describes one DEX factory to crawl.
type ExchangeConfig struct {
	Name          string `mapstructure:"name"`
	Factory       string `mapstructure:"factory"`
	CreationBlock uint64 `mapstructure:"creation-block"`
	Variant       string `mapstructure:"variant"`
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL         string
	RateLimit      int
	Persist        bool
	CheckpointDir  string
	CheckpointName string
	WindowSize     uint64
	PGDSN          string
	LogLevel       string
	Exchanges      []ExchangeConfig
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POOLSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("rate-limit", 0)
	v.SetDefault("persist", false)
	v.SetDefault("checkpoint-dir", "./data")
	v.SetDefault("checkpoint-name", "pool_sync_checkpoint.json")
	v.SetDefault("window-size", uint64(100000))
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var exchanges []ExchangeConfig
	if v.IsSet("exchanges") {
		if err := v.UnmarshalKey("exchanges", &exchanges); err != nil {
			return Config{}, fmt.Errorf("parse exchanges: %w", err)
		}
	}

	cfg := Config{
		RPCURL:         v.GetString("rpc"),
		RateLimit:      v.GetInt("rate-limit"),
		Persist:        v.GetBool("persist"),
		CheckpointDir:  v.GetString("checkpoint-dir"),
		CheckpointName: v.GetString("checkpoint-name"),
		WindowSize:     v.GetUint64("window-size"),
		PGDSN:          v.GetString("pg-dsn"),
		LogLevel:       v.GetString("log-level"),
		Exchanges:      exchanges,
	}

	return cfg, nil
}
