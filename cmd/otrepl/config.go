package main

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	// Dir is the pebble directory. Ignored when Redis is set.
	Dir string `mapstructure:"dir"`
	// Src is this replica's id, it must differ between replicas sharing
	// one repository.
	Src           uint64 `mapstructure:"src"`
	LogLevel      string `mapstructure:"log_level"`
	MergeAttempts int    `mapstructure:"merge_attempts"`
	CacheSize     int    `mapstructure:"cache_size"`
	Redis         struct {
		Addr      string `mapstructure:"addr"`
		Password  string `mapstructure:"password"`
		Namespace string `mapstructure:"namespace"`
	} `mapstructure:"redis"`
}

// initConfig reads otrepl.yaml if there is one; OTREPL_* environment
// variables override it, e.g. OTREPL_REDIS_ADDR.
func initConfig(paths ...string) (*Config, error) {
	cfg := &Config{}
	v := viper.New()
	v.SetConfigName("otrepl")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix("OTREPL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("dir", ".otrepl")
	v.SetDefault("src", 1)
	v.SetDefault("log_level", "info")
	v.SetDefault("merge_attempts", 10)
	v.SetDefault("cache_size", 4096)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.namespace", "otrepl")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
