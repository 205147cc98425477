// Package config loads the storage core's tunables (buffer pool size, LRU-K
// constant, B+ tree fanout, deadlock detection cadence) via viper, mirroring
// the teacher's internal.LoadConfig.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds every knob the storage core and executor kernel need at
// startup. Default() fills in every field and Load overlays a file on top of
// it, so an empty file still produces a usable system; the zero value of
// Config carries no defaults.
type Config struct {
	Storage struct {
		PageSize int `mapstructure:"page_size"`
	} `mapstructure:"storage"`

	Buffer struct {
		PoolSize   int `mapstructure:"pool_size"`
		ReplacerK  int `mapstructure:"replacer_k"`
	} `mapstructure:"buffer"`

	Index struct {
		LeafMaxSize     int `mapstructure:"leaf_max_size"`
		InternalMaxSize int `mapstructure:"internal_max_size"`
	} `mapstructure:"index"`

	Lock struct {
		EnableDeadlockDetection    bool `mapstructure:"enable_deadlock_detection"`
		DeadlockDetectionIntervalMS int `mapstructure:"deadlock_detection_interval_ms"`
	} `mapstructure:"lock"`

	Admin struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"admin"`
}

// Default returns the configuration used when no file is supplied, tuned for
// the relshell REPL and in-process tests rather than a production deployment.
func Default() *Config {
	cfg := &Config{}
	cfg.Storage.PageSize = 4096
	cfg.Buffer.PoolSize = 64
	cfg.Buffer.ReplacerK = 2
	cfg.Index.LeafMaxSize = 32
	cfg.Index.InternalMaxSize = 32
	cfg.Lock.EnableDeadlockDetection = true
	cfg.Lock.DeadlockDetectionIntervalMS = 50
	cfg.Admin.Port = 8765
	return cfg
}

// Load reads path (YAML) and overlays it on top of Default(), so a partial
// file only needs to mention the knobs it wants to change.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	bindDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	if cfg.Storage.PageSize != 4096 {
		return nil, fmt.Errorf("config: %s: page_size must be 4096, got %d", path, cfg.Storage.PageSize)
	}
	return cfg, nil
}

// bindDefaults seeds viper with cfg's current (default) values so that keys
// absent from the file still unmarshal back into the fields Default() set.
func bindDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("storage.page_size", cfg.Storage.PageSize)
	v.SetDefault("buffer.pool_size", cfg.Buffer.PoolSize)
	v.SetDefault("buffer.replacer_k", cfg.Buffer.ReplacerK)
	v.SetDefault("index.leaf_max_size", cfg.Index.LeafMaxSize)
	v.SetDefault("index.internal_max_size", cfg.Index.InternalMaxSize)
	v.SetDefault("lock.enable_deadlock_detection", cfg.Lock.EnableDeadlockDetection)
	v.SetDefault("lock.deadlock_detection_interval_ms", cfg.Lock.DeadlockDetectionIntervalMS)
	v.SetDefault("admin.port", cfg.Admin.Port)
}
