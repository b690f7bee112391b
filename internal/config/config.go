package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode      string        `mapstructure:"mode"`
	Port      int           `mapstructure:"port"`
	ReadLimit int64         `mapstructure:"read_limit"`
	Liveness  Liveness      `mapstructure:"liveness"`
	Agent     Agent         `mapstructure:"agent"`
	Sync      Sync          `mapstructure:"sync"`
	Heartbeat time.Duration `mapstructure:"heartbeat"`
}

type Liveness struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type Agent struct {
	RelayURL     string        `mapstructure:"relay_url"`
	Session      string        `mapstructure:"session"`
	Role         string        `mapstructure:"role"`
	FollowerID   string        `mapstructure:"follower_id"`
	InitialDelay time.Duration `mapstructure:"reconnect_initial_delay"`
	MaxAttempts  int           `mapstructure:"reconnect_max_attempts"`
}

type Sync struct {
	Throttle         time.Duration `mapstructure:"throttle"`
	SeekCooldown     time.Duration `mapstructure:"seek_cooldown"`
	DriftThresholdMs int64         `mapstructure:"drift_threshold_ms"`
}

var ErrThrottleTooLong = errors.New("sync throttle must not exceed seek cooldown")

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("heartbeat", "30s")
	v.SetDefault("liveness.sweep_interval", "30s")
	v.SetDefault("liveness.timeout", "60s")
	v.SetDefault("agent.relay_url", "ws://localhost:8080/api/ws")
	v.SetDefault("agent.session", "main")
	v.SetDefault("agent.role", "follower")
	v.SetDefault("agent.reconnect_initial_delay", "1s")
	v.SetDefault("agent.reconnect_max_attempts", 10)
	v.SetDefault("sync.throttle", "200ms")
	v.SetDefault("sync.seek_cooldown", "1s")
	v.SetDefault("sync.drift_threshold_ms", 3750)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	// A throttle above the seek cooldown would starve corrective seeks.
	if cfg.Sync.Throttle > cfg.Sync.SeekCooldown {
		return nil, ErrThrottleTooLong
	}
	return &cfg, nil
}
