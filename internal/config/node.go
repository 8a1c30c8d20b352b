package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// NodeConfig configures the audio node process.
type NodeConfig struct {
	Addr     string `env:"NODE_ADDR, default=:2333"`
	Password string `env:"NODE_PASSWORD, required"`

	// PlayerUpdateInterval is in whole seconds.
	PlayerUpdateInterval int           `env:"PLAYER_UPDATE_INTERVAL, default=5"`
	StatsCron            string        `env:"STATS_CRON, default=* * * * *"`
	TrackStuckThreshold  time.Duration `env:"TRACK_STUCK_THRESHOLD, default=10s"`
	FrameBufferDuration  time.Duration `env:"FRAME_BUFFER_DURATION, default=5s"`
	AudioDir             string        `env:"AUDIO_DIR"`
	LogLevel             string        `env:"LOG_LEVEL, default=info"`
}

func NewNodeConfigFromEnv() (*NodeConfig, error) {
	var cfg NodeConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *NodeConfig) Validate() error {
	if c.Password == "" {
		return fmt.Errorf("NODE_PASSWORD must not be empty")
	}
	if c.PlayerUpdateInterval < 1 {
		return fmt.Errorf("PLAYER_UPDATE_INTERVAL must be at least 1, got %d", c.PlayerUpdateInterval)
	}
	if c.TrackStuckThreshold <= 0 {
		return fmt.Errorf("TRACK_STUCK_THRESHOLD must be positive, got %s", c.TrackStuckThreshold)
	}
	if c.FrameBufferDuration < 20*time.Millisecond {
		return fmt.Errorf("FRAME_BUFFER_DURATION must hold at least one frame, got %s", c.FrameBufferDuration)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

func (c *NodeConfig) UpdateInterval() time.Duration {
	return time.Duration(c.PlayerUpdateInterval) * time.Second
}

func (c *NodeConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}
