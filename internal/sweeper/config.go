package sweeper

import "time"

// Config controls sweep cadence.
type Config struct {
	RunInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	return c
}
