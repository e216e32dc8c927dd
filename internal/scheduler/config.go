package scheduler

import (
	"time"
)

// Config controls scan cadence and per-job timeouts.
type Config struct {
	RunInterval     time.Duration
	LookaheadWindow time.Duration
	JobTimeout      time.Duration
	AuditRetention  time.Duration
	RetentionEvery  time.Duration
	StatePurgeEvery time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:     time.Minute,
		LookaheadWindow: 5 * time.Minute,
		JobTimeout:      2 * time.Minute,
		AuditRetention:  90 * 24 * time.Hour,
		RetentionEvery:  time.Hour,
		StatePurgeEvery: 15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.LookaheadWindow <= 0 {
		c.LookaheadWindow = defaults.LookaheadWindow
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.AuditRetention <= 0 {
		c.AuditRetention = defaults.AuditRetention
	}
	if c.RetentionEvery <= 0 {
		c.RetentionEvery = defaults.RetentionEvery
	}
	if c.StatePurgeEvery <= 0 {
		c.StatePurgeEvery = defaults.StatePurgeEvery
	}
	return c
}
