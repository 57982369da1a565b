// Package worker warms the temperature cache for a fixed set of stations so
// later loads are served without touching the upstream archives.
package worker

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// WarmTarget is one station and the years to cache for it.
type WarmTarget struct {
	USAFID string

	// Years applies to year-bound sources. Normal-year sources are warmed
	// once per station.
	Years []int
}

// WarmConfig holds configuration for the cache warm job.
type WarmConfig struct {
	// Stations to warm.
	Stations []string

	// Years to warm for every station.
	// If empty, uses the previous and current year.
	Years []int

	// Concurrency is the number of concurrent loads.
	// Default: 3
	Concurrency int

	// Timeout is the timeout for each unit.
	// Default: 2 minutes
	Timeout time.Duration
}

// DefaultWarmConfig returns the default warm configuration.
func DefaultWarmConfig() WarmConfig {
	return WarmConfig{
		Concurrency: 3,
		Timeout:     2 * time.Minute,
	}
}

// DefaultYears returns the previous and current year on clock.
func DefaultYears(clock clockwork.Clock) []int {
	year := clock.Now().UTC().Year()
	return []int{year - 1, year}
}

// Targets expands the configuration into one target per station.
func (c WarmConfig) Targets() []WarmTarget {
	targets := make([]WarmTarget, 0, len(c.Stations))
	for _, id := range c.Stations {
		targets = append(targets, WarmTarget{USAFID: id, Years: c.Years})
	}
	return targets
}

func (c WarmConfig) withDefaults(clock clockwork.Clock) WarmConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if len(c.Years) == 0 {
		c.Years = DefaultYears(clock)
	}
	return c
}
