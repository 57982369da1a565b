package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/openeemeter/eeweather/internal/cache"
	"github.com/openeemeter/eeweather/internal/temperature"
	"github.com/openeemeter/eeweather/pkg/timeseries"
)

// Loader loads and validates cache units. *eeweather.Client and
// *temperature.Service implement it.
type Loader interface {
	LoadYear(ctx context.Context, src temperature.Source, usafID string, year int, opts temperature.LoadOptions) (timeseries.Series, error)
	Validate(ctx context.Context, src temperature.Source, usafID string, year int) (cache.Validity, error)
}

// WarmJob fills the cache for the configured stations and sources.
type WarmJob struct {
	config  WarmConfig
	loader  Loader
	sources []temperature.Source
	clock   clockwork.Clock
	logger  zerolog.Logger

	metrics *WarmMetrics
}

// WarmMetrics tracks warm job statistics across runs.
type WarmMetrics struct {
	mu sync.RWMutex

	TotalRuns   int64
	Warmed      int64
	Cached      int64
	Unavailable int64
	Failed      int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// WarmJobConfig holds configuration for creating a WarmJob.
type WarmJobConfig struct {
	Config  WarmConfig
	Loader  Loader
	Sources []temperature.Source
	Clock   clockwork.Clock
	Logger  zerolog.Logger
}

// NewWarmJob creates a new warm job.
func NewWarmJob(cfg WarmJobConfig) *WarmJob {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &WarmJob{
		config:  cfg.Config.withDefaults(clock),
		loader:  cfg.Loader,
		sources: cfg.Sources,
		clock:   clock,
		logger:  cfg.Logger,
		metrics: &WarmMetrics{},
	}
}

// WarmResult contains the outcome of one run.
type WarmResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	TotalUnits int

	// Warmed units were fetched and written.
	Warmed int

	// Cached units were already fresh.
	Cached int

	// Unavailable units have no upstream data.
	Unavailable int

	Failed int
	Errors []WarmError
}

// WarmError describes a unit that failed to load.
type WarmError struct {
	Source string
	USAFID string
	Year   int
	Error  string
}

type unit struct {
	source temperature.Source
	usafID string
	year   int
}

type outcome int

const (
	outcomeWarmed outcome = iota
	outcomeCached
	outcomeUnavailable
	outcomeFailed
)

type unitResult struct {
	unit    unit
	outcome outcome
	err     error
}

func (j *WarmJob) units() []unit {
	var units []unit
	for _, target := range j.config.Targets() {
		for _, src := range j.sources {
			if src.NormalYear() {
				units = append(units, unit{source: src, usafID: target.USAFID})
				continue
			}
			for _, year := range target.Years {
				units = append(units, unit{source: src, usafID: target.USAFID, year: year})
			}
		}
	}
	return units
}

// Run warms every unit once and returns the aggregated result.
func (j *WarmJob) Run(ctx context.Context) *WarmResult {
	startTime := j.clock.Now()
	units := j.units()
	result := &WarmResult{
		StartTime:  startTime,
		TotalUnits: len(units),
	}

	j.logger.Info().
		Int("stations", len(j.config.Stations)).
		Ints("years", j.config.Years).
		Int("total_units", result.TotalUnits).
		Int("concurrency", j.config.Concurrency).
		Msg("starting cache warm job")

	unitsChan := make(chan unit, len(units))
	resultsChan := make(chan unitResult, len(units))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.warmWorker(ctx, unitsChan, resultsChan)
		}()
	}

	for _, u := range units {
		unitsChan <- u
	}
	close(unitsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for r := range resultsChan {
		switch r.outcome {
		case outcomeWarmed:
			result.Warmed++
		case outcomeCached:
			result.Cached++
		case outcomeUnavailable:
			result.Unavailable++
		case outcomeFailed:
			result.Failed++
			result.Errors = append(result.Errors, WarmError{
				Source: r.unit.source.Name(),
				USAFID: r.unit.usafID,
				Year:   r.unit.year,
				Error:  r.err.Error(),
			})
		}
	}

	result.EndTime = j.clock.Now()
	result.Duration = result.EndTime.Sub(startTime)
	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("warmed", result.Warmed).
		Int("cached", result.Cached).
		Int("unavailable", result.Unavailable).
		Int("failed", result.Failed).
		Msg("cache warm job completed")

	return result
}

func (j *WarmJob) warmWorker(ctx context.Context, units <-chan unit, results chan<- unitResult) {
	for u := range units {
		if ctx.Err() != nil {
			results <- unitResult{unit: u, outcome: outcomeFailed, err: ctx.Err()}
			continue
		}
		results <- j.warmUnit(ctx, u)
	}
}

func (j *WarmJob) warmUnit(ctx context.Context, u unit) unitResult {
	unitCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	validity, err := j.loader.Validate(unitCtx, u.source, u.usafID, u.year)
	if err != nil {
		return unitResult{unit: u, outcome: outcomeFailed, err: err}
	}
	if validity == cache.Fresh {
		return unitResult{unit: u, outcome: outcomeCached}
	}

	_, err = j.loader.LoadYear(unitCtx, u.source, u.usafID, u.year, temperature.DefaultLoadOptions())
	switch {
	case errors.Is(err, temperature.ErrDataNotAvailable):
		j.logger.Debug().
			Str("source", u.source.Name()).
			Str("usaf_id", u.usafID).
			Int("year", u.year).
			Msg("no upstream data")
		return unitResult{unit: u, outcome: outcomeUnavailable}
	case err != nil:
		j.logger.Warn().
			Err(err).
			Str("source", u.source.Name()).
			Str("usaf_id", u.usafID).
			Int("year", u.year).
			Msg("failed to warm unit")
		return unitResult{unit: u, outcome: outcomeFailed, err: err}
	}
	return unitResult{unit: u, outcome: outcomeWarmed}
}

func (j *WarmJob) updateMetrics(result *WarmResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.Warmed += int64(result.Warmed)
	j.metrics.Cached += int64(result.Cached)
	j.metrics.Unavailable += int64(result.Unavailable)
	j.metrics.Failed += int64(result.Failed)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *WarmJob) GetMetrics() WarmMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return WarmMetrics{
		TotalRuns:       j.metrics.TotalRuns,
		Warmed:          j.metrics.Warmed,
		Cached:          j.metrics.Cached,
		Unavailable:     j.metrics.Unavailable,
		Failed:          j.metrics.Failed,
		LastRunAt:       j.metrics.LastRunAt,
		LastRunDuration: j.metrics.LastRunDuration,
		TotalDuration:   j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *WarmJob) MetricsSnapshot() map[string]any {
	m := j.GetMetrics()
	return map[string]any{
		"total_runs":        m.TotalRuns,
		"warmed":            m.Warmed,
		"cached":            m.Cached,
		"unavailable":       m.Unavailable,
		"failed":            m.Failed,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
		"total_duration":    m.TotalDuration.String(),
	}
}
