package temperature

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/openeemeter/eeweather/internal/cache"
	"github.com/openeemeter/eeweather/internal/metadata"
	"github.com/openeemeter/eeweather/internal/telemetry"
	"github.com/openeemeter/eeweather/internal/warning"
	"github.com/openeemeter/eeweather/pkg/timeseries"
)

// FirstCachedYear is the earliest year scanned by LoadCached.
const FirstCachedYear = 2000

// ServiceConfig holds configuration for the temperature service.
type ServiceConfig struct {
	// Cache holds serialized series. Required.
	Cache cache.Store

	// Metadata validates station ids before any fetch. Required.
	Metadata metadata.Store

	// Policy decides cache freshness. Defaults to cache.NewPolicy(Clock).
	Policy *cache.Policy

	// Clock bounds LoadCached. Defaults to the real clock.
	Clock clockwork.Clock

	// Metrics is optional.
	Metrics *telemetry.Metrics

	Logger zerolog.Logger
}

// Service loads temperature series through the cache.
type Service struct {
	cache    cache.Store
	metadata metadata.Store
	policy   *cache.Policy
	clock    clockwork.Clock
	metrics  *telemetry.Metrics
	logger   zerolog.Logger
}

// NewService creates a temperature service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Policy == nil {
		cfg.Policy = cache.NewPolicy(cfg.Clock)
	}
	return &Service{
		cache:    cfg.Cache,
		metadata: cfg.Metadata,
		policy:   cfg.Policy,
		clock:    cfg.Clock,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

// CacheKey returns the cache key of one unit of src data, e.g.
// "isd-hourly-722874-2007" or "tmy3-hourly-722874".
func (s *Service) CacheKey(src Source, usafID string, year int) string {
	if src.NormalYear() {
		return fmt.Sprintf("%s-%s-%s", src.Name(), src.Frequency(), usafID)
	}
	return fmt.Sprintf("%s-%s-%s-%d", src.Name(), src.Frequency(), usafID, year)
}

// LoadYear loads one unit of data: a calendar year, or the whole normal
// year (year ignored) for normal-year sources.
func (s *Service) LoadYear(ctx context.Context, src Source, usafID string, year int, opts LoadOptions) (timeseries.Series, error) {
	if _, err := s.metadata.StationByID(ctx, usafID); err != nil {
		return timeseries.Series{}, err
	}
	return s.loadUnit(ctx, src, usafID, year, opts)
}

// Load returns src data for usafID on the inclusive tick grid from start
// (rounded up) to end (rounded down). Both bounds must be UTC.
//
// Years without upstream data are reported as warnings and left null,
// unless opts.ErrorOnMissingYears is set. Normal-year sources are loaded
// once and reprojected onto each year of the range.
func (s *Service) Load(ctx context.Context, src Source, usafID string, start, end time.Time, opts LoadOptions) (timeseries.Series, []warning.Warning, error) {
	if err := checkUTC(start); err != nil {
		return timeseries.Series{}, nil, fmt.Errorf("start: %w", err)
	}
	if err := checkUTC(end); err != nil {
		return timeseries.Series{}, nil, fmt.Errorf("end: %w", err)
	}
	if _, err := s.metadata.StationByID(ctx, usafID); err != nil {
		return timeseries.Series{}, nil, err
	}

	freq := src.Frequency()
	var (
		parts    []timeseries.Series
		warnings []warning.Warning
	)

	if src.NormalYear() {
		normal, err := s.loadUnit(ctx, src, usafID, 0, opts)
		if err != nil {
			return timeseries.Series{}, nil, err
		}
		for year := start.Year(); year <= end.Year(); year++ {
			parts = append(parts, timeseries.Reproject(normal, year))
		}
	} else {
		for year := start.Year(); year <= end.Year(); year++ {
			unit, err := s.loadUnit(ctx, src, usafID, year, opts)
			if errors.Is(err, ErrDataNotAvailable) && !opts.ErrorOnMissingYears {
				s.logger.Debug().
					Str("source", src.Name()).
					Str("usaf_id", usafID).
					Int("year", year).
					Msg("year not available")
				warnings = append(warnings, warning.DataNotAvailable(src.Name(), usafID, year))
				continue
			}
			if err != nil {
				return timeseries.Series{}, nil, err
			}
			parts = append(parts, unit)
		}
	}

	merged := timeseries.Merge(freq, parts...)
	return timeseries.Reindex(merged, start, end), warnings, nil
}

// LoadCached concatenates every cached unit of src data for usafID without
// touching the network. It returns nil when nothing is cached.
func (s *Service) LoadCached(ctx context.Context, src Source, usafID string) (*timeseries.Series, error) {
	years := []int{0}
	if !src.NormalYear() {
		years = years[:0]
		for year := FirstCachedYear; year <= s.clock.Now().Year(); year++ {
			years = append(years, year)
		}
	}

	var parts []timeseries.Series
	for _, year := range years {
		series, ok, err := s.readCache(ctx, src, s.CacheKey(src, usafID, year))
		if err != nil {
			return nil, err
		}
		if ok {
			parts = append(parts, series)
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}
	merged := timeseries.Merge(src.Frequency(), parts...)
	return &merged, nil
}

// Destroy evicts one unit of src data for usafID from the cache.
func (s *Service) Destroy(ctx context.Context, src Source, usafID string, year int) error {
	key := s.CacheKey(src, usafID, year)
	if err := s.cache.Clear(ctx, key); err != nil {
		return err
	}
	s.logger.Debug().Str("key", key).Msg("cache entry destroyed")
	return nil
}

// Validate reports the freshness of one cached unit, evicting it when expired.
func (s *Service) Validate(ctx context.Context, src Source, usafID string, year int) (cache.Validity, error) {
	validity, err := s.policy.Validate(ctx, s.cache, s.CacheKey(src, usafID, year), year, src.NormalYear())
	if validity == cache.Expired {
		s.metrics.CacheEviction(ctx, src.Name())
	}
	return validity, err
}

func (s *Service) loadUnit(ctx context.Context, src Source, usafID string, year int, opts LoadOptions) (timeseries.Series, error) {
	key := s.CacheKey(src, usafID, year)

	validity, err := s.Validate(ctx, src, usafID, year)
	if err != nil {
		return timeseries.Series{}, err
	}
	fresh := validity == cache.Fresh

	s.logger.Debug().
		Str("key", key).
		Str("validity", validity.String()).
		Msg("cache lookup")

	if !opts.FetchFromWeb && !fresh {
		s.metrics.CacheMiss(ctx, src.Name())
		return timeseries.Series{}, NotAvailable(src.Name(), usafID, year)
	}

	if fresh && (opts.ReadFromCache || !opts.FetchFromWeb) {
		series, ok, err := s.readCache(ctx, src, key)
		if err != nil {
			return timeseries.Series{}, err
		}
		if ok {
			s.metrics.CacheHit(ctx, src.Name())
			return series, nil
		}
	}

	s.metrics.CacheMiss(ctx, src.Name())
	series, err := s.fetch(ctx, src, usafID, year)
	if err != nil {
		return timeseries.Series{}, err
	}

	// Fetched data goes through the codec either way so a fresh load and a
	// later cache hit return identical values.
	payload, err := timeseries.Encode(series)
	if err != nil {
		return timeseries.Series{}, err
	}
	if opts.WriteToCache {
		if err := s.cache.Save(ctx, key, payload); err != nil {
			return timeseries.Series{}, fmt.Errorf("write %s: %w", key, err)
		}
	}
	series, err = timeseries.Decode(payload, src.Frequency())
	if err != nil {
		return timeseries.Series{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return series, nil
}

func (s *Service) fetch(ctx context.Context, src Source, usafID string, year int) (timeseries.Series, error) {
	ctx, span := telemetry.StartFetchSpan(ctx, src.Name(), usafID, year)
	defer span.End()

	started := s.clock.Now()
	series, err := src.Fetch(ctx, usafID, year)
	failed := err != nil && !errors.Is(err, ErrDataNotAvailable)
	s.metrics.FetchCompleted(ctx, src.Name(), s.clock.Since(started), failed)

	if err != nil {
		if failed {
			span.RecordError(err)
		}
		s.logger.Debug().
			Err(err).
			Str("source", src.Name()).
			Str("usaf_id", usafID).
			Int("year", year).
			Msg("fetch failed")
		return timeseries.Series{}, err
	}

	s.logger.Debug().
		Str("source", src.Name()).
		Str("usaf_id", usafID).
		Int("year", year).
		Int("samples", series.Len()).
		Msg("fetched")
	return series, nil
}

func (s *Service) readCache(ctx context.Context, src Source, key string) (timeseries.Series, bool, error) {
	payload, err := s.cache.Retrieve(ctx, key)
	if err != nil {
		return timeseries.Series{}, false, err
	}
	if payload == nil {
		return timeseries.Series{}, false, nil
	}
	series, err := timeseries.Decode(payload, src.Frequency())
	if err != nil {
		return timeseries.Series{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return series, true, nil
}

// checkUTC rejects timestamps in any zone other than UTC. Local time is
// rejected even when the local zone has a zero offset.
func checkUTC(t time.Time) error {
	if t.Location() == time.Local {
		return ErrNonUTCTimestamp
	}
	if _, offset := t.Zone(); offset != 0 {
		return ErrNonUTCTimestamp
	}
	return nil
}
