package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the cache and fetch instruments. A nil *Metrics records nothing.
type Metrics struct {
	cacheHits      metric.Int64Counter
	cacheMisses    metric.Int64Counter
	cacheEvictions metric.Int64Counter
	fetchFailures  metric.Int64Counter
	fetchDuration  metric.Float64Histogram
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	cacheHits, err := meter.Int64Counter(
		"eeweather.cache.hits",
		metric.WithDescription("Loads served from a valid cache entry"),
		metric.WithUnit("{load}"),
	)
	if err != nil {
		return nil, err
	}

	cacheMisses, err := meter.Int64Counter(
		"eeweather.cache.misses",
		metric.WithDescription("Loads with no valid cache entry"),
		metric.WithUnit("{load}"),
	)
	if err != nil {
		return nil, err
	}

	cacheEvictions, err := meter.Int64Counter(
		"eeweather.cache.evictions",
		metric.WithDescription("Expired cache entries removed on validation"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	fetchFailures, err := meter.Int64Counter(
		"eeweather.fetch.failures",
		metric.WithDescription("Upstream fetches that returned an error"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	fetchDuration, err := meter.Float64Histogram(
		"eeweather.fetch.duration",
		metric.WithDescription("Duration of upstream fetches in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		cacheHits:      cacheHits,
		cacheMisses:    cacheMisses,
		cacheEvictions: cacheEvictions,
		fetchFailures:  fetchFailures,
		fetchDuration:  fetchDuration,
	}, nil
}

func sourceAttr(source string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("eeweather.source", source))
}

// CacheHit records a load served from cache.
func (m *Metrics) CacheHit(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.cacheHits.Add(ctx, 1, sourceAttr(source))
}

// CacheMiss records a load that needed the network.
func (m *Metrics) CacheMiss(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.cacheMisses.Add(ctx, 1, sourceAttr(source))
}

// CacheEviction records an expired entry being removed.
func (m *Metrics) CacheEviction(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.cacheEvictions.Add(ctx, 1, sourceAttr(source))
}

// FetchCompleted records the duration of an upstream fetch and, when failed
// is set, counts it as a failure.
func (m *Metrics) FetchCompleted(ctx context.Context, source string, elapsed time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.fetchDuration.Record(ctx, elapsed.Seconds(), sourceAttr(source))
	if failed {
		m.fetchFailures.Add(ctx, 1, sourceAttr(source))
	}
}
