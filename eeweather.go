// Package eeweather matches sites to weather stations and loads normalized
// temperature series for them from NOAA ISD and GSOD archives and the TMY3
// and CZ2010 normal-year datasets, caching everything it downloads.
package eeweather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/openeemeter/eeweather/internal/cache"
	"github.com/openeemeter/eeweather/internal/config"
	"github.com/openeemeter/eeweather/internal/geo"
	"github.com/openeemeter/eeweather/internal/mapping"
	"github.com/openeemeter/eeweather/internal/metadata"
	"github.com/openeemeter/eeweather/internal/provider/resilience"
	"github.com/openeemeter/eeweather/internal/ranking"
	"github.com/openeemeter/eeweather/internal/telemetry"
	"github.com/openeemeter/eeweather/internal/temperature"
	"github.com/openeemeter/eeweather/internal/temperature/noaa"
	"github.com/openeemeter/eeweather/internal/temperature/normalyear"
	"github.com/openeemeter/eeweather/internal/warning"
	"github.com/openeemeter/eeweather/pkg/timeseries"
)

// Config configures a Client. Settings holds the environment-derived
// configuration; the remaining fields replace the backends it would open.
type Config struct {
	Settings config.Config

	// Metadata replaces the SQLite metadata database at Settings.MetadataPath.
	Metadata metadata.Store

	// Cache replaces the backend selected by Settings.CacheURL.
	Cache cache.Store

	// FTPDialer replaces the network dialer of the NOAA session.
	FTPDialer noaa.Dialer

	Clock  clockwork.Clock
	Logger zerolog.Logger
}

// Sources are the temperature datasets a client can load.
type Sources struct {
	ISDHourly    temperature.Source
	ISDDaily     temperature.Source
	GSODDaily    temperature.Source
	TMY3Hourly   temperature.Source
	CZ2010Hourly temperature.Source
}

// Client is the entry point for station matching and temperature loads.
type Client struct {
	metadata    metadata.Store
	cache       cache.Store
	registry    *resilience.Registry
	session     *noaa.Session
	temperature *temperature.Service
	ranker      *ranking.Ranker
	selector    *ranking.Selector
	resolvers   map[mapping.Network]*mapping.Resolver
	sources     Sources
	logger      zerolog.Logger

	closers []func() error
}

// New builds a client, opening the metadata and cache databases unless
// cfg provides them.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	settings := cfg.Settings
	logger := cfg.Logger

	c := &Client{
		registry:  resilience.NewRegistry(cfg.Clock),
		resolvers: make(map[mapping.Network]*mapping.Resolver),
		logger:    logger,
	}

	c.metadata = cfg.Metadata
	if c.metadata == nil {
		store, err := metadata.OpenSQLiteStore(ctx, settings.MetadataPath)
		if err != nil {
			return nil, err
		}
		c.metadata = store
		c.closers = append(c.closers, store.Close)
	}

	c.cache = cfg.Cache
	if c.cache == nil {
		store, err := cache.Open(ctx, cache.Config{
			URL:    settings.CacheURL,
			Clock:  cfg.Clock,
			Logger: logger,
		})
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("open cache: %w", err)
		}
		c.cache = store
		c.closers = append(c.closers, store.Close)
	}

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		logger.Warn().Err(err).Msg("metrics disabled")
	}

	c.session = noaa.NewSession(noaa.SessionConfig{
		Addr:     settings.FTPHost,
		Dialer:   cfg.FTPDialer,
		Timeout:  settings.FTPTimeout,
		Registry: c.registry,
		Logger:   logger,
	})
	c.closers = append(c.closers, c.session.Close)

	noaaClient := noaa.NewClient(noaa.ClientConfig{
		Retriever: c.session,
		Metadata:  c.metadata,
		Logger:    logger,
	})
	c.sources = Sources{
		ISDHourly:    noaa.ISDHourly(noaaClient),
		ISDDaily:     noaa.ISDDaily(noaaClient),
		GSODDaily:    noaa.GSODDaily(noaaClient),
		TMY3Hourly:   c.normalYearSource(normalyear.TMY3, settings.TMY3BaseURL, settings.HTTPTimeout),
		CZ2010Hourly: c.normalYearSource(normalyear.CZ2010, settings.CZ2010BaseURL, settings.HTTPTimeout),
	}

	c.temperature = temperature.NewService(temperature.ServiceConfig{
		Cache:    c.cache,
		Metadata: c.metadata,
		Clock:    cfg.Clock,
		Metrics:  metrics,
		Logger:   logger,
	})

	c.ranker = ranking.NewRanker(ranking.RankerConfig{Metadata: c.metadata, Logger: logger})
	c.selector = ranking.NewSelector(ranking.SelectorConfig{
		Loader: c.temperature,
		Source: c.sources.ISDHourly,
		Logger: logger,
	})

	for _, network := range []mapping.Network{mapping.NetworkISD, mapping.NetworkTMY3, mapping.NetworkCZ2010} {
		c.resolvers[network] = mapping.NewResolver(mapping.ResolverConfig{
			Metadata: c.metadata,
			Zones:    c.ranker,
			Network:  network,
			Logger:   logger,
		})
	}

	return c, nil
}

func (c *Client) normalYearSource(network normalyear.Network, baseURL string, timeout time.Duration) temperature.Source {
	httpConfig := resilience.DefaultClientConfig(network.Name)
	if timeout > 0 {
		httpConfig.Timeout = timeout
	}
	httpConfig.Registry = c.registry

	return normalyear.NewSource(normalyear.SourceConfig{
		Network:  network,
		BaseURL:  baseURL,
		Fetcher:  resilience.NewClient(httpConfig),
		Metadata: c.metadata,
		Logger:   c.logger,
	})
}

// Close releases the session and any databases the client opened.
func (c *Client) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Sources returns the loadable datasets.
func (c *Client) Sources() Sources {
	return c.sources
}

// Station returns station metadata.
func (c *Client) Station(ctx context.Context, usafID string) (*metadata.Station, error) {
	return c.metadata.StationByID(ctx, usafID)
}

// Region returns ZCTA metadata.
func (c *Client) Region(ctx context.Context, zcta string) (*metadata.Region, error) {
	return c.metadata.RegionByID(ctx, zcta)
}

// ZoneTags returns the climate zones containing a point.
func (c *Client) ZoneTags(ctx context.Context, lat, lon float64) (geo.ZoneTags, error) {
	p := geo.Point{Lat: lat, Lon: lon}
	if err := p.Validate(); err != nil {
		return geo.ZoneTags{}, err
	}
	return c.ranker.ZoneTags(ctx, p)
}

// StationIDs lists station ids, optionally for one state.
func (c *Client) StationIDs(ctx context.Context, state string) ([]string, error) {
	return c.metadata.StationIDs(ctx, state)
}

// ZCTAIDs lists ZCTA ids, optionally for one state.
func (c *Client) ZCTAIDs(ctx context.Context, state string) ([]string, error) {
	return c.metadata.RegionIDs(ctx, state)
}

// RankStations ranks every station against a site.
func (c *Client) RankStations(ctx context.Context, lat, lon float64, criteria ranking.Criteria) ([]ranking.Candidate, error) {
	return c.ranker.Rank(ctx, geo.Point{Lat: lat, Lon: lon}, criteria)
}

// CombineRankings merges rankings in priority order.
func CombineRankings(rankings ...[]ranking.Candidate) ([]ranking.Candidate, error) {
	return ranking.Combine(rankings...)
}

// SelectStation picks a station with enough ISD hourly data from a ranking.
func (c *Client) SelectStation(ctx context.Context, candidates []ranking.Candidate, opts ranking.SelectOptions) (*ranking.Candidate, []warning.Warning, error) {
	return c.selector.Select(ctx, candidates, opts)
}

// Matcher returns a matcher for a network and policy.
func (c *Client) Matcher(network mapping.Network, policy mapping.Policy) *mapping.Matcher {
	resolver, ok := c.resolvers[network]
	if !ok {
		resolver = c.resolvers[mapping.NetworkISD]
	}
	return mapping.NewMatcher(mapping.MatcherConfig{
		Metadata: c.metadata,
		Strategy: resolver.Strategy(policy),
		Logger:   c.logger,
	})
}

// MatchLatLong maps a point to an ISD station with the default policy.
func (c *Client) MatchLatLong(ctx context.Context, lat, lon float64) (mapping.Result, error) {
	return c.Matcher(mapping.NetworkISD, mapping.PolicyDefault).MatchLatLong(ctx, lat, lon)
}

// MatchZCTA maps a ZCTA to an ISD station with the default policy.
func (c *Client) MatchZCTA(ctx context.Context, zcta string) (mapping.Result, error) {
	return c.Matcher(mapping.NetworkISD, mapping.PolicyDefault).MatchZCTA(ctx, zcta)
}

// Load loads a series from src for [start, end].
func (c *Client) Load(ctx context.Context, src temperature.Source, usafID string, start, end time.Time, opts temperature.LoadOptions) (timeseries.Series, []warning.Warning, error) {
	return c.temperature.Load(ctx, src, usafID, start, end, opts)
}

// LoadISDHourly loads hourly ISD temperatures.
func (c *Client) LoadISDHourly(ctx context.Context, usafID string, start, end time.Time, opts temperature.LoadOptions) (timeseries.Series, []warning.Warning, error) {
	return c.Load(ctx, c.sources.ISDHourly, usafID, start, end, opts)
}

// LoadISDDaily loads daily ISD temperatures.
func (c *Client) LoadISDDaily(ctx context.Context, usafID string, start, end time.Time, opts temperature.LoadOptions) (timeseries.Series, []warning.Warning, error) {
	return c.Load(ctx, c.sources.ISDDaily, usafID, start, end, opts)
}

// LoadGSODDaily loads daily GSOD temperatures.
func (c *Client) LoadGSODDaily(ctx context.Context, usafID string, start, end time.Time, opts temperature.LoadOptions) (timeseries.Series, []warning.Warning, error) {
	return c.Load(ctx, c.sources.GSODDaily, usafID, start, end, opts)
}

// LoadTMY3Hourly loads the TMY3 normal year reprojected onto [start, end].
func (c *Client) LoadTMY3Hourly(ctx context.Context, usafID string, start, end time.Time, opts temperature.LoadOptions) (timeseries.Series, []warning.Warning, error) {
	return c.Load(ctx, c.sources.TMY3Hourly, usafID, start, end, opts)
}

// LoadCZ2010Hourly loads the CZ2010 normal year reprojected onto [start, end].
func (c *Client) LoadCZ2010Hourly(ctx context.Context, usafID string, start, end time.Time, opts temperature.LoadOptions) (timeseries.Series, []warning.Warning, error) {
	return c.Load(ctx, c.sources.CZ2010Hourly, usafID, start, end, opts)
}

// LoadYear loads one cache unit of src.
func (c *Client) LoadYear(ctx context.Context, src temperature.Source, usafID string, year int, opts temperature.LoadOptions) (timeseries.Series, error) {
	return c.temperature.LoadYear(ctx, src, usafID, year, opts)
}

// LoadCached returns everything cached for a station, or nil.
func (c *Client) LoadCached(ctx context.Context, src temperature.Source, usafID string) (*timeseries.Series, error) {
	return c.temperature.LoadCached(ctx, src, usafID)
}

// Validate checks, and evicts if expired, one cache unit.
func (c *Client) Validate(ctx context.Context, src temperature.Source, usafID string, year int) (cache.Validity, error) {
	return c.temperature.Validate(ctx, src, usafID, year)
}

// Destroy evicts one cache unit.
func (c *Client) Destroy(ctx context.Context, src temperature.Source, usafID string, year int) error {
	return c.temperature.Destroy(ctx, src, usafID, year)
}

// ClearCache deletes every cached series.
func (c *Client) ClearCache(ctx context.Context) error {
	return c.cache.Clear(ctx, "")
}

// CacheKey returns the cache key of one unit of src.
func (c *Client) CacheKey(src temperature.Source, usafID string, year int) string {
	return c.temperature.CacheKey(src, usafID, year)
}

// Health reports the state of every upstream.
func (c *Client) Health() []*resilience.UpstreamHealth {
	return c.registry.AllHealth()
}
