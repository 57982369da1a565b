package mapping

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/openeemeter/eeweather/internal/geo"
	"github.com/openeemeter/eeweather/internal/metadata"
	"github.com/openeemeter/eeweather/internal/warning"
)

// MatcherConfig holds configuration for a matcher.
type MatcherConfig struct {
	// Metadata resolves ZCTA centroids.
	Metadata metadata.Store

	// Strategy maps targets. Usually a resolver's default policy.
	Strategy Strategy

	Logger zerolog.Logger
}

// Matcher matches lat/long points and ZCTAs to stations.
type Matcher struct {
	metadata metadata.Store
	strategy Strategy
	logger   zerolog.Logger
}

// NewMatcher creates a matcher.
func NewMatcher(cfg MatcherConfig) *Matcher {
	return &Matcher{
		metadata: cfg.Metadata,
		strategy: cfg.Strategy,
		logger:   cfg.Logger,
	}
}

// Using returns a matcher sharing m's metadata but mapping with s.
func (m *Matcher) Using(s Strategy) *Matcher {
	clone := *m
	clone.strategy = s
	return &clone
}

// MatchLatLong maps a coordinate.
func (m *Matcher) MatchLatLong(ctx context.Context, lat, lon float64) (Result, error) {
	p := geo.Point{Lat: lat, Lon: lon}
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	return m.match(ctx, Target{Point: p})
}

// MatchZCTA maps a ZCTA by its centroid. Unknown ids return
// metadata.ErrUnrecognizedRegionID.
func (m *Matcher) MatchZCTA(ctx context.Context, zcta string) (Result, error) {
	region, err := m.metadata.RegionByID(ctx, zcta)
	if err != nil {
		return Result{}, err
	}
	return m.match(ctx, Target{Point: region.Location, RegionID: region.ID})
}

func (m *Matcher) match(ctx context.Context, target Target) (Result, error) {
	result, err := m.strategy.Match(ctx, target)
	if err != nil {
		return Result{}, err
	}

	event := m.logger.Debug().
		Float64("lat", target.Point.Lat).
		Float64("lon", target.Point.Lon).
		Strs("warnings", warning.Names(result.Warnings))
	if target.RegionID != "" {
		event = event.Str("zcta", target.RegionID)
	}
	event.Str("usaf_id", result.USAFID()).Msg("target matched")
	return result, nil
}
