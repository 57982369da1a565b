package mapping

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openeemeter/eeweather/internal/geo"
	"github.com/openeemeter/eeweather/internal/metadata"
	"github.com/openeemeter/eeweather/internal/warning"
)

// Network is a station population a resolver maps onto.
type Network string

const (
	NetworkISD    Network = "isd"
	NetworkTMY3   Network = "tmy3"
	NetworkCZ2010 Network = "cz2010"
)

// ZoneLocator finds the climate zones of a point. *ranking.Ranker
// implements it.
type ZoneLocator interface {
	ZoneTags(ctx context.Context, p geo.Point) (geo.ZoneTags, error)
}

// ResolverConfig holds configuration for a resolver.
type ResolverConfig struct {
	Metadata metadata.Store
	Zones    ZoneLocator

	// Network defaults to NetworkISD.
	Network Network

	Logger zerolog.Logger
}

// Resolver maps points to the closest station of one network.
type Resolver struct {
	metadata metadata.Store
	zones    ZoneLocator
	network  Network
	logger   zerolog.Logger
}

// NewResolver creates a resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	network := cfg.Network
	if network == "" {
		network = NetworkISD
	}
	return &Resolver{
		metadata: cfg.Metadata,
		zones:    cfg.Zones,
		network:  network,
		logger:   cfg.Logger.With().Str("network", string(network)).Logger(),
	}
}

// Network returns the resolver's station population.
func (r *Resolver) Network() Network {
	return r.network
}

// naiveFilter selects the stations NaiveClosest considers. The ISD network
// is limited to high quality stations; the normal-year networks use every
// member.
func (r *Resolver) naiveFilter() metadata.StationFilter {
	switch r.network {
	case NetworkTMY3:
		return metadata.StationFilter{TMY3Only: true}
	case NetworkCZ2010:
		return metadata.StationFilter{CZ2010Only: true}
	}
	return metadata.StationFilter{MinQuality: metadata.QualityHigh}
}

// zoneFilter selects the stations ClosestWithinZone considers: high quality
// members of the network.
func (r *Resolver) zoneFilter() metadata.StationFilter {
	f := r.naiveFilter()
	f.MinQuality = metadata.QualityHigh
	return f
}

// NaiveClosest maps p to the nearest station regardless of climate zone.
func (r *Resolver) NaiveClosest(ctx context.Context, p geo.Point) (Result, error) {
	stations, err := r.metadata.Stations(ctx, r.naiveFilter())
	if err != nil {
		return Result{}, err
	}

	closest, ok := nearest(p, stations)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrNoCandidates, r.network)
	}
	return StationMapping(closest, p), nil
}

// ClosestWithinZone maps p to the nearest station sharing all four of its
// climate zone tags, including the absence of a tag.
func (r *Resolver) ClosestWithinZone(ctx context.Context, p geo.Point) (Result, error) {
	tags, err := r.zones.ZoneTags(ctx, p)
	if err != nil {
		return Result{}, err
	}
	if tags.Empty() {
		return EmptyMapping(p, warning.New(
			warning.NameOutsideClimateZones,
			"Target outside all known climate zones.",
			nil,
		)), nil
	}

	stations, err := r.metadata.Stations(ctx, r.zoneFilter())
	if err != nil {
		return Result{}, err
	}

	inZone := stations[:0:0]
	for _, s := range stations {
		if s.Zones == tags {
			inZone = append(inZone, s)
		}
	}

	closest, ok := nearest(p, inZone)
	if !ok {
		return EmptyMapping(p, warning.New(
			warning.NameNoStationsInClimateZone,
			"No weather stations in the target climate zone.",
			map[string]any{
				"iecc_climate_zone":    tags.IECCClimateZone,
				"iecc_moisture_regime": tags.IECCMoistureRegime,
				"ba_climate_zone":      tags.BAClimateZone,
				"ca_climate_zone":      tags.CAClimateZone,
			},
		)), nil
	}
	return StationMapping(closest, p), nil
}

// DefaultPolicy tries ClosestWithinZone and falls back to NaiveClosest,
// flagging that the fallback station is in a different climate zone.
func (r *Resolver) DefaultPolicy(ctx context.Context, p geo.Point) (Result, error) {
	result, err := r.ClosestWithinZone(ctx, p)
	if err != nil || !result.IsEmpty() {
		return result, err
	}

	r.logger.Debug().
		Float64("lat", p.Lat).
		Float64("lon", p.Lon).
		Strs("reasons", warning.Names(result.Warnings)).
		Msg("no station in climate zone, falling back to closest")

	result, err = r.NaiveClosest(ctx, p)
	if err != nil {
		return Result{}, err
	}
	result.Warnings = append(result.Warnings, warning.New(
		warning.NameNotInSameClimateZone,
		"Mapped weather station is not in the same climate zone as the provided lat/long point.",
		nil,
	))
	return result, nil
}

// Policy names one of the resolver's mapping policies.
type Policy string

const (
	PolicyDefault           Policy = "default"
	PolicyNaiveClosest      Policy = "naive_closest"
	PolicyClosestWithinZone Policy = "closest_within_zone"
)

// Strategy exposes a policy as a match strategy.
func (r *Resolver) Strategy(policy Policy) Strategy {
	var fn func(context.Context, geo.Point) (Result, error)
	switch policy {
	case PolicyNaiveClosest:
		fn = r.NaiveClosest
	case PolicyClosestWithinZone:
		fn = r.ClosestWithinZone
	default:
		fn = r.DefaultPolicy
	}
	return StrategyFunc(func(ctx context.Context, t Target) (Result, error) {
		return fn(ctx, t.Point)
	})
}

// nearest returns the located station closest to p. Ties keep the first.
func nearest(p geo.Point, stations []metadata.Station) (metadata.Station, bool) {
	var (
		best     metadata.Station
		bestDist float64
		found    bool
	)
	for _, s := range stations {
		if s.Location == nil {
			continue
		}
		d := geo.Distance(p, *s.Location)
		if !found || d < bestDist {
			best, bestDist, found = s, d, true
		}
	}
	return best, found
}
