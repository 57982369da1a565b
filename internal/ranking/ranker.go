// Package ranking orders candidate weather stations by distance to a target
// point after filtering them on climate zone, state, quality and other
// criteria, and picks qualifying stations from a ranked list.
package ranking

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openeemeter/eeweather/internal/geo"
	"github.com/openeemeter/eeweather/internal/metadata"
)

// ErrNoRankings is returned by Combine when given no rankings.
var ErrNoRankings = errors.New("requires at least one ranking")

// Criteria filters candidates. Zero values do not filter.
type Criteria struct {
	// SiteState is compared when MatchState is set. Empty means the site
	// has no state, which matches only stations without one.
	SiteState string

	// SiteElevation in meters enables MaxElevationDeltaMeters.
	SiteElevation *float64

	MatchIECCClimateZone    bool
	MatchIECCMoistureRegime bool
	MatchBAClimateZone      bool
	MatchCAClimateZone      bool
	MatchState              bool

	// MinimumQuality keeps stations at or above the tier.
	MinimumQuality metadata.Quality

	// MinimumTMY3Class keeps stations at or above the class.
	MinimumTMY3Class metadata.TMY3Class

	MaxDistanceMeters       *float64
	MaxElevationDeltaMeters *float64

	// IsTMY3 and IsCZ2010 filter on equality when set.
	IsTMY3   *bool
	IsCZ2010 *bool
}

func (c Criteria) matchesZones() bool {
	return c.MatchIECCClimateZone || c.MatchIECCMoistureRegime || c.MatchBAClimateZone || c.MatchCAClimateZone
}

// Candidate is a station ranked against a target.
type Candidate struct {
	metadata.Station

	// Rank is 1-based and dense.
	Rank int

	// DistanceMeters is nil when the station has no coordinates.
	DistanceMeters *float64

	// ElevationDeltaMeters is nil without a site elevation or a station
	// elevation.
	ElevationDeltaMeters *float64
}

// RankerConfig holds configuration for the ranker.
type RankerConfig struct {
	Metadata metadata.Store
	Logger   zerolog.Logger
}

// Ranker ranks the full station population against target points.
type Ranker struct {
	metadata metadata.Store
	logger   zerolog.Logger

	mu    sync.Mutex
	zones *geo.ZoneIndex
}

// NewRanker creates a ranker. Zone geometry is loaded on first use.
func NewRanker(cfg RankerConfig) *Ranker {
	return &Ranker{
		metadata: cfg.Metadata,
		logger:   cfg.Logger,
	}
}

// ZoneTags returns the climate zones containing p.
func (r *Ranker) ZoneTags(ctx context.Context, p geo.Point) (geo.ZoneTags, error) {
	idx, err := r.zoneIndex(ctx)
	if err != nil {
		return geo.ZoneTags{}, err
	}
	return idx.Lookup(p), nil
}

func (r *Ranker) zoneIndex(ctx context.Context) (*geo.ZoneIndex, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.zones != nil {
		return r.zones, nil
	}
	zones, err := r.metadata.ZoneGeometries(ctx)
	if err != nil {
		return nil, err
	}
	r.zones = geo.NewZoneIndex(zones)
	r.logger.Debug().Int("zones", r.zones.Len()).Msg("zone index loaded")
	return r.zones, nil
}

// Rank filters every known station by criteria and orders the rest by
// distance from target. Stations without coordinates sort last.
func (r *Ranker) Rank(ctx context.Context, target geo.Point, criteria Criteria) ([]Candidate, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	stations, err := r.metadata.Stations(ctx, metadata.StationFilter{})
	if err != nil {
		return nil, err
	}

	var siteZones geo.ZoneTags
	if criteria.matchesZones() {
		if siteZones, err = r.ZoneTags(ctx, target); err != nil {
			return nil, err
		}
	}

	candidates := make([]Candidate, 0, len(stations))
	for _, station := range stations {
		c := Candidate{Station: station}
		if station.Location != nil {
			d := geo.Distance(target, *station.Location)
			c.DistanceMeters = &d
		}
		if criteria.SiteElevation != nil && station.Elevation != nil {
			delta := math.Abs(*station.Elevation - *criteria.SiteElevation)
			c.ElevationDeltaMeters = &delta
		}
		if criteria.keep(c, siteZones) {
			candidates = append(candidates, c)
		}
	}

	sortByDistance(candidates)
	renumber(candidates)

	r.logger.Debug().
		Float64("lat", target.Lat).
		Float64("lon", target.Lon).
		Int("stations", len(stations)).
		Int("candidates", len(candidates)).
		Msg("ranked stations")
	return candidates, nil
}

func (c Criteria) keep(cand Candidate, site geo.ZoneTags) bool {
	zones := cand.Zones
	switch {
	case c.MatchIECCClimateZone && zones.IECCClimateZone != site.IECCClimateZone:
		return false
	case c.MatchIECCMoistureRegime && zones.IECCMoistureRegime != site.IECCMoistureRegime:
		return false
	case c.MatchBAClimateZone && zones.BAClimateZone != site.BAClimateZone:
		return false
	case c.MatchCAClimateZone && zones.CAClimateZone != site.CAClimateZone:
		return false
	case c.MatchState && cand.State != c.SiteState:
		return false
	case c.IsTMY3 != nil && cand.IsTMY3 != *c.IsTMY3:
		return false
	case c.IsCZ2010 != nil && cand.IsCZ2010 != *c.IsCZ2010:
		return false
	case c.MinimumQuality != metadata.QualityUnknown && cand.Quality < c.MinimumQuality:
		return false
	case c.MinimumTMY3Class != metadata.TMY3ClassNone && cand.TMY3Class < c.MinimumTMY3Class:
		return false
	}

	if c.MaxDistanceMeters != nil {
		if cand.DistanceMeters == nil || *cand.DistanceMeters > *c.MaxDistanceMeters {
			return false
		}
	}
	if c.MaxElevationDeltaMeters != nil && c.SiteElevation != nil {
		if cand.ElevationDeltaMeters == nil || *cand.ElevationDeltaMeters > *c.MaxElevationDeltaMeters {
			return false
		}
	}
	return true
}

func sortByDistance(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		di, dj := candidates[i].DistanceMeters, candidates[j].DistanceMeters
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		}
		return *di < *dj
	})
}

func renumber(candidates []Candidate) {
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
}

// Combine merges rankings in priority order. Stations already present in
// an earlier ranking are skipped; the rest keep their relative order.
// Ranks are renumbered over the result.
func Combine(rankings ...[]Candidate) ([]Candidate, error) {
	if len(rankings) == 0 {
		return nil, ErrNoRankings
	}

	seen := make(map[string]struct{})
	var combined []Candidate
	for _, ranking := range rankings {
		for _, c := range ranking {
			if _, ok := seen[c.USAFID]; ok {
				continue
			}
			seen[c.USAFID] = struct{}{}
			combined = append(combined, c)
		}
	}
	renumber(combined)
	return combined, nil
}
