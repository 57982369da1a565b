package ranking

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/openeemeter/eeweather/internal/temperature"
	"github.com/openeemeter/eeweather/internal/warning"
	"github.com/openeemeter/eeweather/pkg/timeseries"
)

// Default selection thresholds.
const (
	DefaultMinFractionCoverage = 0.9
	DefaultRank                = 1
)

// DefaultDistanceWarnings are the distance thresholds, in meters, checked
// against the selected station.
var DefaultDistanceWarnings = []float64{50000, 200000}

// Loader loads temperature series. *temperature.Service implements it.
type Loader interface {
	Load(ctx context.Context, src temperature.Source, usafID string, start, end time.Time, opts temperature.LoadOptions) (timeseries.Series, []warning.Warning, error)
}

// CoverageRange is the period a selected station must have data for.
type CoverageRange struct {
	Start time.Time
	End   time.Time
}

// SelectOptions controls Select.
type SelectOptions struct {
	// Coverage enables the data check. Nil accepts every candidate.
	Coverage *CoverageRange

	// MinFractionCoverage must be strictly exceeded by the share of
	// non-null hours in Coverage.
	MinFractionCoverage float64

	// DistanceWarnings thresholds in meters.
	DistanceWarnings []float64

	// Rank is which passing candidate to return, starting at 1.
	// Default: 1
	Rank int

	// FetchFromWeb allows fetching data for the coverage check.
	FetchFromWeb bool
}

// DefaultSelectOptions returns the first candidate with more than 90%
// coverage.
func DefaultSelectOptions() SelectOptions {
	return SelectOptions{
		MinFractionCoverage: DefaultMinFractionCoverage,
		DistanceWarnings:    DefaultDistanceWarnings,
		Rank:                DefaultRank,
		FetchFromWeb:        true,
	}
}

func (o SelectOptions) withDefaults() SelectOptions {
	if o.Rank <= 0 {
		o.Rank = DefaultRank
	}
	return o
}

// SelectorConfig holds configuration for the selector.
type SelectorConfig struct {
	// Loader checks coverage.
	Loader Loader

	// Source is the hourly series coverage is measured on, normally ISD.
	Source temperature.Source

	Logger zerolog.Logger
}

// Selector picks stations with enough data from a ranked list.
type Selector struct {
	loader Loader
	source temperature.Source
	logger zerolog.Logger
}

// NewSelector creates a selector.
func NewSelector(cfg SelectorConfig) *Selector {
	return &Selector{
		loader: cfg.Loader,
		source: cfg.Source,
		logger: cfg.Logger,
	}
}

// Select walks candidates in order and returns the opts.Rank-th one that
// passes the coverage check, with its warnings. Candidates past it are not
// checked. When none qualifies it returns nil and a single
// no-station-selected warning. Only unexpected loader errors are returned.
func (s *Selector) Select(ctx context.Context, candidates []Candidate, opts SelectOptions) (*Candidate, []warning.Warning, error) {
	opts = opts.withDefaults()
	passed := 0
	for i := range candidates {
		c := candidates[i]

		ok, warnings, err := s.check(ctx, c, opts)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}

		passed++
		if passed == opts.Rank {
			if w, exceeded := distanceWarning(c, opts); exceeded {
				warnings = append(warnings, w)
			}
			s.logger.Debug().
				Str("usaf_id", c.USAFID).
				Int("rank", opts.Rank).
				Int("scanned", i+1).
				Msg("station selected")
			return &c, warnings, nil
		}
	}

	return nil, []warning.Warning{warning.New(
		warning.NameNoWeatherStationSelected,
		"No weather station found with the specified rank and minimum fractional coverage.",
		map[string]any{
			"rank":                  opts.Rank,
			"min_fraction_coverage": opts.MinFractionCoverage,
		},
	)}, nil
}

func (s *Selector) check(ctx context.Context, c Candidate, opts SelectOptions) (bool, []warning.Warning, error) {
	if opts.Coverage == nil {
		return true, nil, nil
	}

	loadOpts := temperature.DefaultLoadOptions()
	loadOpts.FetchFromWeb = opts.FetchFromWeb
	loadOpts.ErrorOnMissingYears = true

	series, warnings, err := s.loader.Load(ctx, s.source, c.USAFID, opts.Coverage.Start, opts.Coverage.End, loadOpts)
	if errors.Is(err, temperature.ErrDataNotAvailable) {
		s.logger.Debug().Err(err).Str("usaf_id", c.USAFID).Msg("candidate rejected")
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	if series.Len() == 0 {
		return false, nil, nil
	}

	coverage := series.Coverage()
	if coverage <= opts.MinFractionCoverage {
		s.logger.Debug().
			Str("usaf_id", c.USAFID).
			Float64("coverage", coverage).
			Msg("candidate below coverage")
		return false, nil, nil
	}
	return true, warnings, nil
}

// distanceWarning reports the largest threshold c is beyond, if any.
func distanceWarning(c Candidate, opts SelectOptions) (warning.Warning, bool) {
	if c.DistanceMeters == nil {
		return warning.Warning{}, false
	}
	distance := *c.DistanceMeters

	exceeded, found := 0.0, false
	for _, limit := range opts.DistanceWarnings {
		if distance > limit && (!found || limit > exceeded) {
			exceeded, found = limit, true
		}
	}
	if !found {
		return warning.Warning{}, false
	}
	return warning.New(
		warning.NameExceedsMaximumDistance,
		"Distance from target to weather station is greater than the specified km.",
		map[string]any{
			"distance_meters":     distance,
			"max_distance_meters": exceeded,
			"rank":                opts.Rank,
		},
	), true
}
