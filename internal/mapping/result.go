// Package mapping maps a target location to a single weather station using
// closest-station policies, optionally constrained to the target's climate
// zone, or precomputed lookup tables.
package mapping

import (
	"errors"

	"github.com/openeemeter/eeweather/internal/geo"
	"github.com/openeemeter/eeweather/internal/metadata"
	"github.com/openeemeter/eeweather/internal/warning"
)

// Mapping errors.
var (
	// ErrNoCandidates indicates the network has no stations to map to.
	ErrNoCandidates = errors.New("no candidate stations")
)

// Distance thresholds, in meters, that add a warning to a station mapping.
const (
	WarnDistance50km  = 50000
	WarnDistance200km = 200000
)

// Result is either a station mapping or an empty mapping. Check IsEmpty
// before reading Station.
type Result struct {
	// Station is nil for an empty mapping.
	Station *metadata.Station

	Target geo.Point

	// DistanceMeters is nil for an empty mapping or a station without
	// coordinates.
	DistanceMeters *float64

	Warnings []warning.Warning
}

// IsEmpty reports whether no station was mapped.
func (r Result) IsEmpty() bool {
	return r.Station == nil
}

// USAFID returns the mapped station id, or "" for an empty mapping.
func (r Result) USAFID() string {
	if r.Station == nil {
		return ""
	}
	return r.Station.USAFID
}

// StationMapping maps target to station, adding at most one distance warning.
func StationMapping(station metadata.Station, target geo.Point, warnings ...warning.Warning) Result {
	r := Result{
		Station:  &station,
		Target:   target,
		Warnings: append([]warning.Warning(nil), warnings...),
	}
	if station.Location == nil {
		return r
	}

	d := geo.Distance(target, *station.Location)
	r.DistanceMeters = &d
	switch {
	case d > WarnDistance200km:
		r.Warnings = append(r.Warnings, warning.New(
			warning.NameExceeds200km,
			"Distance from target to weather station is greater than 200km.",
			map[string]any{"distance_meters": d},
		))
	case d > WarnDistance50km:
		r.Warnings = append(r.Warnings, warning.New(
			warning.NameExceeds50km,
			"Distance from target to weather station is greater than 50km.",
			map[string]any{"distance_meters": d},
		))
	}
	return r
}

// EmptyMapping reports that no station was mapped. It always carries at
// least one warning.
func EmptyMapping(target geo.Point, warnings ...warning.Warning) Result {
	if len(warnings) == 0 {
		warnings = []warning.Warning{warning.New(warning.NameNoMappingResult, "No mapping result was found.", nil)}
	}
	return Result{Target: target, Warnings: warnings}
}
