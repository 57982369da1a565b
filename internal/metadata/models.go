// Package metadata provides read-only access to weather station, region
// and climate zone metadata.
package metadata

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openeemeter/eeweather/internal/geo"
)

// Metadata errors.
var (
	ErrUnrecognizedStationID = errors.New("unrecognized USAF station id")
	ErrUnrecognizedRegionID  = errors.New("unrecognized ZCTA region id")
)

// Quality is the ordinal data quality tier of an ISD station.
type Quality int

const (
	QualityUnknown Quality = iota
	QualityLow
	QualityMedium
	QualityHigh
)

// ParseQuality maps the stored tier name to a Quality.
func ParseQuality(s string) Quality {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return QualityLow
	case "medium":
		return QualityMedium
	case "high":
		return QualityHigh
	}
	return QualityUnknown
}

func (q Quality) String() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityMedium:
		return "medium"
	case QualityHigh:
		return "high"
	}
	return "unknown"
}

// TMY3Class is the ordinal TMY3 data class, III < II < I.
type TMY3Class int

const (
	TMY3ClassNone TMY3Class = iota
	TMY3ClassIII
	TMY3ClassII
	TMY3ClassI
)

// ParseTMY3Class maps the stored class name to a TMY3Class.
func ParseTMY3Class(s string) TMY3Class {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "I":
		return TMY3ClassI
	case "II":
		return TMY3ClassII
	case "III":
		return TMY3ClassIII
	}
	return TMY3ClassNone
}

func (c TMY3Class) String() string {
	switch c {
	case TMY3ClassI:
		return "I"
	case TMY3ClassII:
		return "II"
	case TMY3ClassIII:
		return "III"
	}
	return ""
}

// Station is an ISD weather station.
type Station struct {
	USAFID       string
	Name         string
	ICAOCode     string
	State        string
	WBANIDs      []string
	RecentWBANID string

	// Location is nil when the station has no recorded coordinates.
	Location *geo.Point

	// Elevation in meters, nil when unknown.
	Elevation *float64

	Quality Quality
	Zones   geo.ZoneTags

	IsTMY3    bool
	IsCZ2010  bool
	TMY3Class TMY3Class
}

// Region is a ZIP Code Tabulation Area with its centroid.
type Region struct {
	ID       string
	Location geo.Point
	State    string
	Zones    geo.ZoneTags
}

// StationFilter narrows Stations results. Zero values do not filter.
type StationFilter struct {
	MinQuality Quality
	State      string
	TMY3Only   bool
	CZ2010Only bool
}

// Matches reports whether s passes the filter.
func (f StationFilter) Matches(s Station) bool {
	if f.MinQuality != QualityUnknown && s.Quality < f.MinQuality {
		return false
	}
	if f.State != "" && s.State != f.State {
		return false
	}
	if f.TMY3Only && !s.IsTMY3 {
		return false
	}
	if f.CZ2010Only && !s.IsCZ2010 {
		return false
	}
	return true
}

func unrecognizedStation(usafID string) error {
	return fmt.Errorf("%w: %q", ErrUnrecognizedStationID, usafID)
}

func unrecognizedRegion(regionID string) error {
	return fmt.Errorf("%w: %q", ErrUnrecognizedRegionID, regionID)
}
