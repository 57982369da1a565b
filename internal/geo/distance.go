// Package geo provides ellipsoidal distances and climate zone membership
// lookups for station matching.
package geo

import (
	"errors"
	"fmt"

	"github.com/tidwall/geodesic"
)

// ErrInvalidCoordinates is returned for points outside the valid lat/lon range.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Validate checks the coordinate ranges.
func (p Point) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range", ErrInvalidCoordinates, p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude %f out of range", ErrInvalidCoordinates, p.Lon)
	}
	return nil
}

// Distance returns the geodesic distance in meters between a and b on the
// WGS84 ellipsoid.
func Distance(a, b Point) float64 {
	var meters float64
	geodesic.WGS84.Inverse(a.Lat, a.Lon, b.Lat, b.Lon, &meters, nil, nil)
	return meters
}
