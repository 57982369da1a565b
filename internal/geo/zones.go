package geo

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// ErrZoneGeometryUnavailable is returned when zone geometry cannot be
// loaded or decoded, so zone membership cannot be computed.
var ErrZoneGeometryUnavailable = errors.New("climate zone geometry unavailable")

// ZoneSystem identifies one of the independent climate zone classifications.
type ZoneSystem string

const (
	IECCClimateZone    ZoneSystem = "iecc_climate_zone"
	IECCMoistureRegime ZoneSystem = "iecc_moisture_regime"
	BAClimateZone      ZoneSystem = "ba_climate_zone"
	CAClimateZone      ZoneSystem = "ca_climate_zone"
)

// ZoneSystems lists every system in lookup order.
var ZoneSystems = []ZoneSystem{IECCClimateZone, IECCMoistureRegime, BAClimateZone, CAClimateZone}

// ZoneTags holds a zone id per system. An empty string means the point
// is not in any zone of that system.
type ZoneTags struct {
	IECCClimateZone    string
	IECCMoistureRegime string
	BAClimateZone      string
	CAClimateZone      string
}

// Get returns the tag for a system.
func (z ZoneTags) Get(system ZoneSystem) string {
	switch system {
	case IECCClimateZone:
		return z.IECCClimateZone
	case IECCMoistureRegime:
		return z.IECCMoistureRegime
	case BAClimateZone:
		return z.BAClimateZone
	case CAClimateZone:
		return z.CAClimateZone
	}
	return ""
}

func (z *ZoneTags) set(system ZoneSystem, id string) {
	switch system {
	case IECCClimateZone:
		z.IECCClimateZone = id
	case IECCMoistureRegime:
		z.IECCMoistureRegime = id
	case BAClimateZone:
		z.BAClimateZone = id
	case CAClimateZone:
		z.CAClimateZone = id
	}
}

// Empty reports whether the point belongs to no zone in any system.
func (z ZoneTags) Empty() bool {
	return z == ZoneTags{}
}

// Zone is one polygon of a zone system.
type Zone struct {
	System   ZoneSystem
	ID       string
	Geometry orb.Geometry
}

// ParseZone decodes a GeoJSON geometry document into a Zone.
func ParseZone(system ZoneSystem, id string, geoJSON []byte) (Zone, error) {
	g, err := geojson.UnmarshalGeometry(geoJSON)
	if err != nil {
		return Zone{}, fmt.Errorf("%w: %s %s: %v", ErrZoneGeometryUnavailable, system, id, err)
	}
	return Zone{System: system, ID: id, Geometry: g.Geometry()}, nil
}

// Contains reports whether p lies inside the zone polygon.
func (z Zone) Contains(p Point) bool {
	pt := orb.Point{p.Lon, p.Lat}

	switch g := z.Geometry.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, pt)
	case orb.Bound:
		return g.Contains(pt)
	}
	return false
}

// ZoneIndex answers point-in-zone queries by scanning every zone of each
// system. The first containing zone wins.
type ZoneIndex struct {
	zones map[ZoneSystem][]Zone
}

// NewZoneIndex groups zones by system, preserving their order.
func NewZoneIndex(zones []Zone) *ZoneIndex {
	idx := &ZoneIndex{zones: make(map[ZoneSystem][]Zone)}
	for _, z := range zones {
		idx.zones[z.System] = append(idx.zones[z.System], z)
	}
	return idx
}

// Lookup returns the zone tags of p.
func (idx *ZoneIndex) Lookup(p Point) ZoneTags {
	var tags ZoneTags
	for _, system := range ZoneSystems {
		for _, z := range idx.zones[system] {
			if z.Contains(p) {
				tags.set(system, z.ID)
				break
			}
		}
	}
	return tags
}

// Len returns the total number of indexed zones.
func (idx *ZoneIndex) Len() int {
	n := 0
	for _, zs := range idx.zones {
		n += len(zs)
	}
	return n
}
