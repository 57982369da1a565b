// Package metadatatest provides a small in-memory station population for
// tests: a handful of California stations, one Illinois station and one
// station without coordinates, with box-shaped climate zones around them.
package metadatatest

import (
	"github.com/paulmach/orb"

	"github.com/openeemeter/eeweather/internal/geo"
	"github.com/openeemeter/eeweather/internal/metadata"
)

// Station ids in the fixture.
const (
	Bakersfield  = "723840"
	Lemoore      = "747020"
	Burbank      = "722880"
	SanFrancisco = "724940"
	Chicago      = "725300"
	Unlocated    = "999999"

	// BakersfieldZCTA is a region centered near Bakersfield.
	BakersfieldZCTA = "93309"
)

// BakersfieldTarget is a point in the same climate zones as the
// Bakersfield station, about 28 km from it.
var BakersfieldTarget = geo.Point{Lat: 35.68, Lon: -119.14}

// Ocean is a point outside every fixture zone.
var Ocean = geo.Point{Lat: 0, Lon: 0}

// NewStore returns a memory store populated with the fixture.
func NewStore() *metadata.MemoryStore {
	store := metadata.NewMemoryStore()
	for _, s := range Stations() {
		store.AddStation(s)
	}
	for _, z := range Zones() {
		store.AddZone(z)
	}
	store.AddRegion(metadata.Region{
		ID:       BakersfieldZCTA,
		Location: geo.Point{Lat: 35.34, Lon: -119.06},
		State:    "CA",
		Zones:    californiaValley,
	})
	store.AddFileAliases(Bakersfield, 2007, "23155")
	return store
}

var (
	californiaValley = geo.ZoneTags{IECCClimateZone: "3", IECCMoistureRegime: "B", BAClimateZone: "Hot-Dry", CAClimateZone: "CA_13"}
	losAngeles       = geo.ZoneTags{IECCClimateZone: "3", IECCMoistureRegime: "B", BAClimateZone: "Hot-Dry", CAClimateZone: "CA_09"}
	bayArea          = geo.ZoneTags{IECCClimateZone: "3", IECCMoistureRegime: "C", BAClimateZone: "Marine", CAClimateZone: "CA_03"}
	midwest          = geo.ZoneTags{IECCClimateZone: "5", IECCMoistureRegime: "A", BAClimateZone: "Cold"}
)

// Stations returns the fixture stations.
func Stations() []metadata.Station {
	return []metadata.Station{
		{
			USAFID: Bakersfield, Name: "BAKERSFIELD MEADOWS FIELD", ICAOCode: "KBFL", State: "CA",
			WBANIDs: []string{"23155"}, RecentWBANID: "23155",
			Location: point(35.434, -119.057), Elevation: float(149),
			Quality: metadata.QualityHigh, Zones: californiaValley,
			IsCZ2010: true,
		},
		{
			USAFID: Lemoore, Name: "LEMOORE NAS", ICAOCode: "KNLC", State: "CA",
			WBANIDs: []string{"23110"}, RecentWBANID: "23110",
			Location: point(36.333, -119.95), Elevation: float(70),
			Quality: metadata.QualityMedium, Zones: californiaValley,
			IsTMY3: true, TMY3Class: metadata.TMY3ClassII, IsCZ2010: true,
		},
		{
			USAFID: Burbank, Name: "BURBANK-GLENDALE-PASADENA AP", ICAOCode: "KBUR", State: "CA",
			WBANIDs: []string{"23152"}, RecentWBANID: "23152",
			Location: point(34.201, -118.358), Elevation: float(236),
			Quality: metadata.QualityHigh, Zones: losAngeles,
			IsTMY3: true, TMY3Class: metadata.TMY3ClassI, IsCZ2010: true,
		},
		{
			USAFID: SanFrancisco, Name: "SAN FRANCISCO INTL AP", ICAOCode: "KSFO", State: "CA",
			WBANIDs: []string{"23234"}, RecentWBANID: "23234",
			Location: point(37.62, -122.365), Elevation: float(2),
			Quality: metadata.QualityHigh, Zones: bayArea,
			IsTMY3: true, TMY3Class: metadata.TMY3ClassI, IsCZ2010: true,
		},
		{
			USAFID: Chicago, Name: "CHICAGO O'HARE INTL AP", ICAOCode: "KORD", State: "IL",
			WBANIDs: []string{"94846"}, RecentWBANID: "94846",
			Location: point(41.995, -87.934), Elevation: float(201),
			Quality: metadata.QualityHigh, Zones: midwest,
			IsTMY3: true, TMY3Class: metadata.TMY3ClassI,
		},
		{
			USAFID: Unlocated, Name: "UNKNOWN", Quality: metadata.QualityLow,
		},
	}
}

// Zones returns the fixture climate zones as lon/lat boxes.
func Zones() []geo.Zone {
	return []geo.Zone{
		box(geo.IECCClimateZone, "3", -125, 32, -114, 39),
		box(geo.IECCClimateZone, "5", -92, 40, -84, 43),
		box(geo.IECCMoistureRegime, "B", -121, 32, -114, 39),
		box(geo.IECCMoistureRegime, "C", -125, 32, -121, 39),
		box(geo.IECCMoistureRegime, "A", -92, 40, -84, 43),
		box(geo.BAClimateZone, "Hot-Dry", -121, 32, -114, 39),
		box(geo.BAClimateZone, "Marine", -125, 32, -121, 39),
		box(geo.BAClimateZone, "Cold", -92, 40, -84, 43),
		box(geo.CAClimateZone, "CA_13", -120.5, 35, -118.6, 37),
		box(geo.CAClimateZone, "CA_09", -119, 33.8, -117.5, 34.6),
		box(geo.CAClimateZone, "CA_03", -123, 37, -121.5, 38.5),
	}
}

func box(system geo.ZoneSystem, id string, minLon, minLat, maxLon, maxLat float64) geo.Zone {
	return geo.Zone{
		System:   system,
		ID:       id,
		Geometry: orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}},
	}
}

func point(lat, lon float64) *geo.Point {
	return &geo.Point{Lat: lat, Lon: lon}
}

func float(v float64) *float64 {
	return &v
}
