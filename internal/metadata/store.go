package metadata

import (
	"context"

	"github.com/openeemeter/eeweather/internal/geo"
)

// Store is a read-only source of station, region and zone metadata.
type Store interface {
	// StationByID returns ErrUnrecognizedStationID for unknown ids.
	StationByID(ctx context.Context, usafID string) (*Station, error)

	// RegionByID returns ErrUnrecognizedRegionID for unknown ids.
	RegionByID(ctx context.Context, regionID string) (*Region, error)

	// Stations returns every station passing filter, ordered by USAF id.
	Stations(ctx context.Context, filter StationFilter) ([]Station, error)

	// ZoneGeometries returns the polygons of every climate zone system.
	ZoneGeometries(ctx context.Context) ([]geo.Zone, error)

	// FileAliases returns the WBAN ids under which a station published
	// raw files for year, falling back to the station's most recent WBAN id.
	FileAliases(ctx context.Context, usafID string, year int) ([]string, error)

	// StationIDs lists station ids, optionally restricted to a state.
	StationIDs(ctx context.Context, state string) ([]string, error)

	// RegionIDs lists ZCTA ids, optionally restricted to a state.
	RegionIDs(ctx context.Context, state string) ([]string, error)
}
