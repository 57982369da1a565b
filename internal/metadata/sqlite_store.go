package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/openeemeter/eeweather/internal/database"
	"github.com/openeemeter/eeweather/internal/geo"
)

const stationColumns = `
	SELECT
		isd.usaf_id, isd.wban_ids, isd.recent_wban_id, isd.name, isd.icao_code,
		isd.latitude, isd.longitude, isd.elevation, isd.state, isd.quality,
		isd.iecc_climate_zone, isd.iecc_moisture_regime,
		isd.ba_climate_zone, isd.ca_climate_zone,
		tmy3.class,
		tmy3.usaf_id IS NOT NULL,
		cz2010.usaf_id IS NOT NULL
	FROM isd_station_metadata AS isd
	LEFT JOIN tmy3_station_metadata AS tmy3 ON isd.usaf_id = tmy3.usaf_id
	LEFT JOIN cz2010_station_metadata AS cz2010 ON isd.usaf_id = cz2010.usaf_id
`

var zoneTables = []struct {
	system geo.ZoneSystem
	query  string
}{
	{geo.IECCClimateZone, `SELECT iecc_climate_zone, geometry FROM iecc_climate_zone_metadata WHERE geometry IS NOT NULL`},
	{geo.IECCMoistureRegime, `SELECT iecc_moisture_regime, geometry FROM iecc_moisture_regime_metadata WHERE geometry IS NOT NULL`},
	{geo.BAClimateZone, `SELECT ba_climate_zone, geometry FROM ba_climate_zone_metadata WHERE geometry IS NOT NULL`},
	{geo.CAClimateZone, `SELECT ca_climate_zone, geometry FROM ca_climate_zone_metadata WHERE geometry IS NOT NULL`},
}

// SQLiteStore reads the bundled metadata.db SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open metadata database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenSQLiteStore opens the metadata database at path read-only.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := database.OpenSQLite(ctx, path, true)
	if err != nil {
		return nil, fmt.Errorf("open metadata database: %w", err)
	}
	return NewSQLiteStore(db), nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// StationByID returns a station by USAF id.
func (s *SQLiteStore) StationByID(ctx context.Context, usafID string) (*Station, error) {
	row := s.db.QueryRowContext(ctx, stationColumns+` WHERE isd.usaf_id = ?`, usafID)

	station, err := scanStation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, unrecognizedStation(usafID)
		}
		return nil, err
	}
	return station, nil
}

// Stations returns stations passing filter, ordered by USAF id.
func (s *SQLiteStore) Stations(ctx context.Context, filter StationFilter) ([]Station, error) {
	rows, err := s.db.QueryContext(ctx, stationColumns+` ORDER BY isd.usaf_id`)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()

	var stations []Station
	for rows.Next() {
		station, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		if filter.Matches(*station) {
			stations = append(stations, *station)
		}
	}
	return stations, rows.Err()
}

// RegionByID returns a ZCTA region by id.
func (s *SQLiteStore) RegionByID(ctx context.Context, regionID string) (*Region, error) {
	query := `
		SELECT
			zcta_id, latitude, longitude, state,
			iecc_climate_zone, iecc_moisture_regime, ba_climate_zone, ca_climate_zone
		FROM zcta_metadata
		WHERE zcta_id = ?
	`

	var (
		region      Region
		lat, lon    string
		state       sql.NullString
		iecc, moist sql.NullString
		ba, caZone  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, regionID).Scan(
		&region.ID, &lat, &lon, &state, &iecc, &moist, &ba, &caZone,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, unrecognizedRegion(regionID)
		}
		return nil, fmt.Errorf("query region: %w", err)
	}

	region.Location.Lat, err = strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return nil, fmt.Errorf("region %s latitude: %w", regionID, err)
	}
	region.Location.Lon, err = strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return nil, fmt.Errorf("region %s longitude: %w", regionID, err)
	}
	region.State = state.String
	region.Zones = geo.ZoneTags{
		IECCClimateZone:    iecc.String,
		IECCMoistureRegime: moist.String,
		BAClimateZone:      ba.String,
		CAClimateZone:      caZone.String,
	}
	return &region, nil
}

// ZoneGeometries decodes the polygons of all four zone systems.
func (s *SQLiteStore) ZoneGeometries(ctx context.Context) ([]geo.Zone, error) {
	var zones []geo.Zone
	for _, table := range zoneTables {
		rows, err := s.db.QueryContext(ctx, table.query)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", geo.ErrZoneGeometryUnavailable, err)
		}

		for rows.Next() {
			var id, geometry string
			if err := rows.Scan(&id, &geometry); err != nil {
				rows.Close()
				return nil, err
			}
			zone, err := geo.ParseZone(table.system, id, []byte(geometry))
			if err != nil {
				rows.Close()
				return nil, err
			}
			zones = append(zones, zone)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return zones, nil
}

// FileAliases returns the WBAN ids of a station's raw files for year.
func (s *SQLiteStore) FileAliases(ctx context.Context, usafID string, year int) ([]string, error) {
	station, err := s.StationByID(ctx, usafID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT wban_id FROM isd_file_metadata WHERE usaf_id = ? AND year = ?`,
		usafID, strconv.Itoa(year),
	)
	if err != nil {
		return nil, fmt.Errorf("query file metadata: %w", err)
	}
	defer rows.Close()

	var aliases []string
	for rows.Next() {
		var wbanID string
		if err := rows.Scan(&wbanID); err != nil {
			return nil, err
		}
		aliases = append(aliases, wbanID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(aliases) == 0 && station.RecentWBANID != "" {
		aliases = []string{station.RecentWBANID}
	}
	return aliases, nil
}

// StationIDs lists station ids, optionally for one state.
func (s *SQLiteStore) StationIDs(ctx context.Context, state string) ([]string, error) {
	if state == "" {
		return s.queryIDs(ctx, `SELECT usaf_id FROM isd_station_metadata ORDER BY usaf_id`)
	}
	return s.queryIDs(ctx, `SELECT usaf_id FROM isd_station_metadata WHERE state = ? ORDER BY usaf_id`, state)
}

// RegionIDs lists ZCTA ids, optionally for one state.
func (s *SQLiteStore) RegionIDs(ctx context.Context, state string) ([]string, error) {
	if state == "" {
		return s.queryIDs(ctx, `SELECT zcta_id FROM zcta_metadata ORDER BY zcta_id`)
	}
	return s.queryIDs(ctx, `SELECT zcta_id FROM zcta_metadata WHERE state = ? ORDER BY zcta_id`, state)
}

func (s *SQLiteStore) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStation(row rowScanner) (*Station, error) {
	var (
		station                        Station
		wbanIDs                        string
		icao, lat, lon, elev, state    sql.NullString
		quality                        sql.NullString
		iecc, moist, ba, caZone, class sql.NullString
	)

	err := row.Scan(
		&station.USAFID, &wbanIDs, &station.RecentWBANID, &station.Name, &icao,
		&lat, &lon, &elev, &state, &quality,
		&iecc, &moist, &ba, &caZone,
		&class, &station.IsTMY3, &station.IsCZ2010,
	)
	if err != nil {
		return nil, err
	}

	if wbanIDs != "" {
		station.WBANIDs = strings.Split(wbanIDs, ",")
	}
	station.ICAOCode = icao.String
	station.State = state.String
	station.Quality = QualityLow
	if quality.Valid {
		station.Quality = ParseQuality(quality.String)
	}
	station.TMY3Class = ParseTMY3Class(class.String)
	station.Zones = geo.ZoneTags{
		IECCClimateZone:    iecc.String,
		IECCMoistureRegime: moist.String,
		BAClimateZone:      ba.String,
		CAClimateZone:      caZone.String,
	}

	latitude, latOK := parseOptionalFloat(lat)
	longitude, lonOK := parseOptionalFloat(lon)
	if latOK && lonOK {
		station.Location = &geo.Point{Lat: latitude, Lon: longitude}
	}
	if elevation, ok := parseOptionalFloat(elev); ok {
		station.Elevation = &elevation
	}

	return &station, nil
}

// parseOptionalFloat parses numeric text columns such as "+0035.433".
func parseOptionalFloat(s sql.NullString) (float64, bool) {
	if !s.Valid {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s.String), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
