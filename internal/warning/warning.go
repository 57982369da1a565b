// Package warning defines the structured, non-fatal findings returned
// alongside station matches and temperature loads.
package warning

import "fmt"

// Qualified names of the warnings produced by this module.
const (
	NameExceedsMaximumDistance   = "eeweather.exceeds_maximum_distance"
	NameNoWeatherStationSelected = "eeweather.no_weather_station_selected"
	NameExceeds200km             = "eeweather.exceeds_200km"
	NameExceeds50km              = "eeweather.exceeds_50km"
	NameOutsideClimateZones      = "eeweather.outside_climate_zones"
	NameNoStationsInClimateZone  = "eeweather.no_stations_in_climate_zone"
	NameNotInSameClimateZone     = "eeweather.not_in_same_climate_zone"
	NameNoMappingResult          = "eeweather.no_mapping_result"
)

// Warning is a finding that does not stop an operation.
type Warning struct {
	// QualifiedName is a stable, dotted identifier.
	QualifiedName string

	// Description is human readable.
	Description string

	// Data carries machine readable context.
	Data map[string]any
}

// New creates a warning. A nil data map is replaced by an empty one.
func New(qualifiedName, description string, data map[string]any) Warning {
	if data == nil {
		data = map[string]any{}
	}
	return Warning{
		QualifiedName: qualifiedName,
		Description:   description,
		Data:          data,
	}
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.QualifiedName, w.Description)
}

// DataNotAvailable builds the warning emitted when one year of a ranged
// load has no upstream data.
func DataNotAvailable(source, usafID string, year int) Warning {
	return New(
		fmt.Sprintf("eeweather.%s_data_not_available", source),
		fmt.Sprintf("%s data does not exist for station %q in year %d.", source, usafID, year),
		map[string]any{"usaf_id": usafID, "year": year},
	)
}

// Names returns the qualified names of ws in order.
func Names(ws []Warning) []string {
	names := make([]string, len(ws))
	for i, w := range ws {
		names[i] = w.QualifiedName
	}
	return names
}
