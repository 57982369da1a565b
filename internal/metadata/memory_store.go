package metadata

import (
	"context"
	"sort"
	"sync"

	"github.com/openeemeter/eeweather/internal/geo"
)

// MemoryStore is an in-memory implementation of Store for tests and
// embedded fixtures.
type MemoryStore struct {
	mu       sync.RWMutex
	stations map[string]Station
	regions  map[string]Region
	zones    []geo.Zone
	files    map[string]map[int][]string
}

// NewMemoryStore creates an empty in-memory metadata store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stations: make(map[string]Station),
		regions:  make(map[string]Region),
		files:    make(map[string]map[int][]string),
	}
}

// AddStation inserts or replaces a station.
func (m *MemoryStore) AddStation(s Station) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stations[s.USAFID] = s
}

// AddRegion inserts or replaces a region.
func (m *MemoryStore) AddRegion(r Region) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions[r.ID] = r
}

// AddZone appends a zone polygon.
func (m *MemoryStore) AddZone(z geo.Zone) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zones = append(m.zones, z)
}

// AddFileAliases records the WBAN ids of a station's raw files for a year.
func (m *MemoryStore) AddFileAliases(usafID string, year int, wbanIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files[usafID] == nil {
		m.files[usafID] = make(map[int][]string)
	}
	m.files[usafID][year] = append(m.files[usafID][year], wbanIDs...)
}

// StationByID returns a station by USAF id.
func (m *MemoryStore) StationByID(_ context.Context, usafID string) (*Station, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.stations[usafID]
	if !ok {
		return nil, unrecognizedStation(usafID)
	}
	return &s, nil
}

// RegionByID returns a region by ZCTA id.
func (m *MemoryStore) RegionByID(_ context.Context, regionID string) (*Region, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.regions[regionID]
	if !ok {
		return nil, unrecognizedRegion(regionID)
	}
	return &r, nil
}

// Stations returns stations passing filter, ordered by USAF id.
func (m *MemoryStore) Stations(_ context.Context, filter StationFilter) ([]Station, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stations := make([]Station, 0, len(m.stations))
	for _, s := range m.stations {
		if filter.Matches(s) {
			stations = append(stations, s)
		}
	}
	sort.Slice(stations, func(i, j int) bool {
		return stations[i].USAFID < stations[j].USAFID
	})
	return stations, nil
}

// ZoneGeometries returns the stored zones.
func (m *MemoryStore) ZoneGeometries(_ context.Context) ([]geo.Zone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	zones := make([]geo.Zone, len(m.zones))
	copy(zones, m.zones)
	return zones, nil
}

// FileAliases returns the WBAN ids for a station and year.
func (m *MemoryStore) FileAliases(_ context.Context, usafID string, year int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.stations[usafID]
	if !ok {
		return nil, unrecognizedStation(usafID)
	}
	if ids := m.files[usafID][year]; len(ids) > 0 {
		out := make([]string, len(ids))
		copy(out, ids)
		return out, nil
	}
	if s.RecentWBANID != "" {
		return []string{s.RecentWBANID}, nil
	}
	return nil, nil
}

// StationIDs lists station ids, optionally for one state.
func (m *MemoryStore) StationIDs(_ context.Context, state string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.stations))
	for id, s := range m.stations {
		if state == "" || s.State == state {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// RegionIDs lists ZCTA ids, optionally for one state.
func (m *MemoryStore) RegionIDs(_ context.Context, state string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.regions))
	for id, r := range m.regions {
		if state == "" || r.State == state {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
