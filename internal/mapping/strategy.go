package mapping

import (
	"context"
	"sync"

	"github.com/openeemeter/eeweather/internal/geo"
	"github.com/openeemeter/eeweather/internal/metadata"
)

// Target is what a strategy maps. RegionID is set when matching a ZCTA.
type Target struct {
	Point    geo.Point
	RegionID string
}

// Strategy maps a target to a station.
type Strategy interface {
	Match(ctx context.Context, target Target) (Result, error)
}

// StrategyFunc adapts a function to a Strategy.
type StrategyFunc func(ctx context.Context, target Target) (Result, error)

// Match calls f.
func (f StrategyFunc) Match(ctx context.Context, target Target) (Result, error) {
	return f(ctx, target)
}

// Table is a precomputed mapping from region ids or exact points to
// station ids. Region entries take precedence. Targets with no entry get an
// empty mapping.
type Table struct {
	metadata metadata.Store

	mu      sync.RWMutex
	regions map[string]string
	points  map[geo.Point]string
}

// NewTable creates an empty table resolving station ids against store.
func NewTable(store metadata.Store) *Table {
	return &Table{
		metadata: store,
		regions:  make(map[string]string),
		points:   make(map[geo.Point]string),
	}
}

// SetRegion maps a region id to a station.
func (t *Table) SetRegion(regionID, usafID string) *Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.regions[regionID] = usafID
	return t
}

// SetPoint maps an exact point to a station.
func (t *Table) SetPoint(p geo.Point, usafID string) *Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.points[p] = usafID
	return t
}

// Len returns the number of entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.regions) + len(t.points)
}

func (t *Table) lookup(target Target) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if target.RegionID != "" {
		if id, ok := t.regions[target.RegionID]; ok {
			return id, true
		}
	}
	id, ok := t.points[target.Point]
	return id, ok
}

// Match resolves the table entry for target. An entry naming an unknown
// station is an error.
func (t *Table) Match(ctx context.Context, target Target) (Result, error) {
	usafID, ok := t.lookup(target)
	if !ok {
		return EmptyMapping(target.Point), nil
	}

	station, err := t.metadata.StationByID(ctx, usafID)
	if err != nil {
		return Result{}, err
	}
	return StationMapping(*station, target.Point), nil
}
