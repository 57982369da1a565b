package mapping_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openeemeter/eeweather/internal/geo"
	"github.com/openeemeter/eeweather/internal/mapping"
	"github.com/openeemeter/eeweather/internal/metadata"
	"github.com/openeemeter/eeweather/internal/metadata/metadatatest"
	"github.com/openeemeter/eeweather/internal/ranking"
	"github.com/openeemeter/eeweather/internal/warning"
)

func newResolver(store metadata.Store, network mapping.Network) *mapping.Resolver {
	return mapping.NewResolver(mapping.ResolverConfig{
		Metadata: store,
		Zones:    ranking.NewRanker(ranking.RankerConfig{Metadata: store, Logger: zerolog.Nop()}),
		Network:  network,
		Logger:   zerolog.Nop(),
	})
}

// desertPoint is inside the IECC, moisture and Building America zones of
// the fixture but outside every California zone.
var desertPoint = geo.Point{Lat: 33, Lon: -115}

func TestDefaultPolicy_Bakersfield(t *testing.T) {
	r := newResolver(metadatatest.NewStore(), mapping.NetworkISD)

	result, err := r.DefaultPolicy(context.Background(), metadatatest.BakersfieldTarget)
	require.NoError(t, err)
	require.False(t, result.IsEmpty())
	assert.Equal(t, metadatatest.Bakersfield, result.USAFID())
	assert.Empty(t, result.Warnings)
	require.NotNil(t, result.DistanceMeters)
	assert.Less(t, *result.DistanceMeters, float64(mapping.WarnDistance50km))
	assert.Equal(t, metadatatest.BakersfieldTarget, result.Target)
}

func TestDefaultPolicy_OpenOcean(t *testing.T) {
	r := newResolver(metadatatest.NewStore(), mapping.NetworkISD)

	result, err := r.DefaultPolicy(context.Background(), metadatatest.Ocean)
	require.NoError(t, err)
	require.False(t, result.IsEmpty())
	assert.Equal(t, metadatatest.Chicago, result.USAFID())
	assert.Equal(t, []string{
		warning.NameExceeds200km,
		warning.NameNotInSameClimateZone,
	}, warning.Names(result.Warnings))
}

func TestClosestWithinZone_OutsideAllZones(t *testing.T) {
	r := newResolver(metadatatest.NewStore(), mapping.NetworkISD)

	result, err := r.ClosestWithinZone(context.Background(), metadatatest.Ocean)
	require.NoError(t, err)
	assert.True(t, result.IsEmpty())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, warning.NameOutsideClimateZones, result.Warnings[0].QualifiedName)
	assert.Equal(t, "Target outside all known climate zones.", result.Warnings[0].Description)
	assert.Nil(t, result.DistanceMeters)
}

func TestClosestWithinZone_NoStationsInZone(t *testing.T) {
	r := newResolver(metadatatest.NewStore(), mapping.NetworkISD)

	result, err := r.ClosestWithinZone(context.Background(), desertPoint)
	require.NoError(t, err)
	assert.True(t, result.IsEmpty())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, warning.NameNoStationsInClimateZone, result.Warnings[0].QualifiedName)
	assert.Equal(t, "", result.Warnings[0].Data["ca_climate_zone"])

	result, err = r.DefaultPolicy(context.Background(), desertPoint)
	require.NoError(t, err)
	assert.Equal(t, metadatatest.Burbank, result.USAFID())
	assert.Equal(t, []string{
		warning.NameExceeds200km,
		warning.NameNotInSameClimateZone,
	}, warning.Names(result.Warnings))
}

func TestNaiveClosest_IgnoresZones(t *testing.T) {
	r := newResolver(metadatatest.NewStore(), mapping.NetworkISD)

	// Medium quality Lemoore is nearer but the ISD network only maps to
	// high quality stations.
	lemoore := geo.Point{Lat: 36.33, Lon: -119.95}
	result, err := r.NaiveClosest(context.Background(), lemoore)
	require.NoError(t, err)
	assert.Equal(t, metadatatest.Bakersfield, result.USAFID())
	assert.Equal(t, []string{warning.NameExceeds50km}, warning.Names(result.Warnings))
}

func TestNaiveClosest_NoCandidates(t *testing.T) {
	r := newResolver(metadata.NewMemoryStore(), mapping.NetworkISD)

	_, err := r.NaiveClosest(context.Background(), metadatatest.BakersfieldTarget)
	assert.ErrorIs(t, err, mapping.ErrNoCandidates)
}

func TestDefaultPolicy_TMY3(t *testing.T) {
	r := newResolver(metadatatest.NewStore(), mapping.NetworkTMY3)
	assert.Equal(t, mapping.NetworkTMY3, r.Network())

	// The only TMY3 station in the Bakersfield zones is medium quality, so
	// the zone policy finds nothing and the naive fallback picks it.
	result, err := r.DefaultPolicy(context.Background(), metadatatest.BakersfieldTarget)
	require.NoError(t, err)
	assert.Equal(t, metadatatest.Lemoore, result.USAFID())
	assert.Equal(t, []string{
		warning.NameExceeds50km,
		warning.NameNotInSameClimateZone,
	}, warning.Names(result.Warnings))
}

func TestDefaultPolicy_CZ2010(t *testing.T) {
	r := newResolver(metadatatest.NewStore(), mapping.NetworkCZ2010)

	result, err := r.DefaultPolicy(context.Background(), metadatatest.BakersfieldTarget)
	require.NoError(t, err)
	assert.Equal(t, metadatatest.Bakersfield, result.USAFID())
	assert.Empty(t, result.Warnings)

	result, err = r.DefaultPolicy(context.Background(), metadatatest.Ocean)
	require.NoError(t, err)
	assert.NotEqual(t, metadatatest.Chicago, result.USAFID(), "Chicago is not a CZ2010 station")
	assert.Contains(t, warning.Names(result.Warnings), warning.NameNotInSameClimateZone)
}

func TestStationMapping_DistanceWarnings(t *testing.T) {
	origin := geo.Point{Lat: 0, Lon: 0}
	tests := []struct {
		name string
		lat  float64
		want []string
	}{
		{"10km", 0.09, []string{}},
		{"60km", 0.55, []string{warning.NameExceeds50km}},
		{"250km", 2.3, []string{warning.NameExceeds200km}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			station := metadata.Station{USAFID: "000001", Location: &geo.Point{Lat: tt.lat, Lon: 0}}
			result := mapping.StationMapping(station, origin)
			assert.Equal(t, tt.want, warning.Names(result.Warnings))
			require.NotNil(t, result.DistanceMeters)
		})
	}
}

func TestStationMapping_NoLocation(t *testing.T) {
	result := mapping.StationMapping(metadata.Station{USAFID: "000002"}, geo.Point{})
	assert.False(t, result.IsEmpty())
	assert.Nil(t, result.DistanceMeters)
	assert.Empty(t, result.Warnings)
}

func TestEmptyMapping_DefaultWarning(t *testing.T) {
	result := mapping.EmptyMapping(geo.Point{Lat: 1, Lon: 2})
	assert.True(t, result.IsEmpty())
	assert.Equal(t, "", result.USAFID())
	assert.Equal(t, []string{warning.NameNoMappingResult}, warning.Names(result.Warnings))
}

func TestResolverStrategy(t *testing.T) {
	r := newResolver(metadatatest.NewStore(), mapping.NetworkISD)
	ctx := context.Background()

	result, err := r.Strategy(mapping.PolicyClosestWithinZone).Match(ctx, mapping.Target{Point: metadatatest.Ocean})
	require.NoError(t, err)
	assert.True(t, result.IsEmpty())

	result, err = r.Strategy(mapping.PolicyNaiveClosest).Match(ctx, mapping.Target{Point: metadatatest.Ocean})
	require.NoError(t, err)
	assert.Equal(t, metadatatest.Chicago, result.USAFID())
	assert.Equal(t, []string{warning.NameExceeds200km}, warning.Names(result.Warnings))
}

func TestTable(t *testing.T) {
	store := metadatatest.NewStore()
	table := mapping.NewTable(store).
		SetRegion(metadatatest.BakersfieldZCTA, metadatatest.Burbank).
		SetPoint(metadatatest.BakersfieldTarget, metadatatest.Bakersfield)
	assert.Equal(t, 2, table.Len())
	ctx := context.Background()

	result, err := table.Match(ctx, mapping.Target{Point: metadatatest.BakersfieldTarget})
	require.NoError(t, err)
	assert.Equal(t, metadatatest.Bakersfield, result.USAFID())
	assert.Empty(t, result.Warnings)

	// Region entries win over point entries.
	result, err = table.Match(ctx, mapping.Target{Point: metadatatest.BakersfieldTarget, RegionID: metadatatest.BakersfieldZCTA})
	require.NoError(t, err)
	assert.Equal(t, metadatatest.Burbank, result.USAFID())
	assert.Equal(t, []string{warning.NameExceeds50km}, warning.Names(result.Warnings))

	result, err = table.Match(ctx, mapping.Target{Point: metadatatest.Ocean})
	require.NoError(t, err)
	assert.True(t, result.IsEmpty())
}

func TestTable_UnknownStation(t *testing.T) {
	table := mapping.NewTable(metadatatest.NewStore()).SetPoint(metadatatest.Ocean, "000000")

	_, err := table.Match(context.Background(), mapping.Target{Point: metadatatest.Ocean})
	assert.ErrorIs(t, err, metadata.ErrUnrecognizedStationID)
}

func newMatcher(store metadata.Store) *mapping.Matcher {
	return mapping.NewMatcher(mapping.MatcherConfig{
		Metadata: store,
		Strategy: newResolver(store, mapping.NetworkISD).Strategy(mapping.PolicyDefault),
		Logger:   zerolog.Nop(),
	})
}

func TestMatcher_MatchLatLong(t *testing.T) {
	m := newMatcher(metadatatest.NewStore())

	result, err := m.MatchLatLong(context.Background(), 35.68, -119.14)
	require.NoError(t, err)
	assert.Equal(t, metadatatest.Bakersfield, result.USAFID())

	_, err = m.MatchLatLong(context.Background(), 100, 0)
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinates)
}

func TestMatcher_MatchZCTA(t *testing.T) {
	m := newMatcher(metadatatest.NewStore())

	result, err := m.MatchZCTA(context.Background(), metadatatest.BakersfieldZCTA)
	require.NoError(t, err)
	assert.Equal(t, metadatatest.Bakersfield, result.USAFID())
	assert.Equal(t, geo.Point{Lat: 35.34, Lon: -119.06}, result.Target)

	_, err = m.MatchZCTA(context.Background(), "00000")
	assert.ErrorIs(t, err, metadata.ErrUnrecognizedRegionID)
}

func TestMatcher_Using(t *testing.T) {
	store := metadatatest.NewStore()
	m := newMatcher(store)

	fixed := mapping.StrategyFunc(func(_ context.Context, target mapping.Target) (mapping.Result, error) {
		station, err := store.StationByID(context.Background(), metadatatest.SanFrancisco)
		if err != nil {
			return mapping.Result{}, err
		}
		return mapping.StationMapping(*station, target.Point), nil
	})

	result, err := m.Using(fixed).MatchZCTA(context.Background(), metadatatest.BakersfieldZCTA)
	require.NoError(t, err)
	assert.Equal(t, metadatatest.SanFrancisco, result.USAFID())

	// The original matcher keeps its strategy.
	result, err = m.MatchZCTA(context.Background(), metadatatest.BakersfieldZCTA)
	require.NoError(t, err)
	assert.Equal(t, metadatatest.Bakersfield, result.USAFID())
}
