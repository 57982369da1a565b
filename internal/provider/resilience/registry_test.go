package resilience_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openeemeter/eeweather/internal/provider/resilience"
)

type stubBreaker struct {
	state gobreaker.State
}

func (s stubBreaker) BreakerState() gobreaker.State   { return s.state }
func (s stubBreaker) BreakerCounts() gobreaker.Counts { return gobreaker.Counts{} }

func TestRegistry_ClientRegisters(t *testing.T) {
	registry := resilience.NewRegistry(nil)
	cfg := resilience.DefaultClientConfig("tmy3")
	cfg.Registry = registry

	_ = resilience.NewClient(cfg)

	assert.Equal(t, 1, registry.Len())
	health := registry.Health("tmy3")
	require.NotNil(t, health)
	assert.True(t, health.IsHealthy())
	assert.False(t, health.IsDegraded())
	assert.False(t, health.IsUnhealthy())
	assert.Nil(t, registry.Health("cz2010"))
}

func TestRegistry_RecordsOutcomes(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC))
	registry := resilience.NewRegistry(clock)
	registry.Register("noaa-ftp", stubBreaker{state: gobreaker.StateClosed})

	registry.RecordSuccess("noaa-ftp")
	clock.Advance(time.Minute)
	registry.RecordFailure("noaa-ftp", errors.New("421 too many connections"))
	registry.RecordSuccess("unknown")

	health := registry.Health("noaa-ftp")
	require.NotNil(t, health)
	require.NotNil(t, health.LastSuccessAt)
	require.NotNil(t, health.LastFailureAt)
	assert.Equal(t, time.Minute, health.LastFailureAt.Sub(*health.LastSuccessAt))
	assert.Equal(t, "421 too many connections", health.LastError)
}

func TestRegistry_AllHealthSorted(t *testing.T) {
	registry := resilience.NewRegistry(nil)
	registry.Register("tmy3", stubBreaker{state: gobreaker.StateOpen})
	registry.Register("cz2010", stubBreaker{state: gobreaker.StateHalfOpen})
	registry.Register("noaa-ftp", stubBreaker{state: gobreaker.StateClosed})

	all := registry.AllHealth()
	require.Len(t, all, 3)
	assert.Equal(t, "cz2010", all[0].Name)
	assert.True(t, all[0].IsDegraded())
	assert.Equal(t, "noaa-ftp", all[1].Name)
	assert.Equal(t, "tmy3", all[2].Name)
	assert.True(t, all[2].IsUnhealthy())
}

func TestRegistry_ClientReportsNotFoundAsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	registry := resilience.NewRegistry(nil)
	cfg := fastConfig("cz2010")
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	_, err := client.Fetch(context.Background(), server.URL)
	require.ErrorIs(t, err, resilience.ErrNotFound)

	health := registry.Health("cz2010")
	require.NotNil(t, health)
	assert.NotNil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)
}
