package resilience_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openeemeter/eeweather/internal/provider/resilience"
)

func fastConfig(name string) resilience.ClientConfig {
	cb := resilience.DefaultCircuitBreakerConfig(name)
	cb.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.Requests >= 100
	}
	return resilience.ClientConfig{
		Name:            name,
		Timeout:         5 * time.Second,
		MaxRetries:      5,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		CircuitBreaker:  &cb,
	}
}

func TestClient_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tmy3_archive/722874TYA.CSV", r.URL.Path)
		_, _ = w.Write([]byte("header\n"))
	}))
	defer server.Close()

	client := resilience.NewClient(fastConfig("tmy3"))

	body, err := client.Fetch(context.Background(), server.URL+"/tmy3_archive/722874TYA.CSV")
	require.NoError(t, err)
	assert.Equal(t, "header\n", string(body))
	assert.Equal(t, "tmy3", client.Name())
}

func TestClient_RetryOn5xx(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := resilience.NewClient(fastConfig("retry"))

	body, err := client.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_NotFoundIsPermanent(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := resilience.NewClient(fastConfig("missing"))

	_, err := client.Fetch(context.Background(), server.URL+"/000000TYA.CSV")
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrNotFound)

	var statusErr *resilience.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, int32(1), attempts.Load())
	assert.Equal(t, uint32(0), client.BreakerCounts().TotalFailures, "404 is not a breaker failure")
}

func TestClient_4xxNotRetried(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := resilience.NewClient(fastConfig("forbidden"))

	_, err := client.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.NotErrorIs(t, err, resilience.ErrNotFound)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_CircuitBreakerTrips(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cb := resilience.CircuitBreakerConfig{
		Name:        "trip",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: resilience.DefaultReadyToTrip,
	}
	cfg := fastConfig("trip")
	cfg.CircuitBreaker = &cb
	client := resilience.NewClient(cfg)

	_, err := client.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Equal(t, gobreaker.StateOpen, client.BreakerState())

	_, err = client.Fetch(context.Background(), server.URL)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(time.Second)
	}))
	defer server.Close()

	client := resilience.NewClient(fastConfig("cancel"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Fetch(ctx, server.URL)
	assert.Error(t, err)
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := resilience.DefaultClientConfig("cz2010")

	assert.Equal(t, "cz2010", cfg.Name)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, uint64(3), cfg.MaxRetries)
	require.NotNil(t, cfg.CircuitBreaker)
	assert.Equal(t, "cz2010", cfg.CircuitBreaker.Name)
}

func TestDefaultReadyToTrip(t *testing.T) {
	tests := []struct {
		name     string
		counts   gobreaker.Counts
		expected bool
	}{
		{"not enough requests", gobreaker.Counts{Requests: 4, TotalFailures: 4}, false},
		{"low failure rate", gobreaker.Counts{Requests: 10, TotalFailures: 4}, false},
		{"high failure rate", gobreaker.Counts{Requests: 10, TotalFailures: 5}, true},
		{"five of five failing", gobreaker.Counts{Requests: 5, TotalFailures: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, resilience.DefaultReadyToTrip(tt.counts))
		})
	}
}

func TestBreakerError(t *testing.T) {
	assert.ErrorIs(t, resilience.BreakerError(gobreaker.ErrOpenState), resilience.ErrCircuitOpen)
	assert.ErrorIs(t, resilience.BreakerError(gobreaker.ErrTooManyRequests), resilience.ErrCircuitOpen)
	assert.ErrorIs(t, resilience.BreakerError(resilience.ErrNotFound), resilience.ErrNotFound)
}
