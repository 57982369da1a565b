package normalyear_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openeemeter/eeweather/internal/metadata"
	"github.com/openeemeter/eeweather/internal/provider/resilience"
	"github.com/openeemeter/eeweather/internal/temperature"
	"github.com/openeemeter/eeweather/internal/temperature/normalyear"
)

func row(date, clock string, temp float64) string {
	cols := make([]string, 68)
	for i := range cols {
		cols[i] = "0"
	}
	cols[0] = date
	cols[1] = clock
	cols[31] = fmt.Sprintf("%.1f", temp)
	return strings.Join(cols, ",")
}

func csvFile(offset string, rows ...string) string {
	lines := append([]string{
		`722874,"LOS ANGELES DOWNTOWN/USC",CA,` + offset + `,34.050,-118.233,55`,
		"Date (MM/DD/YYYY),Time (HH:MM),ETR (W/m^2)",
	}, rows...)
	return strings.Join(lines, "\n") + "\n"
}

func at(month time.Month, day, hour int) time.Time {
	return time.Date(1900, month, day, hour, 0, 0, 0, time.UTC)
}

func TestParse(t *testing.T) {
	content := csvFile("-8.0",
		row("01/01/1988", "01:00", 12.5),
		row("01/01/1988", "02:00", 13.0),
		row("12/31/1988", "24:00", 9.0),
	)

	series, err := normalyear.Parse(strings.NewReader(content))
	require.NoError(t, err)
	require.Equal(t, 8760, series.Len())
	assert.Equal(t, at(time.January, 1, 0), series.Start())
	assert.Equal(t, at(time.December, 31, 23), series.End())

	sample, ok := series.At(at(time.January, 1, 8))
	require.True(t, ok)
	assert.InDelta(t, 12.5, sample.Value, 1e-9, "01:00 local standard time is 08:00 UTC at -8")

	sample, _ = series.At(at(time.January, 1, 9))
	assert.InDelta(t, 13.0, sample.Value, 1e-9)

	// 24:00 on December 31 is 23:00 local, 07:00 UTC on January 1 of the
	// following year, folded back into 1900.
	sample, _ = series.At(at(time.January, 1, 7))
	assert.True(t, sample.Valid)
	assert.InDelta(t, 9.0, sample.Value, 1e-9)

	assert.Equal(t, 3, series.CountValid())
}

func TestParse_QuotedHeaderField(t *testing.T) {
	content := strings.Join([]string{
		`722874,"LOS ANGELES, DOWNTOWN/USC",CA,-8.0,34.050,-118.233,55`,
		"Date (MM/DD/YYYY),Time (HH:MM),ETR (W/m^2)",
		row("01/01/1988", "01:00", 12.5),
		"",
	}, "\n")

	series, err := normalyear.Parse(strings.NewReader(content))
	require.NoError(t, err)

	sample, ok := series.At(at(time.January, 1, 8))
	require.True(t, ok)
	assert.InDelta(t, 12.5, sample.Value, 1e-9, "the offset is read past the quoted comma")
}

func TestParse_Malformed(t *testing.T) {
	tests := map[string]string{
		"empty":        "",
		"short header": "722874,LA\n",
		"bad offset":   "722874,LA,CA,west,1,2\ncols\n",
		"short row":    csvFile("-8.0", "01/01/1988,01:00,5"),
		"bad temp":     csvFile("-8.0", strings.Replace(row("01/01/1988", "01:00", 1), ",1.0,", ",x,", 1)),
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := normalyear.Parse(strings.NewReader(content))
			assert.ErrorIs(t, err, normalyear.ErrMalformedFile)
		})
	}
}

func newMetadata() *metadata.MemoryStore {
	meta := metadata.NewMemoryStore()
	meta.AddStation(metadata.Station{USAFID: "722874", IsTMY3: true, IsCZ2010: true})
	meta.AddStation(metadata.Station{USAFID: "722880", IsTMY3: true})
	meta.AddStation(metadata.Station{USAFID: "747020"})
	return meta
}

func newSource(network normalyear.Network, baseURL string) *normalyear.Source {
	cfg := resilience.DefaultClientConfig(network.Name)
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = 5 * time.Millisecond
	return normalyear.NewSource(normalyear.SourceConfig{
		Network:  network,
		BaseURL:  baseURL + "/",
		Fetcher:  resilience.NewClient(cfg),
		Metadata: newMetadata(),
		Logger:   zerolog.Nop(),
	})
}

func TestSource_URL(t *testing.T) {
	assert.Equal(t,
		"https://storage.googleapis.com/openeemeter-public-resources/tmy3_archive/722874TYA.CSV",
		newSource(normalyear.TMY3, "https://storage.googleapis.com/openeemeter-public-resources/tmy3_archive").URL("722874"))
	assert.Equal(t,
		"https://storage.googleapis.com/oee-cz2010/csv/722874_CZ2010.CSV",
		newSource(normalyear.CZ2010, "https://storage.googleapis.com/oee-cz2010/csv").URL("722874"))
}

func TestSource_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/722874TYA.CSV", r.URL.Path)
		_, _ = w.Write([]byte(csvFile("-8", row("07/04/1990", "13:00", 30.2))))
	}))
	defer server.Close()

	source := newSource(normalyear.TMY3, server.URL)
	assert.Equal(t, "tmy3", source.Name())
	assert.True(t, source.NormalYear())

	series, err := source.Fetch(context.Background(), "722874", 2020)
	require.NoError(t, err)

	sample, ok := series.At(at(time.July, 4, 20))
	require.True(t, ok)
	assert.InDelta(t, 30.2, sample.Value, 1e-9)
}

func TestSource_Fetch_NotInNetwork(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	_, err := newSource(normalyear.CZ2010, server.URL).Fetch(context.Background(), "722880", 0)
	require.ErrorIs(t, err, temperature.ErrDataNotAvailable)
	assert.Equal(t, `CZ2010 data does not exist for station "722880".`, err.Error())
	assert.Equal(t, int32(0), requests.Load())
}

func TestSource_Fetch_Missing(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := newSource(normalyear.TMY3, server.URL).Fetch(context.Background(), "722874", 0)
	assert.ErrorIs(t, err, temperature.ErrDataNotAvailable)
}

func TestSource_Fetch_UnknownStation(t *testing.T) {
	_, err := newSource(normalyear.TMY3, "http://127.0.0.1:1").Fetch(context.Background(), "000000", 0)
	assert.ErrorIs(t, err, metadata.ErrUnrecognizedStationID)
}

func TestSource_Fetch_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newSource(normalyear.TMY3, server.URL).Fetch(context.Background(), "722874", 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, temperature.ErrDataNotAvailable)
}
