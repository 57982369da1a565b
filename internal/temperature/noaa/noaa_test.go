package noaa_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/textproto"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openeemeter/eeweather/internal/metadata"
	"github.com/openeemeter/eeweather/internal/provider/resilience"
	"github.com/openeemeter/eeweather/internal/temperature"
	"github.com/openeemeter/eeweather/internal/temperature/noaa"
	"github.com/openeemeter/eeweather/pkg/timeseries"
)

// isdLine builds a fixed-width ISD record with the given timestamp and
// temperature field.
func isdLine(stamp, temp string) string {
	line := []byte(strings.Repeat("0", 105))
	copy(line[15:27], stamp)
	copy(line[87:92], temp)
	return string(line)
}

func gz(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// fakeServer is an in-process FTP archive.
type fakeServer struct {
	mu       sync.Mutex
	files    map[string][]byte
	failRetr map[string]int // remaining transient failures per path
	dialErr  error
	dials    atomic.Int32
	quits    atomic.Int32
}

func (f *fakeServer) Dial(_ context.Context, _ string) (noaa.Conn, error) {
	f.dials.Add(1)
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	return &fakeConn{server: f}, nil
}

type fakeConn struct {
	server *fakeServer
}

func (c *fakeConn) Login(user, _ string) error {
	if user != "anonymous" {
		return errors.New("530 login incorrect")
	}
	return nil
}

func (c *fakeConn) Retr(path string) (io.ReadCloser, error) {
	f := c.server
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRetr[path] > 0 {
		f.failRetr[path]--
		return nil, &textproto.Error{Code: 421, Msg: "service not available"}
	}
	data, ok := f.files[path]
	if !ok {
		return nil, &textproto.Error{Code: 550, Msg: "no such file"}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (c *fakeConn) Quit() error {
	c.server.quits.Add(1)
	return nil
}

func newSession(server *fakeServer) *noaa.Session {
	return noaa.NewSession(noaa.SessionConfig{
		Dialer:          server,
		ConnectAttempts: 2,
		ConnectInterval: time.Millisecond,
		Logger:          zerolog.Nop(),
	})
}

func newMetadata() *metadata.MemoryStore {
	meta := metadata.NewMemoryStore()
	meta.AddStation(metadata.Station{USAFID: "722874", RecentWBANID: "93134", Quality: metadata.QualityHigh})
	meta.AddStation(metadata.Station{USAFID: "747020", Quality: metadata.QualityLow})
	meta.AddFileAliases("722874", 2007, "93134", "99999")
	return meta
}

func TestDataset_Path(t *testing.T) {
	assert.Equal(t, "/pub/data/noaa/2007/722874-93134-2007.gz", noaa.ISD.Path("722874", "93134", 2007))
	assert.Equal(t, "/pub/data/gsod/2007/722874-93134-2007.op.gz", noaa.GSOD.Path("722874", "93134", 2007))
}

func TestParseISD(t *testing.T) {
	content := strings.Join([]string{
		isdLine("200701010000", "+0100"),
		isdLine("200701010000", "+0200"),
		isdLine("200701010053", "-0015"),
		isdLine("200701010153", "+9999"),
		"short line",
	}, "\n")

	samples, err := noaa.ParseISD(strings.NewReader(content))
	require.NoError(t, err)
	require.Len(t, samples, 4)

	assert.Equal(t, time.Date(2007, time.January, 1, 0, 0, 0, 0, time.UTC), samples[0].Time)
	assert.InDelta(t, 10.0, samples[0].Value, 1e-9)
	assert.InDelta(t, 20.0, samples[1].Value, 1e-9)
	assert.InDelta(t, -1.5, samples[2].Value, 1e-9)
	assert.False(t, samples[3].Valid, "+9999 is a missing value")
}

func TestParseISD_Malformed(t *testing.T) {
	_, err := noaa.ParseISD(strings.NewReader(isdLine("2007XX010000", "+0100")))
	assert.ErrorIs(t, err, noaa.ErrMalformedRecord)

	_, err = noaa.ParseISD(strings.NewReader(isdLine("200701010000", "+01A0")))
	assert.ErrorIs(t, err, noaa.ErrMalformedRecord)
}

func TestParseGSOD(t *testing.T) {
	content := "STN--- WBAN   YEARMODA    TEMP       DEWP\n" +
		"722874 93134  20070101    50.0 24    40.1 24\n" +
		"722874 93134  20070102    32.0 24    20.0 24\n" +
		"722874 93134  20070103  9999.9  0  9999.9  0\n"

	samples, err := noaa.ParseGSOD(strings.NewReader(content))
	require.NoError(t, err)
	require.Len(t, samples, 3)

	assert.Equal(t, time.Date(2007, time.January, 1, 0, 0, 0, 0, time.UTC), samples[0].Time)
	assert.InDelta(t, 10.0, samples[0].Value, 1e-9)
	assert.InDelta(t, 0.0, samples[1].Value, 1e-9)
	assert.False(t, samples[2].Valid)
}

func TestParseGSOD_Malformed(t *testing.T) {
	_, err := noaa.ParseGSOD(strings.NewReader("header\n722874 93134 2007\n"))
	assert.ErrorIs(t, err, noaa.ErrMalformedRecord)
}

func TestSession_LazyConnectAndReuse(t *testing.T) {
	server := &fakeServer{files: map[string][]byte{"/a.gz": []byte("a"), "/b.gz": []byte("b")}}
	session := newSession(server)
	assert.Equal(t, int32(0), server.dials.Load(), "no connection until first retrieve")

	data, err := session.Retrieve(context.Background(), "/a.gz")
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))

	_, err = session.Retrieve(context.Background(), "/b.gz")
	require.NoError(t, err)
	assert.Equal(t, int32(1), server.dials.Load())

	require.NoError(t, session.Close())
	assert.Equal(t, int32(1), server.quits.Load())
}

func TestSession_ReconnectsOnce(t *testing.T) {
	server := &fakeServer{
		files:    map[string][]byte{"/a.gz": []byte("a")},
		failRetr: map[string]int{"/a.gz": 1},
	}
	session := newSession(server)

	data, err := session.Retrieve(context.Background(), "/a.gz")
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
	assert.Equal(t, int32(2), server.dials.Load())
}

func TestSession_GivesUpAfterSecondFailure(t *testing.T) {
	server := &fakeServer{
		files:    map[string][]byte{"/a.gz": []byte("a")},
		failRetr: map[string]int{"/a.gz": 2},
	}
	session := newSession(server)

	_, err := session.Retrieve(context.Background(), "/a.gz")
	require.Error(t, err)
	assert.NotErrorIs(t, err, noaa.ErrConnect)
	assert.NotErrorIs(t, err, resilience.ErrNotFound)
	assert.Equal(t, int32(2), server.dials.Load())
}

func TestSession_MissingFile(t *testing.T) {
	server := &fakeServer{files: map[string][]byte{}}
	session := newSession(server)

	_, err := session.Retrieve(context.Background(), "/missing.gz")
	assert.ErrorIs(t, err, resilience.ErrNotFound)
	assert.Equal(t, int32(1), server.dials.Load(), "missing files do not reconnect")
}

func TestSession_ConnectFailure(t *testing.T) {
	server := &fakeServer{dialErr: errors.New("connection refused")}
	registry := resilience.NewRegistry(nil)
	session := noaa.NewSession(noaa.SessionConfig{
		Dialer:          server,
		ConnectAttempts: 3,
		ConnectInterval: time.Millisecond,
		Registry:        registry,
		Logger:          zerolog.Nop(),
	})

	_, err := session.Retrieve(context.Background(), "/a.gz")
	assert.ErrorIs(t, err, noaa.ErrConnect)
	assert.Equal(t, int32(3), server.dials.Load())

	health := registry.Health(noaa.UpstreamName)
	require.NotNil(t, health)
	assert.Contains(t, health.LastError, "connection refused")
}

func newClient(server *fakeServer, meta metadata.Store) *noaa.Client {
	return noaa.NewClient(noaa.ClientConfig{
		Retriever: newSession(server),
		Metadata:  meta,
		Logger:    zerolog.Nop(),
	})
}

func TestClient_Paths(t *testing.T) {
	client := newClient(&fakeServer{}, newMetadata())

	paths, err := client.Paths(context.Background(), noaa.ISD, "722874", 2007)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/pub/data/noaa/2007/722874-93134-2007.gz",
		"/pub/data/noaa/2007/722874-99999-2007.gz",
	}, paths)

	paths, err = client.Paths(context.Background(), noaa.GSOD, "722874", 2010)
	require.NoError(t, err)
	assert.Equal(t, []string{"/pub/data/gsod/2010/722874-93134-2010.op.gz"}, paths, "falls back to the recent WBAN id")
}

func TestISDHourly_Fetch(t *testing.T) {
	content := strings.Join([]string{
		isdLine("200701010000", "+0100"),
		isdLine("200701010100", "+0160"),
	}, "\n")
	server := &fakeServer{
		files: map[string][]byte{
			"/pub/data/noaa/2007/722874-93134-2007.gz": gz(t, content),
			"/pub/data/noaa/2007/722874-99999-2007.gz": gz(t, isdLine("200701010000", "+9999")),
		},
	}
	source := noaa.ISDHourly(newClient(server, newMetadata()))
	assert.Equal(t, "isd", source.Name())
	assert.Equal(t, timeseries.Hourly, source.Frequency())
	assert.False(t, source.NormalYear())

	series, err := source.Fetch(context.Background(), "722874", 2007)
	require.NoError(t, err)
	require.Equal(t, 2, series.Len())

	// Minute grid 00:00..01:00 linearly interpolated from 10.0 to 16.0;
	// the first hour averages minutes 0..59.
	assert.InDelta(t, 12.95, series.Samples[0].Value, 1e-9)
	assert.InDelta(t, 16.0, series.Samples[1].Value, 1e-9)
}

func TestISDDaily_Fetch(t *testing.T) {
	server := &fakeServer{
		files: map[string][]byte{
			"/pub/data/noaa/2007/722874-93134-2007.gz": gz(t, isdLine("200701011200", "+0050")),
		},
	}
	source := noaa.ISDDaily(newClient(server, newMetadata()))

	series, err := source.Fetch(context.Background(), "722874", 2007)
	require.NoError(t, err)
	require.Equal(t, 1, series.Len())
	assert.Equal(t, timeseries.Daily, series.Frequency)
	assert.InDelta(t, 5.0, series.Samples[0].Value, 1e-9)
}

func TestGSODDaily_Fetch(t *testing.T) {
	content := "header\n" +
		"722874 93134  20070101    50.0 24\n" +
		"722874 93134  20070103    68.0 24\n"
	server := &fakeServer{
		files: map[string][]byte{
			"/pub/data/gsod/2007/722874-93134-2007.op.gz": gz(t, content),
		},
	}
	source := noaa.GSODDaily(newClient(server, newMetadata()))
	assert.Equal(t, "gsod", source.Name())

	series, err := source.Fetch(context.Background(), "722874", 2007)
	require.NoError(t, err)
	require.Equal(t, 3, series.Len())
	assert.InDelta(t, 10.0, series.Samples[0].Value, 1e-9)
	assert.False(t, series.Samples[1].Valid, "daily means are not interpolated")
	assert.InDelta(t, 20.0, series.Samples[2].Value, 1e-9)
}

func TestFetch_NoFilesIsNotAvailable(t *testing.T) {
	client := newClient(&fakeServer{files: map[string][]byte{}}, newMetadata())

	_, err := noaa.ISDHourly(client).Fetch(context.Background(), "722874", 2007)
	require.ErrorIs(t, err, temperature.ErrDataNotAvailable)
	assert.Equal(t, `ISD data does not exist for station "722874" in year 2007.`, err.Error())

	// No WBAN ids at all.
	_, err = noaa.GSODDaily(client).Fetch(context.Background(), "747020", 2007)
	assert.ErrorIs(t, err, temperature.ErrDataNotAvailable)
}

func TestFetch_SkipsFailingFile(t *testing.T) {
	server := &fakeServer{
		files: map[string][]byte{
			"/pub/data/noaa/2007/722874-93134-2007.gz": gz(t, isdLine("200701010000", "+0100")),
			"/pub/data/noaa/2007/722874-99999-2007.gz": gz(t, isdLine("200701010000", "+0300")),
		},
		failRetr: map[string]int{"/pub/data/noaa/2007/722874-93134-2007.gz": 2},
	}
	source := noaa.ISDHourly(newClient(server, newMetadata()))

	series, err := source.Fetch(context.Background(), "722874", 2007)
	require.NoError(t, err)
	require.Equal(t, 1, series.Len())
	assert.InDelta(t, 30.0, series.Samples[0].Value, 1e-9)
}

func TestFetch_AbandonedFilesKeepBreakerClosed(t *testing.T) {
	meta := newMetadata()
	wbans := []string{"10001", "10002", "10003", "10004", "10005"}
	meta.AddFileAliases("722874", 2008, wbans...)

	server := &fakeServer{
		files: map[string][]byte{
			"/pub/data/noaa/2007/722874-93134-2007.gz": gz(t, isdLine("200701010000", "+0100")),
		},
		failRetr: map[string]int{},
	}
	for _, wban := range wbans {
		server.failRetr[noaa.ISD.Path("722874", wban, 2008)] = 2
	}
	session := newSession(server)
	source := noaa.ISDHourly(noaa.NewClient(noaa.ClientConfig{
		Retriever: session,
		Metadata:  meta,
		Logger:    zerolog.Nop(),
	}))

	_, err := source.Fetch(context.Background(), "722874", 2008)
	require.ErrorIs(t, err, temperature.ErrDataNotAvailable)
	assert.Equal(t, gobreaker.StateClosed, session.BreakerState())

	series, err := source.Fetch(context.Background(), "722874", 2007)
	require.NoError(t, err)
	require.Equal(t, 1, series.Len())
	assert.InDelta(t, 10.0, series.Samples[0].Value, 1e-9)
}

func TestFetch_ConnectFailurePropagates(t *testing.T) {
	client := newClient(&fakeServer{dialErr: errors.New("no route to host")}, newMetadata())

	_, err := noaa.ISDHourly(client).Fetch(context.Background(), "722874", 2007)
	assert.ErrorIs(t, err, noaa.ErrConnect)
}

func TestFetch_UnknownStation(t *testing.T) {
	server := &fakeServer{}
	client := newClient(server, newMetadata())

	_, err := noaa.ISDHourly(client).Fetch(context.Background(), "000000", 2007)
	assert.ErrorIs(t, err, metadata.ErrUnrecognizedStationID)
	assert.Equal(t, int32(0), server.dials.Load())
}

func TestFahrenheitToCelsius(t *testing.T) {
	assert.InDelta(t, 100.0, noaa.FahrenheitToCelsius(212), 1e-9)
	assert.InDelta(t, -40.0, noaa.FahrenheitToCelsius(-40), 1e-9)
}
