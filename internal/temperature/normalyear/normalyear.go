// Package normalyear fetches typical-year hourly temperature files (TMY3
// and CZ2010) and places them on a UTC grid for the year 1900.
package normalyear

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openeemeter/eeweather/internal/metadata"
	"github.com/openeemeter/eeweather/internal/provider/resilience"
	"github.com/openeemeter/eeweather/internal/temperature"
	"github.com/openeemeter/eeweather/pkg/timeseries"
)

// Year indexes every normal-year series.
const Year = 1900

// dryBulbColumn holds the dry-bulb temperature in degrees Celsius.
const dryBulbColumn = 31

// ErrMalformedFile is returned for files that cannot be parsed.
var ErrMalformedFile = errors.New("malformed normal-year file")

// Network selects one normal-year dataset.
type Network struct {
	// Name is the cache key prefix.
	Name string

	// FileName maps a station id to its file under the base URL.
	FileName func(usafID string) string

	// Member reports whether the station carries this dataset.
	Member func(s *metadata.Station) bool
}

// TMY3 is the Typical Meteorological Year 3 archive.
var TMY3 = Network{
	Name:     "tmy3",
	FileName: func(id string) string { return id + "TYA.CSV" },
	Member:   func(s *metadata.Station) bool { return s.IsTMY3 },
}

// CZ2010 is the California climate zone 2010 archive.
var CZ2010 = Network{
	Name:     "cz2010",
	FileName: func(id string) string { return id + "_CZ2010.CSV" },
	Member:   func(s *metadata.Station) bool { return s.IsCZ2010 },
}

// Fetcher downloads a file body. *resilience.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// SourceConfig holds configuration for a normal-year source.
type SourceConfig struct {
	Network  Network
	BaseURL  string
	Fetcher  Fetcher
	Metadata metadata.Store
	Logger   zerolog.Logger
}

// Source serves one normal-year network as a temperature.Source.
type Source struct {
	network  Network
	baseURL  string
	fetcher  Fetcher
	metadata metadata.Store
	logger   zerolog.Logger
}

var _ temperature.Source = (*Source)(nil)

// NewSource creates a normal-year source.
func NewSource(cfg SourceConfig) *Source {
	return &Source{
		network:  cfg.Network,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		fetcher:  cfg.Fetcher,
		metadata: cfg.Metadata,
		logger:   cfg.Logger,
	}
}

func (s *Source) Name() string                    { return s.network.Name }
func (s *Source) Frequency() timeseries.Frequency { return timeseries.Hourly }
func (s *Source) NormalYear() bool                { return true }

// URL returns the location of a station's file.
func (s *Source) URL(usafID string) string {
	return s.baseURL + "/" + s.network.FileName(usafID)
}

// Fetch downloads and parses a station's normal-year file. The year
// argument is ignored.
func (s *Source) Fetch(ctx context.Context, usafID string, _ int) (timeseries.Series, error) {
	station, err := s.metadata.StationByID(ctx, usafID)
	if err != nil {
		return timeseries.Series{}, err
	}
	if !s.network.Member(station) {
		return timeseries.Series{}, temperature.NotAvailable(s.network.Name, usafID, 0)
	}

	url := s.URL(usafID)
	body, err := s.fetcher.Fetch(ctx, url)
	if errors.Is(err, resilience.ErrNotFound) {
		s.logger.Warn().Str("url", url).Msg("normal-year file missing for listed station")
		return timeseries.Series{}, temperature.NotAvailable(s.network.Name, usafID, 0)
	}
	if err != nil {
		return timeseries.Series{}, fmt.Errorf("fetch %s: %w", url, err)
	}

	series, err := Parse(bytes.NewReader(body))
	if err != nil {
		return timeseries.Series{}, fmt.Errorf("%s: %w", url, err)
	}
	return series, nil
}

// Parse reads a TMY3-format CSV. The fourth field of the first line is
// the station's UTC offset in hours; data rows start on the third line
// with MM/DD/YYYY, HH:MM (hour 1 to 24, local standard time) and dry-bulb
// temperature in the 32nd column. Timestamps are shifted to UTC and folded
// back into 1900, so the result covers every hour of 1900.
func Parse(r io.Reader) (timeseries.Series, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return timeseries.Series{}, fmt.Errorf("%w: empty file", ErrMalformedFile)
	}
	if err != nil {
		return timeseries.Series{}, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}
	if len(header) < 4 {
		return timeseries.Series{}, fmt.Errorf("%w: header has %d fields", ErrMalformedFile, len(header))
	}
	hours, err := strconv.ParseFloat(strings.TrimSpace(header[3]), 64)
	if err != nil {
		return timeseries.Series{}, fmt.Errorf("%w: utc offset %q", ErrMalformedFile, header[3])
	}
	offset := time.Duration(hours * float64(time.Hour))

	// Column names.
	if _, err := reader.Read(); err != nil && !errors.Is(err, io.EOF) {
		return timeseries.Series{}, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}

	values := make(map[time.Time]float64, 8760)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return timeseries.Series{}, fmt.Errorf("%w: %v", ErrMalformedFile, err)
		}
		t, v, err := parseRow(record, offset)
		if err != nil {
			line, _ := reader.FieldPos(0)
			return timeseries.Series{}, fmt.Errorf("%w: line %d: %v", ErrMalformedFile, line, err)
		}
		values[t] = v
	}

	start := time.Date(Year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(Year+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	series := timeseries.Series{Frequency: timeseries.Hourly, Samples: make([]timeseries.Sample, 0, 8760)}
	for t := start; t.Before(end); t = t.Add(time.Hour) {
		if v, ok := values[t]; ok {
			series.Samples = append(series.Samples, timeseries.Value(t, v))
			continue
		}
		series.Samples = append(series.Samples, timeseries.Null(t))
	}
	return series, nil
}

func parseRow(row []string, offset time.Duration) (time.Time, float64, error) {
	if len(row) <= dryBulbColumn {
		return time.Time{}, 0, fmt.Errorf("%d columns", len(row))
	}
	if len(row[0]) < 5 || len(row[1]) < 2 {
		return time.Time{}, 0, fmt.Errorf("date %q time %q", row[0], row[1])
	}
	month, err := strconv.Atoi(row[0][0:2])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("month %q", row[0])
	}
	day, err := strconv.Atoi(row[0][3:5])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("day %q", row[0])
	}
	hour, err := strconv.Atoi(row[1][0:2])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("hour %q", row[1])
	}
	temp, err := strconv.ParseFloat(strings.TrimSpace(row[dryBulbColumn]), 64)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("temperature %q", row[dryBulbColumn])
	}

	local := time.Date(Year, time.Month(month), day, hour-1, 0, 0, 0, time.UTC)
	t := local.Add(-offset)
	t = time.Date(Year, t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	return t, temp, nil
}
