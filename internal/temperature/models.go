// Package temperature loads normalized temperature series for weather
// stations through a read-through cache in front of the upstream sources.
package temperature

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openeemeter/eeweather/pkg/timeseries"
)

// Temperature errors.
var (
	ErrDataNotAvailable = errors.New("source data not available")
	ErrNonUTCTimestamp  = errors.New("timestamp is not in UTC")
)

// DataNotAvailableError reports that a source has no data for a station,
// or for one year of a station. Year is zero for normal-year sources.
type DataNotAvailableError struct {
	Source string
	USAFID string
	Year   int
}

func (e *DataNotAvailableError) Error() string {
	name := strings.ToUpper(e.Source)
	if e.Year == 0 {
		return fmt.Sprintf("%s data does not exist for station %q.", name, e.USAFID)
	}
	return fmt.Sprintf("%s data does not exist for station %q in year %d.", name, e.USAFID, e.Year)
}

func (e *DataNotAvailableError) Unwrap() error {
	return ErrDataNotAvailable
}

// NotAvailable builds a DataNotAvailableError.
func NotAvailable(source, usafID string, year int) error {
	return &DataNotAvailableError{Source: source, USAFID: usafID, Year: year}
}

// Source fetches and normalizes one upstream temperature dataset.
type Source interface {
	// Name is the cache key prefix, e.g. "isd".
	Name() string

	// Frequency of the normalized series.
	Frequency() timeseries.Frequency

	// NormalYear reports whether the source is a single idealized year
	// (indexed on 1900) rather than one series per calendar year.
	NormalYear() bool

	// Fetch retrieves, parses and normalizes data for a station. Year is
	// ignored by normal-year sources. Missing data is reported with a
	// *DataNotAvailableError.
	Fetch(ctx context.Context, usafID string, year int) (timeseries.Series, error)
}

// LoadOptions controls cache and network use for a load.
type LoadOptions struct {
	// ReadFromCache serves valid cached entries instead of fetching.
	ReadFromCache bool

	// WriteToCache stores freshly fetched series.
	WriteToCache bool

	// FetchFromWeb allows upstream requests on a cache miss.
	FetchFromWeb bool

	// ErrorOnMissingYears fails a ranged load on the first year without
	// data instead of returning a warning.
	ErrorOnMissingYears bool
}

// DefaultLoadOptions reads and writes the cache and fetches on misses.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		ReadFromCache: true,
		WriteToCache:  true,
		FetchFromWeb:  true,
	}
}
