package noaa

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/openeemeter/eeweather/pkg/timeseries"
)

// ErrMalformedRecord is returned for records that cannot be parsed.
var ErrMalformedRecord = errors.New("malformed record")

// Fixed-width ISD fields.
const (
	isdTimeStart = 15
	isdTimeEnd   = 27
	isdTempStart = 87
	isdTempEnd   = 92
	isdMissing   = "+9999"
)

// gsodMissing marks a missing mean temperature in GSOD files.
const gsodMissing = 9999.9

// Gunzip decompresses a .gz archive.
func Gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// ParseISD reads ISD fixed-width records: observation time in UTC from
// bytes 15-27 and air temperature in tenths of a degree Celsius from bytes
// 87-92. Missing temperatures become null samples. Lines too short to hold
// a temperature are skipped.
func ParseISD(r io.Reader) ([]timeseries.Sample, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var samples []timeseries.Sample
	line := 0
	for scanner.Scan() {
		line++
		record := scanner.Text()
		if len(record) < isdTempEnd {
			continue
		}

		t, err := time.ParseInLocation("200601021504", record[isdTimeStart:isdTimeEnd], time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: time %q", ErrMalformedRecord, line, record[isdTimeStart:isdTimeEnd])
		}

		raw := record[isdTempStart:isdTempEnd]
		if raw == isdMissing {
			samples = append(samples, timeseries.Null(t))
			continue
		}
		tenths, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: temperature %q", ErrMalformedRecord, line, raw)
		}
		samples = append(samples, timeseries.Value(t, tenths/10))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// ParseGSOD reads GSOD daily summaries: a header line, then whitespace
// separated columns with the date (YYYYMMDD) third and the mean
// temperature in degrees Fahrenheit fourth. Values are converted to
// Celsius.
func ParseGSOD(r io.Reader) ([]timeseries.Sample, error) {
	scanner := bufio.NewScanner(r)

	var samples []timeseries.Sample
	line := 0
	for scanner.Scan() {
		line++
		if line == 1 {
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 4 {
			return nil, fmt.Errorf("%w: line %d: %d columns", ErrMalformedRecord, line, len(fields))
		}

		t, err := time.ParseInLocation("20060102", fields[2], time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: date %q", ErrMalformedRecord, line, fields[2])
		}
		tempF, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: temperature %q", ErrMalformedRecord, line, fields[3])
		}
		if tempF == gsodMissing {
			samples = append(samples, timeseries.Null(t))
			continue
		}
		samples = append(samples, timeseries.Value(t, FahrenheitToCelsius(tempF)))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// FahrenheitToCelsius converts a temperature.
func FahrenheitToCelsius(f float64) float64 {
	return (5.0 / 9.0) * (f - 32.0)
}
