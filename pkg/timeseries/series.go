// Package timeseries implements fixed-frequency temperature series with
// nullable samples, plus the resampling, interpolation, reindexing and
// calendar reprojection used to normalize raw upstream observations.
package timeseries

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Frequency is the tick spacing of a series.
type Frequency string

const (
	Minute Frequency = "minute"
	Hourly Frequency = "hourly"
	Daily  Frequency = "daily"
)

// Duration returns the tick spacing.
func (f Frequency) Duration() time.Duration {
	switch f {
	case Minute:
		return time.Minute
	case Hourly:
		return time.Hour
	case Daily:
		return 24 * time.Hour
	}
	panic(fmt.Sprintf("timeseries: unknown frequency %q", string(f)))
}

// Floor returns the tick at or before t, in UTC.
func (f Frequency) Floor(t time.Time) time.Time {
	return t.UTC().Truncate(f.Duration())
}

// Ceil returns the tick at or after t, in UTC.
func (f Frequency) Ceil(t time.Time) time.Time {
	floor := f.Floor(t)
	if floor.Equal(t) {
		return floor
	}
	return floor.Add(f.Duration())
}

// Sample is one observation. Valid is false for a known gap.
type Sample struct {
	Time  time.Time
	Value float64
	Valid bool
}

// Value returns a valid sample.
func Value(t time.Time, v float64) Sample {
	return Sample{Time: t, Value: v, Valid: true}
}

// Null returns a gap sample.
func Null(t time.Time) Sample {
	return Sample{Time: t}
}

// Series is an ordered run of samples at a fixed frequency.
type Series struct {
	Frequency Frequency
	Samples   []Sample
}

// Len returns the number of samples, including nulls.
func (s Series) Len() int {
	return len(s.Samples)
}

// Empty reports whether the series has no samples.
func (s Series) Empty() bool {
	return len(s.Samples) == 0
}

// Start returns the first timestamp, or the zero time when empty.
func (s Series) Start() time.Time {
	if s.Empty() {
		return time.Time{}
	}
	return s.Samples[0].Time
}

// End returns the last timestamp, or the zero time when empty.
func (s Series) End() time.Time {
	if s.Empty() {
		return time.Time{}
	}
	return s.Samples[len(s.Samples)-1].Time
}

// ValidValues returns the non-null values in order.
func (s Series) ValidValues() []float64 {
	values := make([]float64, 0, len(s.Samples))
	for _, sample := range s.Samples {
		if sample.Valid {
			values = append(values, sample.Value)
		}
	}
	return values
}

// CountValid returns the number of non-null samples.
func (s Series) CountValid() int {
	n := 0
	for _, sample := range s.Samples {
		if sample.Valid {
			n++
		}
	}
	return n
}

// Sum adds every non-null value.
func (s Series) Sum() float64 {
	return floats.Sum(s.ValidValues())
}

// Coverage returns the fraction of samples that are non-null. An empty
// series has zero coverage.
func (s Series) Coverage() float64 {
	if s.Empty() {
		return 0
	}
	return float64(s.CountValid()) / float64(s.Len())
}

// Times returns every timestamp in order.
func (s Series) Times() []time.Time {
	times := make([]time.Time, len(s.Samples))
	for i, sample := range s.Samples {
		times[i] = sample.Time
	}
	return times
}

// At returns the sample at t.
func (s Series) At(t time.Time) (Sample, bool) {
	i := sort.Search(len(s.Samples), func(i int) bool {
		return !s.Samples[i].Time.Before(t)
	})
	if i < len(s.Samples) && s.Samples[i].Time.Equal(t) {
		return s.Samples[i], true
	}
	return Sample{}, false
}
