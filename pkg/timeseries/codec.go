package timeseries

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrInvalidPayload is returned when a cached payload cannot be decoded.
var ErrInvalidPayload = errors.New("invalid series payload")

// Precision is the number of decimal places kept when encoding values.
const Precision = 4

// point is one [timestamp, value-or-nil] pair on the wire.
type point struct {
	_msgpack struct{} `msgpack:",as_array"` //nolint:unused // msgpack struct options

	Time  string
	Value *float64
}

// Layout returns the timestamp layout used on the wire for freq.
func (f Frequency) Layout() string {
	switch f {
	case Daily:
		return "20060102"
	case Hourly:
		return "2006010215"
	default:
		return "200601021504"
	}
}

// Encode serializes s as a MessagePack list of [timestamp, value] pairs.
// Values are rounded to Precision decimal places; null samples encode as nil.
func Encode(s Series) ([]byte, error) {
	layout := s.Frequency.Layout()
	points := make([]point, len(s.Samples))
	for i, sample := range s.Samples {
		points[i].Time = sample.Time.UTC().Format(layout)
		if sample.Valid {
			v := round(sample.Value)
			points[i].Value = &v
		}
	}

	data, err := msgpack.Marshal(points)
	if err != nil {
		return nil, fmt.Errorf("encode series: %w", err)
	}
	return data, nil
}

// Decode reverses Encode for a series of the given frequency.
func Decode(data []byte, freq Frequency) (Series, error) {
	var points []point
	if err := msgpack.Unmarshal(data, &points); err != nil {
		return Series{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	layout := freq.Layout()
	s := Series{Frequency: freq, Samples: make([]Sample, len(points))}
	for i, p := range points {
		t, err := time.ParseInLocation(layout, p.Time, time.UTC)
		if err != nil {
			return Series{}, fmt.Errorf("%w: timestamp %q: %v", ErrInvalidPayload, p.Time, err)
		}
		if p.Value == nil {
			s.Samples[i] = Null(t)
			continue
		}
		s.Samples[i] = Value(t, *p.Value)
	}
	return s, nil
}

func round(v float64) float64 {
	scale := math.Pow(10, Precision)
	return math.Round(v*scale) / scale
}
