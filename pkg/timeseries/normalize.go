package timeseries

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// InterpolationLimit is the longest run of consecutive minutes filled from
// each side of a gap when normalizing raw observations.
const InterpolationLimit = 60

// Resample buckets samples onto freq ticks and averages the valid values
// in each bucket. The result spans every tick from the first to the last
// occupied bucket; buckets without valid values are null.
func Resample(samples []Sample, freq Frequency) Series {
	out := Series{Frequency: freq}
	if len(samples) == 0 {
		return out
	}

	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	step := freq.Duration()
	first := freq.Floor(sorted[0].Time)
	last := freq.Floor(sorted[len(sorted)-1].Time)
	out.Samples = make([]Sample, 0, int(last.Sub(first)/step)+1)

	var bucket []float64
	i := 0
	for tick := first; !tick.After(last); tick = tick.Add(step) {
		bucket = bucket[:0]
		next := tick.Add(step)
		for i < len(sorted) && sorted[i].Time.Before(next) {
			if sorted[i].Valid {
				bucket = append(bucket, sorted[i].Value)
			}
			i++
		}
		if len(bucket) == 0 {
			out.Samples = append(out.Samples, Null(tick))
			continue
		}
		out.Samples = append(out.Samples, Value(tick, stat.Mean(bucket, nil)))
	}

	return out
}

// Interpolate fills null runs linearly between their neighbouring valid
// samples. Only samples within limit ticks of a valid neighbour are
// filled, counting from both sides, so long outages stay null. Leading
// and trailing runs take the nearest valid value.
func Interpolate(s Series, limit int) Series {
	out := Series{Frequency: s.Frequency, Samples: make([]Sample, len(s.Samples))}
	copy(out.Samples, s.Samples)

	n := len(out.Samples)
	for i := 0; i < n; {
		if out.Samples[i].Valid {
			i++
			continue
		}

		j := i
		for j+1 < n && !out.Samples[j+1].Valid {
			j++
		}

		left, right := i-1, j+1
		hasLeft, hasRight := left >= 0, right < n
		for k := i; k <= j; k++ {
			fromLeft, fromRight := k-left, right-k
			switch {
			case hasLeft && hasRight:
				if fromLeft > limit && fromRight > limit {
					continue
				}
				vl, vr := out.Samples[left].Value, out.Samples[right].Value
				frac := float64(fromLeft) / float64(right-left)
				out.Samples[k].Value = vl + (vr-vl)*frac
				out.Samples[k].Valid = true
			case hasLeft:
				if fromLeft <= limit {
					out.Samples[k].Value = out.Samples[left].Value
					out.Samples[k].Valid = true
				}
			case hasRight:
				if fromRight <= limit {
					out.Samples[k].Value = out.Samples[right].Value
					out.Samples[k].Valid = true
				}
			}
		}
		i = j + 1
	}

	return out
}

// Normalize turns raw observations into a series at freq: minute means,
// gap interpolation bounded by InterpolationLimit, then means at freq.
func Normalize(raw []Sample, freq Frequency) Series {
	minutes := Resample(raw, Minute)
	filled := Interpolate(minutes, InterpolationLimit)
	return Resample(filled.Samples, freq)
}

// Merge concatenates series and resamples the union once more at freq.
func Merge(freq Frequency, series ...Series) Series {
	total := 0
	for _, s := range series {
		total += s.Len()
	}
	all := make([]Sample, 0, total)
	for _, s := range series {
		all = append(all, s.Samples...)
	}
	return Resample(all, freq)
}

// Reindex places s onto the inclusive tick grid from start to end. A start
// between ticks is rounded up to the next tick and an end between ticks is
// rounded down. Ticks missing from s are null.
func Reindex(s Series, start, end time.Time) Series {
	out := Series{Frequency: s.Frequency}
	first := s.Frequency.Ceil(start)
	last := s.Frequency.Floor(end)
	if first.After(last) {
		return out
	}

	byTime := make(map[time.Time]Sample, len(s.Samples))
	for _, sample := range s.Samples {
		byTime[sample.Time.UTC()] = sample
	}

	step := s.Frequency.Duration()
	out.Samples = make([]Sample, 0, int(last.Sub(first)/step)+1)
	for tick := first; !tick.After(last); tick = tick.Add(step) {
		if sample, ok := byTime[tick]; ok {
			sample.Time = tick
			out.Samples = append(out.Samples, sample)
			continue
		}
		out.Samples = append(out.Samples, Null(tick))
	}
	return out
}

// Reproject moves every sample of a normal-year series onto year by
// replacing the year component. Month, day and time of day are kept, so a
// leap year's February 29 has no sample.
func Reproject(s Series, year int) Series {
	out := Series{Frequency: s.Frequency, Samples: make([]Sample, 0, len(s.Samples))}
	for _, sample := range s.Samples {
		t := sample.Time.UTC()
		sample.Time = time.Date(year, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
		out.Samples = append(out.Samples, sample)
	}
	sort.SliceStable(out.Samples, func(i, j int) bool {
		return out.Samples[i].Time.Before(out.Samples[j].Time)
	})
	return out
}
