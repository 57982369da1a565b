package noaa

import (
	"context"

	"github.com/openeemeter/eeweather/internal/temperature"
	"github.com/openeemeter/eeweather/pkg/timeseries"
)

// Source adapts a dataset at one frequency to temperature.Source.
type Source struct {
	client    *Client
	dataset   Dataset
	frequency timeseries.Frequency
}

var _ temperature.Source = (*Source)(nil)

// ISDHourly serves ISD observations interpolated and averaged per hour.
func ISDHourly(c *Client) *Source {
	return &Source{client: c, dataset: ISD, frequency: timeseries.Hourly}
}

// ISDDaily serves ISD observations interpolated and averaged per day.
func ISDDaily(c *Client) *Source {
	return &Source{client: c, dataset: ISD, frequency: timeseries.Daily}
}

// GSODDaily serves GSOD daily means.
func GSODDaily(c *Client) *Source {
	return &Source{client: c, dataset: GSOD, frequency: timeseries.Daily}
}

func (s *Source) Name() string                    { return string(s.dataset) }
func (s *Source) Frequency() timeseries.Frequency { return s.frequency }
func (s *Source) NormalYear() bool                { return false }

// Fetch downloads and normalizes one station-year.
func (s *Source) Fetch(ctx context.Context, usafID string, year int) (timeseries.Series, error) {
	raw, err := s.client.FetchRaw(ctx, s.dataset, usafID, year)
	if err != nil {
		return timeseries.Series{}, err
	}
	if s.dataset == GSOD {
		return timeseries.Resample(raw, s.frequency), nil
	}
	return timeseries.Normalize(raw, s.frequency), nil
}

func notAvailable(dataset Dataset, usafID string, year int) error {
	return temperature.NotAvailable(string(dataset), usafID, year)
}
