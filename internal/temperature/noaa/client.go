// Package noaa fetches ISD and GSOD station archives from the NOAA FTP
// server and normalizes them into temperature series.
package noaa

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openeemeter/eeweather/internal/metadata"
	"github.com/openeemeter/eeweather/internal/provider/resilience"
	"github.com/openeemeter/eeweather/pkg/timeseries"
)

// Dataset is a NOAA archive family.
type Dataset string

const (
	ISD  Dataset = "isd"
	GSOD Dataset = "gsod"
)

// Path returns the archive path of one station-year file.
func (d Dataset) Path(usafID, wbanID string, year int) string {
	if d == GSOD {
		return fmt.Sprintf("/pub/data/gsod/%d/%s-%s-%d.op.gz", year, usafID, wbanID, year)
	}
	return fmt.Sprintf("/pub/data/noaa/%d/%s-%s-%d.gz", year, usafID, wbanID, year)
}

// Retriever downloads archive files. *Session implements it.
type Retriever interface {
	Retrieve(ctx context.Context, path string) ([]byte, error)
}

// ClientConfig holds configuration for the NOAA client.
type ClientConfig struct {
	Retriever Retriever
	Metadata  metadata.Store
	Logger    zerolog.Logger
}

// Client reads raw NOAA station data.
type Client struct {
	retriever Retriever
	metadata  metadata.Store
	logger    zerolog.Logger
}

// NewClient creates a NOAA client.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		retriever: cfg.Retriever,
		metadata:  cfg.Metadata,
		logger:    cfg.Logger,
	}
}

// Paths lists the archive files that may hold a station's data for a year,
// one per WBAN id the station reported under.
func (c *Client) Paths(ctx context.Context, dataset Dataset, usafID string, year int) ([]string, error) {
	wbanIDs, err := c.metadata.FileAliases(ctx, usafID, year)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(wbanIDs))
	for i, wban := range wbanIDs {
		paths[i] = dataset.Path(usafID, wban, year)
	}
	return paths, nil
}

// FetchRaw downloads and parses every file of a station-year. Files that
// are missing or fail twice are skipped; a station-year without any
// records is reported as not available.
func (c *Client) FetchRaw(ctx context.Context, dataset Dataset, usafID string, year int) ([]timeseries.Sample, error) {
	if _, err := c.metadata.StationByID(ctx, usafID); err != nil {
		return nil, err
	}
	paths, err := c.Paths(ctx, dataset, usafID, year)
	if err != nil {
		return nil, err
	}

	parse := ParseISD
	if dataset == GSOD {
		parse = ParseGSOD
	}

	var samples []timeseries.Sample
	for _, path := range paths {
		data, err := c.retriever.Retrieve(ctx, path)
		switch {
		case errors.Is(err, resilience.ErrNotFound):
			c.logger.Debug().Str("path", path).Msg("archive file not found")
			continue
		case errors.Is(err, ErrConnect), errors.Is(err, resilience.ErrCircuitOpen):
			return nil, err
		case err != nil:
			c.logger.Warn().Err(err).Str("path", path).Msg("skipping archive file")
			continue
		}

		raw, err := Gunzip(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		parsed, err := parse(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		samples = append(samples, parsed...)
	}

	if len(samples) == 0 {
		return nil, notAvailable(dataset, usafID, year)
	}
	return samples, nil
}
