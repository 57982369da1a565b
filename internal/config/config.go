// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Upstream defaults.
const (
	DefaultFTPHost       = "ftp.ncdc.noaa.gov:21"
	DefaultTMY3BaseURL   = "https://storage.googleapis.com/openeemeter-public-resources/tmy3_archive"
	DefaultCZ2010BaseURL = "https://storage.googleapis.com/oee-cz2010/csv"
)

// Config holds everything a process needs to build an eeweather client.
type Config struct {
	Env      string
	LogLevel string

	CacheURL     string
	MetadataPath string

	FTPHost       string
	FTPTimeout    time.Duration
	TMY3BaseURL   string
	CZ2010BaseURL string
	HTTPTimeout   time.Duration

	OTelEnabled  bool
	OTLPEndpoint string

	// Cache warm job.
	WarmStations    []string
	WarmYears       []int
	WarmConcurrency int
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env is optional

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".eeweather")

	cfg := Config{
		Env:           getEnvOrDefault("APP_ENV", "development"),
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		CacheURL:      expandHome(getEnvOrDefault("EEWEATHER_CACHE_URL", "sqlite://"+filepath.Join(base, "cache.db")), home),
		MetadataPath:  expandHome(getEnvOrDefault("EEWEATHER_METADATA_PATH", filepath.Join(base, "metadata.db")), home),
		FTPHost:       getEnvOrDefault("EEWEATHER_FTP_HOST", DefaultFTPHost),
		TMY3BaseURL:   strings.TrimSuffix(getEnvOrDefault("EEWEATHER_TMY3_BASE_URL", DefaultTMY3BaseURL), "/"),
		CZ2010BaseURL: strings.TrimSuffix(getEnvOrDefault("EEWEATHER_CZ2010_BASE_URL", DefaultCZ2010BaseURL), "/"),
		OTLPEndpoint:  getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		WarmStations:  splitList(os.Getenv("EEWEATHER_WARM_STATIONS")),
	}

	if cfg.FTPTimeout, err = time.ParseDuration(getEnvOrDefault("EEWEATHER_FTP_TIMEOUT", "60s")); err != nil {
		return Config{}, fmt.Errorf("EEWEATHER_FTP_TIMEOUT: %w", err)
	}
	if cfg.HTTPTimeout, err = time.ParseDuration(getEnvOrDefault("EEWEATHER_HTTP_TIMEOUT", "30s")); err != nil {
		return Config{}, fmt.Errorf("EEWEATHER_HTTP_TIMEOUT: %w", err)
	}
	if cfg.OTelEnabled, err = strconv.ParseBool(getEnvOrDefault("OTEL_ENABLED", "false")); err != nil {
		return Config{}, fmt.Errorf("OTEL_ENABLED: %w", err)
	}
	if cfg.WarmConcurrency, err = strconv.Atoi(getEnvOrDefault("EEWEATHER_WARM_CONCURRENCY", "3")); err != nil {
		return Config{}, fmt.Errorf("EEWEATHER_WARM_CONCURRENCY: %w", err)
	}
	if cfg.WarmYears, err = parseYears(os.Getenv("EEWEATHER_WARM_YEARS")); err != nil {
		return Config{}, fmt.Errorf("EEWEATHER_WARM_YEARS: %w", err)
	}

	return cfg, nil
}

// IsProduction returns true when APP_ENV is production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// parseYears accepts a comma list of years and inclusive ranges,
// e.g. "2015,2018-2020".
func parseYears(raw string) ([]int, error) {
	var years []int
	for _, part := range splitList(raw) {
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(lo)
		if err != nil {
			return nil, err
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(hi); err != nil {
				return nil, err
			}
		}
		if last < first {
			return nil, fmt.Errorf("invalid year range %q", part)
		}
		for y := first; y <= last; y++ {
			years = append(years, y)
		}
	}
	return years, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func expandHome(path, home string) string {
	if rest, ok := strings.CutPrefix(path, "sqlite://~"); ok {
		return "sqlite://" + home + rest
	}
	if rest, ok := strings.CutPrefix(path, "~"); ok {
		return home + rest
	}
	return path
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
