// Package main provides the entrypoint for the eeweather cache warm job.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/openeemeter/eeweather"
	"github.com/openeemeter/eeweather/internal/config"
	"github.com/openeemeter/eeweather/internal/telemetry"
	"github.com/openeemeter/eeweather/internal/temperature"
	"github.com/openeemeter/eeweather/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	const serviceName = "eeweather-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return 1
	}
	if level, levelErr := zerolog.ParseLevel(cfg.LogLevel); levelErr == nil {
		log = log.Level(level)
	} else {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		log = log.Level(zerolog.InfoLevel)
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting eeweather worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize telemetry")
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	client, err := eeweather.New(ctx, eeweather.Config{
		Settings: cfg,
		Logger:   log,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create client")
		return 1
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close client")
		}
	}()

	if len(cfg.WarmStations) == 0 {
		log.Warn().Msg("EEWEATHER_WARM_STATIONS is empty, nothing to warm")
		return 0
	}

	sources := client.Sources()
	job := worker.NewWarmJob(worker.WarmJobConfig{
		Config: worker.WarmConfig{
			Stations:    cfg.WarmStations,
			Years:       cfg.WarmYears,
			Concurrency: cfg.WarmConcurrency,
		},
		Loader:  client,
		Sources: []temperature.Source{sources.ISDHourly, sources.TMY3Hourly, sources.CZ2010Hourly},
		Logger:  log,
	})

	result := job.Run(ctx)
	for _, e := range result.Errors {
		log.Error().
			Str("source", e.Source).
			Str("usaf_id", e.USAFID).
			Int("year", e.Year).
			Str("error", e.Error).
			Msg("unit failed")
	}
	for _, h := range client.Health() {
		log.Info().
			Str("upstream", h.Name).
			Str("circuit_state", h.CircuitState.String()).
			Uint32("failures", h.Counts.TotalFailures).
			Msg("upstream health")
	}

	if result.Failed > 0 {
		return 1
	}
	return 0
}
