// Package main is the command-line entry point for the serial port test
// orchestration core.
package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/benchforge/portcore/internal/bibconfig"
	"github.com/benchforge/portcore/internal/config"
	"github.com/benchforge/portcore/internal/hardware"
	"github.com/benchforge/portcore/internal/pool"
	"github.com/benchforge/portcore/internal/protocol"
	"github.com/benchforge/portcore/internal/protocol/rs232"
	"github.com/benchforge/portcore/internal/reservation"
	"github.com/benchforge/portcore/internal/resolver"
	"github.com/benchforge/portcore/internal/runlog"
	"github.com/benchforge/portcore/internal/workflow"
	"github.com/benchforge/portcore/pkg/logger"
	"github.com/benchforge/portcore/pkg/metrics"
)

// app bundles every collaborator wired from Settings. Subcommands use only
// the pieces they need and start only the background sweepers they rely on:
// discover starts the hardware cache sweep, reserve and serve-metrics start
// both the cache and reservation sweeps, run starts neither.
type app struct {
	settings *config.Settings
	logger   *slog.Logger

	enumerator      hardware.PortEnumerator
	hardwareCache   *hardware.MetadataCache
	resolver        *resolver.Resolver
	pool            *pool.Pool
	reservation     *reservation.Layer
	bibStore        *bibconfig.Store
	registry        *protocol.Registry
	runLogger       *runlog.Logger
	engine          *workflow.Engine
	settingsService config.SettingsService
}

func newApp(settings *config.Settings) (*app, error) {
	log := logger.New(logger.Config{
		Level:      settings.Log.Level,
		Format:     settings.Log.Format,
		Output:     settings.Log.Output,
		Filename:   settings.Log.Filename,
		MaxSize:    settings.Log.MaxSize,
		MaxBackups: settings.Log.MaxBackups,
		MaxAge:     settings.Log.MaxAge,
		Compress:   settings.Log.Compress,
	})
	slog.SetDefault(log)

	enumerator := hardware.NewSystemPortEnumerator()
	eeprom := hardware.NewSysfsEepromReader()

	cacheMetrics := metrics.NewCacheMetrics(settings.App.Name)
	hwCache, err := hardware.NewMetadataCache(hardware.Config{
		TTL:           settings.Hardware.CacheTTL,
		SweepInterval: settings.Hardware.SweepInterval,
		Reader:        eeprom,
		Enumerator:    enumerator,
		Logger:        log.With("component", "hardware_cache"),
		Metrics:       cacheMetrics,
		MaxCacheSize:  settings.Hardware.MaxCacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("build hardware cache: %w", err)
	}

	res := resolver.New(resolver.Config{
		Cache:        hwCache,
		DefaultBibID: "client_demo",
		DefaultUutID: settings.Resolver.DefaultUutID,
		TTL:          settings.Resolver.CacheTTL,
		Logger:       log.With("component", "resolver"),
	})

	poolMetrics := metrics.NewPoolMetrics(settings.App.Name)
	p, err := pool.New(pool.Config{
		Enumerator: enumerator,
		Cache:      hwCache,
		Logger:     log.With("component", "pool"),
		Metrics:    poolMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("build pool: %w", err)
	}

	reservationMetrics := metrics.NewReservationMetrics(settings.App.Name)
	lease, err := reservation.New(reservation.Config{
		Pool:          p,
		SweepInterval: settings.Reservation.SweepInterval,
		Logger:        log.With("component", "reservation"),
		Metrics:       reservationMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("build reservation layer: %w", err)
	}

	bibStore, err := bibconfig.NewStore(settings.BibConfig.CacheSize, log.With("component", "bibconfig"))
	if err != nil {
		return nil, fmt.Errorf("build bib config store: %w", err)
	}

	protocolMetrics := metrics.NewProtocolMetrics(settings.App.Name)
	registry := protocol.NewRegistry()
	registry.Register("rs232", func() protocol.Handler {
		return rs232.New(
			rs232.WithLogger(log.With("component", "rs232")),
			rs232.WithMetrics(protocolMetrics),
		)
	})
	registry.RegisterAlias("serial", "rs232")

	runLogger, err := runlog.New(runlog.Config{
		BaseDir:               settings.RunLog.BaseDir,
		DegradedWarnThrottle:  settings.RunLog.DegradedWarnThrottle,
		ProbeRetryMaxAttempts: settings.RunLog.ProbeRetryMaxAttempts,
		Logger:                log.With("component", "runlog"),
	})
	if err != nil {
		return nil, fmt.Errorf("build run logger: %w", err)
	}

	workflowMetrics := metrics.NewWorkflowMetrics(settings.App.Name)
	engine := workflow.New(workflow.Config{
		Registry:  registry,
		RunLogger: runLogger,
		Logger:    log.With("component", "workflow"),
		Metrics:   workflowMetrics,
		Sanitizer: config.NewDefaultSanitizer(),
	})

	settingsService := config.NewSettingsService(settings, configPath, time.Now(), config.SettingsSourceMixed)

	return &app{
		settings:        settings,
		logger:          log,
		enumerator:      enumerator,
		hardwareCache:   hwCache,
		resolver:        res,
		pool:            p,
		reservation:     lease,
		bibStore:        bibStore,
		registry:        registry,
		runLogger:       runLogger,
		engine:          engine,
		settingsService: settingsService,
	}, nil
}
