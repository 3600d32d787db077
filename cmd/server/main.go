// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/tomtom215/customreports/internal/api"
	"github.com/tomtom215/customreports/internal/config"
	"github.com/tomtom215/customreports/internal/decompose"
	"github.com/tomtom215/customreports/internal/dedup"
	"github.com/tomtom215/customreports/internal/eventprocessor"
	"github.com/tomtom215/customreports/internal/logging"
	"github.com/tomtom215/customreports/internal/metrics"
	"github.com/tomtom215/customreports/internal/pipeline"
	"github.com/tomtom215/customreports/internal/provider"
	"github.com/tomtom215/customreports/internal/queue"
	"github.com/tomtom215/customreports/internal/supervisor"
	"github.com/tomtom215/customreports/internal/supervisor/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// eventBusBuffer is the per-subscriber buffer of the in-process event bus.
const eventBusBuffer = 256

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Caller:  cfg.Logging.Caller,
		Service: "customreports",
	})
	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)

	logging.Info().
		Str("version", version).
		Str("store", cfg.Store.Backend).
		Str("cache", cfg.Cache.Backend).
		Bool("nats", cfg.NATS.Enabled).
		Str("job_store", cfg.Queue.JobStore).
		Msg("Starting custom reports server")

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server stopped with error")
	}
	logging.Info().Msg("Server stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := newComponents()
	defer func() {
		if err := c.close(); err != nil {
			logging.Error().Err(err).Msg("Error releasing resources")
		}
	}()

	if err := c.initStore(ctx, &cfg.Store); err != nil {
		return err
	}
	if err := c.initCache(ctx, &cfg.Cache); err != nil {
		return err
	}
	if err := c.initTransport(ctx, &cfg.NATS); err != nil {
		return err
	}
	if err := c.initJobStore(ctx, cfg); err != nil {
		return err
	}

	router, err := eventprocessor.NewRouter(
		&eventprocessor.RouterConfig{CloseTimeout: cfg.Queue.CloseTimeout},
		watermill.NewSlogLogger(logging.NewComponentSlogLogger("router")),
	)
	if err != nil {
		return err
	}
	c.health.RegisterComponent("router", router)

	bus := queue.NewEventBus(eventBusBuffer)
	c.onClose(func() error { bus.Close(); return nil })
	q := queue.New(c.jobs, c.transport.Publisher, c.transport, router, bus, queue.OptionsFromConfig(&cfg.Queue))

	decomposeOpts := decompose.Options{BatchSize: cfg.Reports.BatchSize}
	assembler := pipeline.NewAssembler(c.metrics, c.cache, pipeline.DefaultAssembleConcurrency)
	worker := pipeline.NewWorker(provider.NewHTTPClient(&cfg.Provider), c.metrics, assembler, c.cache, decomposeOpts)
	if err := worker.Register(q, cfg.Queue.PrepareConcurrency, cfg.Queue.FetchConcurrency); err != nil {
		return err
	}

	svc := pipeline.NewService(pipeline.ServiceConfig{
		Registry:     c.registry,
		Cache:        c.cache,
		Dedup:        dedup.NewFilter(c.metrics, cfg.Reports.DedupConcurrency),
		Orchestrator: pipeline.NewOrchestrator(q),
		Assembler:    assembler,
		Status:       pipeline.NewStatusAggregator(q, bus, c.cache, cfg.Reports.StatusResync),
		Decompose:    decomposeOpts,
	})

	handler := api.NewHandler(svc, c.health, cfg.Security.CORSOrigins)
	handler.SetSlowRequestThreshold(cfg.Server.SlowRequestThreshold)
	chiRouter := api.NewRouter(handler, api.NewChiMiddleware(api.ChiMiddlewareConfigFrom(&cfg.Security)))
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           chiRouter.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		// No WriteTimeout: status streams stay open until the report is done.
		IdleTimeout: 2 * cfg.Server.Timeout,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewComponentSlogLogger("supervisor"), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return err
	}
	for role, db := range c.badgerDBs {
		if !cfg.Store.BadgerInMemory {
			tree.AddDataService(services.NewBadgerGCService(role, db, services.DefaultGCInterval))
		}
	}
	tree.AddMessagingService(services.NewRouterService(router))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	err = <-tree.ServeBackground(ctx)
	tree.LogUnstopped()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
