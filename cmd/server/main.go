// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/greeting/internal/api"
	"github.com/tomtom215/greeting/internal/config"
	"github.com/tomtom215/greeting/internal/counter"
	"github.com/tomtom215/greeting/internal/logging"
	"github.com/tomtom215/greeting/internal/profile"
	"github.com/tomtom215/greeting/internal/render"
	"github.com/tomtom215/greeting/internal/sanitize"
	"github.com/tomtom215/greeting/internal/storage"
	"github.com/tomtom215/greeting/internal/supervisor"
	"github.com/tomtom215/greeting/internal/supervisor/services"
	"github.com/tomtom215/greeting/internal/tasks"
	"github.com/tomtom215/greeting/internal/upstream"
	"github.com/tomtom215/greeting/internal/writebehind"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(cfg.LoggingSettings())

	configPath := config.FindConfigFile()
	logging.Info().
		Str("config_file", configPath).
		Strs("listen", cfg.Server.Listen).
		Str("storage", cfg.Storage.Driver).
		Int("max_counters", cfg.Counter.MaxCounters).
		Msg("Starting Greeting")

	ts := tasks.New()

	auth, err := cfg.NewAuthorizer()
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid access configuration")
	}
	if cfg.Counter.AccessKey == "" {
		logging.Warn().Msg("No access key configured, only allow-listed origins can create counters")
	}

	queue := writebehind.New(cfg.QueueConfig())
	store := counter.NewStore(cfg.CounterStoreConfig(), auth, queue, ts)
	store.EnsureAll(cfg.Counter.UserIDs)

	sanitizer := sanitize.New(cfg.Render.NoteCacheSize)

	upstreamCfg := cfg.UpstreamConfig()
	upstreamCfg.BioFilter = sanitizer.Clean
	client := upstream.NewClient(upstreamCfg)
	profiles := profile.NewCache(cfg.CacheConfig(), client, ts)

	renderer, err := render.New(render.Config{
		Timezone: cfg.Render.Timezone,
		Title:    cfg.Render.Title,
	}, sanitizer)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize renderer")
	}

	loader := services.NewSinkLoaderService(func(ctx context.Context) (storage.Sink, error) {
		return storage.Open(ctx, cfg.SinkConfig())
	}, store, queue, cfg.Storage.OpenTimeout)

	router := api.NewRouter(api.Deps{
		Store:     store,
		Profiles:  profiles,
		Renderer:  renderer,
		Readiness: loader,
		Middleware: &api.ChiMiddlewareConfig{
			CORSAllowedOrigins: cfg.Server.CORSOrigins,
			CORSMaxAge:         api.DefaultChiMiddlewareConfig().CORSMaxAge,
			RateLimitRequests:  cfg.Server.RateLimitReqs,
			RateLimitWindow:    cfg.Server.RateLimitWindow,
			RateLimitDisabled:  cfg.Server.RateLimitDisabled,
		},
	})
	handler := router.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: cfg.Supervisor.FailureThreshold,
		FailureDecay:     cfg.Supervisor.FailureDecay,
		FailureBackoff:   cfg.Supervisor.FailureBackoff,
		ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddDataService(loader)
	tree.AddDataService(queue)
	tree.AddCacheService(profiles)

	for _, addr := range cfg.Server.Listen {
		server := &http.Server{
			Handler:           handler,
			ReadTimeout:       cfg.Server.ReadTimeout,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			IdleTimeout:       cfg.Server.IdleTimeout,
		}
		// Listeners bind only after the persisted counters are loaded, so
		// no visit lands on a counter that BulkLoad is about to overwrite.
		httpSvc := services.NewHTTPServerService(server, addr, cfg.Server.ShutdownTimeout)
		tree.AddAPIService(services.NewGatedService(loader.Loaded(), httpSvc))
	}

	if configPath != "" {
		if err := config.WatchAuthorizer(configPath, auth); err != nil {
			logging.Warn().Err(err).Str("path", configPath).Msg("Config watch unavailable, access settings need a restart to change")
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
		cancel()
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	shutdown(cfg, ts, queue, store)
	logging.Info().Msg("Greeting stopped")
}

// shutdown waits for background tasks, then writes every counter to the
// sink and closes it. It runs after the tree has stopped, so no request can
// change a counter any more.
func shutdown(cfg *config.Config, ts *tasks.Supervisor, queue *writebehind.Queue, store *counter.Store) {
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Supervisor.DrainTimeout)
	defer cancel()
	if err := ts.Drain(drainCtx); err != nil {
		logging.Warn().Err(err).Int64("running", ts.Running()).Msg("Background tasks did not finish in time")
	}

	switch {
	case queue.Ready():
		flushCtx, cancelFlush := context.WithTimeout(context.Background(), cfg.Supervisor.DrainTimeout)
		defer cancelFlush()
		if err := queue.Flush(flushCtx, store.SnapshotAll()); err != nil {
			logging.Error().Err(err).Msg("Failed to flush counters to sink")
		}
	case cfg.Storage.Driver != storage.DriverNone:
		logging.Warn().Int("counters", store.Len()).Msg("Sink not attached, counters were not persisted")
	}

	if err := queue.Close(); err != nil {
		logging.Error().Err(err).Msg("Failed to close sink")
	}
}
