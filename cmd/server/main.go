package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shankh-dashboard/internal/client"
	"shankh-dashboard/internal/collection"
	"shankh-dashboard/internal/config"
	"shankh-dashboard/internal/dashboard"
	"shankh-dashboard/internal/engine"
	"shankh-dashboard/internal/instrument"
	"shankh-dashboard/internal/lookup"
	"shankh-dashboard/internal/metadata"
	"shankh-dashboard/internal/storage"
	"shankh-dashboard/internal/store"
	"shankh-dashboard/internal/table"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg.Log.Level)
	slog.Info("Config loaded", "port", cfg.Server.Port, "backend", cfg.Backend.BaseURL)

	// 2. Load entity definitions
	reg := metadata.NewRegistry()
	if cfg.Schema.File != "" {
		err = metadata.LoadFile(cfg.Schema.File, reg)
	} else {
		err = metadata.LoadDefault(reg)
	}
	if err != nil {
		return fmt.Errorf("load entity definitions: %w", err)
	}
	if err := table.CompileRules(reg); err != nil {
		return fmt.Errorf("compile rules: %w", err)
	}
	slog.Info("Entities loaded", "count", len(reg.Names()))

	// 3. Event log
	var tracer instrument.Instrumenter = instrument.Noop{}
	var events *instrument.EventHandler
	if cfg.Events.Enabled {
		db, err := store.New(ctx, cfg.Events)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		defer db.Close()
		if err := db.Bootstrap(ctx); err != nil {
			return fmt.Errorf("bootstrap event log: %w", err)
		}
		buffer := instrument.NewEventBuffer(db, cfg.Events.BufferSize, cfg.Events.FlushIntervalMs)
		defer buffer.Stop()
		tracer = instrument.NewTracer(buffer)
		events = instrument.NewEventHandler(db)
		go instrument.RunCleanup(ctx, db, cfg.Events.RetentionDays, time.Hour)
		slog.Info("Event log ready", "driver", cfg.Events.Driver)
	}

	// 4. Backend client and data layers
	backend := client.New(client.Options{
		BaseURL:   cfg.Backend.BaseURL,
		Timeout:   cfg.Backend.Timeout,
		RateLimit: cfg.Backend.RateLimit,
		Burst:     cfg.Backend.Burst,

		MaxResponseSize: cfg.Backend.MaxResponseSize,
	})
	resolver := lookup.NewResolver(backend, reg, lookup.WithTTL(cfg.Lookup.TTL))
	feed := collection.NewFeed(cfg.Notifications.Capacity)
	collections := collection.NewStore(backend, reg, resolver, feed)
	images := storage.NewImageForwarder(
		storage.NewLocalStorage(cfg.Upload.SpoolPath, cfg.Upload.MaxImageSize),
		backend,
	)

	// 5. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler,
		BodyLimit:    int(cfg.Upload.MaxImageSize) + 1<<20,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(instrument.Middleware(tracer))

	// 6. Health check and metrics
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	if events != nil {
		app.Get("/_events", events.List)
	}

	// 7. Register dashboard routes
	handler := engine.NewHandler(engine.Deps{
		Registry:    reg,
		Lookups:     resolver,
		Collections: collections,
		Dashboard:   dashboard.NewService(backend, reg),
		PDFs:        backend,
		Images:      images,
	})
	engine.RegisterRoutes(app, handler)

	// 8. Warm collections and lookups
	go func() {
		warm := instrument.WithInstrumenter(ctx, tracer)
		if err := collections.FetchAll(warm); err != nil {
			slog.WarnContext(warm, "Initial load incomplete", "err", err)
		}
		resolver.Prefetch(warm, "clients", "client_orders", "lots", "workers")
	}()

	// 9. Start server
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("Starting server", "addr", addr)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}

func setupLogging(level string) {
	ll := &slog.LevelVar{}
	switch strings.ToLower(level) {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		ll.Set(slog.LevelInfo)
	}
	slog.SetDefault(slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})))
}
