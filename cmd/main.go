package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UnknownOlympus/strider/internal/autopilot"
	"github.com/UnknownOlympus/strider/internal/config"
	"github.com/UnknownOlympus/strider/internal/controller"
	"github.com/UnknownOlympus/strider/internal/geocoding"
	"github.com/UnknownOlympus/strider/internal/geolocation"
	"github.com/UnknownOlympus/strider/internal/mapview"
	"github.com/UnknownOlympus/strider/internal/metrics"
	"github.com/UnknownOlympus/strider/internal/movement"
	"github.com/UnknownOlympus/strider/internal/repository"
	"github.com/UnknownOlympus/strider/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Constants for different environment types.
const (
	envLocal = "local"
	envDev   = "development"
	envProd  = "production"
)

const shutdownTimeout = 5 * time.Second

// main is the entry point of the application.
func main() {
	// Create a context that will be canceled when an interrupt signal is received.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load application configuration.
	cfg := config.MustLoad()

	// Set up the logger based on the environment.
	logger := setupLogger(cfg.Env)

	// Create a separate registry for metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(reg)

	// The track store is optional; without it the walk statistics stay in memory.
	var (
		dtb  *pgxpool.Pool
		repo repository.Interface
	)
	if cfg.Database.Enabled() {
		pool, err := repository.NewDatabase(
			ctx, cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password, cfg.Database.Name,
		)
		if err != nil {
			log.Fatalf("Failed to connect to DB: %v", err)
		}
		defer pool.Close()

		store := repository.NewRepository(pool, logger)
		if err = store.Migrate(ctx); err != nil {
			log.Fatalf("Failed to migrate DB: %v", err)
		}
		dtb, repo = pool, store
	}
	tracker := service.NewTracker(logger, repo, appMetrics, cfg.Tracker.QueueSize)

	// Hand destinations to the external autopilot when one is reachable over NATS.
	var pilot autopilot.Autopilot = autopilot.NewLogAutopilot(logger)
	if cfg.NATS.URL != "" {
		natsPilot, nc, err := autopilot.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			log.Fatalf("Failed to connect to autopilot: %v", err)
		}
		defer func() { _ = nc.Drain() }()
		pilot = natsPilot
	}

	var search geocoding.Provider
	if cfg.Provider.Type != "none" {
		provider, err := geocoding.NewProvider(geocoding.ProviderConfig{
			Type:      geocoding.ProviderType(cfg.Provider.Type),
			APIKey:    cfg.Provider.APIKey,
			RateLimit: cfg.Provider.RateLimit,
			Language:  cfg.Provider.Language,
			Logger:    logger,
		})
		if err != nil {
			log.Fatalf("Failed to create geocoding provider: %v", err)
		}
		search = provider
		logger.InfoContext(ctx, "Geocoding provider initialized", "type", cfg.Provider.Type)
	}

	// The hub and the controller reference each other: the hub publishes for the controller
	// and forwards client messages to it.
	hub := mapview.NewHub(logger, appMetrics)
	ctrl := controller.New(controller.Options{
		Log:       logger,
		Metrics:   appMetrics,
		Engine:    movement.NewEngine(nil),
		Autopilot: pilot,
		Publisher: hub,
		Notifier:  hub,
		Device:    geolocation.NewDeviceLocator(cfg.Device.Fix()),
		Fallback: geolocation.NewIPLocator(
			cfg.Geolocation.IPURL, cfg.Geolocation.Timeout, cfg.Geolocation.RateLimit, logger,
		),
		Search:          search,
		Tracker:         tracker,
		SpeedLimit:      cfg.SpeedLimit,
		ClearAfterRoute: cfg.Waypoints.ClearAfterRoute,
	})
	hub.SetController(ctrl)

	go hub.Run(ctx)
	go ctrl.Run(ctx)
	go tracker.Run(ctx)
	ctrl.Bootstrap(ctx)

	// Log that the application has started.
	logger.InfoContext(ctx, "Application started. Press Ctrl+C to stop.")

	server := newServer(ctx, logger, reg, dtb, hub, tracker, cfg.Port)
	go func() {
		logger.InfoContext(ctx, "Starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "Server failed", "error", err)
			stop()
		}
	}()

	// Wait for the context to be canceled (e.g., by Ctrl+C).
	<-ctx.Done()

	// Log that a shutdown signal has been received.
	logger.InfoContext(ctx, "Shutdown signal received. Stopping application...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.ErrorContext(shutdownCtx, "Server shutdown failed", "error", err)
	}

	// Log graceful shutdown completion.
	logger.InfoContext(shutdownCtx, "Application stopped gracefully.")
}

// newServer builds the HTTP server with the WebSocket, track, health check and metrics endpoints.
//
// Parameters:
// - ctx: A context.Context for managing cancellation and timeouts.
// - log: A logger for logging server events and errors.
// - reg: A registry with Prometheus collectors.
// - dtb: A pgxpool connector for database methods (ping), nil when no track store is configured.
// - hub: The map view hub serving /ws.
// - tracker: The tracker serving /track.
// - port: The port number on which the server will listen.
func newServer(
	ctx context.Context,
	log *slog.Logger,
	reg *prometheus.Registry,
	dtb *pgxpool.Pool,
	hub *mapview.Hub,
	tracker *service.Tracker,
	port int,
) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(writer http.ResponseWriter, _ *http.Request) {
		log.DebugContext(ctx, "Performing health checks...")
		status, body := http.StatusOK, "OK"
		if dtb != nil {
			if err := dtb.Ping(ctx); err != nil {
				status, body = http.StatusServiceUnavailable, "DB ping failed"
			}
		}
		writer.WriteHeader(status)
		_, err := writer.Write([]byte(body))
		if err != nil {
			log.ErrorContext(ctx, "failed to write reply", "error", err)
		}

		log.DebugContext(ctx, "Health checks completed", "status", status)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.Handle("/track", mapview.TrackHandler(tracker, log))

	// No WriteTimeout: it would cut long-lived WebSocket connections.
	readTimeout := 5
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: time.Duration(readTimeout) * time.Second,
	}
}

// setupLogger initializes and returns a logger based on the environment provided.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelDebug,
				AddSource: true,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					return a
				},
			}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelInfo,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					return a
				},
			}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelWarn,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{}
					}
					return a
				},
			}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelError,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{}
					}
					return a
				},
			}),
		)

		log.Error(
			"The env parameter was not specified	 or was invalid. Logging will be minimal, by default.",
			slog.String("available_envs", "local, development, production"))
	}

	return log
}
