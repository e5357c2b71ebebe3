package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/leafsync/server/internal/config"
	"github.com/leafsync/server/internal/handlers"
	custommw "github.com/leafsync/server/internal/middleware"
	"github.com/leafsync/server/internal/observability"
	"github.com/leafsync/server/internal/repository"
	"github.com/leafsync/server/internal/services"
)

const serviceVersion = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	telemetry, err := observability.Initialize(ctx, observability.NewConfig("leafsync-server", serviceVersion))
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}

	// Guest session store: postgres, sqlite, or in-memory
	var guestRepo repository.GuestSessionRepo
	if cfg.UsePostgres() {
		observability.Info("using PostgreSQL guest session store")
		db, err := repository.NewPostgresDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL database: %v", err)
		}
		defer db.Close()
		guestRepo = repository.NewGuestSessionRepositoryPostgres(db)
	} else if cfg.UseSQLite() {
		observability.Info("using SQLite guest session store")
		db, err := repository.NewSQLiteDB(cfg.DatabasePath)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite database: %v", err)
		}
		defer db.Close()
		guestRepo = repository.NewGuestSessionRepository(db)
	} else {
		observability.Info("using in-memory guest session store (sessions lost on restart)")
		guestRepo = repository.NewMemoryGuestRepository()
	}

	// Local scan persistence
	kvStore, err := services.NewFileKeyValueStore(cfg.CacheDir)
	if err != nil {
		log.Fatalf("Failed to initialize cache store: %v", err)
	}

	// Services
	hub := services.NewEventsHub()
	go hub.Run()

	remote := services.NewHTTPRemoteStore(cfg.Remote.BaseURL, time.Duration(cfg.Remote.TimeoutSeconds)*time.Second)
	scanCache := services.NewScanCacheService(kvStore, remote, hub)

	trackerCfg := services.DefaultGuestTrackerConfig()
	trackerCfg.Limits.MaxScans = cfg.Guest.MaxScans
	trackerCfg.Limits.MaxHistory = cfg.Guest.MaxHistory
	trackerCfg.Limits.MaxFavorites = cfg.Guest.MaxFavorites
	trackerCfg.SessionLifetime = time.Duration(cfg.Guest.SessionLifetimeDays) * 24 * time.Hour
	trackerCfg.CleanupInterval = time.Duration(cfg.Guest.CleanupIntervalMinutes) * time.Minute
	tracker := services.NewGuestTrackerService(guestRepo, trackerCfg)
	tracker.Start()

	// Handlers
	guestHandler := handlers.NewGuestHandler(tracker)
	scanHandler := handlers.NewScanHandler(scanCache)
	healthHandler := handlers.NewHealthHandler()
	wsHandler := handlers.NewWebSocketHandler(hub)

	// Router
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommw.CORS())
	r.Use(observability.TracingMiddleware("leafsync-server"))
	if metrics, err := observability.NewHTTPMetrics(); err == nil {
		r.Use(observability.MetricsMiddleware(metrics))
	} else {
		observability.Warnf("HTTP metrics disabled: %v", err)
	}
	r.Use(custommw.APIKeyAuth(cfg.Security.APIKeyHash, cfg.Security.APIKeyHeader, []string{
		"POST /api/sync",
		"POST /api/connectivity",
		"DELETE /api/scans",
	}))

	r.Get("/health", healthHandler.HealthCheck)
	r.Get("/api/health", healthHandler.HealthCheck)
	r.Get("/ws", wsHandler.Connect)

	r.Route("/api/guest", func(r chi.Router) {
		r.Post("/session", guestHandler.ResolveSession)
		r.Post("/usage", guestHandler.RecordUsage)
	})

	r.Route("/api/scans", func(r chi.Router) {
		r.Post("/", scanHandler.Create)
		r.Get("/history", scanHandler.History)
		r.Delete("/", scanHandler.Clear)
	})

	r.Post("/api/sync", scanHandler.TriggerSync)
	r.Get("/api/sync/status", scanHandler.SyncStatus)
	r.Post("/api/connectivity", scanHandler.SetConnectivity)

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		observability.Infof("LeafSync server starting on %s", cfg.ServerAddress)
		observability.Infof("scan cache dir: %s", cfg.CacheDir)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	observability.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	tracker.Stop()
	hub.Stop()

	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		observability.Errorf("telemetry shutdown: %v", err)
	}

	observability.Info("server stopped")
}
