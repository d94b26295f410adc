package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facesessions/internal/api"
	"github.com/your-org/facesessions/internal/api/handlers"
	"github.com/your-org/facesessions/internal/api/ws"
	"github.com/your-org/facesessions/internal/config"
	"github.com/your-org/facesessions/internal/faceenc"
	"github.com/your-org/facesessions/internal/observability"
	"github.com/your-org/facesessions/internal/queue"
	"github.com/your-org/facesessions/internal/session"
	"github.com/your-org/facesessions/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	gin.SetMode(gin.ReleaseMode)

	slog.Info("starting face sessions API", "port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		slog.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	checks := map[string]handlers.Pinger{"postgres": db}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	opts := session.Options{
		MaxConcurrency: cfg.FaceEncoding.MaxConcurrency,
		Notifiers:      []session.Notifier{hub},
	}

	// Optional MinIO archive of uploaded originals
	if cfg.MinIO.Enabled {
		minioStore, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		opts.Archiver = minioStore
		checks["minio"] = minioStore
	}

	// Optional NATS session events
	if cfg.NATS.Enabled {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
		opts.Notifiers = append(opts.Notifiers, producer)
		checks["nats"] = producer
	}

	encoder := faceenc.NewClient(cfg.FaceEncoding.Endpoint, cfg.FaceEncoding.Timeout)
	svc := session.NewService(db, encoder, opts)

	router := api.NewRouter(api.RouterConfig{
		Sessions: svc,
		Limits: handlers.UploadLimits{
			MaxFiles:    cfg.Uploads.MaxFiles,
			MaxFileSize: cfg.Uploads.MaxFileSizeBytes,
		},
		Hub:    hub,
		Checks: checks,
	})

	// Encoding calls run inside the request, so the write deadline covers them.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.FaceEncoding.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	cancel()

	slog.Info("API server stopped")
}
