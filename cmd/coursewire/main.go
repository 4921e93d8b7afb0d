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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coursewire/coursewire/internal/config"
	"github.com/coursewire/coursewire/internal/database"
	"github.com/coursewire/coursewire/internal/handlers"
	"github.com/coursewire/coursewire/internal/metrics"
	"github.com/coursewire/coursewire/internal/middleware"
	"github.com/coursewire/coursewire/internal/models"
	"github.com/coursewire/coursewire/internal/storage"
	"github.com/coursewire/coursewire/internal/storage/filesystem"
	"github.com/coursewire/coursewire/internal/storage/s3"
	"github.com/coursewire/coursewire/internal/utils"
)

func main() {
	createToken := flag.String("create-access-token", "", "create an access token for the given subject, print it, and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	db, err := openDatabase(cfg)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if *createToken != "" {
		if err := issueAccessToken(db, *createToken); err != nil {
			slog.Error("failed to create access token", "error", err)
			os.Exit(1)
		}
		return
	}

	slog.Info("starting coursewire",
		"port", cfg.Port,
		"db_driver", cfg.DBDriver,
		"storage_backend", cfg.StorageBackend,
		"max_file_size", cfg.MaxFileSize,
		"default_chunk_size", cfg.DefaultChunkSize,
	)

	backend, err := openStorage(cfg)
	if err != nil {
		slog.Error("failed to initialize storage backend", "error", err)
		os.Exit(1)
	}

	startTime := time.Now()

	mux := http.NewServeMux()

	// authenticated API
	auth := middleware.BearerAuth(db)
	mux.Handle("/api/storage/chunk-upload/initiate", auth(handlers.InitiateUploadHandler(db, cfg)))
	mux.Handle("/api/storage/chunk-upload", auth(handlers.UploadChunkHandler(db, cfg, backend)))
	mux.Handle("/api/storage/chunk-upload/status/", auth(handlers.UploadStatusHandler(db)))
	mux.Handle("/api/storage/chunk-upload/cancel/", auth(handlers.UploadCancelHandler(db, backend)))
	mux.Handle("/api/video-progress/", auth(handlers.VideoProgressHandler(db)))
	mux.Handle("/api/lessons/", auth(handlers.LessonCompleteHandler(db)))
	mux.Handle("/api/videos/", auth(handlers.ManifestHandler(backend)))

	// unauthenticated probes
	mux.HandleFunc("/api/healthz", handlers.HealthHandler(db, startTime))
	mux.Handle("/metrics", promhttp.Handler())

	handler := middleware.RecoveryMiddleware(
		middleware.LoggingMiddleware(
			metrics.Middleware(mux),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Minute, // large chunked uploads on slow links
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go utils.StartCleanupWorker(ctx, db, backend, cfg.CleanupIntervalMinutes)

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "address", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		slog.Error("server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		slog.Info("shutdown signal received", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
			server.Close()
		}
		slog.Info("server stopped")
	}
}

// openDatabase opens the configured database driver.
func openDatabase(cfg *config.Config) (*database.DB, error) {
	switch cfg.DBDriver {
	case "postgres":
		return database.Open("postgres", cfg.DatabaseURL)
	default:
		return database.Open("sqlite", cfg.DBPath)
	}
}

// openStorage builds the configured storage backend.
func openStorage(cfg *config.Config) (storage.Backend, error) {
	switch cfg.StorageBackend {
	case "s3":
		return s3.New(context.Background(), s3.Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PathStyle:       cfg.S3PathStyle,
		})
	default:
		return filesystem.New(cfg.MediaDir)
	}
}

// issueAccessToken mints a bearer token for a subject and prints it once.
// The token is shown only here; the database keeps its hash.
func issueAccessToken(db *database.DB, subject string) error {
	token, displayPrefix, err := utils.GenerateAccessToken()
	if err != nil {
		return err
	}

	if err := database.CreateAccessToken(db, &models.AccessToken{
		Subject:   subject,
		TokenHash: utils.HashAccessToken(token),
		Prefix:    displayPrefix,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	fmt.Printf("Access token for %s (store it now, it is not shown again):\n%s\n", subject, token)
	return nil
}

// slogLevel maps the configured log level string to a slog.Level.
func slogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
