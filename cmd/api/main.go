package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"qartha/api/internal/app"
	"qartha/api/internal/assets"
	"qartha/api/internal/authpw"
	"qartha/api/internal/config"
	"qartha/api/internal/export"
	"qartha/api/internal/media"
	"qartha/api/internal/search"
	"qartha/api/internal/session"
	"qartha/api/internal/store"
	"qartha/api/internal/tenant"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	// Media backend: local disk served by this process, or S3-compatible
	// object storage behind its own URL.
	var blobs assets.BlobStore
	staticDir := ""
	switch cfg.MediaBackend {
	case "s3":
		s3, err := assets.NewS3Store(ctx, assets.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			log.Fatalf("s3 connection failed: %v", err)
		}
		blobs = s3
		log.Printf("Using S3 media storage at %s/%s", cfg.S3Endpoint, cfg.S3Bucket)
	default:
		if err := os.MkdirAll(cfg.StaticDir, 0o755); err != nil {
			log.Fatalf("failed to create static dir: %v", err)
		}
		blobs = assets.NewFSStore(cfg.StaticDir)
		staticDir = cfg.StaticDir
		log.Printf("Using filesystem media storage at %s", cfg.StaticDir)
	}

	var sessions session.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		sessions = redisStore
		log.Printf("Using Redis session storage")
	} else {
		sessions = session.NewMemoryStore()
		log.Printf("Using in-memory session storage")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewPgSearch(db))

	service := app.NewService(
		dataStore,
		tenant.NewResolver(cfg.AllowedClusters),
		assets.NewService(blobs, cfg.StaticMount),
		media.NewProjector(cfg.PublicBaseURL, cfg.StaticMount),
		sessions,
		authpw.NewService(dataStore),
		searchService,
		export.NewService(),
		cfg,
	)
	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, cfg.StaticMount, staticDir)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Qartha API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
