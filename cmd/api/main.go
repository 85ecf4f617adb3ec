package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nexcrm/builder/internal/app"
	"nexcrm/builder/internal/assets"
	"nexcrm/builder/internal/config"
	"nexcrm/builder/internal/draft"
	"nexcrm/builder/internal/export"
	"nexcrm/builder/internal/gitrepo"
	"nexcrm/builder/internal/logging"
	"nexcrm/builder/internal/search"
	"nexcrm/builder/internal/store"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg)
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("failed to create repos dir")
	}

	deps := app.Deps{
		Pages:    store.NewSQLStore(db),
		Versions: gitrepo.New(cfg.ReposDir),
		Exporter: export.NewService(),
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		drafts, err := draft.NewRedisStore(cfg.RedisURL, cfg.DraftTTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer drafts.Close()
		deps.Drafts = drafts
		logger.Info().Dur("ttl", cfg.DraftTTL).Msg("autosaving drafts to redis")
	} else {
		logger.Warn().Msg("REDIS_URL empty, drafts are not autosaved")
	}

	pgfts := search.NewPgFTS(db, store.Driver(cfg.DatabaseURL))
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts, logger)
	if meiliClient != nil {
		go searchService.ReindexAllFromDB(ctx)
	}
	deps.Search = searchService

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		assetStore, err := assets.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			logger.Fatal().Err(err).Msg("minio client failed")
		}
		bucketCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err = assetStore.EnsureBucket(bucketCtx)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("bucket", cfg.MinioBucket).Msg("asset bucket unavailable")
		}
		deps.Assets = assetStore
	}

	service := app.New(cfg, deps, logger)
	defer service.Close()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("page builder API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}
