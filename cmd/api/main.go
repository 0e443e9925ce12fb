package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ccssmnn/alkalye-sub002/internal/app"
	"github.com/ccssmnn/alkalye-sub002/internal/archive"
	"github.com/ccssmnn/alkalye-sub002/internal/assets"
	"github.com/ccssmnn/alkalye-sub002/internal/authpw"
	"github.com/ccssmnn/alkalye-sub002/internal/config"
	"github.com/ccssmnn/alkalye-sub002/internal/email"
	"github.com/ccssmnn/alkalye-sub002/internal/logger"
	"github.com/ccssmnn/alkalye-sub002/internal/realtime"
	"github.com/ccssmnn/alkalye-sub002/internal/search"
	"github.com/ccssmnn/alkalye-sub002/internal/session"
	"github.com/ccssmnn/alkalye-sub002/internal/store"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Debug)
	defer func() { _ = log.Sync() }()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
		log.Fatal("create archive dir", zap.Error(err))
	}

	dataStore := store.NewPostgresStore(db)
	archiveService := archive.New(cfg.ArchiveDir)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts, log)
	if meiliClient != nil {
		// Rebuild the index from Postgres so restarts do not serve stale hits.
		go searchService.ReindexAllFromPG(ctx)
	}

	// Refresh sessions live in Redis when available, in Postgres otherwise.
	var sessions interface {
		SaveRefreshSession(ctx context.Context, tokenHash string, account store.Account, expiresAt time.Time) error
		LookupRefreshSession(ctx context.Context, tokenHash string) (store.Account, error)
		RevokeRefreshSession(ctx context.Context, tokenHash string) error
		RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
		IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	} = dataStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatal("redis connection failed", zap.Error(err))
		}
		defer func() { _ = redisStore.Close() }()
		sessions = redisStore
		log.Info("using redis for refresh sessions")
	} else {
		log.Info("using postgres for refresh sessions")
	}

	deps := app.Deps{
		Store:    dataStore,
		Sessions: sessions,
		AuthPW:   authpw.NewService(dataStore),
		Archive:  archiveService,
		Search:   searchService,
		Email: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}),
		Log: log,
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		assetService, err := assets.NewService(ctx, assets.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatal("object store connection failed", zap.Error(err))
		}
		deps.Assets = assetService
	} else {
		log.Info("no object store configured, asset endpoints disabled")
	}

	service := app.New(cfg, deps)

	hub := realtime.NewHub(db, log)
	go hub.Run()
	go hub.SaveWorker()

	httpServer := app.NewHTTPServer(service, hub, cfg.CORSOrigin, log)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("alkalye api listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}
}
