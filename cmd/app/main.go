package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brandconfig/internal/api/v1/router"
	"brandconfig/internal/config"
	"brandconfig/internal/logger"
	"brandconfig/internal/middleware"
	"brandconfig/internal/orchestrator/cleanup"
	"brandconfig/internal/pgmq"
	"brandconfig/internal/pubsub"
	"brandconfig/internal/repository"
	"brandconfig/internal/repository/memstore"
	"brandconfig/internal/service"
	"brandconfig/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// @title Brandconfig API
// @version 1.0
// @description Versioned per-brand configuration store
// @host localhost:8080
// @BasePath /
// @Schemes http https

type stores struct {
	brands   repository.BrandRepository
	versions repository.VersionStore
	subs     repository.SubscriptionRepository
	tokens   repository.TokenRepository
	apiKeys  repository.APIKeyRepository
	pool     *pgxpool.Pool
	db       *sql.DB
}

func (s *stores) Close() {
	if s.db != nil {
		s.db.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn().Msg("Using in-memory store; data is lost on restart")
		m := memstore.New()
		return &stores{brands: m.Brands(), versions: m.Versions(), subs: m.Subscriptions(), tokens: m.Tokens(), apiKeys: m.APIKeys()}, nil
	}

	pool, err := repository.OpenPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := repository.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info().Msg("Database schema applied")
	}
	db, err := repository.OpenDB(cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info().Msg("Database connection established")
	return &stores{
		brands:   repository.NewBrandRepo(pool),
		versions: repository.NewVersionStore(pool, logger),
		subs:     repository.NewSubscriptionRepo(pool),
		tokens:   repository.NewTokenRepo(db),
		apiKeys:  repository.NewAPIKeyRepo(db),
		pool:     pool,
		db:       db,
	}, nil
}

// buildNotifier assembles the activation sinks and the snapshot store enabled
// by cfg. The returned close func releases publisher connections.
func buildNotifier(ctx context.Context, cfg *config.Config, st *stores, logger zerolog.Logger) (service.ActivationNotifier, service.SnapshotStore, func(), error) {
	var sinks service.MultiNotifier
	closeFn := func() {}

	switch cfg.EventsBackend {
	case "pubsub":
		pub, err := pubsub.NewPublisher(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn = func() { _ = pub.Close() }
		sinks = append(sinks, service.NewEventNotifier(pub, cfg.PubSubActivationTopic, "pubsub", logger))
	case "pgmq":
		client := pgmq.New(st.db)
		if err := client.CreateQueue(ctx, cfg.PgmqActivationQueue); err != nil {
			return nil, nil, nil, err
		}
		sinks = append(sinks, service.NewEventNotifier(client, cfg.PgmqActivationQueue, "pgmq", logger))
	}

	var snapshots service.SnapshotStore
	if cfg.SnapshotBucket != "" {
		s3Client, err := storage.NewS3Client(ctx, cfg)
		if err != nil {
			closeFn()
			return nil, nil, nil, err
		}
		snapshots = service.NewSnapshotNotifier(s3Client, cfg.SnapshotBucket, logger)
	}

	if len(sinks) == 0 {
		return nil, snapshots, closeFn, nil
	}
	return sinks, snapshots, closeFn, nil
}

func main() {
	logger := logger.New()

	// 1. Load configuration
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.HasSecretRefs() {
		sm, err := service.NewSecretManager(ctx, cfg)
		if err != nil {
			logger.Fatal().Msgf("Failed to create Secret Manager client: %v", err)
		}
		if err := cfg.ResolveSecrets(ctx, sm); err != nil {
			logger.Fatal().Msgf("Failed to resolve secrets: %v", err)
		}
		_ = sm.Close()
	}

	// 2. Storage and services
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Msgf("Failed to open store: %v", err)
	}
	defer st.Close()

	var portal service.BillingPortal
	if cfg.StripeSecretKey != "" {
		portal = service.NewStripePortal(cfg)
	}
	subs := service.NewSubscriptionService(st.subs, portal, logger)
	limits := service.NewLimitEnforcer(subs, st.brands, st.versions, logger)
	resolver := service.NewActiveVersionResolver(st.versions)

	var stripeSvc *service.StripeService
	if cfg.StripeWebhookSecret != "" {
		stripeSvc = service.NewStripeService(cfg, subs, logger)
	}

	notifier, snapshots, closeNotifier, err := buildNotifier(ctx, cfg, st, logger)
	if err != nil {
		logger.Fatal().Msgf("Failed to set up activation notifier: %v", err)
	}
	defer closeNotifier()

	gateway := service.NewConfigGateway(st.brands, st.versions, resolver, limits, notifier, snapshots, logger)

	// 3. Router
	deps := router.Deps{
		Gateway:       gateway,
		Subscriptions: subs,
		Limits:        limits,
		Stripe:        stripeSvc,
		Tokens:        st.tokens,
		APIKeys:       st.apiKeys,
		Limiter:       middleware.NewMemoryLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst),
	}
	if st.pool != nil {
		deps.Ready = func(r *http.Request) error { return st.pool.Ping(r.Context()) }
	}
	r := router.New(cfg, deps, logger)

	go func() {
		interval := time.Duration(cfg.CleanupIntervalSec) * time.Second
		if err := cleanup.Run(ctx, logger, st.tokens, st.apiKeys, interval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Cleanup sweep stopped")
		}
	}()

	// 4. Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Msgf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Msgf("Listen: %s", err)
		}
	}()

	// 5. Graceful shutdown
	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received, exiting...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Msgf("Server forced to shutdown: %v", err)
	}
	logger.Info().Msg("Server shut down gracefully")
}
