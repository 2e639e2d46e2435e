// Package app wires the ledger, gateway and services from configuration. It
// is shared by the API server and the operator CLI so both reconcile through
// the same code path.
package app

import (
	"context"
	"fmt"

	"kart-reconciler/internal/archive"
	"kart-reconciler/internal/auth"
	"kart-reconciler/internal/config"
	"kart-reconciler/internal/database"
	"kart-reconciler/internal/gateway"
	"kart-reconciler/internal/messaging"
	"kart-reconciler/internal/repository"
	"kart-reconciler/internal/service"
	"kart-reconciler/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// App holds the wired services and the resources they own.
type App struct {
	Pool      *pgxpool.Pool
	Tokens    *auth.TokenManager
	Intake    service.IntakeService
	Reconcile service.ReconcileService
	Query     service.QueryService

	producer *messaging.Producer
	logger   zerolog.Logger
}

// New connects to the database and builds every service. metrics may be nil.
func New(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics, logger zerolog.Logger) (*App, error) {
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize repositories
	orderRepo := repository.NewOrderRepository(pool, logger)
	paymentRepo := repository.NewPaymentRepository(pool, logger)
	cartRepo := repository.NewCartRepository(pool, logger)

	gatewayClient := gateway.NewClient(gateway.Options{
		BaseURL:         cfg.Gateway.BaseURL,
		APIKey:          cfg.Gateway.PrivateAPIKey,
		Timeout:         cfg.Gateway.Timeout,
		MaxRetry:        cfg.Gateway.MaxRetry,
		DefaultCurrency: cfg.Reconcile.DefaultCurrency,
	}, metrics, logger)

	archiver := newArchiver(ctx, cfg, logger)

	a := &App{
		Pool:   pool,
		Tokens: auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		logger: logger,
	}

	var publisher service.EventPublisher = messaging.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		a.producer = messaging.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		publisher = a.producer
		logger.Info().
			Strs("brokers", cfg.Kafka.Brokers).
			Str("topic", cfg.Kafka.Topic).
			Msg("publishing order events to kafka")
	} else {
		logger.Info().Msg("kafka brokers not configured, order events disabled")
	}

	// Initialize services
	a.Intake = service.NewIntakeService(orderRepo, paymentRepo, cfg.Intake.PersistStub, cfg.Reconcile.DefaultCurrency, logger)
	a.Reconcile = service.NewReconcileService(
		orderRepo,
		paymentRepo,
		cartRepo,
		gatewayClient,
		archiver,
		publisher,
		metrics,
		cfg.Reconcile.AmountTolerance,
		logger,
	)
	a.Query = service.NewQueryService(orderRepo, paymentRepo, cfg.Frontend.PlaceholderImage, logger)

	return a, nil
}

// newArchiver builds the gateway response archive with S3 and local fallback.
func newArchiver(ctx context.Context, cfg *config.Config, logger zerolog.Logger) archive.Archiver {
	if !cfg.Archive.Enabled {
		logger.Info().Msg("gateway response archive disabled")
		return archive.NopArchiver{}
	}

	fileStore := archive.NewFileStore(cfg.Archive.LocalDir, logger)

	var s3Store archive.Store
	if cfg.S3.Enabled {
		store, err := archive.NewS3Store(ctx, cfg.S3.Bucket, cfg.S3.Region, logger)
		if err != nil {
			logger.Warn().
				Err(err).
				Msg("failed to initialise S3 archive store, falling back to local file system only")
		} else {
			s3Store = store
		}
	} else {
		logger.Info().Str("dir", cfg.Archive.LocalDir).Msg("archiving gateway responses locally (S3 disabled)")
	}

	store := archive.NewFallbackStore(s3Store, fileStore, cfg.S3.Prefix, cfg.S3.Enabled, logger)
	return archive.NewArchiver(store, logger)
}

// Close releases the producer and the database pool.
func (a *App) Close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error().Err(err).Msg("failed to close kafka producer")
		}
	}
	a.Pool.Close()
}
