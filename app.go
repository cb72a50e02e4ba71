package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/config"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/database"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/email"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/extraction"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/llm"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/logging"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/metrics"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/normalize"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/repositories"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/resolver"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/services"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/vocab"
)

// app holds the wired pipeline shared by every command.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	db    *database.DB
	redis *redis.Client

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	resolver   *resolver.Resolver
	ingestLog  repositories.IngestionLogRepository
	reviews    services.ReviewService
	telemetry  services.TelemetryService
	ingestion  services.IngestionService // nil when no mailbox is configured
	mailboxErr error
}

// newApp connects to the stores, applies migrations and wires the services.
// A missing mailbox configuration is not fatal here; commands that need the
// mailbox check a.ingestion.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if err := database.Migrate(cfg.Database.ConnectionString(), cfg.MigrationsPath, logger); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
		MinConnections: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.db = db
	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database))

	a.redis, err = database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if a.redis != nil {
		logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr()))
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	v := vocab.Default()
	if cfg.VocabularyPath != "" {
		if v, err = vocab.Load(cfg.VocabularyPath); err != nil {
			a.Close()
			return nil, fmt.Errorf("load vocabulary: %w", err)
		}
		logger.Info("Loaded vocabulary", zap.String("path", cfg.VocabularyPath))
	}

	catalogRepo := repositories.NewCatalogRepository(db)
	aliasRepo := repositories.NewAliasRepository(db)
	priceRepo := repositories.NewPriceHistoryRepository(db)
	reviewRepo := repositories.NewReviewRepository(db)
	telemetryRepo := repositories.NewTelemetryRepository(db)
	a.ingestLog = repositories.NewIngestionLogRepository(db)

	resolverCfg := resolver.DefaultConfig()
	resolverCfg.CommitThreshold = cfg.Thresholds.ResolutionCommit
	resolverCfg.FuzzyFloor = cfg.Thresholds.FuzzyFloor
	a.resolver = resolver.New(resolver.Deps{
		Catalog:    catalogRepo,
		Aliases:    aliasRepo,
		Vocabulary: v,
		Config:     resolverCfg,
		Logger:     logger,
	})
	if err := a.resolver.Reload(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("load resolver: %w", err)
	}

	catalog := services.NewCatalogService(catalogRepo, normalize.New(v), logger)
	committer := services.NewCommitter(catalog, priceRepo, a.resolver, a.metrics, logger)
	a.telemetry = services.NewTelemetryService(telemetryRepo, reviewRepo, logger)
	a.reviews = services.NewReviewService(reviewRepo, db, committer, a.resolver, a.telemetry, a.metrics, logger)

	provider, err := email.NewGmailProvider(ctx, &cfg.Gmail, logger)
	if err != nil {
		// Reviews and telemetry stay available without a mailbox.
		a.mailboxErr = err
		logger.Warn("Mailbox unavailable, ingestion disabled", zap.String("error", logging.SanitizeError(err)))
		return a, nil
	}

	client, err := llm.NewFromConfig(&cfg.LLM, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	lock := services.ChainedRunLock{services.NewLocalRunLock()}
	if a.redis != nil {
		lock = append(lock, services.NewRedisRunLock(a.redis, cfg.Redis.LockKey, cfg.Redis.LockTTL, logger))
	}

	a.ingestion = services.NewIngestionService(services.IngestionDeps{
		Provider:   provider,
		Structured: extraction.NewStructuredExtractor(v, cfg.Ingestion.OwnDomains),
		Fallback: extraction.NewFallbackExtractor(extraction.FallbackDeps{
			Client:        client,
			Usage:         llm.NewUsageTracker(llm.PricingFromConfig(&cfg.LLM)),
			Vocabulary:    v,
			MaxInputChars: cfg.LLM.MaxInputChars,
			Logger:        logger,
		}),
		Resolver:  a.resolver,
		Committer: committer,
		Reviews:   a.reviews,
		Telemetry: a.telemetry,
		Log:       a.ingestLog,
		Tx:        db,
		Lock:      lock,
		Metrics:   a.metrics,
		Settings:  services.SettingsFromConfig(cfg),
		Logger:    logger,
	})
	return a, nil
}

// requireIngestion returns the orchestrator or explains why there is none.
func (a *app) requireIngestion() (services.IngestionService, error) {
	if a.ingestion == nil {
		return nil, fmt.Errorf("ingestion is disabled: %w", a.mailboxErr)
	}
	return a.ingestion, nil
}

// Close releases the store connections.
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 30 * time.Second
