package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/docuflow-inc/docuflow-engine/pkg/cache"
	"github.com/docuflow-inc/docuflow-engine/pkg/config"
	"github.com/docuflow-inc/docuflow-engine/pkg/database"
	"github.com/docuflow-inc/docuflow-engine/pkg/handlers"
	"github.com/docuflow-inc/docuflow-engine/pkg/logging"
	"github.com/docuflow-inc/docuflow-engine/pkg/repositories"
	"github.com/docuflow-inc/docuflow-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Invalid routing thresholds fail here, before any document is routed.
	tuning, err := config.NewTuningStore(cfg.TuningPath, logger)
	if err != nil {
		logger.Fatal("Failed to load engine tuning", zap.Error(err))
	}

	ctx := context.Background()
	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, cfg.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = sqlDB.Close()

	ruleSetCache := buildRuleSetCache(cfg, tuning, logger)

	configRepo := repositories.NewMappingConfigRepository(db)
	accuracyRepo := repositories.NewAccuracyRepository(db)

	resolver := services.NewRuleResolver(configRepo, ruleSetCache, tuning, logger)
	executor := services.NewTransformExecutor(logger)
	mapper := services.NewFieldMappingEngine(executor, logger)
	calculator := services.NewConfidenceCalculator(tuning, logger)
	processor := services.NewDocumentProcessor(resolver, mapper, calculator, accuracyRepo, logger)

	// SIGHUP reloads weights, bonus tables, thresholds and TTLs in place.
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			_ = tuning.Reload()
		}
	}()

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewProcessHandler(processor, logger).RegisterRoutes(mux)

	logger.Info("Starting docuflow-engine",
		zap.String("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env))
	if err := http.ListenAndServe(cfg.BindAddr+":"+cfg.Port, mux); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

// buildRuleSetCache prefers the shared Redis cache when Redis is configured,
// falling back to the in-process cache.
func buildRuleSetCache(cfg *config.Config, tuning *config.TuningStore, logger *zap.Logger) cache.RuleSetCache {
	ttl := tuning.Current().CacheTTL()

	client, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, using in-process rule set cache", zap.Error(err))
		return cache.NewMemoryCache(ttl)
	}
	if client == nil {
		return cache.NewMemoryCache(ttl)
	}
	logger.Info("Using Redis rule set cache", zap.String("host", cfg.Redis.Host))
	return cache.NewRedisCache(client, ttl, logger)
}
