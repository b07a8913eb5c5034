package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource/all"
	"github.com/ekaya-inc/ekaya-query/pkg/apisource"
	"github.com/ekaya-inc/ekaya-query/pkg/config"
	"github.com/ekaya-inc/ekaya-query/pkg/crypto"
	"github.com/ekaya-inc/ekaya-query/pkg/database"
	"github.com/ekaya-inc/ekaya-query/pkg/federation"
	"github.com/ekaya-inc/ekaya-query/pkg/files"
	"github.com/ekaya-inc/ekaya-query/pkg/logging"
	"github.com/ekaya-inc/ekaya-query/pkg/repositories"
	"github.com/ekaya-inc/ekaya-query/pkg/schemacache"
	"github.com/ekaya-inc/ekaya-query/pkg/services"
)

// app holds the wired services shared by the commands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.DB
	redis  *redis.Client

	engines       *datasource.EngineCache
	queries       services.QueryService
	introspection services.IntrospectionService
	datasources   services.DatasourceService
	files         services.FileService
	tenantContext services.TenantContextFunc
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFrom(configPath, Version)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	vault, err := crypto.NewVault(cfg.ProjectCredentialsKey)
	if err != nil {
		return nil, fmt.Errorf("credentials key: %w", err)
	}

	db, err := database.NewConnection(ctx, database.ConfigFrom(&cfg.Database))
	if err != nil {
		return nil, err
	}
	rdb, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		db.Close()
		return nil, err
	}
	if rdb == nil {
		logger.Info("Redis not configured, file schemas are cached in memory only")
	}

	sources := repositories.NewDatasourceRepository()
	assets := repositories.NewFileAssetRepository()

	storage, err := files.NewLocalStore(cfg.Files.StorageRoot, assets)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("file storage: %w", err)
	}

	engines := datasource.NewEngineCache(datasource.EngineCacheConfig{
		TTL:              cfg.Datasource.ConnectionTTL(),
		PoolMaxConns:     cfg.Datasource.PoolMaxConns,
		PoolMaxIdleConns: cfg.Datasource.PoolMaxIdleConns,
	}, vault, logger)

	fed := federation.NewEngine(federation.Config{
		MaxDBTables: cfg.Workspace.MaxDBTables,
		MaxRows:     cfg.Workspace.MaxRows,
		TempDir:     cfg.Workspace.TempDir,
	}, storage, logger)
	schemas := schemacache.New(cfg.SchemaCache.Size, cfg.SchemaCache.TTL(), rdb, fed, logger)
	records := apisource.NewClient(logger)

	queries := services.NewQueryService(sources, vault, engines, fed, records, services.QueryLimits{
		MaxRows:        cfg.Query.MaxRows,
		TimeoutSeconds: cfg.Query.TimeoutSeconds,
	}, logger)

	return &app{
		cfg:           cfg,
		logger:        logger,
		db:            db,
		redis:         rdb,
		engines:       engines,
		queries:       queries,
		introspection: services.NewIntrospectionService(sources, vault, engines, fed, schemas, records, cfg.Introspection.MaxTables, logger),
		datasources:   services.NewDatasourceService(sources, vault, engines, queries, logger),
		files:         services.NewFileService(assets, storage, schemas, services.DefaultMaxUploadBytes, logger),
		tenantContext: services.NewTenantContextFunc(db),
	}, nil
}

func (a *app) Close() {
	if err := a.engines.Close(); err != nil {
		a.logger.Warn("Failed to close engine cache", zap.Error(err))
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.db.Close()
}
