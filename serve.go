package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/database"
	"github.com/ekaya-inc/ekaya-query/pkg/handlers"
	"github.com/ekaya-inc/ekaya-query/pkg/logging"
	"github.com/ekaya-inc/ekaya-query/pkg/mcp"
	"github.com/ekaya-inc/ekaya-query/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-query/pkg/middleware"
)

const shutdownTimeout = 15 * time.Second

var skipMigrations bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and MCP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply migrations at startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("redis", cfg.Redis.Host),
		zap.Bool("mcp", cfg.MCP.Enabled),
	)

	if !skipMigrations {
		if err := migrate(cfg, logger); err != nil {
			return err
		}
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	tenantMiddleware := database.WithTenantContext(a.db, logger)
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, a.engines, logger).RegisterRoutes(mux)
	handlers.NewEngineCacheHandler(a.queries, a.engines, logger).RegisterRoutes(mux)
	handlers.NewDatasourcesHandler(a.datasources, a.queries, a.introspection, cfg.Query.DefaultRowLimit, logger).
		RegisterRoutes(mux, tenantMiddleware)
	handlers.NewFilesHandler(a.files, logger).RegisterRoutes(mux, tenantMiddleware)

	if cfg.MCP.Enabled {
		mcpServer := mcp.NewServer("ekaya-query", cfg.Version, logger)
		tools.RegisterHealthTool(mcpServer.MCP(), cfg.Version, a.engines)
		tools.RegisterDataTools(mcpServer.MCP(), &tools.Deps{
			Datasources:     a.datasources,
			Queries:         a.queries,
			Introspection:   a.introspection,
			TenantContext:   a.tenantContext,
			DefaultRowLimit: cfg.Query.DefaultRowLimit,
			Logger:          logger,
		})
		handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux)
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-query", zap.String("addr", srv.Addr), zap.String("version", cfg.Version))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
