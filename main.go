package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/adapters/datasource"
	_ "github.com/indaba-ai/indaba-engine/pkg/adapters/datasource/mysql"
	_ "github.com/indaba-ai/indaba-engine/pkg/adapters/datasource/oracle"
	_ "github.com/indaba-ai/indaba-engine/pkg/adapters/datasource/postgres"
	_ "github.com/indaba-ai/indaba-engine/pkg/adapters/datasource/sqlite"
	"github.com/indaba-ai/indaba-engine/pkg/auth"
	"github.com/indaba-ai/indaba-engine/pkg/config"
	"github.com/indaba-ai/indaba-engine/pkg/handlers"
	"github.com/indaba-ai/indaba-engine/pkg/llm"
	"github.com/indaba-ai/indaba-engine/pkg/logging"
	"github.com/indaba-ai/indaba-engine/pkg/mcp"
	"github.com/indaba-ai/indaba-engine/pkg/mcp/tools"
	"github.com/indaba-ai/indaba-engine/pkg/middleware"
	"github.com/indaba-ai/indaba-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("engine exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.Bool("rag_enabled", cfg.RAG.Enabled),
		zap.Bool("mcp_enabled", cfg.MCP.Enabled))

	pools := datasource.NewPoolManager(datasource.PoolManagerConfig{
		IdleTTL:       time.Duration(cfg.Pools.IdleTTLMinutes) * time.Minute,
		SweepInterval: time.Duration(cfg.Pools.SweepIntervalMinutes) * time.Minute,
		AdapterOpts: datasource.Options{
			SnapshotTTL: time.Duration(cfg.Cache.SchemaCacheTTLSeconds) * time.Second,
			MaxConns:    cfg.Pools.MaxConns,
			MinConns:    cfg.Pools.MinConns,
			Logger:      logger,
		},
	}, logger)
	defer pools.CloseAll()

	sessions := services.NewSessionRegistry(services.SessionRegistryConfig{
		IdleTTL:       time.Duration(cfg.Sessions.IdleTTLMinutes) * time.Minute,
		SweepInterval: time.Duration(cfg.Sessions.SweepIntervalMinutes) * time.Minute,
	}, logger)
	defer sessions.Stop()

	client, err := llm.NewFromConfig(cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	capability := llm.NewCapability(client, logger)

	var historyStore *services.HistoryStore
	if cfg.RAG.Enabled {
		historyStore = services.NewHistoryStore(client, logger,
			services.WithTopK(cfg.RAG.TopK),
			services.WithSimilarityThreshold(cfg.RAG.SimilarityThreshold),
			services.WithEmbeddingModel(cfg.RAG.EmbeddingModel))
	}

	ontologies := services.NewOntologyRegistry()
	graph := services.NewInsightGraph(logger)

	// The graph is always fed (ontology generation and schema capture ingest
	// into it); include_in_context controls whether it contributes hints.
	hintsGraph := graph
	if !cfg.Graph.IncludeInContext {
		hintsGraph = nil
	}
	hints := services.NewHintsProvider(ontologies, hintsGraph, historyStore, logger)

	schemas := services.NewSchemaService(pools, sessions, logger)
	builder := services.NewContextBuilder(cfg.LLM, logger)
	analyzer := services.NewErrorAnalyzer(logger)
	agent := services.NewSQLAgent(capability, builder, analyzer, hints, historyStore, pools, schemas, logger)
	orchestrator := services.NewQueryOrchestrator(agent, sessions,
		time.Duration(cfg.General.QueryTimeoutSeconds)*time.Second, logger,
		services.WithDefaultMaxRetries(cfg.General.MaxRetryAttempts))

	var cookies *auth.BrowserSessions
	if cfg.Auth.CookieSecret != "" {
		settings := auth.DeriveCookieSettings(cfg.Auth.BaseURL, cfg.Auth.CookieDomain)
		cookies = auth.NewBrowserSessions(cfg.Auth.CookieSecret, settings,
			cfg.Sessions.IdleTTLMinutes*60)
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewConnectHandler(sessions, pools, schemas, cookies, logger).RegisterRoutes(mux)
	handlers.NewQueryHandler(orchestrator, cookies, logger).RegisterRoutes(mux)

	if cfg.Ontology.Enabled && cfg.Ontology.DynamicGeneration.Enabled {
		ontologySvc := services.NewOntologyService(capability, ontologies, graph,
			cfg.Ontology.DynamicGeneration.ExportDir, logger,
			services.WithExportFormat(cfg.Ontology.DynamicGeneration.ExportFormat))
		handlers.NewOntologyHandler(sessions, schemas, ontologySvc, logger).RegisterRoutes(mux)
	}

	if cfg.MCP.Enabled {
		mcpServer := mcp.NewServer("indaba-engine", cfg.Version, logger)
		deps := &tools.ToolDeps{
			Sessions:     sessions,
			Schemas:      schemas,
			Orchestrator: orchestrator,
			Logger:       logger,
		}
		tools.RegisterHealthTool(mcpServer.MCP(), cfg.Version)
		tools.RegisterAskTool(mcpServer.MCP(), deps)
		tools.RegisterSchemaTools(mcpServer.MCP(), deps)
		mux.Handle("/mcp", mcpServer.NewStreamableHTTPServer())
	}

	var handler http.Handler = mux
	if cfg.Auth.EnableVerification {
		validator, err := auth.NewJWKSClient(&auth.JWKSConfig{
			EnableVerification: true,
			Endpoints:          cfg.Auth.JWKSEndpoints,
		})
		if err != nil {
			return fmt.Errorf("failed to create JWKS client: %w", err)
		}
		defer validator.Close()
		handler = auth.NewMiddleware(validator, logger).Wrap(handler)
	}
	handler = middleware.RequestLogger(logger)(handler)

	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("engine listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
