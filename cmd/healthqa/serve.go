package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/healthqa/internal/config"
	httpapi "github.com/fyrsmithlabs/healthqa/internal/http"
	"github.com/fyrsmithlabs/healthqa/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, configPath)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP tools over stdio",
	Long: `Serve the health_ask and grading_levels MCP tools on stdin/stdout.

Logs go to stderr so stdout carries only protocol traffic.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runMCP(ctx, configPath)
	},
}

// runServe starts the HTTP server and blocks until ctx is cancelled:
//  1. Loads and validates configuration
//  2. Initializes logger, telemetry and infrastructure
//  3. Wires the dialogue services
//  4. Serves HTTP and shuts down gracefully on cancellation
func runServe(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg.Observability, false)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	zl := logger.Underlying()

	zl.Info("starting healthqa",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.String("session_backend", cfg.Session.Backend))

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		deps.Close(shutdownCtx)
	}()

	svc, err := initServices(ctx, cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	srv, err := httpapi.NewServer(svc.orchestrator, svc.grader, zl.Named("http"), &httpapi.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		Version:     version,
	}, httpapi.WithKnowledgeBase(deps.kb.store), httpapi.WithTelemetry(deps.telemetry))
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	zl.Info("server shutdown complete")
	return nil
}

// runMCP serves MCP on stdio until stdin closes or ctx is cancelled.
func runMCP(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg.Observability, true)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	zl := logger.Underlying()

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		deps.Close(shutdownCtx)
	}()

	svc, err := initServices(ctx, cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	srv, err := mcp.NewServer(&mcp.Config{
		Name:    "healthqa",
		Version: version,
		Logger:  zl.Named("mcp"),
	}, svc.orchestrator, svc.grader)
	if err != nil {
		return fmt.Errorf("failed to create mcp server: %w", err)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
