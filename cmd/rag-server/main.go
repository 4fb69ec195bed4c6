// Package main runs the statute retrieval HTTP service and its MCP endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/bull/statute-rag/internal/api"
	"github.com/bull/statute-rag/internal/config"
	mcpserver "github.com/bull/statute-rag/internal/mcp"
	"github.com/bull/statute-rag/internal/retrieval"
	"github.com/bull/statute-rag/internal/storage"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Configuration comes from .env, CONFIG_FILE and the environment.
	cfg, err := config.Load("")
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// In stdio mode stdout carries the MCP protocol, so logs go to stderr.
	logger := config.NewLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// checkCollection fails when the collection's dimension differs from the
// embedder's. A missing collection is only logged: /stats reports it until
// ingestion runs.
func checkCollection(ctx context.Context, svc *retrieval.Service, logger *slog.Logger) error {
	stats, err := svc.Ready(ctx)
	switch {
	case errors.Is(err, storage.ErrCollectionNotFound):
		logger.Warn("collection not ready", "collection", svc.Collection(), "error", err)
		return nil
	case err != nil:
		return fmt.Errorf("check collection: %w", err)
	}
	logger.Info("collection ready", "collection", stats.Collection, "records", stats.RecordCount, "dimension", stats.Dimension)
	return nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := cfg.OpenStore(ctx, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	embedder, err := cfg.NewEmbedder()
	if err != nil {
		return err
	}

	svc := retrieval.NewService(embedder, store, retrieval.Config{
		Collection:   cfg.Collection,
		QueryTimeout: cfg.QueryTimeout,
	}, logger)

	if err := checkCollection(ctx, svc, logger); err != nil {
		return err
	}

	server := mcpserver.NewServer(&mcpserver.Config{
		Retriever: svc,
		Version:   version,
		Logger:    logger,
	})

	if cfg.Server.MCPStdio {
		return server.Run(ctx)
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(svc, api.Options{
		Logger:     logger,
		MCPHandler: mcpserver.NewHTTPHandler(server, nil),
	})
	return api.Serve(ctx, cfg.Server.Port, router, logger)
}
