// Package api exposes the retrieval service over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Options configures the router.
type Options struct {
	Logger *slog.Logger
	// MCPHandler, when set, is mounted at /mcp.
	MCPHandler http.Handler
}

// NewRouter builds the gin engine serving svc.
func NewRouter(svc Retriever, opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	h := &handlers{svc: svc}
	r.GET("/", landingHandler(svc.Collection(), opts.MCPHandler != nil))
	r.GET("/health", healthHandler(svc))
	r.GET("/stats", h.stats)
	r.POST("/search", h.search)
	r.POST("/get_context", h.getContext)

	if opts.MCPHandler != nil {
		mcp := gin.WrapH(opts.MCPHandler)
		r.GET("/mcp", mcp)
		r.POST("/mcp", mcp)
		r.DELETE("/mcp", mcp)
	}

	r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "no route for "+c.Request.URL.Path)
	})
	return r
}

// Serve runs handler on port until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, port int, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
