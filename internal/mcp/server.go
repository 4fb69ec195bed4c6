package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/statute-rag/internal/retrieval"
	"github.com/bull/statute-rag/internal/storage"
)

// Retriever is the query surface the tools call into.
type Retriever interface {
	Collection() string
	Search(ctx context.Context, q retrieval.SearchQuery) ([]retrieval.Result, error)
	GetContext(ctx context.Context, q retrieval.ContextQuery) (*retrieval.ContextResult, error)
	Stats(ctx context.Context) (*storage.Stats, error)
	Health(ctx context.Context) error
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
	logger *slog.Logger
}

// Config holds server dependencies.
type Config struct {
	Retriever Retriever
	Version   string
	Logger    *slog.Logger
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "statute-rag",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_statutes",
		Description: "Semantic search over indexed Chinese laws and regulations. Returns ranked statute chunks with their source file and similarity score.",
	}, makeSearchHandler(cfg.Retriever, logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_legal_context",
		Description: "Build a numbered statute context block for a case from its facts and evidence chain, ready to paste into a drafting prompt.",
	}, makeContextHandler(cfg.Retriever, logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Report the statute collection name, record count, vector dimension and health.",
	}, makeStatusHandler(cfg.Retriever))

	return &Server{server: server, logger: logger}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting MCP server on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
