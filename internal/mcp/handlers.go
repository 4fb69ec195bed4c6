package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/statute-rag/internal/retrieval"
	"github.com/bull/statute-rag/internal/storage"
)

const (
	defaultTopK     = 5
	defaultMinScore = 0.3
)

// filterOf builds an exact-match filter from the optional tool arguments.
func filterOf(category, sourceFile string) *storage.Filter {
	var f storage.Filter
	if category != "" {
		f.Must = append(f.Must, storage.Eq("category", category))
	}
	if sourceFile != "" {
		f.Must = append(f.Must, storage.Eq("source_file", sourceFile))
	}
	if f.Empty() {
		return nil
	}
	return &f
}

func toChunks(results []retrieval.Result) []StatuteChunk {
	out := make([]StatuteChunk, len(results))
	for i, r := range results {
		out[i] = StatuteChunk{
			ID:         r.ID,
			Text:       r.Text,
			SourceFile: r.SourceFile,
			Category:   r.Category,
			Title:      r.Title,
			Score:      r.Score,
		}
	}
	return out
}

// makeSearchHandler creates the search_statutes tool handler.
func makeSearchHandler(svc Retriever, logger *slog.Logger) func(
	context.Context, *mcp.CallToolRequest, SearchStatutesInput,
) (*mcp.CallToolResult, SearchStatutesOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchStatutesInput) (
		*mcp.CallToolResult, SearchStatutesOutput, error,
	) {
		topK := input.TopK
		if topK <= 0 {
			topK = defaultTopK
		}

		results, err := svc.Search(ctx, retrieval.SearchQuery{
			Text:           input.Query,
			TopK:           topK,
			ScoreThreshold: input.ScoreThreshold,
			Filter:         filterOf(input.Category, input.SourceFile),
		})
		if err != nil {
			logger.Warn("search_statutes failed", "error", err)
			return nil, SearchStatutesOutput{}, fmt.Errorf("search failed: %w", err)
		}

		if len(results) == 0 {
			return nil, SearchStatutesOutput{
				Results: []StatuteChunk{},
				Message: "No matching statutes found. Try broader search terms or a lower score_threshold.",
			}, nil
		}
		return nil, SearchStatutesOutput{Results: toChunks(results)}, nil
	}
}

// makeContextHandler creates the get_legal_context tool handler.
func makeContextHandler(svc Retriever, logger *slog.Logger) func(
	context.Context, *mcp.CallToolRequest, GetLegalContextInput,
) (*mcp.CallToolResult, GetLegalContextOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetLegalContextInput) (
		*mcp.CallToolResult, GetLegalContextOutput, error,
	) {
		topK := input.TopK
		if topK <= 0 {
			topK = defaultTopK
		}
		// An explicit zero keeps every hit; only an absent min_score takes the default.
		minScore := defaultMinScore
		if input.MinScore != nil {
			minScore = *input.MinScore
		}

		res, err := svc.GetContext(ctx, retrieval.ContextQuery{
			CaseFacts:     input.CaseFacts,
			EvidenceChain: input.EvidenceChain,
			TopK:          topK,
			MinScore:      minScore,
			Filter:        filterOf(input.Category, ""),
		})
		if err != nil {
			logger.Warn("get_legal_context failed", "error", err)
			return nil, GetLegalContextOutput{}, fmt.Errorf("context retrieval failed: %w", err)
		}

		return nil, GetLegalContextOutput{Context: res.Context, Results: toChunks(res.Results)}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
// An unreachable store is reported in the output rather than as a tool error.
func makeStatusHandler(svc Retriever) func(
	context.Context, *mcp.CallToolRequest, IndexStatusInput,
) (*mcp.CallToolResult, IndexStatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IndexStatusInput) (
		*mcp.CallToolResult, IndexStatusOutput, error,
	) {
		out := IndexStatusOutput{Collection: svc.Collection()}
		if err := svc.Health(ctx); err != nil {
			out.Message = fmt.Sprintf("store unavailable: %v", err)
			return nil, out, nil
		}
		out.Healthy = true

		stats, err := svc.Stats(ctx)
		if err != nil {
			out.Message = fmt.Sprintf("collection unavailable: %v", err)
			return nil, out, nil
		}
		out.RecordCount = stats.RecordCount
		out.Dimension = stats.Dimension
		out.DistanceMetric = string(stats.Distance)
		return nil, out, nil
	}
}
