package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bull/statute-rag/internal/retrieval"
	"github.com/bull/statute-rag/internal/storage"
)

// Request defaults applied when a field is absent.
const (
	DefaultTopK           = 5
	DefaultScoreThreshold = 0.0
	DefaultMinScore       = 0.3
)

// Retriever is the query surface the HTTP API serves.
type Retriever interface {
	HealthChecker
	Collection() string
	Search(ctx context.Context, q retrieval.SearchQuery) ([]retrieval.Result, error)
	GetContext(ctx context.Context, q retrieval.ContextQuery) (*retrieval.ContextResult, error)
	Stats(ctx context.Context) (*storage.Stats, error)
}

type handlers struct {
	svc Retriever
}

func (h *handlers) search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, CodeInvalidQuery, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	filter, err := storage.ParseFilter(req.Filter)
	if err != nil {
		writeError(c, err)
		return
	}

	results, err := h.svc.Search(c.Request.Context(), retrieval.SearchQuery{
		Text:           req.Query,
		TopK:           intOr(req.TopK, DefaultTopK),
		ScoreThreshold: floatOr(req.ScoreThreshold, DefaultScoreThreshold),
		Filter:         filter,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := SearchResponse{Results: make([]SearchResult, len(results))}
	for i, r := range results {
		resp.Results[i] = SearchResult{
			ID:         r.ID,
			Text:       r.Text,
			SourceFile: r.SourceFile,
			Category:   r.Category,
			Title:      r.Title,
			Offset:     r.Offset,
			ChunkIndex: r.ChunkIndex,
			Score:      r.Score,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) getContext(c *gin.Context) {
	var req ContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, CodeInvalidQuery, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	filter, err := storage.ParseFilter(req.Filter)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.svc.GetContext(c.Request.Context(), retrieval.ContextQuery{
		CaseFacts:     req.CaseFacts,
		EvidenceChain: req.EvidenceChain,
		TopK:          intOr(req.TopK, DefaultTopK),
		MinScore:      floatOr(req.MinScore, DefaultMinScore),
		Filter:        filter,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := ContextResponse{Context: res.Context, Results: make([]ContextResult, len(res.Results))}
	for i, r := range res.Results {
		resp.Results[i] = ContextResult{
			Text:       r.Text,
			SourceFile: r.SourceFile,
			Category:   r.Category,
			Score:      r.Score,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatsResponse{
		RecordCount:    stats.RecordCount,
		Dimension:      stats.Dimension,
		DistanceMetric: string(stats.Distance),
		CollectionName: stats.Collection,
	})
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
