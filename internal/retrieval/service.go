// Package retrieval answers statute queries against the vector index.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bull/statute-rag/internal/embedding"
	"github.com/bull/statute-rag/internal/storage"
)

// DefaultQueryTimeout bounds one query end to end.
const DefaultQueryTimeout = 30 * time.Second

// Upper bounds on top_k.
const (
	MaxSearchTopK  = 20
	MaxContextTopK = 10
)

// Config configures a Service.
type Config struct {
	Collection   string
	QueryTimeout time.Duration
}

// Service embeds queries and searches one collection. It holds no mutable
// state and is safe for concurrent use.
type Service struct {
	embedder   embedding.Gateway
	store      storage.VectorStore
	collection string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewService creates a retrieval service.
func NewService(embedder embedding.Gateway, store storage.VectorStore, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	return &Service{
		embedder:   embedder,
		store:      store,
		collection: cfg.Collection,
		timeout:    cfg.QueryTimeout,
		logger:     logger,
	}
}

// Collection returns the name of the searched collection.
func (s *Service) Collection() string {
	return s.collection
}

// SearchQuery is a raw similarity query.
type SearchQuery struct {
	Text           string
	TopK           int
	ScoreThreshold float64
	Filter         *storage.Filter
}

// Result is one retrieved chunk.
type Result struct {
	ID         string
	Text       string
	SourceFile string
	Category   string
	Title      string
	Offset     int
	ChunkIndex int
	Score      float64
}

// Search embeds the query text and returns ranked chunks with score >= ScoreThreshold.
func (s *Service) Search(ctx context.Context, q SearchQuery) ([]Result, error) {
	if err := validate(q.Text, q.TopK, MaxSearchTopK); err != nil {
		return nil, err
	}

	hits, err := s.search(ctx, q.Text, storage.SearchRequest{
		TopK:           q.TopK,
		ScoreThreshold: q.ScoreThreshold,
		Filter:         q.Filter,
	})
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = toResult(h)
	}
	return results, nil
}

// Stats returns statistics of the configured collection.
func (s *Service) Stats(ctx context.Context) (*storage.Stats, error) {
	return s.store.Stats(ctx, s.collection)
}

// Health reports whether the store is reachable.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Health(ctx)
}

// Ready checks that the collection exists and that its dimension matches the
// embedder's. A mismatch means every query would fail, so callers treat it as fatal.
func (s *Service) Ready(ctx context.Context) (*storage.Stats, error) {
	stats, err := s.store.Stats(ctx, s.collection)
	if err != nil {
		return nil, err
	}
	if stats.Dimension != s.embedder.Dimension() {
		return stats, fmt.Errorf("%w: collection %s has dimension %d, embedder produces %d",
			storage.ErrDimensionMismatch, s.collection, stats.Dimension, s.embedder.Dimension())
	}
	return stats, nil
}

func validate(text string, topK, maxTopK int) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: query text is empty", ErrInvalidQuery)
	}
	if topK <= 0 || topK > maxTopK {
		return fmt.Errorf("%w: top_k must be between 1 and %d, got %d", ErrInvalidQuery, maxTopK, topK)
	}
	return nil
}

// search embeds text and queries the store under the configured timeout.
func (s *Service) search(ctx context.Context, text string, req storage.SearchRequest) ([]storage.ScoredRecord, error) {
	start := time.Now()
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vectors, err := s.embedder.Embed(tctx, []string{text})
	if err != nil {
		return nil, s.timeoutOr(ctx, tctx, fmt.Errorf("embed query: %w", err))
	}
	req.Vector = vectors[0]

	hits, err := s.store.Search(tctx, s.collection, req)
	if err != nil {
		return nil, s.timeoutOr(ctx, tctx, fmt.Errorf("search %s: %w", s.collection, err))
	}

	s.logger.Debug("search complete", "collection", s.collection, "hits", len(hits), "duration", time.Since(start))
	return hits, nil
}

// timeoutOr reports ErrRetrievalTimeout when the query deadline, not the
// caller, ended the request.
func (s *Service) timeoutOr(parent, tctx context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		s.logger.Warn("query timed out", "timeout", s.timeout, "error", err)
		return fmt.Errorf("%w after %s", ErrRetrievalTimeout, s.timeout)
	}
	return err
}

func toResult(h storage.ScoredRecord) Result {
	return Result{
		ID:         h.ID,
		Text:       h.Payload.Text,
		SourceFile: h.Payload.SourceFile,
		Category:   h.Payload.Category,
		Title:      h.Payload.Title,
		Offset:     h.Payload.Offset,
		ChunkIndex: h.Payload.ChunkIndex,
		Score:      h.Score,
	}
}
