package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"golang.org/x/time/rate"
)

const (
	// DefaultModel is the embedding model served for Chinese legal text.
	DefaultModel = "bge-m3"

	// DefaultDimension is the vector size of bge-m3.
	DefaultDimension = 1024

	// DefaultBatchSize keeps request bodies small for self-hosted embedding servers.
	DefaultBatchSize = 32
)

// Options configures an Embedder.
type Options struct {
	Model     string
	Dimension int
	BatchSize int
	// RequestsPerSecond limits outgoing batch requests. 0 disables limiting.
	RequestsPerSecond float64
}

// Embedder generates embeddings through an OpenAI-compatible endpoint.
// It batches requests and retries with exponential backoff on rate limit errors.
type Embedder struct {
	client    *Client
	model     string
	dimension int
	batchSize int
	limiter   *rate.Limiter
}

var _ Gateway = (*Embedder)(nil)

// NewEmbedder creates an Embedder. Zero option values fall back to the defaults.
func NewEmbedder(client *Client, opts Options) *Embedder {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Dimension <= 0 {
		opts.Dimension = DefaultDimension
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	e := &Embedder{
		client:    client,
		model:     opts.Model,
		dimension: opts.Dimension,
		batchSize: opts.BatchSize,
	}
	if opts.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return e
}

// Dimension returns the configured vector size.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Embed generates embeddings for the given texts.
// Either every batch succeeds and all vectors are returned, or the call fails.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	all := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		batch := texts[i:end]

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		vectors, err := e.embedBatchWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		if err := checkVectors(vectors, len(batch), e.dimension); err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		all = append(all, vectors...)
	}

	return all, nil
}

// embedBatchWithRetry embeds a single batch.
// Retries with exponential backoff on HTTP 429; other errors fail immediately.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	operation := func() error {
		resp, err := e.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		// The API reports each vector's input position; do not trust response order.
		data := resp.Data
		sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

		vectors = make([][]float32, len(data))
		for i, d := range data {
			if int(d.Index) != i {
				return backoff.Permanent(fmt.Errorf("%w: unexpected embedding index %d", ErrUnavailable, d.Index))
			}
			vectors[i] = toFloat32(d.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return vectors, nil
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// The API returns float64 but vectors are stored as float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
