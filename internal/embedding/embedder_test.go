package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingItem struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// fakeServer serves /embeddings. respond builds the vectors for a request.
func fakeServer(t *testing.T, respond func(req embeddingRequest) ([]embeddingItem, int)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		items, status := respond(req)
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"failure","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   items,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func vectorsFor(req embeddingRequest, dim int) []embeddingItem {
	items := make([]embeddingItem, len(req.Input))
	for i, text := range req.Input {
		v := make([]float64, dim)
		v[0] = float64(len([]rune(text)))
		items[i] = embeddingItem{Object: "embedding", Index: i, Embedding: v}
	}
	return items
}

func newTestEmbedder(t *testing.T, url string, opts Options) *Embedder {
	t.Helper()
	client, err := NewClient(ClientConfig{BaseURL: url})
	require.NoError(t, err)
	return NewEmbedder(client, opts)
}

func TestEmbed_BatchesAndPreservesOrder(t *testing.T) {
	srv, calls := fakeServer(t, func(req embeddingRequest) ([]embeddingItem, int) {
		items := vectorsFor(req, 4)
		// Return the batch reversed; the embedder must reorder by index.
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
		return items, http.StatusOK
	})

	e := newTestEmbedder(t, srv.URL, Options{Model: "bge-m3", Dimension: 4, BatchSize: 2})
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}

	vectors, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vectors[i][0], "vector %d out of order", i)
	}
	assert.Equal(t, int32(3), calls.Load(), "expected three batches of at most two texts")
}

func TestEmbed_WrongDimension(t *testing.T) {
	srv, _ := fakeServer(t, func(req embeddingRequest) ([]embeddingItem, int) {
		return vectorsFor(req, 3), http.StatusOK
	})

	e := newTestEmbedder(t, srv.URL, Options{Dimension: 4})
	vectors, err := e.Embed(context.Background(), []string{"合同"})

	assert.Nil(t, vectors)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestEmbed_WrongCount(t *testing.T) {
	srv, _ := fakeServer(t, func(req embeddingRequest) ([]embeddingItem, int) {
		return vectorsFor(req, 4)[:1], http.StatusOK
	})

	e := newTestEmbedder(t, srv.URL, Options{Dimension: 4})
	vectors, err := e.Embed(context.Background(), []string{"合同", "违约"})

	assert.Nil(t, vectors)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.False(t, errors.Is(err, ErrDimensionMismatch))
}

func TestEmbed_ServerError(t *testing.T) {
	srv, calls := fakeServer(t, func(req embeddingRequest) ([]embeddingItem, int) {
		return nil, http.StatusInternalServerError
	})

	e := newTestEmbedder(t, srv.URL, Options{Dimension: 4})
	_, err := e.Embed(context.Background(), []string{"合同"})

	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, int32(1), calls.Load(), "non-429 errors must not be retried")
}

func TestEmbed_PartialFailureReturnsNothing(t *testing.T) {
	var n atomic.Int32
	srv, _ := fakeServer(t, func(req embeddingRequest) ([]embeddingItem, int) {
		if n.Add(1) == 2 {
			return nil, http.StatusBadGateway
		}
		return vectorsFor(req, 4), http.StatusOK
	})

	e := newTestEmbedder(t, srv.URL, Options{Dimension: 4, BatchSize: 1})
	vectors, err := e.Embed(context.Background(), []string{"a", "b", "c"})

	assert.Nil(t, vectors)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestEmbed_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e := newTestEmbedder(t, url, Options{Dimension: 4})
	_, err := e.Embed(context.Background(), []string{"合同"})
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestNewEmbedder_Defaults(t *testing.T) {
	e := NewEmbedder(&Client{}, Options{})
	assert.Equal(t, DefaultDimension, e.Dimension())
	assert.Equal(t, DefaultBatchSize, e.batchSize)
	assert.Equal(t, DefaultModel, e.model)
	assert.Nil(t, e.limiter)
}

func TestNewClient_RequiresEndpoint(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.Error(t, err)
}

func TestToFloat32(t *testing.T) {
	assert.Equal(t, []float32{0.5, -1, 2}, toFloat32([]float64{0.5, -1, 2}))
}
