package main

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/statute-rag/internal/embedding"
	"github.com/bull/statute-rag/internal/retrieval"
	"github.com/bull/statute-rag/internal/storage"
)

func newService(t *testing.T, collectionDim, embedderDim int) *retrieval.Service {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	if collectionDim > 0 {
		require.NoError(t, store.CreateCollection(context.Background(), "law_knowledge", collectionDim, storage.DistanceCosine, false))
	}
	return retrieval.NewService(embedding.NewHashEmbedder(embedderDim), store, retrieval.Config{Collection: "law_knowledge"}, nil)
}

func TestCheckCollection(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	assert.NoError(t, checkCollection(context.Background(), newService(t, 64, 64), logger))
	assert.Contains(t, buf.String(), "collection ready")

	buf.Reset()
	assert.NoError(t, checkCollection(context.Background(), newService(t, 0, 64), logger))
	assert.Contains(t, buf.String(), "collection not ready")

	err := checkCollection(context.Background(), newService(t, 1024, 64), logger)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}
