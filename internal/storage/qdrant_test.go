//go:build integration

package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStorage connects to a local Qdrant and creates a fresh collection.
// Skips test if Qdrant is not running.
func setupTestStorage(t *testing.T, dimension int) (*QdrantStore, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := NewQdrantStore(ctx, QdrantConfig{Host: "localhost", Port: 6334}, nil)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}

	name := "test_" + uuid.NewString()[:8]
	require.NoError(t, store.CreateCollection(context.Background(), name, dimension, DistanceCosine, false))
	t.Cleanup(func() {
		_ = store.DeleteCollection(context.Background(), name)
		store.Close()
	})
	return store, name
}

func TestQdrantRecordRoundTrip(t *testing.T) {
	store, collection := setupTestStorage(t, 4)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	r := Record{
		ID:     uuid.NewString(),
		Vector: []float32{0.1, 0.2, 0.3, 0.4},
		Payload: Payload{
			Text:        "当事人一方不履行合同义务的，应当承担违约责任。",
			SourceFile:  "民法典.txt",
			Category:    "民法",
			Offset:      450,
			ChunkIndex:  1,
			IndexedAt:   now,
			ContentHash: "abc",
			Title:       "中华人民共和国民法典",
			ChunkCount:  3,
		},
	}
	require.NoError(t, store.Upsert(ctx, collection, []Record{r}))

	got, err := store.Get(ctx, collection, []string{r.ID, uuid.NewString()})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, r.Payload, got[0].Payload)
	assert.Len(t, got[0].Vector, 4)
}

func TestQdrantCollectionConflict(t *testing.T) {
	store, collection := setupTestStorage(t, 4)
	ctx := context.Background()

	assert.NoError(t, store.CreateCollection(ctx, collection, 4, DistanceCosine, false))
	err := store.CreateCollection(ctx, collection, 8, DistanceCosine, false)
	assert.True(t, errors.Is(err, ErrCollectionConflict))

	require.NoError(t, store.CreateCollection(ctx, collection, 8, DistanceDot, true))
	stats, err := store.Stats(ctx, collection)
	require.NoError(t, err)
	assert.Equal(t, 8, stats.Dimension)
	assert.Equal(t, DistanceDot, stats.Distance)
}

func TestQdrantRecreateRefreshesDimension(t *testing.T) {
	store, collection := setupTestStorage(t, 4)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, collection, []Record{{ID: uuid.NewString(), Vector: []float32{1, 0, 0, 0}}}))

	require.NoError(t, store.CreateCollection(ctx, collection, 2, DistanceCosine, true))
	require.NoError(t, store.Upsert(ctx, collection, []Record{{ID: uuid.NewString(), Vector: []float32{1, 0}}}))
	hits, err := store.Search(ctx, collection, SearchRequest{Vector: []float32{1, 0}, TopK: 1})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	_, err = store.Search(ctx, collection, SearchRequest{Vector: []float32{1, 0, 0, 0}, TopK: 1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestQdrantSearchTiesOrderedByID(t *testing.T) {
	store, collection := setupTestStorage(t, 2)
	ctx := context.Background()

	ids := make([]string, 6)
	records := make([]Record, len(ids))
	for i := range ids {
		ids[i] = uuid.NewString()
		records[i] = Record{ID: ids[i], Vector: []float32{1, 0}, Payload: Payload{Text: fmt.Sprint(i)}}
	}
	require.NoError(t, store.Upsert(ctx, collection, records))

	hits, err := store.Search(ctx, collection, SearchRequest{Vector: []float32{1, 0}, TopK: 3})
	require.NoError(t, err)
	require.Len(t, hits, 3)

	sort.Strings(ids)
	assert.Equal(t, ids[:3], []string{hits[0].ID, hits[1].ID, hits[2].ID})
}

func TestQdrantDimensionValidation(t *testing.T) {
	store, collection := setupTestStorage(t, 4)
	ctx := context.Background()

	err := store.Upsert(ctx, collection, []Record{{ID: uuid.NewString(), Vector: []float32{1}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = store.Search(ctx, collection, SearchRequest{Vector: []float32{1}, TopK: 1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestQdrantCollectionNotFound(t *testing.T) {
	store, _ := setupTestStorage(t, 4)
	_, err := store.Stats(context.Background(), "does_not_exist_"+uuid.NewString()[:8])
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestQdrantSearchFilterAndThreshold(t *testing.T) {
	store, collection := setupTestStorage(t, 2)
	ctx := context.Background()

	records := []Record{
		{ID: uuid.NewString(), Vector: []float32{1, 0}, Payload: Payload{Text: "a", SourceFile: "a.txt", Category: "民法"}},
		{ID: uuid.NewString(), Vector: []float32{1, 1}, Payload: Payload{Text: "b", SourceFile: "b.txt", Category: "民法"}},
		{ID: uuid.NewString(), Vector: []float32{0, 1}, Payload: Payload{Text: "c", SourceFile: "c.txt", Category: "刑法"}},
	}
	require.NoError(t, store.Upsert(ctx, collection, records))

	hits, err := store.Search(ctx, collection, SearchRequest{Vector: []float32{1, 0}, TopK: 10, ScoreThreshold: 0.5})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a.txt", hits[0].Payload.SourceFile)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)

	hits, err = store.Search(ctx, collection, SearchRequest{
		Vector: []float32{0, 1},
		TopK:   10,
		Filter: &Filter{Must: []Condition{Eq("category", "民法")}},
	})
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, "民法", h.Payload.Category)
	}
}

func TestQdrantDeleteAndScroll(t *testing.T) {
	store, collection := setupTestStorage(t, 2)
	ctx := context.Background()

	var records []Record
	for i := 0; i < 5; i++ {
		records = append(records, Record{
			ID:      uuid.NewString(),
			Vector:  []float32{1, float32(i)},
			Payload: Payload{Text: fmt.Sprint(i), SourceFile: fmt.Sprintf("f%d.txt", i%2), ChunkIndex: i},
		})
	}
	require.NoError(t, store.Upsert(ctx, collection, records))

	require.NoError(t, store.Delete(ctx, collection, []string{records[0].ID}))
	require.NoError(t, store.DeleteByFilter(ctx, collection, &Filter{Must: []Condition{Eq("source_file", "f1.txt")}}))

	var seen int
	offset := ""
	for {
		page, next, err := store.Scroll(ctx, collection, 1, offset)
		require.NoError(t, err)
		seen += len(page)
		if next == "" {
			break
		}
		offset = next
	}
	assert.Equal(t, 2, seen)
}
