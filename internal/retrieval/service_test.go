package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/statute-rag/internal/embedding"
	"github.com/bull/statute-rag/internal/storage"
)

const testCollection = "law_knowledge"

// fixedEmbedder returns the same vector for every text.
type fixedEmbedder struct {
	vector []float32
	err    error
	last   string
}

func (f *fixedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.last = texts[0]
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fixedEmbedder) Dimension() int { return len(f.vector) }

// slowEmbedder blocks until the context ends.
type slowEmbedder struct{}

func (slowEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowEmbedder) Dimension() int { return 2 }

func newStore(t *testing.T, dimension int, records ...storage.Record) *storage.BoltStore {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, testCollection, dimension, storage.DistanceCosine, false))
	require.NoError(t, store.Upsert(ctx, testCollection, records))
	return store
}

func rec(id, sourceFile string, offset int, text string, vector ...float32) storage.Record {
	return storage.Record{
		ID:      id,
		Vector:  vector,
		Payload: storage.Payload{Text: text, SourceFile: sourceFile, Offset: offset},
	}
}

func TestSearch_Validation(t *testing.T) {
	svc := NewService(&fixedEmbedder{vector: []float32{1, 0}}, newStore(t, 2), Config{Collection: testCollection}, nil)

	_, err := svc.Search(context.Background(), SearchQuery{Text: "  \n", TopK: 5})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = svc.Search(context.Background(), SearchQuery{Text: "合同", TopK: 0})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = svc.GetContext(context.Background(), ContextQuery{CaseFacts: "", TopK: 5})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestTopKBounds(t *testing.T) {
	store := newStore(t, 2, rec("a", "a.txt", 0, "违约责任", 1, 0))
	svc := NewService(&fixedEmbedder{vector: []float32{1, 0}}, store, Config{Collection: testCollection}, nil)
	ctx := context.Background()

	_, err := svc.GetContext(ctx, ContextQuery{CaseFacts: "事实", TopK: 1 << 62})
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = svc.GetContext(ctx, ContextQuery{CaseFacts: "事实", TopK: MaxContextTopK + 1})
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = svc.Search(ctx, SearchQuery{Text: "合同", TopK: MaxSearchTopK + 1})
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = svc.Search(ctx, SearchQuery{Text: "合同", TopK: -1})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	results, err := svc.Search(ctx, SearchQuery{Text: "合同", TopK: MaxSearchTopK})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	res, err := svc.GetContext(ctx, ContextQuery{CaseFacts: "事实", TopK: MaxContextTopK})
	require.NoError(t, err)
	assert.Len(t, res.Results, 1)
}

func TestReady(t *testing.T) {
	ctx := context.Background()

	svc := NewService(&fixedEmbedder{vector: []float32{1, 0}}, newStore(t, 2), Config{Collection: testCollection}, nil)
	stats, err := svc.Ready(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Dimension)

	svc = NewService(&fixedEmbedder{vector: []float32{1, 0, 0}}, newStore(t, 2), Config{Collection: testCollection}, nil)
	_, err = svc.Ready(ctx)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	svc = NewService(&fixedEmbedder{vector: []float32{1, 0}}, newStore(t, 2), Config{Collection: "missing"}, nil)
	_, err = svc.Ready(ctx)
	assert.ErrorIs(t, err, storage.ErrCollectionNotFound)
}

func TestSearch_RankedResults(t *testing.T) {
	store := newStore(t, 2,
		rec("a", "a.txt", 0, "exact", 1, 0),
		rec("b", "b.txt", 0, "diagonal", 1, 1),
		rec("c", "c.txt", 0, "orthogonal", 0, 1),
	)
	svc := NewService(&fixedEmbedder{vector: []float32{1, 0}}, store, Config{Collection: testCollection}, nil)

	results, err := svc.Search(context.Background(), SearchQuery{Text: "合同", TopK: 5, ScoreThreshold: 0.5})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a.txt", results[0].SourceFile)
	assert.Equal(t, "b.txt", results[1].SourceFile)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearch_CollaboratorErrorsPropagate(t *testing.T) {
	svc := NewService(&fixedEmbedder{err: embedding.ErrUnavailable}, newStore(t, 2), Config{Collection: testCollection}, nil)
	_, err := svc.Search(context.Background(), SearchQuery{Text: "合同", TopK: 5})
	assert.ErrorIs(t, err, embedding.ErrUnavailable)

	svc = NewService(&fixedEmbedder{vector: []float32{1, 0}}, newStore(t, 2), Config{Collection: "missing"}, nil)
	_, err = svc.Search(context.Background(), SearchQuery{Text: "合同", TopK: 5})
	assert.ErrorIs(t, err, storage.ErrCollectionNotFound)
}

func TestSearch_Timeout(t *testing.T) {
	svc := NewService(slowEmbedder{}, newStore(t, 2), Config{Collection: testCollection, QueryTimeout: 10 * time.Millisecond}, nil)

	_, err := svc.Search(context.Background(), SearchQuery{Text: "合同", TopK: 5})
	assert.True(t, errors.Is(err, ErrRetrievalTimeout), "got %v", err)
}

func TestSearch_CallerCancellation(t *testing.T) {
	svc := NewService(slowEmbedder{}, newStore(t, 2), Config{Collection: testCollection, QueryTimeout: time.Minute}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Search(ctx, SearchQuery{Text: "合同", TopK: 5})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrRetrievalTimeout))
}

func TestGetContext_DedupAndRender(t *testing.T) {
	store := newStore(t, 2,
		rec("1", "民法典.txt", 0, strings.Repeat("甲", 500), 1, 0),
		rec("2", "民法典.txt", 450, strings.Repeat("乙", 500), 1, 0.1),
		rec("3", "合同法.txt", 0, "第一百零七条", 1, 0.2),
		rec("4", "民法典.txt", 2000, "第五百七十七条", 1, 0.3),
	)
	emb := &fixedEmbedder{vector: []float32{1, 0}}
	svc := NewService(emb, store, Config{Collection: testCollection}, nil)

	res, err := svc.GetContext(context.Background(), ContextQuery{CaseFacts: "原告要求被告赔偿", EvidenceChain: "借条一份", TopK: 5})
	require.NoError(t, err)

	require.Len(t, res.Results, 3)
	assert.Equal(t, "1", res.Results[0].ID)
	assert.Equal(t, "3", res.Results[1].ID)
	assert.Equal(t, "4", res.Results[2].ID)
	for i := 1; i < len(res.Results); i++ {
		assert.GreaterOrEqual(t, res.Results[i-1].Score, res.Results[i].Score)
	}

	assert.True(t, strings.HasPrefix(res.Context, ContextHeader+"\n\n1. "))
	assert.Contains(t, res.Context, "   (来源: 合同法.txt, 相关度: 0.981)")
	assert.Contains(t, res.Context, "\n3. 第五百七十七条\n")
	assert.Equal(t, "原告要求被告赔偿\n\n【证据链】\n借条一份", emb.last)
}

func TestGetContext_TopKAfterDedup(t *testing.T) {
	store := newStore(t, 2,
		rec("1", "a.txt", 0, strings.Repeat("甲", 10), 1, 0),
		rec("2", "a.txt", 5, strings.Repeat("乙", 10), 1, 0.05),
		rec("3", "b.txt", 0, "丙", 1, 0.1),
		rec("4", "c.txt", 0, "丁", 1, 0.2),
	)
	svc := NewService(&fixedEmbedder{vector: []float32{1, 0}}, store, Config{Collection: testCollection}, nil)

	res, err := svc.GetContext(context.Background(), ContextQuery{CaseFacts: "事实", TopK: 2})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, []string{"1", "3"}, []string{res.Results[0].ID, res.Results[1].ID})
}

func TestGetContext_NoResults(t *testing.T) {
	store := newStore(t, 2, rec("1", "a.txt", 0, "无关", 0, 1))
	svc := NewService(&fixedEmbedder{vector: []float32{1, 0}}, store, Config{Collection: testCollection}, nil)

	res, err := svc.GetContext(context.Background(), ContextQuery{CaseFacts: "事实", TopK: 5, MinScore: 0.3})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Equal(t, NoResultsMarker, res.Context)
}

func TestGetContext_HashEmbedderScenario(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir(), nil)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	emb := embedding.NewHashEmbedder(1024)
	require.NoError(t, store.CreateCollection(ctx, testCollection, emb.Dimension(), storage.DistanceCosine, false))

	texts := []string{
		"违约责任：当事人一方不履行合同义务的，应当承担合同违约的赔偿责任。",
		"婚姻自由，一夫一妻，男女平等。",
	}
	vectors, err := emb.Embed(ctx, texts)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, testCollection, []storage.Record{
		{ID: "contract", Vector: vectors[0], Payload: storage.Payload{Text: texts[0], SourceFile: "民法典.txt"}},
		{ID: "marriage", Vector: vectors[1], Payload: storage.Payload{Text: texts[1], SourceFile: "婚姻法.txt", Offset: 0}},
	}))

	svc := NewService(emb, store, Config{Collection: testCollection}, nil)
	res, err := svc.GetContext(ctx, ContextQuery{CaseFacts: "合同违约的赔偿责任", TopK: 5, MinScore: 0.3})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, "民法典.txt", res.Results[0].SourceFile)
	assert.Contains(t, res.Context, "来源: 民法典.txt")
}

func TestBuildContextQuery(t *testing.T) {
	assert.Equal(t, "事实", BuildContextQuery(" 事实 ", "  "))
	assert.Equal(t, "事实\n\n【证据链】\n证据", BuildContextQuery("事实", "证据"))
}

func TestRenderContext(t *testing.T) {
	got := RenderContext([]Result{
		{Text: "第一条", SourceFile: "a.txt", Score: 0.9},
		{Text: "第二条", SourceFile: "b.txt", Score: 0.12345},
	})
	want := "【相关法律法规】\n" +
		"\n1. 第一条\n   (来源: a.txt, 相关度: 0.900)\n" +
		"\n2. 第二条\n   (来源: b.txt, 相关度: 0.123)\n"
	assert.Equal(t, want, got)
}
