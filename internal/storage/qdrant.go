package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// QdrantConfig holds connection settings for a Qdrant server.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
}

// QdrantStore implements VectorStore on a Qdrant server over gRPC.
// Collections use a single unnamed dense vector.
type QdrantStore struct {
	client *qdrant.Client
	logger *slog.Logger

	// dims caches collection dimensions for the write and query paths.
	mu   sync.RWMutex
	dims map[string]int
}

var _ VectorStore = (*QdrantStore)(nil)

// indexedFields get payload indexes so filtered search stays fast.
var indexedFields = map[string]qdrant.FieldType{
	"source_file":  qdrant.FieldType_FieldTypeKeyword,
	"category":     qdrant.FieldType_FieldTypeKeyword,
	"content_hash": qdrant.FieldType_FieldTypeKeyword,
	"chunk_index":  qdrant.FieldType_FieldTypeInteger,
}

// NewQdrantStore creates a Qdrant client with health validation.
// It retries the health check with backoff on startup and fails fast if Qdrant is unreachable.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig, logger *slog.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create qdrant client: %v", ErrStoreUnavailable, err)
	}

	s := &QdrantStore{client: client, logger: logger, dims: make(map[string]int)}

	if err := s.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s:%d: %v", ErrStoreUnavailable, cfg.Host, cfg.Port, err)
	}

	logger.Info("connected to qdrant", "host", cfg.Host, "port", cfg.Port)
	return s, nil
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantStore) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error { return s.Health(ctx) }, backoff.WithContext(b, ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("%w: health check: %v", ErrStoreUnavailable, err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("%w: health check returned invalid response", ErrStoreUnavailable)
	}
	return nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// classify maps gRPC status codes onto the storage error taxonomy.
func classify(err error, op, collection string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %s: %v", ErrCollectionNotFound, collection, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s %s: %v", ErrStoreUnavailable, op, collection, err)
	case codes.InvalidArgument:
		return fmt.Errorf("%s %s: %w", op, collection, err)
	default:
		return fmt.Errorf("%w: %s %s: %v", ErrStoreUnavailable, op, collection, err)
	}
}

func toQdrantDistance(d Distance) (qdrant.Distance, error) {
	switch d {
	case DistanceCosine:
		return qdrant.Distance_Cosine, nil
	case DistanceDot:
		return qdrant.Distance_Dot, nil
	default:
		return 0, fmt.Errorf("unsupported distance metric %q", d)
	}
}

func fromQdrantDistance(d qdrant.Distance) Distance {
	switch d {
	case qdrant.Distance_Dot:
		return DistanceDot
	case qdrant.Distance_Cosine:
		return DistanceCosine
	default:
		return Distance(d.String())
	}
}

// CreateCollection creates the collection with payload indexes, or verifies the existing one.
func (s *QdrantStore) CreateCollection(ctx context.Context, name string, dimension int, distance Distance, force bool) error {
	if name == "" {
		return errors.New("collection name is required")
	}
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	qd, err := toQdrantDistance(distance)
	if err != nil {
		return err
	}

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return classify(err, "check collection", name)
	}
	defer s.forget(name)

	if exists {
		stats, err := s.Stats(ctx, name)
		if err != nil {
			return err
		}
		same := stats.Dimension == dimension && stats.Distance == distance
		switch {
		case same && !force:
			return nil
		case !force:
			return fmt.Errorf("%w: %s has dimension %d and distance %s, requested %d and %s",
				ErrCollectionConflict, name, stats.Dimension, stats.Distance, dimension, distance)
		}
		if err := s.client.DeleteCollection(ctx, name); err != nil {
			return classify(err, "drop collection", name)
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qd,
		}),
	})
	if err != nil {
		return classify(err, "create collection", name)
	}

	if err := s.createPayloadIndexes(ctx, name); err != nil {
		return err
	}

	s.logger.Info("created collection", "collection", name, "dimension", dimension, "distance", distance, "recreated", exists)
	return nil
}

func (s *QdrantStore) createPayloadIndexes(ctx context.Context, collection string) error {
	for field, fieldType := range indexedFields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: collection,
			FieldName:      field,
			FieldType:      fieldType.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return classify(err, "create index "+field, collection)
		}
	}
	return nil
}

// DeleteCollection drops a collection.
func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return classify(err, "check collection", name)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	s.forget(name)
	return classify(s.client.DeleteCollection(ctx, name), "drop collection", name)
}

// ListCollections returns all collection names.
func (s *QdrantStore) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, classify(err, "list collections", "")
	}
	return names, nil
}

// upsertBatchSize bounds the gRPC message size per upsert call.
const upsertBatchSize = 100

// Upsert writes records in batches of 100 and waits for them to be applied.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return err
	}
	for _, r := range records {
		if len(r.Vector) != dim {
			return fmt.Errorf("%w: record %s has %d dimensions, expected %d",
				ErrDimensionMismatch, r.ID, len(r.Vector), dim)
		}
	}

	for i := 0; i < len(records); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(records))

		points := make([]*qdrant.PointStruct, 0, end-i)
		for _, r := range records[i:end] {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(r.ID),
				Vectors: qdrant.NewVectorsDense(r.Vector),
				Payload: qdrant.NewValueMap(r.Payload.Fields()),
			})
		}

		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return classify(err, fmt.Sprintf("upsert batch %d-%d", i, end), collection)
		}
	}
	return nil
}

// Get fetches records with vectors, preserving request order.
func (s *QdrantStore) Get(ctx context.Context, collection string, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}

	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, classify(err, "get", collection)
	}

	byID := make(map[string]Record, len(points))
	for _, p := range points {
		r := Record{
			ID:      p.GetId().GetUuid(),
			Vector:  denseVector(p.GetVectors()),
			Payload: payloadFromValues(p.GetPayload()),
		}
		byID[r.ID] = r
	}

	out := make([]Record, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// tieMargin extra candidates are fetched so that records tying on score at the
// top_k boundary can be ordered by id before truncation.
const tieMargin = 8

// Search runs a nearest-neighbour query. Results are re-sorted so that equal
// scores are ordered by id, and the threshold is re-checked inclusively.
func (s *QdrantStore) Search(ctx context.Context, collection string, req SearchRequest) ([]ScoredRecord, error) {
	if err := req.Filter.Validate(); err != nil {
		return nil, err
	}
	if req.TopK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidRequest, req.TopK)
	}

	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(req.Vector) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(req.Vector), dim)
	}

	query := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(req.Vector),
		Filter:         toQdrantFilter(req.Filter),
		Limit:          qdrant.PtrOf(uint64(req.TopK + tieMargin)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	}
	if req.ScoreThreshold != 0 {
		query.ScoreThreshold = qdrant.PtrOf(float32(req.ScoreThreshold))
	}

	results, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, classify(err, "search", collection)
	}

	hits := make([]ScoredRecord, 0, len(results))
	for _, p := range results {
		score := float64(p.GetScore())
		if score < req.ScoreThreshold {
			continue
		}
		hits = append(hits, ScoredRecord{
			Record: Record{
				ID:      p.GetId().GetUuid(),
				Payload: payloadFromValues(p.GetPayload()),
			},
			Score: score,
		})
	}
	SortScored(hits)
	if len(hits) > req.TopK {
		hits = hits[:req.TopK]
	}
	return hits, nil
}

// Delete removes records by id.
func (s *QdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorIDs(pointIDs),
		Wait:           qdrant.PtrOf(true),
	})
	return classify(err, "delete", collection)
}

// DeleteByFilter removes every record matching a non-empty filter.
func (s *QdrantStore) DeleteByFilter(ctx context.Context, collection string, filter *Filter) error {
	if filter.Empty() {
		return fmt.Errorf("%w: delete requires at least one condition", ErrInvalidFilter)
	}
	if err := filter.Validate(); err != nil {
		return err
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorFilter(toQdrantFilter(filter)),
		Wait:           qdrant.PtrOf(true),
	})
	return classify(err, "delete by filter", collection)
}

// Scroll pages through records ordered by id.
func (s *QdrantStore) Scroll(ctx context.Context, collection string, limit int, offset string) ([]Record, string, error) {
	if limit <= 0 {
		limit = 10
	}
	req := &qdrant.ScrollPoints{
		CollectionName: collection,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	}
	if offset != "" {
		req.Offset = qdrant.NewIDUUID(offset)
	}

	points, nextID, err := s.client.ScrollAndOffset(ctx, req)
	if err != nil {
		return nil, "", classify(err, "scroll", collection)
	}

	out := make([]Record, len(points))
	for i, p := range points {
		out[i] = Record{ID: p.GetId().GetUuid(), Payload: payloadFromValues(p.GetPayload())}
	}
	return out, nextID.GetUuid(), nil
}

// Stats reads the collection configuration and an exact point count.
func (s *QdrantStore) Stats(ctx context.Context, collection string) (*Stats, error) {
	params, err := s.vectorParams(ctx, collection)
	if err != nil {
		return nil, err
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, classify(err, "count", collection)
	}

	return &Stats{
		Collection:  collection,
		RecordCount: count,
		Dimension:   int(params.GetSize()),
		Distance:    fromQdrantDistance(params.GetDistance()),
	}, nil
}

// vectorParams reads the vector configuration of a collection and refreshes
// the dimension cache.
func (s *QdrantStore) vectorParams(ctx context.Context, collection string) (*qdrant.VectorParams, error) {
	info, err := s.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		err = classify(err, "get collection", collection)
		if errors.Is(err, ErrCollectionNotFound) {
			s.forget(collection)
		}
		return nil, err
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return nil, fmt.Errorf("collection %s does not use a single unnamed vector", collection)
	}

	s.mu.Lock()
	s.dims[collection] = int(params.GetSize())
	s.mu.Unlock()
	return params, nil
}

// dimension returns the cached dimension of a collection, reading it once.
func (s *QdrantStore) dimension(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	dim, ok := s.dims[collection]
	s.mu.RUnlock()
	if ok {
		return dim, nil
	}

	params, err := s.vectorParams(ctx, collection)
	if err != nil {
		return 0, err
	}
	return int(params.GetSize()), nil
}

func (s *QdrantStore) forget(collection string) {
	s.mu.Lock()
	delete(s.dims, collection)
	s.mu.Unlock()
}

func toQdrantFilter(f *Filter) *qdrant.Filter {
	if f.Empty() {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(f.Must))
	for _, c := range f.Must {
		v, _ := normalizeValue(c.Value)
		switch x := v.(type) {
		case string:
			must = append(must, qdrant.NewMatch(c.Field, x))
		case int64:
			must = append(must, qdrant.NewMatchInt(c.Field, x))
		case bool:
			must = append(must, qdrant.NewMatchBool(c.Field, x))
		}
	}
	return &qdrant.Filter{Must: must}
}

func denseVector(v *qdrant.VectorsOutput) []float32 {
	out := v.GetVector()
	if dense := out.GetDense(); dense != nil {
		return dense.GetData()
	}
	return out.GetData()
}

func payloadFromValues(p map[string]*qdrant.Value) Payload {
	indexedAt, err := time.Parse(time.RFC3339, p["indexed_at"].GetStringValue())
	if err != nil {
		indexedAt = time.Time{}
	}
	return Payload{
		Text:        p["text"].GetStringValue(),
		SourceFile:  p["source_file"].GetStringValue(),
		Category:    p["category"].GetStringValue(),
		Offset:      int(p["offset"].GetIntegerValue()),
		ChunkIndex:  int(p["chunk_index"].GetIntegerValue()),
		IndexedAt:   indexedAt,
		ContentHash: p["content_hash"].GetStringValue(),
		Title:       p["title"].GetStringValue(),
		ChunkCount:  int(p["chunk_count"].GetIntegerValue()),
	}
}
