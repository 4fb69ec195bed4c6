package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

// BoltFile is the database file created inside the store directory.
const BoltFile = "vectors.db"

var bucketCollections = []byte("collections")

type collectionMeta struct {
	Dimension int      `json:"dimension"`
	Distance  Distance `json:"distance"`
}

type boltCollection struct {
	meta    collectionMeta
	records map[string]Record
}

// BoltStore is an embedded VectorStore backed by a single bbolt file.
// All records are cached in memory and searched by brute force.
type BoltStore struct {
	db     *bbolt.DB
	logger *slog.Logger

	// writeMu serialises bolt transactions with their cache updates.
	writeMu sync.Mutex
	// mu guards collections. It is held only while swapping cache entries,
	// after the bolt transaction has committed.
	mu          sync.RWMutex
	collections map[string]*boltCollection
}

var _ VectorStore = (*BoltStore)(nil)

// NewBoltStore opens (or creates) the store under dir and loads it into memory.
func NewBoltStore(dir string, logger *slog.Logger) (*BoltStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create store directory: %v", ErrStoreUnavailable, err)
	}

	path := filepath.Join(dir, BoltFile)
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStoreUnavailable, path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCollections)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create metadata bucket: %v", ErrStoreUnavailable, err)
	}

	s := &BoltStore{
		db:          db,
		logger:      logger,
		collections: make(map[string]*boltCollection),
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: load records: %v", ErrStoreUnavailable, err)
	}

	logger.Info("opened local vector store", "path", path, "collections", len(s.collections))
	return s, nil
}

func collectionBucket(name string) []byte {
	return []byte("col/" + name)
}

func (s *BoltStore) load() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCollections).ForEach(func(k, v []byte) error {
			var meta collectionMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return fmt.Errorf("collection %s metadata: %w", k, err)
			}
			col := &boltCollection{meta: meta, records: make(map[string]Record)}

			b := tx.Bucket(collectionBucket(string(k)))
			if b != nil {
				err := b.ForEach(func(id, data []byte) error {
					var r Record
					if err := json.Unmarshal(data, &r); err != nil {
						s.logger.Warn("skipping corrupted record", "collection", string(k), "id", string(id), "error", err)
						return nil
					}
					col.records[r.ID] = r
					return nil
				})
				if err != nil {
					return err
				}
			}
			s.collections[string(k)] = col
			return nil
		})
	})
}

func (s *BoltStore) collection(name string) (*boltCollection, error) {
	col, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return col, nil
}

// CreateCollection creates a collection or verifies the existing one.
func (s *BoltStore) CreateCollection(ctx context.Context, name string, dimension int, distance Distance, force bool) error {
	if name == "" {
		return errors.New("collection name is required")
	}
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	if _, err := ParseDistance(string(distance)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	meta := collectionMeta{Dimension: dimension, Distance: distance}

	s.mu.RLock()
	existing, exists := s.collections[name]
	s.mu.RUnlock()

	if exists && !force {
		if existing.meta == meta {
			return nil
		}
		return fmt.Errorf("%w: %s has dimension %d and distance %s, requested %d and %s",
			ErrCollectionConflict, name, existing.meta.Dimension, existing.meta.Distance, dimension, distance)
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		if exists {
			if err := tx.DeleteBucket(collectionBucket(name)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return err
			}
		}
		if _, err := tx.CreateBucket(collectionBucket(name)); err != nil {
			return err
		}
		return tx.Bucket(bucketCollections).Put([]byte(name), data)
	})
	if err != nil {
		return fmt.Errorf("%w: create collection %s: %v", ErrStoreUnavailable, name, err)
	}

	s.mu.Lock()
	s.collections[name] = &boltCollection{meta: meta, records: make(map[string]Record)}
	s.mu.Unlock()

	s.logger.Info("created collection", "collection", name, "dimension", dimension, "distance", distance, "recreated", exists)
	return nil
}

// DeleteCollection drops a collection and all its records.
func (s *BoltStore) DeleteCollection(ctx context.Context, name string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	_, err := s.collection(name)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(collectionBucket(name)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		return tx.Bucket(bucketCollections).Delete([]byte(name))
	})
	if err != nil {
		return fmt.Errorf("%w: delete collection %s: %v", ErrStoreUnavailable, name, err)
	}

	s.mu.Lock()
	delete(s.collections, name)
	s.mu.Unlock()
	return nil
}

// ListCollections returns collection names in sorted order.
func (s *BoltStore) ListCollections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Upsert writes records in one transaction. The batch is rejected as a whole
// if any vector has the wrong dimension.
func (s *BoltStore) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	col, err := s.collection(collection)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	encoded := make([][]byte, len(records))
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record %d has no id", i)
		}
		if len(r.Vector) != col.meta.Dimension {
			return fmt.Errorf("%w: record %s has %d dimensions, expected %d",
				ErrDimensionMismatch, r.ID, len(r.Vector), col.meta.Dimension)
		}
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", r.ID, err)
		}
		encoded[i] = data
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(collectionBucket(collection))
		if b == nil {
			return fmt.Errorf("bucket for %s missing", collection)
		}
		for i, r := range records {
			if err := b.Put([]byte(r.ID), encoded[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: upsert into %s: %v", ErrStoreUnavailable, collection, err)
	}

	s.mu.Lock()
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		col.records[r.ID] = r
	}
	s.mu.Unlock()
	return nil
}

// Get returns the stored records for ids in request order.
func (s *BoltStore) Get(ctx context.Context, collection string, ids []string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := col.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// Search scores every record that matches the filter.
func (s *BoltStore) Search(ctx context.Context, collection string, req SearchRequest) ([]ScoredRecord, error) {
	if err := req.Filter.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	if len(req.Vector) != col.meta.Dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(req.Vector), col.meta.Dimension)
	}
	if req.TopK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidRequest, req.TopK)
	}

	hits := make([]ScoredRecord, 0, min(req.TopK, len(col.records)))
	for _, r := range col.records {
		if !req.Filter.Empty() && !req.Filter.Matches(r.Payload.Fields()) {
			continue
		}
		score := similarity(col.meta.Distance, req.Vector, r.Vector)
		if score < req.ScoreThreshold {
			continue
		}
		hits = append(hits, ScoredRecord{
			Record: Record{ID: r.ID, Payload: r.Payload},
			Score:  score,
		})
	}

	SortScored(hits)
	if len(hits) > req.TopK {
		hits = hits[:req.TopK]
	}
	return hits, nil
}

// Delete removes records by id. Unknown ids are ignored.
func (s *BoltStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	col, err := s.collection(collection)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return s.deleteIDs(col, collection, ids)
}

// DeleteByFilter removes every record matching a non-empty filter.
func (s *BoltStore) DeleteByFilter(ctx context.Context, collection string, filter *Filter) error {
	if filter.Empty() {
		return fmt.Errorf("%w: delete requires at least one condition", ErrInvalidFilter)
	}
	if err := filter.Validate(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	col, err := s.collection(collection)
	if err != nil {
		s.mu.RUnlock()
		return err
	}
	var ids []string
	for id, r := range col.records {
		if filter.Matches(r.Payload.Fields()) {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	if len(ids) == 0 {
		return nil
	}
	return s.deleteIDs(col, collection, ids)
}

// deleteIDs must be called with writeMu held.
func (s *BoltStore) deleteIDs(col *boltCollection, collection string, ids []string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(collectionBucket(collection))
		if b == nil {
			return nil
		}
		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: delete from %s: %v", ErrStoreUnavailable, collection, err)
	}

	s.mu.Lock()
	for _, id := range ids {
		delete(col.records, id)
	}
	s.mu.Unlock()
	return nil
}

// Scroll pages through records in id order.
func (s *BoltStore) Scroll(ctx context.Context, collection string, limit int, offset string) ([]Record, string, error) {
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col, err := s.collection(collection)
	if err != nil {
		return nil, "", err
	}

	ids := make([]string, 0, len(col.records))
	for id := range col.records {
		if id >= offset {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var next string
	if len(ids) > limit {
		next = ids[limit]
		ids = ids[:limit]
	}

	out := make([]Record, len(ids))
	for i, id := range ids {
		out[i] = col.records[id]
	}
	return out, next, nil
}

// Stats reports the record count and configuration of a collection.
func (s *BoltStore) Stats(ctx context.Context, collection string) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Collection:  collection,
		RecordCount: uint64(len(col.records)),
		Dimension:   col.meta.Dimension,
		Distance:    col.meta.Distance,
	}, nil
}

// Health verifies the database can open a read transaction.
func (s *BoltStore) Health(ctx context.Context) error {
	if err := s.db.View(func(tx *bbolt.Tx) error { return nil }); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
