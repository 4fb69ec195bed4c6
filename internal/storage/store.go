// Package storage persists statute chunk vectors and answers similarity queries.
package storage

import "context"

// VectorStore is a collection-scoped vector index.
//
// Implementations make each upserted record visible atomically: a concurrent
// Search sees either the old or the new version of a record, never a mix.
type VectorStore interface {
	// CreateCollection is a no-op when the collection already exists with the same
	// dimension and distance. A different configuration returns ErrCollectionConflict
	// unless force is set, in which case the collection is dropped and recreated.
	CreateCollection(ctx context.Context, name string, dimension int, distance Distance, force bool) error
	DeleteCollection(ctx context.Context, name string) error
	ListCollections(ctx context.Context) ([]string, error)

	Upsert(ctx context.Context, collection string, records []Record) error
	// Get returns the records that exist, in request order. Missing ids are skipped.
	Get(ctx context.Context, collection string, ids []string) ([]Record, error)
	// Search returns at most TopK hits with score >= ScoreThreshold, ordered by
	// descending score and ascending id.
	Search(ctx context.Context, collection string, req SearchRequest) ([]ScoredRecord, error)
	Delete(ctx context.Context, collection string, ids []string) error
	DeleteByFilter(ctx context.Context, collection string, filter *Filter) error
	// Scroll pages through records ordered by id, starting at offset (inclusive).
	// next is empty on the last page.
	Scroll(ctx context.Context, collection string, limit int, offset string) (records []Record, next string, err error)
	Stats(ctx context.Context, collection string) (*Stats, error)

	Health(ctx context.Context) error
	Close() error
}
