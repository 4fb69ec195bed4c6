package storage

import (
	"fmt"
	"strings"
	"time"
)

// Distance is the similarity metric of a collection.
type Distance string

const (
	DistanceCosine Distance = "Cosine"
	DistanceDot    Distance = "Dot"
)

// ParseDistance accepts a metric name in any case.
func ParseDistance(s string) (Distance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cosine", "":
		return DistanceCosine, nil
	case "dot":
		return DistanceDot, nil
	default:
		return "", fmt.Errorf("unsupported distance metric %q (want Cosine or Dot)", s)
	}
}

// Payload holds the chunk attributes stored next to each vector.
type Payload struct {
	Text        string    `json:"text"`
	SourceFile  string    `json:"source_file"`
	Category    string    `json:"category,omitempty"`
	Offset      int       `json:"offset"`
	ChunkIndex  int       `json:"chunk_index"`
	IndexedAt   time.Time `json:"indexed_at"`
	ContentHash string    `json:"content_hash,omitempty"`
	Title       string    `json:"title,omitempty"`
	ChunkCount  int       `json:"chunk_count,omitempty"`
}

// Fields returns the payload as filterable key/value pairs.
// Integers are int64 and timestamps RFC3339 strings.
func (p Payload) Fields() map[string]any {
	return map[string]any{
		"text":         p.Text,
		"source_file":  p.SourceFile,
		"category":     p.Category,
		"offset":       int64(p.Offset),
		"chunk_index":  int64(p.ChunkIndex),
		"indexed_at":   p.IndexedAt.UTC().Format(time.RFC3339),
		"content_hash": p.ContentHash,
		"title":        p.Title,
		"chunk_count":  int64(p.ChunkCount),
	}
}

// Record is one vector with its payload.
type Record struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

// ScoredRecord is a search hit. Vector is not populated.
type ScoredRecord struct {
	Record
	Score float64
}

// SearchRequest describes a nearest-neighbour query.
type SearchRequest struct {
	Vector         []float32
	TopK           int
	ScoreThreshold float64
	Filter         *Filter
}

// Stats describes a collection.
type Stats struct {
	Collection  string
	RecordCount uint64
	Dimension   int
	Distance    Distance
}
