package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"unicode"
)

// HashEmbedder is an offline Gateway that hashes character unigrams and bigrams
// into a fixed number of buckets. Similar wording gives similar vectors, which is
// enough for local development and tests without an embedding server.
type HashEmbedder struct {
	dimension int
}

var _ Gateway = (*HashEmbedder)(nil)

// NewHashEmbedder creates a HashEmbedder producing vectors of the given size.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &HashEmbedder{dimension: dimension}
}

// Dimension returns the vector size.
func (h *HashEmbedder) Dimension() int {
	return h.dimension
}

// Embed returns one L2-normalised vector per text.
func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = h.embed(text)
	}
	return vectors, nil
}

func (h *HashEmbedder) embed(text string) []float32 {
	vector := make([]float32, h.dimension)

	var prev rune
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			prev = 0
			continue
		}
		r = unicode.ToLower(r)
		vector[h.bucket(string(r))]++
		if prev != 0 {
			vector[h.bucket(string([]rune{prev, r}))]++
		}
		prev = r
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vector
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vector {
		vector[i] *= scale
	}
	return vector
}

func (h *HashEmbedder) bucket(feature string) int {
	f := fnv.New32a()
	_, _ = f.Write([]byte(feature))
	return int(f.Sum32() % uint32(h.dimension))
}
