// Package embedding turns statute text into fixed-dimension vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means the embedding collaborator could not produce a complete, well-formed batch.
	ErrUnavailable = errors.New("embedding service unavailable")
	// ErrDimensionMismatch means the collaborator returned vectors of an unexpected size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Gateway embeds texts. The result has the same length and order as the input,
// and every vector has Dimension() elements; otherwise an error is returned and
// no vectors are.
type Gateway interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// checkVectors validates a collaborator response against the request.
func checkVectors(vectors [][]float32, want, dimension int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: got %d vectors for %d texts", ErrUnavailable, len(vectors), want)
	}
	for i, v := range vectors {
		if v == nil {
			return fmt.Errorf("%w: missing vector %d", ErrUnavailable, i)
		}
		if len(v) != dimension {
			return fmt.Errorf("%w: %w: vector %d has %d dimensions, expected %d",
				ErrUnavailable, ErrDimensionMismatch, i, len(v), dimension)
		}
	}
	return nil
}
