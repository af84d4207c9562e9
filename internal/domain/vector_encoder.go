package domain

import (
	"context"
)

// VectorEncoder defines the interface for generating embeddings.
// Implementations must return one vector per input text, each with exactly
// Dimension() components, and must be stable: encoding the same text twice
// yields the same vector (within floating tolerance of the backing model).
type VectorEncoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Version() string
	Dimension() int
}
