// Package embedding provides the external embedding capability used for
// semantic similarity, plus bounded batch acquisition over it.
package embedding

import (
	"context"
	"errors"
)

// Embedder maps normalized text to a dense vector. Calls may fail per item.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderFunc adapts a function to the Embedder interface.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

// Embed implements Embedder.
func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

var (
	// ErrEmptyVector is returned when the provider answers without a vector.
	ErrEmptyVector = errors.New("embedding response missing vector")
	// ErrDimensionMismatch is returned when a vector's dimension differs from the run's.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
