// Package embedding provides the Embedder abstraction retrieval uses to
// turn queries into vectors for storage.Client.SearchMemories.
package embedding

import "context"

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}
