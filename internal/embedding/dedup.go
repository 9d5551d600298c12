package embedding

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Deduplicating wraps an Embedder so concurrent retrieval calls embedding
// the same query text share a single upstream call, the way C10's
// build_context is invoked once per incoming command but may overlap across
// commands quoting the same text.
type Deduplicating struct {
	inner Embedder
	group singleflight.Group
}

// NewDeduplicating wraps inner.
func NewDeduplicating(inner Embedder) *Deduplicating {
	return &Deduplicating{inner: inner}
}

// Dimension implements Embedder.
func (d *Deduplicating) Dimension() int { return d.inner.Dimension() }

// Embed implements Embedder, collapsing concurrent calls for the same text
// into a single upstream request. Callers each get their own copy of the
// result slice, so one caller mutating it cannot affect another.
func (d *Deduplicating) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err, _ := d.group.Do(text, func() (any, error) {
		return d.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	shared := v.([]float32)
	out := make([]float32, len(shared))
	copy(out, shared)
	return out, nil
}
