package embedding

import (
	"context"
	"errors"

	"study-retrieval-engine/internal/types"
)

// ErrUnavailable means the embedding backend could not produce usable
// vectors: unreachable, persistent 5xx, or a malformed response. The text
// that triggered it is never partially committed.
var ErrUnavailable = errors.New("embedding: backend unavailable")

// Embedder converts text into fixed-dimension vectors. The dimension is
// decided at construction and every returned vector matches it.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) (types.Vector, error)

	// EmbedBatch embeds texts in order; result[i] corresponds to texts[i].
	EmbedBatch(ctx context.Context, texts []string) ([]types.Vector, error)

	// Dimension reports the vector length this embedder produces.
	Dimension() int
}
