package storage

import (
	"errors"

	"study-retrieval-engine/internal/types"
)

var (
	// ErrDimensionMismatch rejects vectors whose length differs from the
	// dimension fixed at index creation. The offending operation leaves
	// state unchanged.
	ErrDimensionMismatch = errors.New("storage: vector dimension mismatch")

	// ErrCorrupt means a persisted store cannot be trusted: truncated file,
	// bad magic, or an internally inconsistent header. Fatal at load time.
	ErrCorrupt = errors.New("storage: corrupt store")

	// ErrNotFound is returned for identifiers outside the persisted range.
	ErrNotFound = errors.New("storage: id not found")
)

// SearchHit is one nearest-neighbor result: the vector identifier and its
// squared Euclidean distance from the query.
type SearchHit struct {
	ID       uint64  `json:"id"`
	Distance float32 `json:"distance"`
}

// VectorIndex is the append/search contract of the vector store. A
// tree-structured or approximate index may be substituted behind it as long
// as identifiers stay contiguous from zero in insertion order and the
// dimension check is enforced before any mutation.
type VectorIndex interface {
	// Append inserts the vectors as one atomic batch and returns their
	// freshly assigned contiguous identifiers. A concurrent Search observes
	// either none or all of the batch.
	Append(vecs []types.Vector) ([]uint64, error)

	// Search returns up to k hits ordered by ascending distance, ties broken
	// by ascending identifier. k larger than the total count is clamped; an
	// empty index yields an empty result.
	Search(query types.Vector, k int) ([]SearchHit, error)

	// Get returns a copy of the vector stored under id.
	Get(id uint64) (types.Vector, error)

	// Truncate drops every identifier >= n. Used for commit rollback and
	// startup reconciliation, never during normal serving.
	Truncate(n uint64) error

	Count() uint64
	Dim() int

	// Sync forces the durable copy to stable storage.
	Sync() error

	Close() error
}

// MetadataStore maps vector identifiers back to chunk text and keeps the
// document registry. Chunk rows are keyed by the identifier the vector index
// assigned, so both stores agree on what id N means.
type MetadataStore interface {
	// AppendChunks stores the batch and updates the owning document's
	// registry row in one transaction. Every chunk must carry the next
	// expected identifier; an out-of-sequence id rejects the whole batch
	// and leaves the store unchanged. The store maintains the document's
	// chunk count itself.
	AppendChunks(chunks []types.Chunk, doc types.Document) error

	// GetChunk returns the chunk stored under a vector identifier.
	GetChunk(id uint64) (*types.Chunk, error)

	// GetChunks resolves a set of identifiers in one read transaction.
	GetChunks(ids []uint64) ([]types.Chunk, error)

	// ChunkCount returns how many chunk rows are committed.
	ChunkCount() (uint64, error)

	// TruncateChunks drops every chunk row with id >= n and shrinks the
	// affected documents' recorded chunk counts.
	TruncateChunks(n uint64) error

	GetDocument(id string) (*types.Document, error)

	// Documents lists the registry ordered by document id.
	Documents() ([]types.Document, error)

	Close() error
}
