package types

import "time"

// Vector is a fixed-dimension embedding. The dimension is set once at index
// creation and never changes for the lifetime of the data directory.
type Vector = []float32

// Chunk is one overlapping text window cut from a source document. It is
// immutable once committed; ID is the vector identifier assigned by the
// index at commit time and doubles as the chunk's position in the metadata
// store.
type Chunk struct {
	ID        uint64 `json:"id"`
	DocID     string `json:"doc_id"`
	Seq       int    `json:"seq"` // window ordinal within the document
	Text      string `json:"text"`
	CharStart int    `json:"char_start"` // rune offset, inclusive
	CharEnd   int    `json:"char_end"`   // rune offset, exclusive
}

// Document records the most recent successful ingestion of a source document.
// Re-ingesting the same id appends fresh chunks and replaces this record;
// the earlier chunks stay searchable (pure append, no replacement).
type Document struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	IngestedAt time.Time `json:"ingested_at"`
	ChunkCount int       `json:"chunk_count"`
}
