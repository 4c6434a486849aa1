// Package engine drives the two pipelines: ingestion (chunk, embed, commit
// to both stores) and query (embed, scan, resolve). It owns the lock that
// keeps the vector index and the metadata store moving in step.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"study-retrieval-engine/internal/chunker"
	"study-retrieval-engine/internal/embedding"
	"study-retrieval-engine/internal/storage"
	"study-retrieval-engine/internal/types"
)

// IndexTypeFlatL2 names the only index this engine drives: a brute-force
// flat scan under squared Euclidean distance.
const IndexTypeFlatL2 = "flat-l2"

const emptyIndexAnswer = "No documents in the index yet. Ingest something first."

var (
	// ErrInvalidArgument rejects malformed requests: empty document id,
	// empty question, non-positive k.
	ErrInvalidArgument = errors.New("engine: invalid argument")

	// ErrIntegrity means the vector index and the metadata store disagree
	// about committed state. Distinct from an empty result set.
	ErrIntegrity = errors.New("engine: store integrity violation")
)

// Engine serializes writers and admits concurrent readers. Chunking and
// embedding run outside the lock; only the two-store commit and the scan
// hold it.
type Engine struct {
	mu       sync.RWMutex
	index    storage.VectorIndex
	metadata storage.MetadataStore
	embedder embedding.Embedder
	splitter *chunker.Chunker
}

func New(idx storage.VectorIndex, meta storage.MetadataStore, emb embedding.Embedder, splitter *chunker.Chunker) (*Engine, error) {
	if emb.Dimension() != idx.Dim() {
		return nil, fmt.Errorf("embedder produces %d-dimensional vectors but index holds %d",
			emb.Dimension(), idx.Dim())
	}
	return &Engine{
		index:    idx,
		metadata: meta,
		embedder: emb,
		splitter: splitter,
	}, nil
}

type IngestResult struct {
	DocumentID   string `json:"doc_id"`
	ChunksAdded  int    `json:"chunks_added"`
	TotalVectors uint64 `json:"total_vectors"`
}

// Ingest runs one document through the pipeline. On any commit failure both
// stores are rolled back to their pre-commit counts, so a failed ingest is
// invisible.
func (e *Engine) Ingest(ctx context.Context, docID, source, text string) (*IngestResult, error) {
	if strings.TrimSpace(docID) == "" {
		return nil, fmt.Errorf("document id is required: %w", ErrInvalidArgument)
	}
	if source == "" {
		source = docID
	}
	req := uuid.NewString()

	chunks := e.splitter.Split(docID, text)
	if len(chunks) == 0 {
		log.Printf("[ingest] req=%s doc=%s produced no chunks, nothing to commit", req, docID)
		return &IngestResult{DocumentID: docID, TotalVectors: e.index.Count()}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		log.Printf("[ingest] req=%s doc=%s embedding failed: %v", req, docID, err)
		return nil, fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}
	if len(vecs) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	base := e.index.Count()
	ids, err := e.index.Append(vecs)
	if err != nil {
		return nil, fmt.Errorf("append vectors: %w", err)
	}
	for i := range chunks {
		chunks[i].ID = ids[i]
	}

	doc := types.Document{ID: docID, Source: source, IngestedAt: time.Now().UTC()}
	if err := e.metadata.AppendChunks(chunks, doc); err != nil {
		if terr := e.index.Truncate(base); terr != nil {
			log.Printf("[ingest] req=%s rollback failed, stores diverged: %v", req, terr)
			return nil, fmt.Errorf("commit chunks: %v, rollback: %v: %w", err, terr, ErrIntegrity)
		}
		log.Printf("[ingest] req=%s doc=%s commit failed, rolled back to %d vectors: %v", req, docID, base, err)
		return nil, fmt.Errorf("commit chunks: %w", err)
	}

	if err := e.index.Sync(); err != nil {
		return nil, fmt.Errorf("sync vector index: %w", err)
	}

	total := e.index.Count()
	log.Printf("[ingest] req=%s ok doc=%s chunks=%d vec_count=%d", req, docID, len(chunks), total)
	return &IngestResult{DocumentID: docID, ChunksAdded: len(chunks), TotalVectors: total}, nil
}

// RetrievedChunk is one query hit. ChunkID is the chunk's ordinal within its
// document; VectorID is the global index identifier.
type RetrievedChunk struct {
	Source   string  `json:"source"`
	ChunkID  int     `json:"chunk_id"`
	VectorID uint64  `json:"vector_id"`
	Distance float32 `json:"distance"`
	Text     string  `json:"text"`
}

type QueryResponse struct {
	Answer    string           `json:"answer"`
	Retrieved []RetrievedChunk `json:"retrieved"`
}

// Query embeds the question, scans the index, and resolves the winning ids
// back to chunk text. An id the metadata store cannot resolve is an
// integrity failure, never silently dropped.
func (e *Engine) Query(ctx context.Context, question string, topK int) (*QueryResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question is required: %w", ErrInvalidArgument)
	}
	if topK < 1 {
		return nil, fmt.Errorf("k must be at least 1, got %d: %w", topK, ErrInvalidArgument)
	}
	req := uuid.NewString()

	qv, err := e.embedder.Embed(ctx, question)
	if err != nil {
		log.Printf("[query] req=%s embedding failed: %v", req, err)
		return nil, fmt.Errorf("embed question: %w", err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.index.Count() == 0 {
		return &QueryResponse{Answer: emptyIndexAnswer, Retrieved: []RetrievedChunk{}}, nil
	}

	hits, err := e.index.Search(qv, topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	ids := make([]uint64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	chunks, err := e.metadata.GetChunks(ids)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("[query] req=%s indexed vector has no metadata: %v", req, err)
			return nil, fmt.Errorf("resolve hits: %v: %w", err, ErrIntegrity)
		}
		return nil, fmt.Errorf("resolve hits: %w", err)
	}

	sources := make(map[string]string)
	retrieved := make([]RetrievedChunk, len(hits))
	for i, c := range chunks {
		src, ok := sources[c.DocID]
		if !ok {
			if doc, err := e.metadata.GetDocument(c.DocID); err == nil {
				src = doc.Source
			} else {
				src = c.DocID
			}
			sources[c.DocID] = src
		}
		retrieved[i] = RetrievedChunk{
			Source:   src,
			ChunkID:  c.Seq,
			VectorID: c.ID,
			Distance: hits[i].Distance,
			Text:     strings.TrimSpace(c.Text),
		}
	}

	log.Printf("[query] req=%s ok hits=%d", req, len(retrieved))
	return &QueryResponse{Answer: stitchAnswer(retrieved), Retrieved: retrieved}, nil
}

// stitchAnswer renders the retrieval-only answer: numbered snippets, no LLM.
func stitchAnswer(rows []RetrievedChunk) string {
	var b strings.Builder
	b.WriteString("Top matching chunks from your library:\n\n")
	for i, r := range rows {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, r.Text)
	}
	b.WriteString("\n\n(Next step: call an LLM service to turn this into a narrative answer.)")
	return b.String()
}

type Status struct {
	IndexType          string `json:"index_type"`
	EmbeddingDimension int    `json:"embedding_dimension"`
	TotalVectors       uint64 `json:"total_vectors"`
	TotalDocuments     int    `json:"total_documents"`
}

func (e *Engine) Status() (*Status, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	docs, err := e.metadata.Documents()
	if err != nil {
		return nil, err
	}
	return &Status{
		IndexType:          IndexTypeFlatL2,
		EmbeddingDimension: e.index.Dim(),
		TotalVectors:       e.index.Count(),
		TotalDocuments:     len(docs),
	}, nil
}

// ReconcileReport records the store counts found at startup and the aligned
// count both hold afterwards.
type ReconcileReport struct {
	Vectors uint64 `json:"vectors"`
	Chunks  uint64 `json:"chunks"`
	Aligned uint64 `json:"aligned"`
}

// Reconcile repairs a crash between the two commit steps: whichever store
// ran ahead is truncated back to the smaller count. Runs before the engine
// starts serving.
func (e *Engine) Reconcile() (*ReconcileReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	vecs := e.index.Count()
	chunks, err := e.metadata.ChunkCount()
	if err != nil {
		return nil, fmt.Errorf("read chunk count: %w", err)
	}

	rep := &ReconcileReport{Vectors: vecs, Chunks: chunks, Aligned: min(vecs, chunks)}
	if vecs == chunks {
		log.Printf("[reconcile] stores aligned at %d entries", vecs)
		return rep, nil
	}

	if vecs > rep.Aligned {
		log.Printf("[reconcile] dropping %d uncommitted vectors (%d -> %d)", vecs-rep.Aligned, vecs, rep.Aligned)
		if err := e.index.Truncate(rep.Aligned); err != nil {
			return nil, fmt.Errorf("truncate vector index: %v: %w", err, ErrIntegrity)
		}
		if err := e.index.Sync(); err != nil {
			return nil, fmt.Errorf("sync vector index: %w", err)
		}
	}
	if chunks > rep.Aligned {
		log.Printf("[reconcile] dropping %d orphaned chunk rows (%d -> %d)", chunks-rep.Aligned, chunks, rep.Aligned)
		if err := e.metadata.TruncateChunks(rep.Aligned); err != nil {
			return nil, fmt.Errorf("truncate metadata: %v: %w", err, ErrIntegrity)
		}
	}
	return rep, nil
}
