package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"study-retrieval-engine/internal/types"

	"go.etcd.io/bbolt"
)

var (
	bucketDocs   = []byte("documents")
	bucketChunks = []byte("chunks")
	bucketMeta   = []byte("meta")

	keyChunkCount = []byte("chunk_count")
)

// BoltMetadataStore persists chunk metadata and the document registry in a
// single bbolt file. Chunk rows are keyed by their big-endian vector
// identifier so cursor order is identifier order.
type BoltMetadataStore struct {
	db *bbolt.DB
}

func NewBoltMetadataStore(path string) (*BoltMetadataStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketDocs, bucketChunks, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltMetadataStore{db: db}
	if err := s.validate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// validate cross-checks the stored counter against the chunk bucket. Every
// transaction keeps them in step, so a disagreement means the file was
// damaged outside this process.
func (s *BoltMetadataStore) validate() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		chunks := tx.Bucket(bucketChunks)
		count := readCount(tx)
		keys := uint64(chunks.Stats().KeyN)
		if keys != count {
			return fmt.Errorf("metadata has %d chunk rows but counter says %d: %w", keys, count, ErrCorrupt)
		}
		if count > 0 {
			last, _ := chunks.Cursor().Last()
			if len(last) != 8 || btoi(last) != count-1 {
				return fmt.Errorf("metadata last chunk key disagrees with counter %d: %w", count, ErrCorrupt)
			}
		}
		return nil
	})
}

func (s *BoltMetadataStore) AppendChunks(chunks []types.Chunk, doc types.Document) error {
	if len(chunks) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		count := readCount(tx)
		for i, c := range chunks {
			want := count + uint64(i)
			if c.ID != want {
				return fmt.Errorf("chunk id %d out of sequence, want %d", c.ID, want)
			}
			data, err := json.Marshal(c)
			if err != nil {
				return err
			}
			if err := b.Put(itob(c.ID), data); err != nil {
				return err
			}
		}

		// The registry row rides the same transaction so the recorded chunk
		// count can never drift from the stored rows. Re-ingesting a
		// document accumulates.
		docs := tx.Bucket(bucketDocs)
		doc.ChunkCount = len(chunks)
		if data := docs.Get([]byte(doc.ID)); data != nil {
			var prev types.Document
			if err := json.Unmarshal(data, &prev); err != nil {
				return err
			}
			doc.ChunkCount += prev.ChunkCount
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		if err := docs.Put([]byte(doc.ID), data); err != nil {
			return err
		}

		return writeCount(tx, count+uint64(len(chunks)))
	})
}

func (s *BoltMetadataStore) GetChunk(id uint64) (*types.Chunk, error) {
	var chunk types.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketChunks).Get(itob(id))
		if data == nil {
			return fmt.Errorf("chunk %d: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &chunk)
	})
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

func (s *BoltMetadataStore) GetChunks(ids []uint64) ([]types.Chunk, error) {
	out := make([]types.Chunk, 0, len(ids))
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		for _, id := range ids {
			data := b.Get(itob(id))
			if data == nil {
				return fmt.Errorf("chunk %d: %w", id, ErrNotFound)
			}
			var chunk types.Chunk
			if err := json.Unmarshal(data, &chunk); err != nil {
				return err
			}
			out = append(out, chunk)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltMetadataStore) ChunkCount() (uint64, error) {
	var count uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		count = readCount(tx)
		return nil
	})
	return count, err
}

func (s *BoltMetadataStore) TruncateChunks(n uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		count := readCount(tx)
		if n > count {
			return fmt.Errorf("truncate to %d beyond chunk count %d", n, count)
		}
		if n == count {
			return nil
		}

		b := tx.Bucket(bucketChunks)
		removed := make(map[string]int)
		c := b.Cursor()
		for k, v := c.Seek(itob(n)); k != nil; k, v = c.Next() {
			var chunk types.Chunk
			if err := json.Unmarshal(v, &chunk); err != nil {
				return err
			}
			removed[chunk.DocID]++
			if err := c.Delete(); err != nil {
				return err
			}
		}

		docs := tx.Bucket(bucketDocs)
		for docID, gone := range removed {
			data := docs.Get([]byte(docID))
			if data == nil {
				continue
			}
			var doc types.Document
			if err := json.Unmarshal(data, &doc); err != nil {
				return err
			}
			doc.ChunkCount -= gone
			if doc.ChunkCount <= 0 {
				if err := docs.Delete([]byte(docID)); err != nil {
					return err
				}
				continue
			}
			updated, err := json.Marshal(doc)
			if err != nil {
				return err
			}
			if err := docs.Put([]byte(docID), updated); err != nil {
				return err
			}
		}

		return writeCount(tx, n)
	})
}

func (s *BoltMetadataStore) GetDocument(id string) (*types.Document, error) {
	var doc types.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocs).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("document %q: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &doc)
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *BoltMetadataStore) Documents() ([]types.Document, error) {
	var docs []types.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocs).ForEach(func(_, v []byte) error {
			var doc types.Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return err
			}
			docs = append(docs, doc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *BoltMetadataStore) Close() error {
	return s.db.Close()
}

var _ MetadataStore = (*BoltMetadataStore)(nil)

func readCount(tx *bbolt.Tx) uint64 {
	data := tx.Bucket(bucketMeta).Get(keyChunkCount)
	if len(data) != 8 {
		// Missing or garbled counter reads as zero; validate catches the
		// mismatch against surviving chunk rows at open.
		return 0
	}
	return btoi(data)
}

func writeCount(tx *bbolt.Tx, n uint64) error {
	return tx.Bucket(bucketMeta).Put(keyChunkCount, itob(n))
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
