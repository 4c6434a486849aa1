package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/viant/vec/search"

	"study-retrieval-engine/internal/types"
)

const (
	f32Size = 4

	// File header (v1):
	//   0..7   magic "STUDYV01"
	//   8..15  dim (uint64)
	//   16..23 count (uint64)
	// followed by count rows of dim little-endian float32 values. The count
	// field is the commit point: rows are written before it advances, so
	// bytes past the committed count are unreachable, never torn entries.
	HeaderSize = 24
)

var fileMagic = [8]byte{'S', 'T', 'U', 'D', 'Y', 'V', '0', '1'}

// FlatIndex is a brute-force nearest-neighbor index over a memory-mapped
// append-only file. All vectors are mirrored in memory for scanning; the
// mapped file is the durable copy. Identifiers are assigned contiguously
// from zero in insertion order and never reused.
type FlatIndex struct {
	path   string
	file   *os.File
	mu     sync.RWMutex
	mapped []byte
	dim    int
	count  uint64
	rows   []float32 // count*dim floats, row i at [i*dim : (i+1)*dim]

	mapHandle  uintptr // windows only
	viewHandle uintptr // windows only
}

// OpenFlatIndex opens or creates the index file at path. A new file fixes
// dim permanently; reopening validates the stored header against it. A
// truncated or internally inconsistent file fails with ErrCorrupt rather
// than silently dropping entries.
func OpenFlatIndex(path string, dim int) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dim)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	x := &FlatIndex{path: path, file: f, dim: dim}

	if info.Size() == 0 {
		if err := x.initNew(); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	if err := x.remap(); err != nil {
		_ = f.Close()
		return nil, err
	}

	onDiskDim, onDiskCount, err := x.readHeader()
	if err != nil {
		_ = x.Close()
		return nil, err
	}
	if int(onDiskDim) != x.dim {
		_ = x.Close()
		return nil, fmt.Errorf("index file %s has dimension %d, configured %d: %w",
			path, onDiskDim, x.dim, ErrDimensionMismatch)
	}

	x.count = onDiskCount
	x.rows = make([]float32, int(onDiskCount)*x.dim)
	for i := range x.rows {
		bits := binary.LittleEndian.Uint32(x.mapped[HeaderSize+i*f32Size:])
		x.rows[i] = math.Float32frombits(bits)
	}

	return x, nil
}

func (x *FlatIndex) initNew() error {
	// Initial capacity: header plus room for 1024 rows.
	initialSize := int64(HeaderSize + 1024*x.dim*f32Size)
	if err := x.resize(initialSize); err != nil {
		return err
	}
	if err := x.remap(); err != nil {
		return err
	}
	x.writeHeader(uint64(x.dim), 0)
	x.count = 0
	return nil
}

func (x *FlatIndex) readHeader() (dim, count uint64, err error) {
	if len(x.mapped) < HeaderSize {
		return 0, 0, fmt.Errorf("index file %s too small for header (%d bytes): %w", x.path, len(x.mapped), ErrCorrupt)
	}

	var mg [8]byte
	copy(mg[:], x.mapped[:8])
	if mg != fileMagic {
		return 0, 0, fmt.Errorf("index file %s has bad magic: %w", x.path, ErrCorrupt)
	}

	dim = binary.LittleEndian.Uint64(x.mapped[8:16])
	count = binary.LittleEndian.Uint64(x.mapped[16:24])
	if dim == 0 {
		return 0, 0, fmt.Errorf("index file %s header has dim=0: %w", x.path, ErrCorrupt)
	}
	// Bound the header fields by division, not by the product count*dim*f32Size,
	// which wraps mod 2^64 for garbage counts and would pass a size comparison.
	avail := uint64(len(x.mapped)) - HeaderSize
	if count > 0 && (dim > avail/f32Size || count > avail/(dim*f32Size)) {
		return 0, 0, fmt.Errorf("index file %s truncated: %d data bytes cannot hold %d vectors of dimension %d: %w",
			x.path, avail, count, dim, ErrCorrupt)
	}
	return dim, count, nil
}

func (x *FlatIndex) writeHeader(dim, count uint64) {
	copy(x.mapped[:8], fileMagic[:])
	binary.LittleEndian.PutUint64(x.mapped[8:16], dim)
	binary.LittleEndian.PutUint64(x.mapped[16:24], count)
}

func (x *FlatIndex) resize(newSize int64) error {
	if err := x.munmap(); err != nil {
		return err
	}
	return x.file.Truncate(newSize)
}

func (x *FlatIndex) remap() error {
	// Always unmap any existing view first: Append remaps after growth, and
	// remapping without unmapping leaks the old view.
	if err := x.munmap(); err != nil {
		return err
	}

	fi, err := x.file.Stat()
	if err != nil {
		return err
	}
	size := fi.Size()
	if size == 0 {
		return nil
	}
	return x.mmap(size)
}

// Append inserts vecs as one batch and returns their identifiers, contiguous
// and strictly increasing. The dimension check runs before any mutation, so
// a rejected batch leaves the index untouched; the count header advances only
// after every row is written, so a concurrent Search never observes a prefix.
func (x *FlatIndex) Append(vecs []types.Vector) ([]uint64, error) {
	for i, v := range vecs {
		if len(v) != x.dim {
			return nil, fmt.Errorf("vector %d has dimension %d, index has %d: %w",
				i, len(v), x.dim, ErrDimensionMismatch)
		}
	}
	if len(vecs) == 0 {
		return nil, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	rowBytes := x.dim * f32Size
	required := int64(HeaderSize + (int(x.count)+len(vecs))*rowBytes)
	if required > int64(len(x.mapped)) {
		// Grow by 50%, or to the required size if that is larger.
		newSize := int64(len(x.mapped)) + int64(len(x.mapped))/2
		if newSize < required {
			newSize = required
		}
		if err := x.resize(newSize); err != nil {
			return nil, fmt.Errorf("grow index file: %w", err)
		}
		if err := x.remap(); err != nil {
			return nil, fmt.Errorf("remap index file: %w", err)
		}
		x.writeHeader(uint64(x.dim), x.count)
	}

	ids := make([]uint64, len(vecs))
	for i, v := range vecs {
		id := x.count + uint64(i)
		off := HeaderSize + int(id)*rowBytes
		for j, val := range v {
			binary.LittleEndian.PutUint32(x.mapped[off+j*f32Size:], math.Float32bits(val))
		}
		x.rows = append(x.rows, v...)
		ids[i] = id
	}

	x.count += uint64(len(vecs))
	x.writeHeader(uint64(x.dim), x.count)

	return ids, nil
}

// Search scans every stored vector and returns up to k hits by ascending
// squared Euclidean distance, ties broken by ascending identifier. k larger
// than the stored count is clamped; an empty index returns an empty result.
func (x *FlatIndex) Search(query types.Vector, k int) ([]SearchHit, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("query has dimension %d, index has %d: %w",
			len(query), x.dim, ErrDimensionMismatch)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if k > int(x.count) {
		k = int(x.count)
	}
	if k <= 0 {
		return []SearchHit{}, nil
	}

	q := search.Float32s(query)
	hits := make([]SearchHit, x.count)
	for i := uint64(0); i < x.count; i++ {
		row := x.rows[int(i)*x.dim : (int(i)+1)*x.dim]
		d := q.EuclideanDistance(row)
		hits[i] = SearchHit{ID: i, Distance: d * d}
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Distance != hits[b].Distance {
			return hits[a].Distance < hits[b].Distance
		}
		return hits[a].ID < hits[b].ID
	})

	return hits[:k], nil
}

// Get returns a copy of the vector stored under id.
func (x *FlatIndex) Get(id uint64) (types.Vector, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if id >= x.count {
		return nil, fmt.Errorf("vector %d (count %d): %w", id, x.count, ErrNotFound)
	}
	vec := make(types.Vector, x.dim)
	copy(vec, x.rows[int(id)*x.dim:(int(id)+1)*x.dim])
	return vec, nil
}

// Truncate drops every identifier >= n by rewinding the committed count.
// The tail bytes stay in the file but are unreachable and will be
// overwritten by subsequent appends.
func (x *FlatIndex) Truncate(n uint64) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if n > x.count {
		return fmt.Errorf("truncate to %d beyond count %d", n, x.count)
	}
	if n == x.count {
		return nil
	}
	x.count = n
	x.rows = x.rows[:int(n)*x.dim]
	x.writeHeader(uint64(x.dim), x.count)
	return nil
}

// Count returns the number of committed vectors.
func (x *FlatIndex) Count() uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.count
}

// Dim returns the dimension fixed at creation.
func (x *FlatIndex) Dim() int { return x.dim }

// Sync flushes the mapped region and the file to stable storage.
func (x *FlatIndex) Sync() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.msync(); err != nil {
		return fmt.Errorf("msync index file: %w", err)
	}
	return x.file.Sync()
}

// Close flushes and unmaps the file.
func (x *FlatIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.mapped != nil {
		_ = x.msync()
	}
	_ = x.munmap()
	return x.file.Close()
}

var _ VectorIndex = (*FlatIndex)(nil)
