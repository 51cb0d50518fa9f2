package extsort

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/eunmann/tablesort/pkg/table"
)

// ContainerFactory creates storage for sorted chunks.
type ContainerFactory interface {
	CreateChunk(schema *table.Schema) (ChunkWriter, error)
}

// ChunkWriter receives the rows of one chunk in order.
type ChunkWriter interface {
	// Append adds a row to the end of the chunk.
	Append(row *table.Row) error
	// Seal finishes the chunk and makes it readable. The writer must not be
	// used afterwards.
	Seal() (Chunk, error)
	// Discard abandons the chunk and frees what was written so far.
	Discard() error
}

// Chunk is a sealed, sorted, read-only sequence of rows.
type Chunk interface {
	// Iterator opens a new forward-only iterator over the rows.
	Iterator() (RowIterator, error)
	// Len returns the number of rows.
	Len() int64
	// Release frees the backing storage. It is idempotent. Iterators must
	// be closed before Release.
	Release() error
}

var errChunkReleased = errors.New("chunk already released")

// MemoryFactory keeps chunks as row slices on the heap.
type MemoryFactory struct {
	live atomic.Int64
}

// NewMemoryFactory returns a factory of in-memory chunks.
func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{}
}

// CreateChunk implements ContainerFactory.
func (f *MemoryFactory) CreateChunk(*table.Schema) (ChunkWriter, error) {
	return &memWriter{factory: f}, nil
}

// Live returns the number of sealed chunks not yet released.
func (f *MemoryFactory) Live() int64 {
	return f.live.Load()
}

type memWriter struct {
	factory *MemoryFactory
	rows    []*table.Row
	done    bool
}

func (w *memWriter) Append(row *table.Row) error {
	if w.done {
		return errors.New("append to sealed chunk")
	}
	w.rows = append(w.rows, row)
	return nil
}

func (w *memWriter) Seal() (Chunk, error) {
	if w.done {
		return nil, errors.New("chunk already sealed")
	}
	w.done = true
	w.factory.live.Add(1)
	c := newMemChunk(w.rows)
	c.onRelease = func() { w.factory.live.Add(-1) }
	w.rows = nil
	return c, nil
}

func (w *memWriter) Discard() error {
	w.done = true
	w.rows = nil
	return nil
}

// memChunk is a chunk backed by a row slice. The producer also uses it to
// keep its final buffer in memory without going through the factory.
type memChunk struct {
	rows      []*table.Row
	released  bool
	onRelease func()
}

func newMemChunk(rows []*table.Row) *memChunk {
	return &memChunk{rows: rows}
}

func (c *memChunk) Iterator() (RowIterator, error) {
	if c.released {
		return nil, errChunkReleased
	}
	return &sliceIterator{rows: c.rows}, nil
}

func (c *memChunk) Len() int64 {
	return int64(len(c.rows))
}

func (c *memChunk) Release() error {
	if c.released {
		return nil
	}
	c.released = true
	c.rows = nil
	if c.onRelease != nil {
		c.onRelease()
	}
	return nil
}

// FromRows returns an iterator over rows. Close is a no-op.
func FromRows(rows []*table.Row) RowIterator {
	return &sliceIterator{rows: rows}
}

type sliceIterator struct {
	rows []*table.Row
	pos  int
}

func (it *sliceIterator) Next() (*table.Row, error) {
	if it.pos >= len(it.rows) {
		return nil, io.EOF
	}
	row := it.rows[it.pos]
	it.pos++
	return row, nil
}

func (it *sliceIterator) Close() error {
	it.rows = nil
	it.pos = 0
	return nil
}

// chunkSource iterates a chunk it owns. The chunk's iterator is opened on
// the first Next, and Close releases the chunk.
type chunkSource struct {
	chunk Chunk
	it    RowIterator
	done  bool
}

func newChunkSource(c Chunk) *chunkSource {
	return &chunkSource{chunk: c}
}

func (s *chunkSource) Next() (*table.Row, error) {
	if s.done {
		return nil, io.EOF
	}
	if s.it == nil {
		it, err := s.chunk.Iterator()
		if err != nil {
			return nil, fmt.Errorf("open chunk: %w", err)
		}
		s.it = it
	}
	return s.it.Next()
}

func (s *chunkSource) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	var firstErr error
	if s.it != nil {
		if err := s.it.Close(); err != nil {
			firstErr = fmt.Errorf("close chunk iterator: %w", err)
		}
		s.it = nil
	}
	if err := s.chunk.Release(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("release chunk: %w", err)
	}
	return firstErr
}

// chunkQueue is the FIFO of chunks owned by a merge phase. PopFront moves
// ownership to the caller and clears the slot, so a chunk can only be taken
// once.
type chunkQueue struct {
	items []Chunk
}

func (q *chunkQueue) Len() int {
	return len(q.items)
}

func (q *chunkQueue) PushBack(c Chunk) {
	q.items = append(q.items, c)
}

func (q *chunkQueue) PopFront() Chunk {
	c := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return c
}

// PopN removes and returns the first n chunks.
func (q *chunkQueue) PopN(n int) []Chunk {
	out := make([]Chunk, n)
	for i := range out {
		out[i] = q.PopFront()
	}
	return out
}

// Drain removes and returns every chunk.
func (q *chunkQueue) Drain() []Chunk {
	return q.PopN(q.Len())
}

// ReleaseAll releases every queued chunk and empties the queue.
func (q *chunkQueue) ReleaseAll() error {
	var firstErr error
	for _, c := range q.Drain() {
		if err := c.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// releaseAll releases chunks, returning the first error.
func releaseAll(chunks []Chunk) error {
	var firstErr error
	for _, c := range chunks {
		if c == nil {
			continue
		}
		if err := c.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
