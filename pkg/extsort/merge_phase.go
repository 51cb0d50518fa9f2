package extsort

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/tablesort/pkg/table"
)

// MergePhase merges a queue of sorted chunks, at most fanIn at a time, until
// the result can be streamed or a single chunk remains.
//
// The phase owns every queued chunk. Chunks leave the queue when a merge
// takes them, and Close releases whatever is still queued.
type MergePhase struct {
	schema  *table.Schema
	compare CompareFunc
	factory ContainerFactory
	fanIn   int
	queue   chunkQueue
	numRows int64
	log     zerolog.Logger
}

// NewMergePhase takes ownership of chunks. numRows is the total row count
// and only drives progress reporting.
func NewMergePhase(schema *table.Schema, compare CompareFunc, factory ContainerFactory,
	fanIn int, chunks []Chunk, numRows int64, log zerolog.Logger,
) (*MergePhase, error) {
	if fanIn < 2 {
		_ = releaseAll(chunks)
		return nil, fmt.Errorf("%w: fan-in must be at least 2, got %d", ErrInvalidConfig, fanIn)
	}
	p := &MergePhase{
		schema:  schema,
		compare: compare,
		factory: factory,
		fanIn:   fanIn,
		numRows: numRows,
		log:     log,
	}
	for _, c := range chunks {
		p.queue.PushBack(c)
	}
	return p, nil
}

// NumChunks returns the number of chunks currently queued.
func (p *MergePhase) NumChunks() int {
	return p.queue.Len()
}

// NumRows returns the total number of rows being merged.
func (p *MergePhase) NumRows() int64 {
	return p.numRows
}

// NumLevels returns the number of merge rounds that write intermediate
// chunks. With materializeLast the final merge is counted as well.
func (p *MergePhase) NumLevels(materializeLast bool) int {
	return numLevels(p.queue.Len(), p.fanIn, materializeLast)
}

func numLevels(n, fanIn int, materializeLast bool) int {
	levels := 0
	for n > 0 {
		if n == 1 || (!materializeLast && n <= fanIn) {
			return levels
		}
		n = ceilDiv(n, fanIn)
		levels++
	}
	return 0
}

// MergeIntoIterator runs merge rounds until at most fanIn chunks remain and
// returns a live merge over them. The iterator owns those chunks: each is
// released when exhausted or when the iterator is closed. Cancellation is
// checked on every Next.
func (p *MergePhase) MergeIntoIterator(mon Monitor) (RowIterator, error) {
	levels := p.NumLevels(false)
	for level := 0; p.queue.Len() > p.fanIn; level++ {
		sub := SubProgress(mon, float64(level)/float64(levels), 1/float64(levels))
		if err := p.mergeRound(sub, level, levels); err != nil {
			return nil, err
		}
	}
	if err := mon.CheckCanceled(); err != nil {
		return nil, err
	}

	it, err := p.openMerge(p.queue.Drain())
	if err != nil {
		return nil, err
	}
	return &cancelingIterator{it: it, mon: mon}, nil
}

// MergeIntoChunk runs merge rounds until one chunk remains and returns it.
// The caller owns the returned chunk. An empty phase yields an empty chunk.
func (p *MergePhase) MergeIntoChunk(mon Monitor) (Chunk, error) {
	if p.queue.Len() == 0 {
		return newMemChunk(nil), nil
	}
	levels := p.NumLevels(true)
	for level := 0; p.queue.Len() > 1; level++ {
		sub := SubProgress(mon, float64(level)/float64(levels), 1/float64(levels))
		if err := p.mergeRound(sub, level, levels); err != nil {
			return nil, err
		}
	}
	return p.queue.PopFront(), nil
}

// Close releases all queued chunks.
func (p *MergePhase) Close() error {
	return p.queue.ReleaseAll()
}

// mergeRound merges every chunk queued at the start of the round once.
//
// Groups are balanced: with r chunks left and m = ceil(r/fanIn) merges to go,
// the next group takes ceil(r/m) chunks. Merged chunks are appended to the
// back of the queue, so relative order, and with it stability, survives the
// round. A single leftover chunk is moved to the back untouched.
func (p *MergePhase) mergeRound(mon Monitor, level, levels int) error {
	start := time.Now()
	remaining := p.queue.Len()
	p.log.Debug().
		Int("round", level+1).
		Int("rounds_count", levels).
		Int("chunks_count", remaining).
		Int("fan_in", p.fanIn).
		Msg("starting merge round")

	progress := &rowProgress{mon: mon, total: p.numRows, message: fmt.Sprintf("merge level %d of %d", level+1, levels)}
	groups := 0
	for remaining > 1 {
		if err := mon.CheckCanceled(); err != nil {
			return err
		}
		merges := ceilDiv(remaining, p.fanIn)
		take := ceilDiv(remaining, merges)
		merged, err := p.mergeGroup(mon, p.queue.PopN(take), progress)
		if err != nil {
			return err
		}
		p.queue.PushBack(merged)
		remaining -= take
		groups++
	}
	if remaining == 1 {
		p.queue.PushBack(p.queue.PopFront())
	}

	p.log.Debug().
		Int("round", level+1).
		Int("merges_count", groups).
		Int("chunks_count", p.queue.Len()).
		Dur("duration", time.Since(start)).
		Msg("merge round complete")
	return nil
}

// mergeGroup merges group into a new chunk. group is owned from the call on:
// its chunks are released on every path.
func (p *MergePhase) mergeGroup(mon Monitor, group []Chunk, progress *rowProgress) (Chunk, error) {
	it, err := p.openMerge(group)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := it.Close(); err != nil {
			p.log.Warn().Err(err).Msg("close merge sources")
		}
	}()

	w, err := p.factory.CreateChunk(p.schema)
	if err != nil {
		return nil, fmt.Errorf("create merge chunk: %w", err)
	}
	success := false
	defer func() {
		if !success {
			if err := w.Discard(); err != nil {
				p.log.Warn().Err(err).Msg("discard partial merge chunk")
			}
		}
	}()

	var n int64
	for {
		row, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := w.Append(row); err != nil {
			return nil, fmt.Errorf("write merge chunk: %w", err)
		}
		n++
		if n%cancelCheckInterval == 0 {
			if err := mon.CheckCanceled(); err != nil {
				return nil, err
			}
			progress.add(cancelCheckInterval)
		}
	}
	progress.add(n % cancelCheckInterval)

	if err := it.Close(); err != nil {
		return nil, err
	}
	chunk, err := w.Seal()
	if err != nil {
		return nil, fmt.Errorf("seal merge chunk: %w", err)
	}
	success = true
	return chunk, nil
}

// openMerge starts a merge that owns chunks. A single chunk is iterated
// directly.
func (p *MergePhase) openMerge(chunks []Chunk) (rowMerger, error) {
	if len(chunks) == 1 {
		return newSingleMerger(chunks[0]), nil
	}
	sources := make([]RowIterator, len(chunks))
	for i, c := range chunks {
		sources[i] = newChunkSource(c)
	}
	it, err := NewMergeIterator(p.compare, sources)
	if err != nil {
		return nil, fmt.Errorf("open merge of %d chunks: %w", len(chunks), err)
	}
	return it, nil
}

// rowMerger is the subset of MergeIterator the phase relies on.
type rowMerger interface {
	RowIterator
	HasNext() bool
}

// singleMerger adapts one chunk to rowMerger. The chunk is released as soon
// as its last row has been read.
type singleMerger struct {
	src       *chunkSource
	remaining int64
}

func newSingleMerger(c Chunk) *singleMerger {
	return &singleMerger{src: newChunkSource(c), remaining: c.Len()}
}

func (s *singleMerger) HasNext() bool {
	return s.remaining > 0
}

func (s *singleMerger) Next() (*table.Row, error) {
	if s.remaining <= 0 {
		return nil, ErrExhausted
	}
	row, err := s.src.Next()
	if errors.Is(err, io.EOF) {
		s.remaining = 0
		if err := s.src.Close(); err != nil {
			return nil, err
		}
		return nil, ErrExhausted
	}
	if err != nil {
		return nil, err
	}
	s.remaining--
	if s.remaining == 0 {
		if err := s.src.Close(); err != nil {
			return nil, err
		}
	}
	return row, nil
}

func (s *singleMerger) Close() error {
	s.remaining = 0
	return s.src.Close()
}

// cancelingIterator checks for cancellation before every row. Once canceled
// it closes the wrapped iterator and keeps returning the cancellation error.
type cancelingIterator struct {
	it  rowMerger
	mon Monitor
	err error
}

func (c *cancelingIterator) Next() (*table.Row, error) {
	if c.err != nil {
		return nil, c.err
	}
	if err := c.mon.CheckCanceled(); err != nil {
		c.err = err
		_ = c.it.Close()
		return nil, err
	}
	return c.it.Next()
}

func (c *cancelingIterator) HasNext() bool {
	return c.err == nil && c.it.HasNext()
}

func (c *cancelingIterator) Close() error {
	return c.it.Close()
}

// rowProgress reports rows merged within one level.
type rowProgress struct {
	mon     Monitor
	total   int64
	done    int64
	message string
}

func (r *rowProgress) add(n int64) {
	if n == 0 || r.total <= 0 {
		return
	}
	r.done += n
	r.mon.SetProgress(float64(r.done)/float64(r.total), r.message)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
