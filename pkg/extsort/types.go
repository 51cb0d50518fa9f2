// Package extsort implements an out-of-core k-way merge sort for table rows.
//
// Sorting runs in two phases:
//  1. Chunking: rows are buffered in bounded memory, stably sorted and
//     spilled through a ContainerFactory as sorted chunks.
//  2. Merging: chunks are merged at most FanIn at a time, round after round,
//     until the final merge can be streamed to the caller or a single
//     materialized chunk remains.
//
// Ties are broken by input order, so the sort is stable for any chunk size
// and fan-in. All work happens on the caller's goroutine. Cancellation is
// cooperative through the caller's context.
package extsort

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/eunmann/tablesort/pkg/sysmem"
	"github.com/eunmann/tablesort/pkg/table"
)

// DefaultFanIn is the default number of chunks merged at once.
const DefaultFanIn = 40

// cancelCheckInterval is how many rows pass between cancellation checks
// inside a chunk or merge group.
const cancelCheckInterval = 1024

// maxInMemoryRows caps the in-memory fast path.
const maxInMemoryRows = math.MaxInt32

var (
	// ErrInvalidConfig is wrapped by configuration errors such as a fan-in
	// below two.
	ErrInvalidConfig = errors.New("invalid sorter configuration")

	// ErrExhausted is returned by MergeIterator.Next when no source has rows
	// left. It matches io.EOF under errors.Is.
	ErrExhausted = fmt.Errorf("iteration exhausted: %w", io.EOF)

	// ErrCanceled is wrapped by the error returned when the caller's context
	// is done. The context error is wrapped as well.
	ErrCanceled = errors.New("sort canceled")

	// ErrCorruptRunFile is wrapped by run file header validation errors.
	ErrCorruptRunFile = errors.New("corrupt run file")
)

// RowSource yields rows in order and returns io.EOF after the last row.
type RowSource interface {
	Next() (*table.Row, error)
}

// RowIterator is a RowSource that holds resources until closed.
type RowIterator interface {
	RowSource
	io.Closer
}

// CompareFunc orders two rows. It must be a total order and must accept nil
// rows (see rowcmp.Comparator.Compare).
type CompareFunc func(a, b *table.Row) int

// ProgressFunc receives progress in [0, 1] with a short message.
type ProgressFunc func(fraction float64, message string)

// SpillFunc reports whether the buffered rows should be spilled now.
type SpillFunc func(bufferedRows int, bufferedBytes int64) bool

// Config configures a Sorter.
type Config struct {
	// MaxRowsPerChunk caps the rows buffered before a chunk is spilled.
	// Zero or negative means no row cap.
	MaxRowsPerChunk int

	// MemoryLimit is the approximate number of buffered row bytes that
	// triggers a spill. Zero disables the memory trigger.
	MemoryLimit int64

	// MinRunSize is the fewest rows a memory-triggered spill writes, so a
	// tight budget cannot degrade into one chunk per row.
	// Default: FanIn.
	MinRunSize int

	// FanIn is the maximum number of chunks open in one merge (k).
	// Must be at least 2. Default: DefaultFanIn.
	FanIn int

	// SortInMemory skips chunking and sorts everything in one buffer when
	// the row count estimate allows it.
	SortInMemory bool

	// MaterializeFinalMerge writes the final merge to a chunk instead of
	// streaming it in SortedIterator.
	MaterializeFinalMerge bool

	// ShouldSpill overrides the memory trigger. MaxRowsPerChunk still
	// applies.
	ShouldSpill SpillFunc

	// Progress receives progress updates. Optional.
	Progress ProgressFunc
}

// DefaultConfig returns defaults scaled to system memory: a quarter of RAM
// for buffered rows, clamped to [64MiB, 4GiB].
func DefaultConfig() Config {
	const (
		minLimit = 64 << 20
		maxLimit = 4 << 30
	)
	limit := int64(sysmem.TotalBytes() / 4)
	limit = max(minLimit, min(limit, maxLimit))

	return Config{
		MaxRowsPerChunk: 1_000_000,
		MemoryLimit:     limit,
		MinRunSize:      DefaultFanIn,
		FanIn:           DefaultFanIn,
	}
}

func (c Config) validate() error {
	if c.FanIn < 2 {
		return fmt.Errorf("%w: fan-in must be at least 2, got %d", ErrInvalidConfig, c.FanIn)
	}
	if c.MemoryLimit < 0 {
		return fmt.Errorf("%w: negative memory limit %d", ErrInvalidConfig, c.MemoryLimit)
	}
	return nil
}
