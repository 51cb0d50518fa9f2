package extsort

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/tablesort/internal/logctx"
	"github.com/eunmann/tablesort/pkg/table"
)

// Stats describes the most recent sort run by a Sorter.
type Stats struct {
	Rows          int64
	Chunks        int
	SpilledChunks int
	MergeLevels   int
	InMemory      bool
	// Duration is the time until the result was ready. When the final merge
	// is streamed it runs while the caller reads and is not included.
	Duration time.Duration
}

// Sorter sorts row streams that may not fit in memory.
//
// A Sorter may be reused for several sorts but not concurrently.
type Sorter struct {
	config  Config
	schema  *table.Schema
	compare CompareFunc
	factory ContainerFactory
	stats   Stats
}

// NewSorter validates cfg and returns a Sorter. compare must be a total
// order over rows of schema, such as rowcmp.Comparator.Compare.
func NewSorter(schema *table.Schema, compare CompareFunc, factory ContainerFactory, cfg Config) (*Sorter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if schema == nil || compare == nil || factory == nil {
		return nil, fmt.Errorf("%w: schema, comparator and container factory are required", ErrInvalidConfig)
	}
	if cfg.MinRunSize <= 0 {
		cfg.MinRunSize = cfg.FanIn
	}
	return &Sorter{
		config:  cfg,
		schema:  schema,
		compare: compare,
		factory: factory,
	}, nil
}

// Config returns the sorter configuration.
func (s *Sorter) Config() Config {
	return s.config
}

// Stats returns statistics of the last completed sort.
func (s *Sorter) Stats() Stats {
	return s.stats
}

// SortedIterator sorts input and returns an iterator over the result.
//
// By default the final merge is streamed: the returned iterator performs it
// lazily and checks ctx before every row. With MaterializeFinalMerge the
// final merge is written to a chunk first. Either way the iterator owns the
// remaining intermediate storage and the caller must Close it.
//
// rowCountEstimate is used for progress and the in-memory fast path; pass a
// negative value when unknown.
func (s *Sorter) SortedIterator(ctx context.Context, input RowSource, rowCountEstimate int64) (RowIterator, error) {
	mon := NewMonitor(ctx, s.config.Progress)
	log := logctx.FromContext(ctx)
	start := time.Now()

	if s.useInMemory(rowCountEstimate) {
		rows, err := s.sortInMemory(mon, input, rowCountEstimate, log, start)
		if err != nil {
			return nil, err
		}
		return FromRows(rows), nil
	}

	phase, err := s.chunk(SubProgress(mon, 0, 0.5), input, rowCountEstimate, log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := phase.Close(); err != nil {
			log.Warn().Err(err).Msg("release merge chunks")
		}
	}()

	mergeMon := SubProgress(mon, 0.5, 0.5)
	var it RowIterator
	if s.config.MaterializeFinalMerge {
		s.stats.MergeLevels = phase.NumLevels(true)
		chunk, err := phase.MergeIntoChunk(mergeMon)
		if err != nil {
			return nil, fmt.Errorf("merge chunks: %w", err)
		}
		it = newSingleMerger(chunk)
	} else {
		s.stats.MergeLevels = phase.NumLevels(false)
		it, err = phase.MergeIntoIterator(mergeMon)
		if err != nil {
			return nil, fmt.Errorf("merge chunks: %w", err)
		}
	}

	s.stats.Duration = time.Since(start)
	log.Info().
		Int64("rows_count", s.stats.Rows).
		Int("chunks_count", s.stats.Chunks).
		Int("merge_levels", s.stats.MergeLevels).
		Bool("streaming", !s.config.MaterializeFinalMerge).
		Dur("duration", s.stats.Duration).
		Msg("sort ready")
	return it, nil
}

// SortedTable sorts input into a single materialized chunk. The caller owns
// the chunk and must Release it.
func (s *Sorter) SortedTable(ctx context.Context, input RowSource, rowCountEstimate int64) (Chunk, error) {
	mon := NewMonitor(ctx, s.config.Progress)
	log := logctx.FromContext(ctx)
	start := time.Now()

	if s.useInMemory(rowCountEstimate) {
		rows, err := s.sortInMemory(mon, input, rowCountEstimate, log, start)
		if err != nil {
			return nil, err
		}
		return newMemChunk(rows), nil
	}

	phase, err := s.chunk(SubProgress(mon, 0, 0.5), input, rowCountEstimate, log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := phase.Close(); err != nil {
			log.Warn().Err(err).Msg("release merge chunks")
		}
	}()

	s.stats.MergeLevels = phase.NumLevels(true)
	chunk, err := phase.MergeIntoChunk(SubProgress(mon, 0.5, 0.5))
	if err != nil {
		return nil, fmt.Errorf("merge chunks: %w", err)
	}
	mon.SetProgress(1, "sort complete")

	s.stats.Duration = time.Since(start)
	log.Info().
		Int64("rows_count", s.stats.Rows).
		Int("chunks_count", s.stats.Chunks).
		Int("merge_levels", s.stats.MergeLevels).
		Dur("duration", s.stats.Duration).
		Msg("sort complete")
	return chunk, nil
}

// Sort is a convenience wrapper that streams the sorted rows into fn.
func (s *Sorter) Sort(ctx context.Context, input RowSource, rowCountEstimate int64, fn func(*table.Row) error) (err error) {
	it, err := s.SortedIterator(ctx, input, rowCountEstimate)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := it.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close sorted iterator: %w", cerr)
		}
	}()
	for {
		row, err := it.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}

func (s *Sorter) useInMemory(rowCountEstimate int64) bool {
	return s.config.SortInMemory && rowCountEstimate <= maxInMemoryRows
}

// sortInMemory reads everything into one buffer and sorts it stably.
func (s *Sorter) sortInMemory(mon Monitor, input RowSource, rowCountEstimate int64,
	log zerolog.Logger, start time.Time,
) ([]*table.Row, error) {
	s.stats = Stats{InMemory: true}
	var rows []*table.Row
	if rowCountEstimate > 0 {
		rows = make([]*table.Row, 0, min(rowCountEstimate, 1<<20))
	}
	for {
		row, err := input.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read input row %d: %w", len(rows), err)
		}
		if row == nil {
			return nil, fmt.Errorf("read input row %d: nil row", len(rows))
		}
		rows = append(rows, row)
		if len(rows)%cancelCheckInterval == 0 {
			if err := mon.CheckCanceled(); err != nil {
				return nil, err
			}
		}
	}
	if err := mon.CheckCanceled(); err != nil {
		return nil, err
	}
	if len(rows) > 1 {
		slices.SortStableFunc(rows, s.compare)
	}
	mon.SetProgress(1, "sorted in memory")

	s.stats.Rows = int64(len(rows))
	s.stats.Chunks = 1
	s.stats.Duration = time.Since(start)
	log.Info().
		Int("rows_count", len(rows)).
		Dur("duration", s.stats.Duration).
		Msg("sorted in memory")
	return rows, nil
}

// chunk runs the chunking phase and hands its chunks to a new MergePhase.
func (s *Sorter) chunk(mon Monitor, input RowSource, rowCountEstimate int64, log zerolog.Logger) (*MergePhase, error) {
	s.stats = Stats{}
	log.Info().
		Int64("rows_estimate", rowCountEstimate).
		Int("max_rows_per_chunk", s.config.MaxRowsPerChunk).
		Int64("memory_limit_bytes", s.config.MemoryLimit).
		Int("fan_in", s.config.FanIn).
		Msg("starting external sort")

	producer := newChunkProducer(s.schema, s.compare, s.factory, s.config, log)
	res, err := producer.produce(mon, input, rowCountEstimate)
	if err != nil {
		return nil, fmt.Errorf("create chunks: %w", err)
	}
	s.stats.Rows = res.numRows
	s.stats.Chunks = len(res.chunks)
	s.stats.SpilledChunks = res.spilled

	return NewMergePhase(s.schema, s.compare, s.factory, s.config.FanIn, res.chunks, res.numRows, log)
}
