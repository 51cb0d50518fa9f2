package extsort

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/tablesort/pkg/membudget"
	"github.com/eunmann/tablesort/pkg/memdiag"
	"github.com/eunmann/tablesort/pkg/table"
)

// chunkProducer turns an input stream into sorted chunks. Full buffers are
// spilled through the factory; the final partial buffer stays in memory.
type chunkProducer struct {
	schema      *table.Schema
	compare     CompareFunc
	factory     ContainerFactory
	maxRows     int
	minRunSize  int
	shouldSpill SpillFunc
	budget      *membudget.Budget
	log         zerolog.Logger
}

func newChunkProducer(schema *table.Schema, compare CompareFunc, factory ContainerFactory,
	cfg Config, log zerolog.Logger,
) *chunkProducer {
	p := &chunkProducer{
		schema:      schema,
		compare:     compare,
		factory:     factory,
		maxRows:     cfg.MaxRowsPerChunk,
		minRunSize:  cfg.MinRunSize,
		shouldSpill: cfg.ShouldSpill,
		log:         log,
	}
	if p.minRunSize <= 0 {
		p.minRunSize = cfg.FanIn
	}
	if p.shouldSpill == nil && cfg.MemoryLimit > 0 {
		p.budget = membudget.New(membudget.Config{
			TotalBytes: uint64(cfg.MemoryLimit),
			Source:     membudget.SourceConfig,
		})
	}
	return p
}

// chunkResult is the output of the chunking phase.
type chunkResult struct {
	chunks  []Chunk
	numRows int64
	spilled int
}

// produce consumes input until io.EOF. rowCountEstimate drives progress and
// may be negative when unknown. On error every chunk produced so far is
// released.
func (p *chunkProducer) produce(mon Monitor, input RowSource, rowCountEstimate int64) (res chunkResult, err error) {
	defer func() {
		if err != nil {
			if rerr := releaseAll(res.chunks); rerr != nil {
				p.log.Warn().Err(rerr).Msg("release chunks after failed chunking")
			}
			res = chunkResult{}
		}
	}()

	var (
		buf        []*table.Row
		bufBytes   int64
		lowMemory  bool
		start      = time.Now()
		lastReport time.Time
	)

	for {
		row, rerr := input.Next()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return res, fmt.Errorf("read input row %d: %w", res.numRows, rerr)
		}
		if row == nil {
			return res, fmt.Errorf("read input row %d: nil row", res.numRows)
		}

		buf = append(buf, row)
		res.numRows++
		size := int64(row.SizeHint())
		bufBytes += size
		if p.budget != nil && !p.budget.TryReserve(uint64(size)) {
			lowMemory = true
		}

		if res.numRows%cancelCheckInterval == 0 {
			if err := mon.CheckCanceled(); err != nil {
				return res, err
			}
			if rowCountEstimate > 0 && time.Since(lastReport) > 100*time.Millisecond {
				mon.SetProgress(float64(res.numRows)/float64(rowCountEstimate),
					fmt.Sprintf("read %d rows", res.numRows))
				lastReport = time.Now()
			}
		}

		if !p.spillNow(len(buf), bufBytes, lowMemory) {
			continue
		}
		if err := mon.CheckCanceled(); err != nil {
			return res, err
		}
		chunk, err := p.spill(buf)
		if err != nil {
			return res, err
		}
		res.chunks = append(res.chunks, chunk)
		res.spilled++
		if p.budget != nil {
			p.budget.Release(p.budget.InUse())
		}
		clear(buf)
		buf, bufBytes, lowMemory = buf[:0], 0, false
	}

	if err := mon.CheckCanceled(); err != nil {
		return res, err
	}
	if len(buf) > 0 {
		slices.SortStableFunc(buf, p.compare)
		res.chunks = append(res.chunks, newMemChunk(slices.Clip(buf)))
	}
	if p.budget != nil {
		p.budget.Release(p.budget.InUse())
	}

	mon.SetProgress(1, fmt.Sprintf("read %d rows", res.numRows))
	p.log.Debug().
		Int64("rows_count", res.numRows).
		Int("chunks_count", len(res.chunks)).
		Int("spilled_count", res.spilled).
		Dur("duration", time.Since(start)).
		Msg("chunking complete")
	return res, nil
}

func (p *chunkProducer) spillNow(rows int, bytes int64, lowMemory bool) bool {
	if p.maxRows > 0 && rows >= p.maxRows {
		return true
	}
	if rows < p.minRunSize {
		return false
	}
	if p.shouldSpill != nil {
		return p.shouldSpill(rows, bytes)
	}
	return lowMemory
}

// spill sorts buf and writes it through the factory.
func (p *chunkProducer) spill(buf []*table.Row) (Chunk, error) {
	start := time.Now()
	slices.SortStableFunc(buf, p.compare)

	w, err := p.factory.CreateChunk(p.schema)
	if err != nil {
		return nil, fmt.Errorf("create chunk: %w", err)
	}
	for _, row := range buf {
		if err := w.Append(row); err != nil {
			if derr := w.Discard(); derr != nil {
				p.log.Warn().Err(derr).Msg("discard partial chunk")
			}
			return nil, fmt.Errorf("write chunk: %w", err)
		}
	}
	chunk, err := w.Seal()
	if err != nil {
		return nil, fmt.Errorf("seal chunk: %w", err)
	}

	p.log.Debug().
		Int("rows_count", len(buf)).
		Dur("duration", time.Since(start)).
		Msg("spilled chunk")
	if p.budget != nil {
		memdiag.LogWithBudget(p.log, "after chunk spill", p.budget.InUse(), p.budget.Total())
	} else {
		memdiag.Log(p.log, "after chunk spill")
	}
	return chunk, nil
}
