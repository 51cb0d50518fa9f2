package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/eunmann/tablesort/internal/logctx"
	"github.com/eunmann/tablesort/pkg/extsort"
	"github.com/eunmann/tablesort/pkg/logging"
	"github.com/eunmann/tablesort/pkg/membudget"
	"github.com/eunmann/tablesort/pkg/memdiag"
	"github.com/eunmann/tablesort/pkg/table"
	"github.com/eunmann/tablesort/pkg/tableio"
)

type sortFlags struct {
	in          string
	out         string
	by          string
	keyColumn   string
	chunkRows   int
	fanIn       int
	mem         string
	tmp         string
	compress    bool
	inMemory    bool
	materialize bool
	verbose     bool
	pretty      bool
}

func parseSortFlags(args []string) (sortFlags, error) {
	defaults := extsort.DefaultConfig()
	var f sortFlags

	fs := flag.NewFlagSet("sort", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.in, "in", "", "input table: local path or s3://bucket/key (.csv, .csv.gz, .tsv, .parquet)")
	fs.StringVar(&f.out, "out", "-", "output CSV path, - for stdout; .gz is compressed")
	fs.StringVar(&f.by, "by", "", "sort keys: col[:desc][:alnum][:missing-last],... (@key for the row key)")
	fs.StringVar(&f.keyColumn, "key-column", "", "input column holding row keys")
	fs.IntVar(&f.chunkRows, "chunk-rows", defaults.MaxRowsPerChunk, "max rows per sorted chunk")
	fs.IntVar(&f.fanIn, "fan-in", defaults.FanIn, "max chunks merged at once")
	fs.StringVar(&f.mem, "mem", "", "memory for buffered rows, e.g. 512MiB (default: a quarter of RAM)")
	fs.StringVar(&f.tmp, "tmp", "", "directory for spilled chunks (default: system temp dir)")
	fs.BoolVar(&f.compress, "compress", true, "zstd compress spilled chunks")
	fs.BoolVar(&f.inMemory, "in-memory", false, "sort in memory when the row count allows it")
	fs.BoolVar(&f.materialize, "materialize", false, "write the final merge to disk before output")
	fs.BoolVar(&f.verbose, "v", false, "debug logging")
	fs.BoolVar(&f.pretty, "pretty", false, "human-friendly console logging")

	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.in == "" {
		return f, errors.New("-in is required")
	}
	if f.by == "" {
		return f, errors.New("-by is required")
	}
	if fs.NArg() > 0 {
		return f, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return f, nil
}

func (f sortFlags) sorterConfig() (extsort.Config, error) {
	cfg := extsort.DefaultConfig()
	cfg.MaxRowsPerChunk = f.chunkRows
	cfg.FanIn = f.fanIn
	cfg.MinRunSize = f.fanIn
	cfg.SortInMemory = f.inMemory
	cfg.MaterializeFinalMerge = f.materialize
	if f.mem != "" {
		n, err := membudget.ParseHumanSize(f.mem)
		if err != nil {
			return cfg, fmt.Errorf("-mem: %w", err)
		}
		cfg.MemoryLimit = int64(n)
	}
	return cfg, nil
}

func runSort(ctx context.Context, args []string) error {
	f, err := parseSortFlags(args)
	if err != nil {
		return err
	}
	logging.Init(f.verbose, f.pretty)
	ctx = logctx.WithLogger(ctx, logging.WithPhase("sort"))
	ctx = logctx.WithStr(ctx, "input", f.in)
	log := logctx.FromContext(ctx)
	start := time.Now()

	cfg, err := f.sorterConfig()
	if err != nil {
		return err
	}
	keys, err := parseSortKeys(f.by)
	if err != nil {
		return fmt.Errorf("-by: %w", err)
	}

	in, err := tableio.Open(ctx, f.in, tableio.Options{KeyColumn: f.keyColumn})
	if err != nil {
		return err
	}
	defer func() {
		if err := in.Close(); err != nil {
			log.Warn().Err(err).Msg("close input")
		}
	}()

	schema := in.Schema()
	cmp, err := buildComparator(schema, keys)
	if err != nil {
		return fmt.Errorf("-by: %w", err)
	}

	progress := logging.NewProgressLogger(log, "sort", 0)
	cfg.Progress = progress.Update

	factory, err := extsort.NewDiskFactory(extsort.DiskConfig{TempDir: f.tmp, Compress: f.compress})
	if err != nil {
		return err
	}
	defer func() {
		if err := factory.Close(); err != nil {
			log.Warn().Err(err).Msg("remove spill directory")
		}
	}()

	sorter, err := extsort.NewSorter(schema, cmp.Compare, factory, cfg)
	if err != nil {
		return err
	}

	log.Info().
		Str("output", f.out).
		Str("memory_limit", membudget.FormatBytes(uint64(cfg.MemoryLimit))).
		Int("fan_in", cfg.FanIn).
		Str("spill_dir", factory.Dir()).
		Msg("sorting")
	memdiag.Log(log, "before sort")

	err = writeCSV(f.out, schema, f.keyColumn, func(write func(*table.Row) error) error {
		return sorter.Sort(ctx, in, in.RowCountEstimate(), write)
	})
	if err != nil {
		return fmt.Errorf("sort %s: %w", f.in, err)
	}
	memdiag.Log(log, "after sort")

	stats := sorter.Stats()
	elapsed := time.Since(start)
	logging.LogSortComplete(log, logging.SortSummary{
		Rows:          stats.Rows,
		Chunks:        stats.Chunks,
		SpilledChunks: stats.SpilledChunks,
		MergeLevels:   stats.MergeLevels,
		InMemory:      stats.InMemory,
		Elapsed:       elapsed,
	})
	fmt.Fprintf(stderr, "sorted %s rows in %s\n", humanize.Comma(stats.Rows), elapsed.Round(time.Millisecond))
	return nil
}
