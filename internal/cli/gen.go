package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/eunmann/tablesort/internal/logctx"
	"github.com/eunmann/tablesort/pkg/benchutil"
	"github.com/eunmann/tablesort/pkg/logging"
	"github.com/eunmann/tablesort/pkg/table"
)

type genFlags struct {
	out       string
	rows      int
	seed      uint64
	missing   float64
	depth     int
	keyColumn string
	verbose   bool
	pretty    bool
}

func parseGenFlags(args []string) (genFlags, error) {
	defaults := benchutil.DefaultConfig(0)
	var f genFlags

	fs := flag.NewFlagSet("gen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.out, "out", "-", "output CSV path, - for stdout; .gz is compressed")
	fs.IntVar(&f.rows, "rows", 100000, "number of rows")
	fs.Uint64Var(&f.seed, "seed", defaults.Seed, "random seed")
	fs.Float64Var(&f.missing, "missing", defaults.MissingRate, "probability of a missing size, tier or ratio")
	fs.IntVar(&f.depth, "depth", defaults.MaxDepth, "maximum path depth")
	fs.StringVar(&f.keyColumn, "key-column", "", "write row keys to this column")
	fs.BoolVar(&f.verbose, "v", false, "debug logging")
	fs.BoolVar(&f.pretty, "pretty", false, "human-friendly console logging")

	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.rows < 0 {
		return f, errors.New("-rows must not be negative")
	}
	if f.missing < 0 || f.missing > 1 {
		return f, errors.New("-missing must be within [0, 1]")
	}
	if fs.NArg() > 0 {
		return f, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return f, nil
}

// runGen writes a synthetic table, for trying out and benchmarking sort.
func runGen(ctx context.Context, args []string) error {
	f, err := parseGenFlags(args)
	if err != nil {
		return err
	}
	logging.Init(f.verbose, f.pretty)
	ctx = logctx.WithLogger(ctx, logging.WithPhase("gen"))
	log := logctx.FromContext(ctx)
	start := time.Now()

	cfg := benchutil.DefaultConfig(f.rows)
	cfg.Seed = f.seed
	cfg.MissingRate = f.missing
	cfg.MaxDepth = f.depth
	g := benchutil.NewGenerator(cfg)

	err = writeCSV(f.out, benchutil.Schema(), f.keyColumn, func(write func(*table.Row) error) error {
		for n := 0; ; n++ {
			row, err := g.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			if err := write(row); err != nil {
				return err
			}
			if n%4096 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
		}
	})
	if err != nil {
		return fmt.Errorf("generate %s: %w", f.out, err)
	}

	log.Info().
		Int("rows_count", f.rows).
		Str("output", f.out).
		Dur("duration", time.Since(start)).
		Msg("generated table")
	fmt.Fprintf(stderr, "generated %s rows\n", humanize.Comma(int64(f.rows)))
	return nil
}
