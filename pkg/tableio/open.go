package tableio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/eunmann/tablesort/internal/logctx"
	"github.com/eunmann/tablesort/pkg/s3fetch"
	"github.com/eunmann/tablesort/pkg/table"
)

// Format is an input file format.
type Format int

const (
	// FormatCSV is plain CSV.
	FormatCSV Format = iota + 1
	// FormatCSVGzip is gzip compressed CSV.
	FormatCSVGzip
	// FormatParquet is a flat parquet file.
	FormatParquet
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatCSVGzip:
		return "csv.gz"
	case FormatParquet:
		return "parquet"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// DetectFormat infers the format from a file name or object key.
func DetectFormat(name string) (Format, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".parquet"):
		return FormatParquet, nil
	case strings.HasSuffix(lower, ".csv.gz"), strings.HasSuffix(lower, ".tsv.gz"):
		return FormatCSVGzip, nil
	case strings.HasSuffix(lower, ".csv"), strings.HasSuffix(lower, ".tsv"):
		return FormatCSV, nil
	default:
		return 0, fmt.Errorf("cannot infer table format of %q (want .csv, .csv.gz or .parquet)", name)
	}
}

// Reader is an open table.
type Reader interface {
	// Next returns the next row or io.EOF.
	Next() (*table.Row, error)
	Schema() *table.Schema
	// RowCountEstimate returns the row count if known, or -1.
	RowCountEstimate() int64
	Close() error
}

// Options configures Open.
type Options struct {
	// KeyColumn names the column holding row keys. Optional.
	KeyColumn string

	// Comma is the CSV delimiter. Default: ',' or '\t' for .tsv names.
	Comma rune

	// S3 is used for s3:// URIs. If nil, a client is created from the
	// default AWS configuration.
	S3 *s3fetch.Client

	// Download configures the temp file download of S3 parquet objects.
	Download s3fetch.DownloaderConfig
}

// Open opens a local path or s3://bucket/key as a table. The format is
// inferred from the name.
func Open(ctx context.Context, uri string, opts Options) (Reader, error) {
	format, err := DetectFormat(uri)
	if err != nil {
		return nil, err
	}
	if opts.Comma == 0 && strings.Contains(strings.ToLower(path.Base(uri)), ".tsv") {
		opts.Comma = '\t'
	}
	log := logctx.FromContext(ctx)

	var r Reader
	if s3fetch.IsS3URI(uri) {
		r, err = openS3(ctx, uri, format, opts)
	} else {
		r, err = openLocal(uri, format, opts)
	}
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("input", uri).
		Stringer("format", format).
		Int("columns_count", r.Schema().NumColumns()).
		Int64("rows_estimate", r.RowCountEstimate()).
		Msg("opened table")
	return r, nil
}

func openLocal(name string, format Format, opts Options) (Reader, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}

	if format == FormatParquet {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("stat input: %w", err)
		}
		pr, err := NewParquetReader(f, info.Size(), ParquetOptions{KeyColumn: opts.KeyColumn})
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		pr.closer = f
		return pr, nil
	}

	r, err := newCSVStream(f, format, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return r, nil
}

func openS3(ctx context.Context, uri string, format Format, opts Options) (Reader, error) {
	bucket, key, err := s3fetch.ParseS3URI(uri)
	if err != nil {
		return nil, err
	}
	client := opts.S3
	if client == nil {
		if client, err = s3fetch.NewClient(ctx); err != nil {
			return nil, err
		}
	}

	if format == FormatParquet {
		tf, res, err := client.Downloader(opts.Download).Download(ctx, bucket, key)
		if err != nil {
			return nil, err
		}
		log := logctx.FromContext(ctx)
		log.Debug().
			Str("input", uri).
			Int64("bytes", res.BytesDownloaded).
			Dur("duration", res.Duration).
			Msg("downloaded parquet object")

		pr, err := NewParquetReader(tf, res.BytesDownloaded, ParquetOptions{KeyColumn: opts.KeyColumn})
		if err != nil {
			tf.Close()
			return nil, fmt.Errorf("%s: %w", uri, err)
		}
		pr.closer = tf
		return pr, nil
	}

	body, err := client.StreamObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	r, err := newCSVStream(body, format, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", uri, err)
	}
	return r, nil
}

// newCSVStream takes ownership of rc and closes it on error.
func newCSVStream(rc io.ReadCloser, format Format, opts Options) (*CSVReader, error) {
	closers := []io.Closer{rc}
	var src io.Reader = rc
	if format == FormatCSVGzip {
		gz, err := gzip.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		closers = append(closers, gz)
		src = gz
	}

	r, err := NewCSVReader(src, CSVOptions{KeyColumn: opts.KeyColumn, Comma: opts.Comma})
	if err != nil {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
		return nil, err
	}
	r.closers = closers
	return r, nil
}
