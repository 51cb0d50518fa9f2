// Package tableio reads and writes tables for the sorter: CSV (optionally
// gzip compressed) and flat parquet files, from local disk or S3.
package tableio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/eunmann/tablesort/pkg/table"
)

// CSVOptions configures a CSVReader.
type CSVOptions struct {
	// KeyColumn names the header column holding row keys. It is not part
	// of the schema. If empty, keys are generated as Row0, Row1, ...
	KeyColumn string

	// Comma is the field delimiter. Default: ','.
	Comma rune
}

// CSVReader reads rows from CSV with a header line. Header cells are
// "name" or "name:type", where type is one of string, int, float or bool.
// Empty fields become missing cells.
type CSVReader struct {
	r       *csv.Reader
	schema  *table.Schema
	keyIdx  int   // -1 if keys are generated
	colIdx  []int // record index of each schema column
	n       int64
	closers []io.Closer
}

// NewCSVReader reads the header from r.
func NewCSVReader(r io.Reader, opts CSVOptions) (*CSVReader, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("read CSV header: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	reader := &CSVReader{r: cr, keyIdx: -1}
	var cols []table.Column
	for i, h := range header {
		col := parseHeaderCell(h)
		if opts.KeyColumn != "" && col.Name == opts.KeyColumn && reader.keyIdx < 0 {
			reader.keyIdx = i
			continue
		}
		cols = append(cols, col)
		reader.colIdx = append(reader.colIdx, i)
	}
	if opts.KeyColumn != "" && reader.keyIdx < 0 {
		return nil, fmt.Errorf("key column %q not found in CSV header", opts.KeyColumn)
	}
	reader.schema = table.NewSchema(cols...)
	return reader, nil
}

// parseHeaderCell splits "name:type". A suffix that is not a type name is
// part of the column name.
func parseHeaderCell(h string) table.Column {
	h = strings.TrimSpace(h)
	if i := strings.LastIndexByte(h, ':'); i > 0 {
		if t, err := table.ParseType(h[i+1:]); err == nil {
			return table.Column{Name: h[:i], Type: t}
		}
	}
	return table.Column{Name: h, Type: table.TypeString}
}

// Schema returns the columns read from the header.
func (r *CSVReader) Schema() *table.Schema {
	return r.schema
}

// RowCountEstimate returns -1: CSV row counts are unknown up front.
func (r *CSVReader) RowCountEstimate() int64 {
	return -1
}

// Next returns the next row or io.EOF.
func (r *CSVReader) Next() (*table.Row, error) {
	record, err := r.r.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV row %d: %w", r.n, err)
	}

	key := "Row" + strconv.FormatInt(r.n, 10)
	if r.keyIdx >= 0 {
		key = record[r.keyIdx]
	}
	cells := make([]table.Cell, len(r.colIdx))
	for i, idx := range r.colIdx {
		c, err := table.ParseCell(r.schema.ColumnType(i), record[idx])
		if err != nil {
			return nil, fmt.Errorf("CSV row %d, column %q: %w", r.n, r.schema.Column(i).Name, err)
		}
		cells[i] = c
	}
	r.n++
	return table.NewRow(key, cells...), nil
}

// Close closes any streams the reader was opened over, innermost first.
func (r *CSVReader) Close() error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.closers = nil
	return firstErr
}

// CSVWriter writes rows as CSV with a "name:type" header, so the output
// can be read back by CSVReader.
type CSVWriter struct {
	w       *csv.Writer
	schema  *table.Schema
	withKey bool
	record  []string
	n       int64
}

// NewCSVWriter writes the header for schema. A non-empty keyColumn adds a
// leading column with the row keys.
func NewCSVWriter(w io.Writer, schema *table.Schema, keyColumn string) (*CSVWriter, error) {
	cw := &CSVWriter{w: csv.NewWriter(w), schema: schema, withKey: keyColumn != ""}

	header := make([]string, 0, schema.NumColumns()+1)
	if cw.withKey {
		header = append(header, keyColumn)
	}
	for _, col := range schema.Columns() {
		header = append(header, col.Name+":"+col.Type.String())
	}
	if err := cw.w.Write(header); err != nil {
		return nil, fmt.Errorf("write CSV header: %w", err)
	}
	cw.record = make([]string, len(header))
	return cw, nil
}

// Write appends one row.
func (w *CSVWriter) Write(row *table.Row) error {
	rec := w.record[:0]
	if w.withKey {
		rec = append(rec, row.Key)
	}
	for i := range w.schema.NumColumns() {
		rec = append(rec, row.Cell(i).Text())
	}
	if err := w.w.Write(rec); err != nil {
		return fmt.Errorf("write CSV row %d: %w", w.n, err)
	}
	w.n++
	return nil
}

// Rows returns the number of rows written.
func (w *CSVWriter) Rows() int64 {
	return w.n
}

// Flush writes buffered data to the underlying writer.
func (w *CSVWriter) Flush() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		return fmt.Errorf("flush CSV: %w", err)
	}
	return nil
}
