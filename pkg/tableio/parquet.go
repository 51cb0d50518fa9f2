package tableio

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/eunmann/tablesort/pkg/table"
)

// parquetBatchSize is the number of rows read from a row group at once.
const parquetBatchSize = 1024

// ParquetOptions configures a ParquetReader.
type ParquetOptions struct {
	// KeyColumn names the column holding row keys. If empty, keys are
	// generated as Row0, Row1, ...
	KeyColumn string
}

// ParquetReader streams rows from a flat parquet file, one row group at a
// time. Null values become missing cells.
type ParquetReader struct {
	file    *parquet.File
	schema  *table.Schema
	keyLeaf int   // -1 if keys are generated
	leafCol []int // schema column of each leaf, -1 for the key
	closer  io.Closer

	rowGroups []parquet.RowGroup
	rgIdx     int
	rows      parquet.Rows
	buf       []parquet.Row
	bufIdx    int
	bufLen    int
	n         int64
}

// NewParquetReader opens a parquet file of size bytes from r.
func NewParquetReader(r io.ReaderAt, size int64, opts ParquetOptions) (*ParquetReader, error) {
	file, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	pr := &ParquetReader{
		file:      file,
		keyLeaf:   -1,
		rowGroups: file.RowGroups(),
		rgIdx:     -1,
		buf:       make([]parquet.Row, parquetBatchSize),
	}
	var cols []table.Column
	for i, field := range file.Schema().Fields() {
		if !field.Leaf() || field.Repeated() {
			return nil, fmt.Errorf("parquet column %q: only flat, non-repeated columns are supported", field.Name())
		}
		if opts.KeyColumn != "" && field.Name() == opts.KeyColumn && pr.keyLeaf < 0 {
			pr.keyLeaf = i
			pr.leafCol = append(pr.leafCol, -1)
			continue
		}
		pr.leafCol = append(pr.leafCol, len(cols))
		cols = append(cols, table.Column{Name: field.Name(), Type: parquetType(field.Type().Kind())})
	}
	if opts.KeyColumn != "" && pr.keyLeaf < 0 {
		return nil, fmt.Errorf("key column %q not found in parquet schema", opts.KeyColumn)
	}
	pr.schema = table.NewSchema(cols...)
	return pr, nil
}

func parquetType(k parquet.Kind) table.Type {
	switch k {
	case parquet.Boolean:
		return table.TypeBool
	case parquet.Int32, parquet.Int64:
		return table.TypeInt
	case parquet.Float, parquet.Double:
		return table.TypeFloat
	default:
		return table.TypeString
	}
}

// Schema returns the columns of the file, minus the key column.
func (r *ParquetReader) Schema() *table.Schema {
	return r.schema
}

// RowCountEstimate returns the row count from the file footer.
func (r *ParquetReader) RowCountEstimate() int64 {
	return r.file.NumRows()
}

// Next returns the next row or io.EOF.
func (r *ParquetReader) Next() (*table.Row, error) {
	for {
		if r.bufIdx < r.bufLen {
			row := r.convert(r.buf[r.bufIdx])
			r.bufIdx++
			return row, nil
		}

		if r.rows != nil {
			n, err := r.rows.ReadRows(r.buf)
			if n > 0 {
				r.bufIdx, r.bufLen = 0, n
				continue
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("read parquet row group %d: %w", r.rgIdx, err)
			}
			if err := r.rows.Close(); err != nil {
				return nil, fmt.Errorf("close parquet row group %d: %w", r.rgIdx, err)
			}
			r.rows = nil
		}

		r.rgIdx++
		if r.rgIdx >= len(r.rowGroups) {
			return nil, io.EOF
		}
		r.rows = r.rowGroups[r.rgIdx].Rows()
	}
}

func (r *ParquetReader) convert(prow parquet.Row) *table.Row {
	cells := make([]table.Cell, r.schema.NumColumns())
	key := ""
	hasKey := false
	for _, v := range prow {
		leaf := v.Column()
		if leaf < 0 || leaf >= len(r.leafCol) {
			continue
		}
		if leaf == r.keyLeaf {
			if !v.IsNull() {
				key, hasKey = valueString(v), true
			}
			continue
		}
		col := r.leafCol[leaf]
		cells[col] = parquetCell(r.schema.ColumnType(col), v)
	}
	if !hasKey {
		key = "Row" + strconv.FormatInt(r.n, 10)
	}
	r.n++
	return table.NewRow(key, cells...)
}

func parquetCell(t table.Type, v parquet.Value) table.Cell {
	if v.IsNull() {
		return table.Missing()
	}
	switch t {
	case table.TypeBool:
		return table.Bool(v.Boolean())
	case table.TypeInt:
		if v.Kind() == parquet.Int32 {
			return table.Int(int64(v.Int32()))
		}
		return table.Int(v.Int64())
	case table.TypeFloat:
		if v.Kind() == parquet.Float {
			return table.Float(float64(v.Float()))
		}
		return table.Float(v.Double())
	default:
		return table.String(valueString(v))
	}
}

// valueString copies byte array values out of the reader's page buffers.
func valueString(v parquet.Value) string {
	switch v.Kind() {
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}

// Close releases the current row group and the underlying file, if the
// reader owns it.
func (r *ParquetReader) Close() error {
	var firstErr error
	if r.rows != nil {
		firstErr = r.rows.Close()
		r.rows = nil
	}
	if r.closer != nil {
		if err := r.closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.closer = nil
	}
	return firstErr
}
