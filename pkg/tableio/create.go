package tableio

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/eunmann/tablesort/pkg/table"
)

// CSVFile is a CSVWriter over a file it owns.
type CSVFile struct {
	*CSVWriter
	gz   *gzip.Writer
	file io.WriteCloser
}

// CreateCSV creates name and writes the header for schema. "-" writes to
// stdout. Names ending in ".gz" are gzip compressed.
func CreateCSV(name string, schema *table.Schema, keyColumn string) (*CSVFile, error) {
	out := &CSVFile{}
	var w io.Writer
	if name == "-" {
		out.file = nopWriteCloser{os.Stdout}
		w = os.Stdout
	} else {
		f, err := os.Create(name)
		if err != nil {
			return nil, fmt.Errorf("create output: %w", err)
		}
		out.file, w = f, f
	}
	if strings.HasSuffix(strings.ToLower(name), ".gz") {
		out.gz = gzip.NewWriter(w)
		w = out.gz
	}

	cw, err := NewCSVWriter(w, schema, keyColumn)
	if err != nil {
		out.abort(name)
		return nil, err
	}
	out.CSVWriter = cw
	return out, nil
}

// Close flushes all layers and closes the file.
func (f *CSVFile) Close() error {
	err := f.Flush()
	if f.gz != nil {
		if gerr := f.gz.Close(); gerr != nil && err == nil {
			err = fmt.Errorf("close gzip writer: %w", gerr)
		}
	}
	if cerr := f.file.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close output: %w", cerr)
	}
	return err
}

func (f *CSVFile) abort(name string) {
	f.file.Close()
	if name != "-" {
		os.Remove(name)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
