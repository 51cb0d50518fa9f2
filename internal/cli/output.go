package cli

import (
	"path/filepath"

	"github.com/eunmann/tablesort/pkg/fileutil"
	"github.com/eunmann/tablesort/pkg/table"
	"github.com/eunmann/tablesort/pkg/tableio"
)

// writeCSV creates a CSV table at path and hands its row writer to fill.
// Files are written to a temporary name beside path and moved into place
// only when fill succeeds, so a failed or canceled sort never leaves a
// truncated output. "-" streams to stdout.
func writeCSV(path string, schema *table.Schema, keyColumn string, fill func(write func(*table.Row) error) error) error {
	if path == "-" {
		return fillCSV(path, schema, keyColumn, fill)
	}
	return fileutil.WriteTmpThenMove(filepath.Dir(path), path, func(tmpPath string) error {
		return fillCSV(tmpPath, schema, keyColumn, fill)
	})
}

func fillCSV(path string, schema *table.Schema, keyColumn string, fill func(write func(*table.Row) error) error) error {
	out, err := tableio.CreateCSV(path, schema, keyColumn)
	if err != nil {
		return err
	}
	if err := fill(out.Write); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
