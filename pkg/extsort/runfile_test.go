package extsort

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/eunmann/tablesort/pkg/table"
)

func writeRunFile(t *testing.T, path string, compress bool, rows []*table.Row) {
	t.Helper()
	w, err := createRunFile(path, runFileOptions{Compress: compress, Level: CompressionFastest})
	if err != nil {
		t.Fatalf("createRunFile: %v", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestRunFileRoundTrip(t *testing.T) {
	rows := []*table.Row{
		table.NewRow("a", table.Int(1), table.String("x"), table.Missing()),
		table.NewRow("b", table.Float(2.5), table.Bool(true), table.Bool(false)),
		table.NewRow("c"),
		table.NewRow("d", table.Missing(), table.String(""), table.Int(-7)),
	}

	for _, compress := range []bool{false, true} {
		path := filepath.Join(t.TempDir(), "chunk.run")
		writeRunFile(t, path, compress, rows)

		r, err := openRunFile(path, 0)
		if err != nil {
			t.Fatalf("openRunFile: %v", err)
		}
		if r.count != uint64(len(rows)) {
			t.Errorf("compress=%v: count = %d, want %d", compress, r.count, len(rows))
		}
		got := collect(t, r)
		if err := r.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if len(got) != len(rows) {
			t.Fatalf("compress=%v: got %d rows, want %d", compress, len(got), len(rows))
		}
		for i := range rows {
			if got[i].Key != rows[i].Key || got[i].NumCells() != rows[i].NumCells() {
				t.Fatalf("compress=%v: row %d = %v, want %v", compress, i, got[i], rows[i])
			}
			for c := range rows[i].Cells {
				if got[i].Cell(c) != rows[i].Cell(c) {
					t.Errorf("compress=%v: row %d cell %d = %v, want %v",
						compress, i, c, got[i].Cell(c), rows[i].Cell(c))
				}
			}
		}
	}
}

func TestRunFileHeaderFlags(t *testing.T) {
	dir := t.TempDir()
	for _, compress := range []bool{false, true} {
		path := filepath.Join(dir, "chunk.run")
		writeRunFile(t, path, compress, []*table.Row{intRow(0, 1), intRow(1, 2)})

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		info, err := parseRunFileHeader(data[:runFileHeader])
		if err != nil {
			t.Fatalf("parseRunFileHeader: %v", err)
		}
		if info.Compressed != compress || info.Count != 2 || info.UncompressedSize == 0 {
			t.Errorf("header = %+v, compress=%v", info, compress)
		}
	}
}

func TestRunFileCorruptHeader(t *testing.T) {
	dir := t.TempDir()

	t.Run("bad magic", func(t *testing.T) {
		path := filepath.Join(dir, "magic.run")
		writeRunFile(t, path, false, []*table.Row{intRow(0, 1)})
		patchRunFile(t, path, 0, []byte("NOPE"))

		if _, err := openRunFile(path, 0); !errors.Is(err, ErrCorruptRunFile) {
			t.Errorf("error = %v, want ErrCorruptRunFile", err)
		}
	})

	t.Run("bad version", func(t *testing.T) {
		path := filepath.Join(dir, "version.run")
		writeRunFile(t, path, false, []*table.Row{intRow(0, 1)})
		var v [4]byte
		binary.LittleEndian.PutUint32(v[:], 99)
		patchRunFile(t, path, 4, v[:])

		if _, err := openRunFile(path, 0); !errors.Is(err, ErrCorruptRunFile) {
			t.Errorf("error = %v, want ErrCorruptRunFile", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		path := filepath.Join(dir, "short.run")
		if err := os.WriteFile(path, []byte("TSRT"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := openRunFile(path, 0); !errors.Is(err, ErrCorruptRunFile) {
			t.Errorf("error = %v, want ErrCorruptRunFile", err)
		}
	})

	t.Run("count past body", func(t *testing.T) {
		path := filepath.Join(dir, "count.run")
		writeRunFile(t, path, false, []*table.Row{intRow(0, 1), intRow(1, 2)})
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], 5)
		patchRunFile(t, path, 12, n[:])

		r, err := openRunFile(path, 0)
		if err != nil {
			t.Fatalf("openRunFile: %v", err)
		}
		defer r.Close()
		for range 2 {
			if _, err := r.Next(); err != nil {
				t.Fatalf("Next: %v", err)
			}
		}
		if _, err := r.Next(); !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("error = %v, want io.ErrUnexpectedEOF", err)
		}
	})
}

func patchRunFile(t *testing.T, path string, off int64, b []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteAt(b, off); err != nil {
		t.Fatal(err)
	}
}

func TestRunFileAbort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abort.run")
	w, err := createRunFile(path, runFileOptions{Compress: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(intRow(0, 1)); err != nil {
		t.Fatal(err)
	}
	if err := w.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("run file still exists after Abort: %v", err)
	}
	if err := w.Write(intRow(1, 1)); err == nil {
		t.Error("Write after Abort succeeded")
	}
}

func TestDiskFactory(t *testing.T) {
	parent := t.TempDir()
	f, err := NewDiskFactory(DiskConfig{TempDir: parent, Compress: true})
	if err != nil {
		t.Fatalf("NewDiskFactory: %v", err)
	}
	if filepath.Dir(f.Dir()) != parent || filepath.Base(f.Dir()) != "tablesort-"+f.ID() {
		t.Errorf("Dir() = %s, want tablesort-<id> under %s", f.Dir(), parent)
	}

	rows := []*table.Row{intRow(0, 1), intRow(1, 2), intRow(2, 3)}
	chunks := makeChunks(t, f, [][]*table.Row{rows, rows[:1]})
	if f.Live() != 2 {
		t.Errorf("Live() = %d, want 2", f.Live())
	}
	if chunks[0].Len() != 3 || chunks[1].Len() != 1 {
		t.Errorf("Len() = %d, %d, want 3, 1", chunks[0].Len(), chunks[1].Len())
	}

	// Chunks can be read more than once.
	for range 2 {
		it, err := chunks[0].Iterator()
		if err != nil {
			t.Fatalf("Iterator: %v", err)
		}
		assertSameKeys(t, collect(t, it), rows)
		it.Close()
	}

	w, err := f.CreateChunk(testSchema())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append(rows[0]); err != nil {
		t.Fatal(err)
	}
	if f.Live() != 3 {
		t.Errorf("Live() = %d with an open writer, want 3", f.Live())
	}
	if err := w.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if err := w.Discard(); err != nil {
		t.Fatalf("second Discard: %v", err)
	}
	if f.Live() != 2 {
		t.Errorf("Live() = %d after Discard, want 2", f.Live())
	}

	for _, c := range chunks {
		if err := c.Release(); err != nil {
			t.Fatalf("Release: %v", err)
		}
		if err := c.Release(); err != nil {
			t.Fatalf("second Release: %v", err)
		}
	}
	if f.Live() != 0 {
		t.Errorf("Live() = %d after Release, want 0", f.Live())
	}
	if _, err := chunks[0].Iterator(); err == nil {
		t.Error("Iterator on released chunk succeeded")
	}
	entries, err := os.ReadDir(f.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d files left in spill directory", len(entries))
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := os.Stat(f.Dir()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("spill directory still exists: %v", err)
	}
	if _, err := f.CreateChunk(testSchema()); err == nil {
		t.Error("CreateChunk on closed factory succeeded")
	}
}

func TestCompressionLevelString(t *testing.T) {
	tests := map[CompressionLevel]string{
		CompressionFastest:  "fastest",
		CompressionDefault:  "default",
		CompressionBetter:   "better",
		CompressionLevel(9): "level(9)",
	}
	for level, want := range tests {
		if got := level.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(level), got, want)
		}
	}
}
