package extsort

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/eunmann/tablesort/pkg/rowcmp"
	"github.com/eunmann/tablesort/pkg/table"
)

// Test rows have two int columns: the sort value v and the input
// position seq. Ties on v must come out in seq order.
func testSchema() *table.Schema {
	return table.NewSchema(
		table.Column{Name: "v", Type: table.TypeInt},
		table.Column{Name: "seq", Type: table.TypeInt},
	)
}

func testCompare(t *testing.T) CompareFunc {
	t.Helper()
	cmp, err := rowcmp.On(testSchema()).ThenComparingColumn(0).Build()
	if err != nil {
		t.Fatalf("build comparator: %v", err)
	}
	return cmp.Compare
}

func intRow(seq, v int) *table.Row {
	return table.NewRow(fmt.Sprintf("r%06d", seq), table.Int(int64(v)), table.Int(int64(seq)))
}

// randomRows returns n rows with values in [0, distinct), so ties are common.
func randomRows(n, distinct int, seed uint64) []*table.Row {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	rows := make([]*table.Row, n)
	for i := range rows {
		rows[i] = intRow(i, rng.IntN(distinct))
	}
	return rows
}

// stableSorted is the expected output for rows.
func stableSorted(rows []*table.Row, compare CompareFunc) []*table.Row {
	out := slices.Clone(rows)
	slices.SortStableFunc(out, compare)
	return out
}

func collect(t *testing.T, it RowSource) []*table.Row {
	t.Helper()
	var rows []*table.Row
	for {
		row, err := it.Next()
		if errors.Is(err, io.EOF) {
			return rows
		}
		if err != nil {
			t.Fatalf("Next after %d rows: %v", len(rows), err)
		}
		rows = append(rows, row)
	}
}

func assertSameKeys(t *testing.T, got, want []*table.Row) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d rows, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Key != want[i].Key {
			t.Fatalf("row %d: key %s (v=%v), want %s (v=%v)",
				i, got[i].Key, got[i].Cell(0), want[i].Key, want[i].Cell(0))
		}
	}
}

// sliceSource is a RowSource over rows that is not closed by the sorter.
type sliceSource struct {
	rows []*table.Row
	pos  int
}

func newSliceSource(rows []*table.Row) *sliceSource {
	return &sliceSource{rows: rows}
}

func (s *sliceSource) Next() (*table.Row, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	s.pos++
	return s.rows[s.pos-1], nil
}

// hookSource calls hook before returning row n (zero based).
type hookSource struct {
	RowSource
	n    int
	at   int
	hook func()
}

func (h *hookSource) Next() (*table.Row, error) {
	if h.n == h.at && h.hook != nil {
		h.hook()
	}
	h.n++
	return h.RowSource.Next()
}

// failingSource fails with err once n rows have been returned.
type failingSource struct {
	RowSource
	n   int
	err error
}

func (f *failingSource) Next() (*table.Row, error) {
	if f.n == 0 {
		return nil, f.err
	}
	f.n--
	return f.RowSource.Next()
}

func makeChunks(t *testing.T, f ContainerFactory, groups [][]*table.Row) []Chunk {
	t.Helper()
	chunks := make([]Chunk, len(groups))
	for i, g := range groups {
		w, err := f.CreateChunk(testSchema())
		if err != nil {
			t.Fatalf("CreateChunk: %v", err)
		}
		for _, row := range g {
			if err := w.Append(row); err != nil {
				t.Fatalf("Append: %v", err)
			}
		}
		if chunks[i], err = w.Seal(); err != nil {
			t.Fatalf("Seal: %v", err)
		}
	}
	return chunks
}

// splitSorted cuts rows into sorted groups of the given sizes, in order.
func splitSorted(rows []*table.Row, compare CompareFunc, sizes ...int) [][]*table.Row {
	var groups [][]*table.Row
	for _, n := range sizes {
		g := slices.Clone(rows[:n])
		slices.SortStableFunc(g, compare)
		groups = append(groups, g)
		rows = rows[n:]
	}
	return groups
}

func canceledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// flakyFactory wraps a MemoryFactory and fails the n-th call (one based) of
// op, which is "create", "append" or "seal".
type flakyFactory struct {
	*MemoryFactory
	op     string
	n      int
	err    error
	calls  int
	failed bool
}

func (f *flakyFactory) hit(op string) error {
	if op != f.op {
		return nil
	}
	f.calls++
	if f.calls == f.n {
		f.failed = true
		return f.err
	}
	return nil
}

func (f *flakyFactory) CreateChunk(schema *table.Schema) (ChunkWriter, error) {
	if err := f.hit("create"); err != nil {
		return nil, err
	}
	w, err := f.MemoryFactory.CreateChunk(schema)
	if err != nil {
		return nil, err
	}
	return &flakyWriter{ChunkWriter: w, f: f}, nil
}

type flakyWriter struct {
	ChunkWriter
	f *flakyFactory
}

func (w *flakyWriter) Append(row *table.Row) error {
	if err := w.f.hit("append"); err != nil {
		return err
	}
	return w.ChunkWriter.Append(row)
}

func (w *flakyWriter) Seal() (Chunk, error) {
	if err := w.f.hit("seal"); err != nil {
		_ = w.ChunkWriter.Discard()
		return nil, err
	}
	return w.ChunkWriter.Seal()
}
