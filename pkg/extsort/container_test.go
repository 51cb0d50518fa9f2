package extsort

import (
	"errors"
	"io"
	"testing"

	"github.com/eunmann/tablesort/pkg/table"
)

func TestMemoryFactory(t *testing.T) {
	f := NewMemoryFactory()
	w, err := f.CreateChunk(testSchema())
	if err != nil {
		t.Fatal(err)
	}
	rows := []*table.Row{intRow(0, 1), intRow(1, 2)}
	for _, r := range rows {
		if err := w.Append(r); err != nil {
			t.Fatal(err)
		}
	}
	if f.Live() != 0 {
		t.Errorf("Live() = %d before Seal", f.Live())
	}
	chunk, err := w.Seal()
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := w.Seal(); err == nil {
		t.Error("second Seal succeeded")
	}
	if err := w.Append(rows[0]); err == nil {
		t.Error("Append after Seal succeeded")
	}
	if f.Live() != 1 || chunk.Len() != 2 {
		t.Errorf("Live() = %d, Len() = %d, want 1, 2", f.Live(), chunk.Len())
	}

	it, err := chunk.Iterator()
	if err != nil {
		t.Fatal(err)
	}
	assertSameKeys(t, collect(t, it), rows)

	chunk.Release()
	chunk.Release()
	if f.Live() != 0 {
		t.Errorf("Live() = %d after Release", f.Live())
	}
	if _, err := chunk.Iterator(); !errors.Is(err, errChunkReleased) {
		t.Errorf("Iterator after Release = %v, want errChunkReleased", err)
	}
}

func TestChunkSourceReleasesOnClose(t *testing.T) {
	f := NewMemoryFactory()
	chunks := makeChunks(t, f, [][]*table.Row{{intRow(0, 1), intRow(1, 2)}})

	src := newChunkSource(chunks[0])
	if _, err := src.Next(); err != nil {
		t.Fatal(err)
	}
	if err := src.Close(); err != nil {
		t.Fatal(err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if f.Live() != 0 {
		t.Errorf("Live() = %d after Close", f.Live())
	}
	if _, err := src.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next after Close = %v, want io.EOF", err)
	}
}

func TestChunkQueue(t *testing.T) {
	f := NewMemoryFactory()
	var q chunkQueue
	for _, c := range makeChunks(t, f, [][]*table.Row{{intRow(0, 0)}, {intRow(1, 0), intRow(2, 0)}, nil}) {
		q.PushBack(c)
	}
	first := q.PopFront()
	if first.Len() != 1 || q.Len() != 2 {
		t.Fatalf("PopFront: Len() = %d, queue %d", first.Len(), q.Len())
	}
	first.Release()

	if err := q.ReleaseAll(); err != nil {
		t.Fatal(err)
	}
	if q.Len() != 0 || f.Live() != 0 {
		t.Errorf("queue %d, Live() = %d after ReleaseAll", q.Len(), f.Live())
	}
}

func TestFromRows(t *testing.T) {
	rows := []*table.Row{intRow(0, 3), intRow(1, 1)}
	it := FromRows(rows)
	assertSameKeys(t, collect(t, it), rows)
	if err := it.Close(); err != nil {
		t.Fatal(err)
	}
}
