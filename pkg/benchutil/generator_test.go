package benchutil

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestGeneratorDeterministic(t *testing.T) {
	a := NewGenerator(DefaultConfig(200)).Generate()
	b := NewGenerator(DefaultConfig(200)).Generate()
	if len(a) != 200 || len(b) != 200 {
		t.Fatalf("generated %d and %d rows, want 200", len(a), len(b))
	}
	for i := range a {
		if a[i].String() != b[i].String() {
			t.Fatalf("row %d differs: %v vs %v", i, a[i], b[i])
		}
	}

	cfg := DefaultConfig(200)
	cfg.Seed = 7
	c := NewGenerator(cfg).Generate()
	same := 0
	for i := range a {
		if a[i].Cell(ColPath) == c[i].Cell(ColPath) {
			same++
		}
	}
	if same == len(a) {
		t.Error("different seeds produced identical paths")
	}
}

func TestGeneratorRows(t *testing.T) {
	cfg := DefaultConfig(500)
	cfg.MissingRate = 0.2
	g := NewGenerator(cfg)
	schema := Schema()
	if g.RowCount() != 500 {
		t.Errorf("RowCount() = %d, want 500", g.RowCount())
	}

	missing := 0
	for i := 0; ; i++ {
		row, err := g.Next()
		if errors.Is(err, io.EOF) {
			if i != 500 {
				t.Errorf("EOF after %d rows, want 500", i)
			}
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if row.NumCells() != schema.NumColumns() {
			t.Fatalf("row %d has %d cells", i, row.NumCells())
		}
		for c := range schema.NumColumns() {
			cell := row.Cell(c)
			if cell.IsMissing() {
				missing++
				continue
			}
			if cell.Type != schema.ColumnType(c) {
				t.Fatalf("row %d column %d: type %s, want %s", i, c, cell.Type, schema.ColumnType(c))
			}
		}
		if p := row.Cell(ColPath); p.IsMissing() || !strings.Contains(p.Str, "/") {
			t.Errorf("row %d: path %v", i, p)
		}
	}
	if missing == 0 {
		t.Error("no missing cells at MissingRate 0.2")
	}
	if _, err := g.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next after the end = %v, want io.EOF", err)
	}
}

func TestGeneratorNoMissing(t *testing.T) {
	cfg := DefaultConfig(100)
	cfg.MissingRate = 0
	for _, row := range NewGenerator(cfg).Generate() {
		for c := range row.NumCells() {
			if row.Cell(c).IsMissing() {
				t.Fatalf("row %s has a missing cell", row.Key)
			}
		}
	}
}
