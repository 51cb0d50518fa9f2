package rowcmp

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/eunmann/tablesort/pkg/table"
)

func testSchema() *table.Schema {
	return table.NewSchema(
		table.Column{Name: "name", Type: table.TypeString},
		table.Column{Name: "score", Type: table.TypeInt},
		table.Column{Name: "ratio", Type: table.TypeFloat},
	)
}

func keys(rows []*table.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Key
	}
	return out
}

func TestBuilderErrors(t *testing.T) {
	s := testSchema()
	tests := []struct {
		name  string
		build func() (*Comparator, error)
	}{
		{"duplicate column", func() (*Comparator, error) {
			return On(s).ThenComparingColumn(1).ThenComparingColumn(1, Descending(true)).Build()
		}},
		{"duplicate key", func() (*Comparator, error) {
			return On(s).ThenComparingKey().ThenComparingColumn(0).ThenComparingKey().Build()
		}},
		{"alphanumeric on int", func() (*Comparator, error) {
			return On(s).ThenComparingColumn(1, Alphanumeric()).Build()
		}},
		{"index out of range", func() (*Comparator, error) {
			return On(s).ThenComparingColumn(7).Build()
		}},
		{"negative index", func() (*Comparator, error) {
			return On(s).ThenComparingColumn(-1).Build()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := tt.build()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("err = %v, want ErrInvalidConfig", err)
			}
			if c != nil {
				t.Error("expected nil comparator on error")
			}
		})
	}
}

func TestBuilderErrIsImmediate(t *testing.T) {
	b := On(testSchema()).ThenComparingColumn(2, Alphanumeric())
	if !errors.Is(b.Err(), ErrInvalidConfig) {
		t.Fatalf("Err() = %v, want ErrInvalidConfig right after the bad call", b.Err())
	}
}

func TestNilRows(t *testing.T) {
	c, err := On(testSchema()).ThenComparingColumn(1, Descending(true)).Build()
	if err != nil {
		t.Fatal(err)
	}
	r := table.NewRow("Row0", table.String("a"), table.Int(1))

	if got := c.Compare(nil, r); got != -1 {
		t.Errorf("Compare(nil, r) = %d, want -1", got)
	}
	if got := c.Compare(r, nil); got != 1 {
		t.Errorf("Compare(r, nil) = %d, want 1", got)
	}
	if got := c.Compare(nil, nil); got != 0 {
		t.Errorf("Compare(nil, nil) = %d, want 0", got)
	}
	if got := c.Compare(r, r); got != 0 {
		t.Errorf("Compare(r, r) = %d, want 0", got)
	}
}

func TestMultipleCriteria(t *testing.T) {
	c, err := On(testSchema()).
		ThenComparingColumn(1, Descending(true)).
		ThenComparingColumn(0).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	rows := []*table.Row{
		table.NewRow("r1", table.String("b"), table.Int(1)),
		table.NewRow("r2", table.String("a"), table.Int(5)),
		table.NewRow("r3", table.String("a"), table.Int(1)),
		table.NewRow("r4", table.String("c"), table.Int(5)),
	}
	slices.SortStableFunc(rows, c.Compare)
	want := []string{"r2", "r4", "r3", "r1"}
	if got := keys(rows); !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestKeyCriterion(t *testing.T) {
	rows := []*table.Row{
		table.NewRow("Row10"),
		table.NewRow("Row9"),
		table.NewRow("Row100"),
	}

	plain, err := On(testSchema()).ThenComparingKey().Build()
	if err != nil {
		t.Fatal(err)
	}
	got := slices.Clone(rows)
	slices.SortStableFunc(got, plain.Compare)
	if want := []string{"Row10", "Row100", "Row9"}; !slices.Equal(keys(got), want) {
		t.Errorf("lexicographic = %v, want %v", keys(got), want)
	}

	natural, err := On(testSchema()).ThenComparingKey(Alphanumeric(), Descending(true)).Build()
	if err != nil {
		t.Fatal(err)
	}
	got = slices.Clone(rows)
	slices.SortStableFunc(got, natural.Compare)
	if want := []string{"Row100", "Row10", "Row9"}; !slices.Equal(keys(got), want) {
		t.Errorf("alphanumeric descending = %v, want %v", keys(got), want)
	}
}

func TestAlphanumericColumn(t *testing.T) {
	c, err := On(testSchema()).ThenComparingColumn(0, Alphanumeric()).Build()
	if err != nil {
		t.Fatal(err)
	}
	rows := []*table.Row{
		table.NewRow("a", table.String("file10")),
		table.NewRow("b", table.String("file2")),
		table.NewRow("c", table.String("file1")),
	}
	slices.SortStableFunc(rows, c.Compare)
	if want := []string{"c", "b", "a"}; !slices.Equal(keys(rows), want) {
		t.Errorf("order = %v, want %v", keys(rows), want)
	}
}

func TestCustomCellComparator(t *testing.T) {
	byLength := func(a, b table.Cell) int { return len(a.Str) - len(b.Str) }
	c, err := On(testSchema()).ThenComparingColumn(0, WithCellComparator(byLength)).Build()
	if err != nil {
		t.Fatal(err)
	}
	long := table.NewRow("a", table.String("aaaa"))
	short := table.NewRow("b", table.String("zz"))
	if got := c.Compare(long, short); got != 1 {
		t.Errorf("Compare = %d, want 1", got)
	}
}

// TestMissingPlacementIndependentOfDirection sorts a column with missing
// values under every direction and placement combination.
func TestMissingPlacementIndependentOfDirection(t *testing.T) {
	input := []*table.Row{
		table.NewRow("m1", table.String("x"), table.Missing()),
		table.NewRow("v3", table.String("x"), table.Int(3)),
		table.NewRow("m2", table.String("x"), table.Missing()),
		table.NewRow("v1", table.String("x"), table.Int(1)),
		table.NewRow("v2", table.String("x"), table.Int(2)),
		table.NewRow("m3", table.String("x"), table.Missing()),
	}

	tests := []struct {
		descending   bool
		missingsLast bool
		want         []string
	}{
		{false, false, []string{"m1", "m2", "m3", "v1", "v2", "v3"}},
		{true, false, []string{"m1", "m2", "m3", "v3", "v2", "v1"}},
		{false, true, []string{"v1", "v2", "v3", "m1", "m2", "m3"}},
		{true, true, []string{"v3", "v2", "v1", "m1", "m2", "m3"}},
	}
	for _, tt := range tests {
		name := "asc"
		if tt.descending {
			name = "desc"
		}
		if tt.missingsLast {
			name += "_missingsLast"
		}
		t.Run(name, func(t *testing.T) {
			c, err := On(testSchema()).
				ThenComparingColumn(1, Descending(tt.descending), MissingsLast(tt.missingsLast)).
				Build()
			if err != nil {
				t.Fatal(err)
			}
			rows := slices.Clone(input)
			slices.SortStableFunc(rows, c.Compare)
			if got := keys(rows); !slices.Equal(got, tt.want) {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromColumns(t *testing.T) {
	s := testSchema()
	c, err := FromColumns(s, []string{"score", RowKeyColumn}, []bool{false, true}, true)
	if err != nil {
		t.Fatal(err)
	}
	if c.NumCriteria() != 2 {
		t.Fatalf("NumCriteria() = %d, want 2", c.NumCriteria())
	}
	rows := []*table.Row{
		table.NewRow("b", table.Missing(), table.Missing()),
		table.NewRow("c", table.Missing(), table.Int(1)),
		table.NewRow("a", table.Missing(), table.Int(1)),
		table.NewRow("d", table.Missing(), table.Int(9)),
	}
	slices.SortStableFunc(rows, c.Compare)
	if want := []string{"d", "a", "c", "b"}; !slices.Equal(keys(rows), want) {
		t.Errorf("order = %v, want %v", keys(rows), want)
	}

	_, err = FromColumns(s, []string{"nope"}, []bool{true}, false)
	if !errors.Is(err, ErrInvalidConfig) || !strings.Contains(err.Error(), "nope") {
		t.Errorf("err = %v, want unknown column error", err)
	}
	_, err = FromColumns(s, []string{"score"}, nil, false)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("err = %v, want length mismatch error", err)
	}
}
