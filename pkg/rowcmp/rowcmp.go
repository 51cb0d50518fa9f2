// Package rowcmp builds composite row comparators.
//
// A Comparator is an ordered list of criteria. Each criterion compares either
// the row key or one column; the first non-zero criterion decides. Rows that
// tie on every criterion compare equal, leaving stability to the sorter.
//
//	cmp, err := rowcmp.On(schema).
//		ThenComparingColumn(2, rowcmp.Descending(true), rowcmp.MissingsLast(true)).
//		ThenComparingKey(rowcmp.Alphanumeric()).
//		Build()
package rowcmp

import (
	"cmp"
	"errors"
	"fmt"
	"strings"

	"github.com/eunmann/tablesort/pkg/alphanum"
	"github.com/eunmann/tablesort/pkg/table"
)

// ErrInvalidConfig is wrapped by every builder configuration error.
var ErrInvalidConfig = errors.New("invalid comparator configuration")

// CellComparator compares two present (non-missing) cells.
type CellComparator func(a, b table.Cell) int

// defaultCellComparators maps a column type to its natural ordering.
var defaultCellComparators = map[table.Type]CellComparator{
	table.TypeString: func(a, b table.Cell) int { return strings.Compare(a.Str, b.Str) },
	table.TypeInt:    func(a, b table.Cell) int { return cmp.Compare(a.Int, b.Int) },
	table.TypeFloat:  func(a, b table.Cell) int { return cmp.Compare(a.Float, b.Float) },
	table.TypeBool:   compareBool,
}

func compareBool(a, b table.Cell) int {
	switch {
	case a.Bool == b.Bool:
		return 0
	case !a.Bool:
		return -1
	default:
		return 1
	}
}

// compareCells orders cells by their own type first, so a column holding
// mixed types still sorts deterministically.
func compareCells(a, b table.Cell) int {
	if a.Type != b.Type {
		return cmp.Compare(a.Type, b.Type)
	}
	return defaultCellComparators[a.Type](a, b)
}

// Option configures one criterion.
type Option func(*criterion)

// Descending reverses the order of present values. Placement of missing
// values is unaffected.
func Descending(descending bool) Option {
	return func(c *criterion) { c.descending = descending }
}

// MissingsLast places missing values after all present values when true and
// before them when false, regardless of direction.
func MissingsLast(last bool) Option {
	return func(c *criterion) { c.missingsLast = last }
}

// Alphanumeric compares values with natural ordering. It is only valid on
// string-compatible columns and on the row key.
func Alphanumeric() Option {
	return func(c *criterion) { c.alphanumeric = true }
}

// WithCellComparator replaces the type's default ordering for a column.
func WithCellComparator(fn CellComparator) Option {
	return func(c *criterion) { c.cellCmp = fn }
}

const keyIndex = -1

type criterion struct {
	column       int
	descending   bool
	missingsLast bool
	alphanumeric bool
	cellCmp      CellComparator
}

func (c *criterion) compare(a, b *table.Row) int {
	if c.column == keyIndex {
		var r int
		if c.alphanumeric {
			r = alphanum.Compare(a.Key, b.Key)
		} else {
			r = strings.Compare(a.Key, b.Key)
		}
		if c.descending {
			r = -r
		}
		return r
	}

	ca, cb := a.Cell(c.column), b.Cell(c.column)
	missingA, missingB := ca.IsMissing(), cb.IsMissing()
	if missingA || missingB {
		if missingA && missingB {
			return 0
		}
		r := 1
		if missingA {
			r = -1
		}
		if c.missingsLast {
			r = -r
		}
		return r
	}

	r := normalize(c.cellCmp(ca, cb))
	if c.descending {
		r = -r
	}
	return r
}

// Builder accumulates criteria. The first configuration error is kept and
// returned by Build; later calls become no-ops.
type Builder struct {
	schema   *table.Schema
	criteria []criterion
	seen     map[int]bool
	err      error
}

// On starts a comparator over rows of the given schema.
func On(schema *table.Schema) *Builder {
	return &Builder{
		schema: schema,
		seen:   make(map[int]bool),
	}
}

// ThenComparingKey appends a criterion on the row key. Only one key
// criterion is allowed. MissingsLast and WithCellComparator do not apply
// to keys and are ignored.
func (b *Builder) ThenComparingKey(opts ...Option) *Builder {
	if b.err != nil {
		return b
	}
	if b.seen[keyIndex] {
		b.err = fmt.Errorf("%w: row key is already a sort criterion", ErrInvalidConfig)
		return b
	}
	c := criterion{column: keyIndex}
	for _, opt := range opts {
		opt(&c)
	}
	b.seen[keyIndex] = true
	b.criteria = append(b.criteria, c)
	return b
}

// ThenComparingColumn appends a criterion on column index.
func (b *Builder) ThenComparingColumn(index int, opts ...Option) *Builder {
	if b.err != nil {
		return b
	}
	if b.schema == nil || index < 0 || index >= b.schema.NumColumns() {
		b.err = fmt.Errorf("%w: column index %d out of range", ErrInvalidConfig, index)
		return b
	}
	if b.seen[index] {
		b.err = fmt.Errorf("%w: column %q is already a sort criterion",
			ErrInvalidConfig, b.schema.Column(index).Name)
		return b
	}

	colType := b.schema.ColumnType(index)
	c := criterion{column: index}
	for _, opt := range opts {
		opt(&c)
	}

	switch {
	case c.alphanumeric && !colType.IsStringCompatible():
		b.err = fmt.Errorf("%w: alphanumeric comparison on column %q of type %s",
			ErrInvalidConfig, b.schema.Column(index).Name, colType)
		return b
	case c.alphanumeric && c.cellCmp == nil:
		c.cellCmp = func(x, y table.Cell) int { return alphanum.Compare(x.Text(), y.Text()) }
	case c.cellCmp == nil:
		c.cellCmp = compareCells
	}

	b.seen[index] = true
	b.criteria = append(b.criteria, c)
	return b
}

// Err returns the first configuration error, if any.
func (b *Builder) Err() error {
	return b.err
}

// Build returns the comparator or the first configuration error.
func (b *Builder) Build() (*Comparator, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &Comparator{criteria: append([]criterion(nil), b.criteria...)}, nil
}

// Comparator is an immutable composite row ordering. It is safe for
// concurrent use.
type Comparator struct {
	criteria []criterion
}

// Compare returns -1, 0 or 1. A nil row compares less than any row, in
// either argument position.
func (c *Comparator) Compare(a, b *table.Row) int {
	switch {
	case a == b:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	for i := range c.criteria {
		if r := c.criteria[i].compare(a, b); r != 0 {
			return r
		}
	}
	return 0
}

// NumCriteria returns the number of criteria.
func (c *Comparator) NumCriteria() int {
	return len(c.criteria)
}

func normalize(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}
