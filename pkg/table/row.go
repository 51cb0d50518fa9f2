package table

import (
	"fmt"
	"strconv"
	"strings"
	"unsafe"
)

// Cell is a single typed value. The zero Cell is a missing value.
//
// The CBOR tags define the on-disk encoding used by spill files.
type Cell struct {
	Type  Type    `cbor:"1,keyasint,omitempty"`
	Str   string  `cbor:"2,keyasint,omitempty"`
	Int   int64   `cbor:"3,keyasint,omitempty"`
	Float float64 `cbor:"4,keyasint,omitempty"`
	Bool  bool    `cbor:"5,keyasint,omitempty"`
}

// Missing returns a missing cell.
func Missing() Cell { return Cell{} }

// String returns a string cell.
func String(s string) Cell { return Cell{Type: TypeString, Str: s} }

// Int returns an integer cell.
func Int(v int64) Cell { return Cell{Type: TypeInt, Int: v} }

// Float returns a floating point cell.
func Float(v float64) Cell { return Cell{Type: TypeFloat, Float: v} }

// Bool returns a boolean cell.
func Bool(v bool) Cell { return Cell{Type: TypeBool, Bool: v} }

// IsMissing reports whether the cell holds no value.
func (c Cell) IsMissing() bool {
	return c.Type == 0
}

// Text renders the cell value for text output. Missing cells render as "".
func (c Cell) Text() string {
	switch c.Type {
	case TypeString:
		return c.Str
	case TypeInt:
		return strconv.FormatInt(c.Int, 10)
	case TypeFloat:
		return strconv.FormatFloat(c.Float, 'g', -1, 64)
	case TypeBool:
		return strconv.FormatBool(c.Bool)
	default:
		return ""
	}
}

func (c Cell) String() string {
	if c.IsMissing() {
		return "?"
	}
	return c.Text()
}

// ParseCell parses s as a value of type t. The empty string is a missing cell.
func ParseCell(t Type, s string) (Cell, error) {
	if s == "" {
		return Missing(), nil
	}
	switch t {
	case TypeString:
		return String(s), nil
	case TypeInt:
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return Cell{}, fmt.Errorf("parse int %q: %w", s, err)
		}
		return Int(v), nil
	case TypeFloat:
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Cell{}, fmt.Errorf("parse float %q: %w", s, err)
		}
		return Float(v), nil
	case TypeBool:
		v, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return Cell{}, fmt.Errorf("parse bool %q: %w", s, err)
		}
		return Bool(v), nil
	default:
		return Cell{}, fmt.Errorf("parse cell: unsupported type %v", t)
	}
}

// Row is an immutable record: a unique key plus one cell per column.
// Rows must not be modified once handed to the sorter.
type Row struct {
	Key   string `cbor:"1,keyasint"`
	Cells []Cell `cbor:"2,keyasint,omitempty"`
}

// NewRow creates a row with the given key and cells.
func NewRow(key string, cells ...Cell) *Row {
	return &Row{Key: key, Cells: cells}
}

// NumCells returns the number of cells in the row.
func (r *Row) NumCells() int {
	return len(r.Cells)
}

// Cell returns cell i, or a missing cell when the row is shorter than i+1.
func (r *Row) Cell(i int) Cell {
	if i < 0 || i >= len(r.Cells) {
		return Missing()
	}
	return r.Cells[i]
}

var (
	rowOverhead  = int(unsafe.Sizeof(Row{})) + 8
	cellOverhead = int(unsafe.Sizeof(Cell{}))
)

// SizeHint approximates the heap bytes retained by the row. It is used to
// drive memory based spilling and need not be exact.
func (r *Row) SizeHint() int {
	n := rowOverhead + len(r.Key) + len(r.Cells)*cellOverhead
	for i := range r.Cells {
		n += len(r.Cells[i].Str)
	}
	return n
}

func (r *Row) String() string {
	var sb strings.Builder
	sb.WriteString(r.Key)
	sb.WriteByte('{')
	for i, c := range r.Cells {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.String())
	}
	sb.WriteByte('}')
	return sb.String()
}
