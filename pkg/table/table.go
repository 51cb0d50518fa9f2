// Package table defines the row and schema model consumed by the sorter.
//
// A Row is an immutable tuple of typed cells plus a unique row key. Rows carry
// no intrinsic ordering; ordering is supplied by a comparator built from a
// Schema (see package rowcmp).
package table

import (
	"fmt"
	"strings"
)

// Type is the declared value type of a column.
type Type uint8

const (
	// TypeString holds arbitrary text.
	TypeString Type = iota + 1
	// TypeInt holds signed 64-bit integers.
	TypeInt
	// TypeFloat holds 64-bit floating point numbers.
	TypeFloat
	// TypeBool holds booleans.
	TypeBool
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// IsStringCompatible reports whether values of this type can be compared
// as text, e.g. by the alphanumeric comparator.
func (t Type) IsStringCompatible() bool {
	return t == TypeString
}

// ParseType parses a type name as written in CSV headers.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "string", "str", "text":
		return TypeString, nil
	case "int", "integer", "long":
		return TypeInt, nil
	case "float", "double", "number":
		return TypeFloat, nil
	case "bool", "boolean":
		return TypeBool, nil
	default:
		return 0, fmt.Errorf("unknown column type %q", s)
	}
}

// Column describes one column of a Schema.
type Column struct {
	Name string
	Type Type
}

// Schema is the ordered list of columns of a table.
type Schema struct {
	columns []Column
	byName  map[string]int
}

// NewSchema creates a schema from the given columns. When names repeat, the
// first column with that name wins in FindColumnIndex.
func NewSchema(cols ...Column) *Schema {
	s := &Schema{
		columns: append([]Column(nil), cols...),
		byName:  make(map[string]int, len(cols)),
	}
	for i, c := range cols {
		if _, ok := s.byName[c.Name]; !ok {
			s.byName[c.Name] = i
		}
	}
	return s
}

// NumColumns returns the number of columns.
func (s *Schema) NumColumns() int {
	return len(s.columns)
}

// Column returns the column at index i.
func (s *Schema) Column(i int) Column {
	return s.columns[i]
}

// Columns returns a copy of all columns.
func (s *Schema) Columns() []Column {
	return append([]Column(nil), s.columns...)
}

// FindColumnIndex returns the index of the named column, or -1.
func (s *Schema) FindColumnIndex(name string) int {
	if i, ok := s.byName[name]; ok {
		return i
	}
	return -1
}

// ColumnType returns the declared type of column i.
func (s *Schema) ColumnType(i int) Type {
	return s.columns[i].Type
}

func (s *Schema) String() string {
	parts := make([]string, len(s.columns))
	for i, c := range s.columns {
		parts[i] = c.Name + ":" + c.Type.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
