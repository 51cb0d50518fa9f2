package rowcmp

import (
	"fmt"

	"github.com/eunmann/tablesort/pkg/table"
)

// RowKeyColumn is the pseudo column name that selects the row key in
// FromColumns. A real column with this name takes precedence.
const RowKeyColumn = "-ROWKEY -"

// FromColumns builds a comparator from column names and per-column
// directions. missingsLast applies to every column criterion.
func FromColumns(schema *table.Schema, names []string, ascending []bool, missingsLast bool) (*Comparator, error) {
	if schema == nil {
		return nil, fmt.Errorf("%w: nil schema", ErrInvalidConfig)
	}
	if len(names) != len(ascending) {
		return nil, fmt.Errorf("%w: %d columns but %d directions", ErrInvalidConfig, len(names), len(ascending))
	}

	b := On(schema)
	for i, name := range names {
		desc := Descending(!ascending[i])
		idx := schema.FindColumnIndex(name)
		if idx == -1 {
			if name != RowKeyColumn {
				return nil, fmt.Errorf("%w: unknown column %q", ErrInvalidConfig, name)
			}
			b.ThenComparingKey(desc)
			continue
		}
		b.ThenComparingColumn(idx, desc, MissingsLast(missingsLast))
	}
	return b.Build()
}
