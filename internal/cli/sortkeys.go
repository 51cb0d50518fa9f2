package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/eunmann/tablesort/pkg/rowcmp"
	"github.com/eunmann/tablesort/pkg/table"
)

// keyAlias is a shorthand for rowcmp.RowKeyColumn in -by.
const keyAlias = "@key"

// sortKey is one criterion of the -by flag.
type sortKey struct {
	Column       string
	Descending   bool
	Alphanumeric bool
	MissingLast  bool
}

// parseSortKeys parses "col[:asc|:desc][:alnum][:missing-last|:missing-first],...".
// Modifiers are taken from the right, so column names may contain colons.
func parseSortKeys(spec string) ([]sortKey, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, errors.New("empty sort specification")
	}

	var keys []sortKey
	for _, part := range strings.Split(spec, ",") {
		tokens := strings.Split(strings.TrimSpace(part), ":")
		var k sortKey
	modifiers:
		for len(tokens) > 1 {
			switch strings.ToLower(tokens[len(tokens)-1]) {
			case "asc":
				k.Descending = false
			case "desc":
				k.Descending = true
			case "alnum":
				k.Alphanumeric = true
			case "missing-last":
				k.MissingLast = true
			case "missing-first":
				k.MissingLast = false
			default:
				break modifiers
			}
			tokens = tokens[:len(tokens)-1]
		}
		k.Column = strings.Join(tokens, ":")
		if k.Column == "" {
			return nil, fmt.Errorf("sort key %q has no column", part)
		}
		if k.Column == keyAlias {
			k.Column = rowcmp.RowKeyColumn
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// buildComparator resolves keys against schema. A real column named like
// the row key pseudo column takes precedence.
func buildComparator(schema *table.Schema, keys []sortKey) (*rowcmp.Comparator, error) {
	b := rowcmp.On(schema)
	for _, k := range keys {
		opts := []rowcmp.Option{rowcmp.Descending(k.Descending)}
		if k.Alphanumeric {
			opts = append(opts, rowcmp.Alphanumeric())
		}

		idx := schema.FindColumnIndex(k.Column)
		switch {
		case idx >= 0:
			opts = append(opts, rowcmp.MissingsLast(k.MissingLast))
			b.ThenComparingColumn(idx, opts...)
		case k.Column == rowcmp.RowKeyColumn:
			b.ThenComparingKey(opts...)
		default:
			return nil, fmt.Errorf("%w: unknown column %q (have %s)", rowcmp.ErrInvalidConfig, k.Column, schema)
		}
	}
	return b.Build()
}
