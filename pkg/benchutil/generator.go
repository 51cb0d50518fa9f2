// Package benchutil generates synthetic tables for benchmarks, tests and the
// gen command.
package benchutil

import (
	"fmt"
	"io"
	"math/rand/v2"
	"strings"

	"github.com/eunmann/tablesort/pkg/table"
)

// Column indexes of Schema.
const (
	ColPath = iota
	ColSize
	ColTier
	ColRatio
	ColArchived
)

// Schema returns the schema of generated rows: a file listing with an S3
// style path, a size in bytes, a storage tier, a compression ratio and an
// archived flag.
func Schema() *table.Schema {
	return table.NewSchema(
		table.Column{Name: "path", Type: table.TypeString},
		table.Column{Name: "size", Type: table.TypeInt},
		table.Column{Name: "tier", Type: table.TypeString},
		table.Column{Name: "ratio", Type: table.TypeFloat},
		table.Column{Name: "archived", Type: table.TypeBool},
	)
}

// GeneratorConfig configures synthetic data generation.
type GeneratorConfig struct {
	// NumRows is the total number of rows to generate.
	NumRows int
	// PrefixFanout is the average number of children per directory.
	PrefixFanout int
	// MaxDepth is the maximum directory depth of paths.
	MaxDepth int
	// MissingRate is the probability that size, tier or ratio is missing.
	MissingRate float64
	// Seed for reproducible generation. 0 = use BenchmarkSeed.
	Seed uint64
}

// DefaultConfig returns a reasonable default configuration.
func DefaultConfig(numRows int) GeneratorConfig {
	return GeneratorConfig{
		NumRows:      numRows,
		PrefixFanout: 10,
		MaxDepth:     6,
		MissingRate:  0.02,
		Seed:         BenchmarkSeed,
	}
}

var tierWeights = []struct {
	name   string
	weight float64
}{
	{"STANDARD", 0.60},
	{"STANDARD_IA", 0.15},
	{"GLACIER_IR", 0.10},
	{"INTELLIGENT_TIERING", 0.10},
	{"DEEP_ARCHIVE", 0.05},
}

// Generator yields synthetic rows. Keys are "Row0", "Row1", ... in
// generation order, matching the keys tableio assigns to CSV rows.
//
// Next makes a Generator usable directly as a sorter input.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
	n   int
}

// NewGenerator creates a new data generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Seed == 0 {
		cfg.Seed = BenchmarkSeed
	}
	if cfg.PrefixFanout <= 0 {
		cfg.PrefixFanout = 10
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 1
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

// RowCount returns the number of rows the generator produces in total.
func (g *Generator) RowCount() int64 {
	return int64(g.cfg.NumRows)
}

// Next returns the next row, or io.EOF after NumRows rows.
func (g *Generator) Next() (*table.Row, error) {
	if g.n >= g.cfg.NumRows {
		return nil, io.EOF
	}
	row := table.NewRow(fmt.Sprintf("Row%d", g.n),
		table.String(g.generatePath()),
		g.maybeMissing(table.Int(g.generateSize())),
		g.maybeMissing(table.String(g.generateTier())),
		g.maybeMissing(table.Float(float64(g.rng.IntN(1000))/100)),
		table.Bool(g.rng.IntN(8) == 0),
	)
	g.n++
	return row, nil
}

// Generate returns all remaining rows.
func (g *Generator) Generate() []*table.Row {
	rows := make([]*table.Row, 0, max(0, g.cfg.NumRows-g.n))
	for {
		row, err := g.Next()
		if err != nil {
			return rows
		}
		rows = append(rows, row)
	}
}

func (g *Generator) maybeMissing(c table.Cell) table.Cell {
	if g.cfg.MissingRate > 0 && g.rng.Float64() < g.cfg.MissingRate {
		return table.Missing()
	}
	return c
}

func (g *Generator) generatePath() string {
	depth := 1 + g.rng.IntN(g.cfg.MaxDepth)

	var sb strings.Builder
	for range depth {
		sb.WriteString(g.generateSegment())
		sb.WriteByte('/')
	}
	sb.WriteString(g.generateFilename())
	return sb.String()
}

func (g *Generator) generateSegment() string {
	switch g.rng.IntN(4) {
	case 0: // date partitions
		switch g.rng.IntN(3) {
		case 0:
			return fmt.Sprintf("%d", 2020+g.rng.IntN(5))
		case 1:
			return fmt.Sprintf("hour=%02d", g.rng.IntN(24))
		default:
			return fmt.Sprintf("dt=%d-%02d-%02d", 2020+g.rng.IntN(5), 1+g.rng.IntN(12), 1+g.rng.IntN(28))
		}

	case 1: // numbered ids, unpadded so natural and lexical order differ
		prefixes := []string{"user", "account", "tenant", "org", "project"}
		return fmt.Sprintf("%s%d", prefixes[g.rng.IntN(len(prefixes))], g.rng.IntN(g.cfg.PrefixFanout*100))

	case 2:
		categories := []string{"logs", "data", "exports", "backups", "raw", "processed", "archive", "tmp"}
		return categories[g.rng.IntN(len(categories))]

	default:
		n := g.rng.IntN(g.cfg.PrefixFanout)
		if n < 26 {
			return string(rune('a' + n))
		}
		return string(rune('a'+n/26-1)) + string(rune('a'+n%26))
	}
}

func (g *Generator) generateFilename() string {
	extensions := []string{".json", ".csv", ".parquet", ".txt", ".gz", ".log"}
	return fmt.Sprintf("part-%d%s", g.rng.IntN(10000), extensions[g.rng.IntN(len(extensions))])
}

func (g *Generator) generateSize() int64 {
	// Log-normal-ish: mostly small files, some large.
	switch g.rng.IntN(10) {
	case 0:
		return g.rng.Int64N(1 << 10)
	case 1, 2, 3:
		return 1<<10 + g.rng.Int64N(1<<20)
	case 4, 5, 6, 7:
		return 1<<20 + g.rng.Int64N(100<<20)
	case 8:
		return 100<<20 + g.rng.Int64N(900<<20)
	default:
		return 1<<30 + g.rng.Int64N(4<<30)
	}
}

func (g *Generator) generateTier() string {
	r := g.rng.Float64()
	cumulative := 0.0
	for _, t := range tierWeights {
		cumulative += t.weight
		if r < cumulative {
			return t.name
		}
	}
	return tierWeights[0].name
}
