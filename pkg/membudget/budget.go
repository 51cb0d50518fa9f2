// Package membudget tracks an approximate byte budget for buffered rows.
//
// The sorter reserves the estimated size of every buffered row; a failed
// reservation is its signal to spill. Reservations are soft: the caller has
// already allocated the memory and the budget only reports pressure.
package membudget

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/eunmann/tablesort/pkg/sysmem"
)

// DefaultBudgetBytes is the fallback budget when system RAM is unknown.
const DefaultBudgetBytes uint64 = 1 << 30

// Source records how a budget size was chosen.
type Source string

const (
	// SourceAuto means the budget is a fraction of detected RAM.
	SourceAuto Source = "auto"
	// SourceDefault means RAM detection failed and DefaultBudgetBytes is used.
	SourceDefault Source = "default"
	// SourceConfig means the size came from library configuration.
	SourceConfig Source = "config"
	// SourceCLI means the size came from a command line flag.
	SourceCLI Source = "cli"
)

// Config configures a Budget.
type Config struct {
	TotalBytes uint64
	Source     Source
}

// Budget is safe for concurrent use.
type Budget struct {
	total  uint64
	inUse  atomic.Uint64
	source Source
}

// New returns a budget of cfg.TotalBytes.
func New(cfg Config) *Budget {
	return &Budget{total: cfg.TotalBytes, source: cfg.Source}
}

// NewFromSystemRAM returns a budget of fraction of detected RAM, or
// DefaultBudgetBytes when RAM cannot be detected.
func NewFromSystemRAM(fraction float64) *Budget {
	info := sysmem.Detect()
	if !info.Reliable {
		return New(Config{TotalBytes: DefaultBudgetBytes, Source: SourceDefault})
	}
	return New(Config{
		TotalBytes: uint64(float64(info.TotalBytes) * fraction),
		Source:     SourceAuto,
	})
}

// Total returns the budget size in bytes.
func (b *Budget) Total() uint64 {
	return b.total
}

// InUse returns the reserved bytes.
func (b *Budget) InUse() uint64 {
	return b.inUse.Load()
}

// Source returns how the budget size was chosen.
func (b *Budget) Source() Source {
	return b.source
}

// TryReserve reserves n bytes and reports whether the budget still holds.
// On failure nothing is reserved.
func (b *Budget) TryReserve(n uint64) bool {
	for {
		cur := b.inUse.Load()
		next := cur + n
		if next > b.total || next < cur {
			return false
		}
		if b.inUse.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// Release returns n bytes. Releasing more than is reserved clamps to zero.
func (b *Budget) Release(n uint64) {
	for {
		cur := b.inUse.Load()
		next := uint64(0)
		if n < cur {
			next = cur - n
		}
		if b.inUse.CompareAndSwap(cur, next) {
			return
		}
	}
}

func (b *Budget) String() string {
	return fmt.Sprintf("%s of %s in use (%s)",
		humanize.IBytes(b.InUse()), humanize.IBytes(b.total), b.source)
}

// ParseHumanSize parses sizes such as "512MiB", "2GB" or "1048576".
func ParseHumanSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size string")
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, err)
	}
	return n, nil
}

// FormatBytes renders n with binary units, e.g. "1.5 GiB".
func FormatBytes(n uint64) string {
	return humanize.IBytes(n)
}
