// Package memdiag logs Go heap statistics at points of interest.
//
// Logging is off unless TABLESORT_MEM_DEBUG=1 is set in the environment.
package memdiag

import (
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// EnvVar enables memory diagnostics when set to "1".
const EnvVar = "TABLESORT_MEM_DEBUG"

var (
	enabled     atomic.Bool
	enabledOnce sync.Once
	peakHeap    atomic.Uint64
)

// Enabled reports whether diagnostics are on.
func Enabled() bool {
	enabledOnce.Do(func() {
		if os.Getenv(EnvVar) == "1" {
			enabled.Store(true)
		}
	})
	return enabled.Load()
}

// SetEnabled overrides the environment setting.
func SetEnabled(on bool) {
	enabledOnce.Do(func() {})
	enabled.Store(on)
}

// Stats is a subset of runtime.MemStats.
type Stats struct {
	HeapAlloc    uint64
	HeapInuse    uint64
	HeapIdle     uint64
	HeapReleased uint64
	Sys          uint64
	NumGC        uint32
	GCCPUPercent float64
}

// Read samples runtime memory statistics and updates the peak heap.
func Read() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	for {
		peak := peakHeap.Load()
		if m.HeapAlloc <= peak || peakHeap.CompareAndSwap(peak, m.HeapAlloc) {
			break
		}
	}
	return Stats{
		HeapAlloc:    m.HeapAlloc,
		HeapInuse:    m.HeapInuse,
		HeapIdle:     m.HeapIdle,
		HeapReleased: m.HeapReleased,
		Sys:          m.Sys,
		NumGC:        m.NumGC,
		GCCPUPercent: m.GCCPUFraction * 100,
	}
}

// PeakHeap returns the largest HeapAlloc seen by Read.
func PeakHeap() uint64 {
	return peakHeap.Load()
}

// Log writes current heap statistics to log at debug level. It does
// nothing unless diagnostics are enabled.
func Log(log zerolog.Logger, reason string) {
	if !Enabled() {
		return
	}
	s := Read()
	log.Debug().
		Str("reason", reason).
		Str("heap_alloc", humanize.IBytes(s.HeapAlloc)).
		Str("heap_inuse", humanize.IBytes(s.HeapInuse)).
		Str("heap_idle", humanize.IBytes(s.HeapIdle)).
		Str("sys_total", humanize.IBytes(s.Sys)).
		Str("peak_heap", humanize.IBytes(PeakHeap())).
		Uint32("num_gc", s.NumGC).
		Float64("gc_cpu_pct", s.GCCPUPercent).
		Msg("memory stats")
}

// LogWithBudget is Log plus the reserved and total bytes of a memory budget.
func LogWithBudget(log zerolog.Logger, reason string, inUse, total uint64) {
	if !Enabled() {
		return
	}
	s := Read()
	var ratio float64
	if inUse > 0 {
		ratio = float64(s.HeapAlloc) / float64(inUse)
	}
	log.Debug().
		Str("reason", reason).
		Str("heap_alloc", humanize.IBytes(s.HeapAlloc)).
		Str("budget_inuse", humanize.IBytes(inUse)).
		Str("budget_total", humanize.IBytes(total)).
		Float64("heap_vs_budget_ratio", ratio).
		Msg("memory stats with budget")
}
