package benchutil

import (
	"os"
	"testing"
)

// LongBenchEnv gates the scaling benchmarks.
const LongBenchEnv = "TABLESORT_LONG_BENCH"

// SkipIfNoLongBench skips the benchmark if TABLESORT_LONG_BENCH is not set.
func SkipIfNoLongBench(b *testing.B) {
	if os.Getenv(LongBenchEnv) == "" {
		b.Skipf("set %s=1 to run scaling benchmark", LongBenchEnv)
	}
}
