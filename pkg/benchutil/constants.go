package benchutil

// Shared constants for benchmarks across packages.

// BenchmarkSeed is the default seed for reproducible benchmark data generation.
const BenchmarkSeed = 42

// BenchmarkSizes are row counts for quick runs.
var BenchmarkSizes = []int{1000, 10000, 100000}

// ScalingSizes are larger row counts for scaling runs.
// Used with TABLESORT_LONG_BENCH=1 environment variable.
var ScalingSizes = []int{250000, 1000000, 4000000}

// FanIns are the merge widths compared by the merge benchmarks.
var FanIns = []int{2, 8, 40}
