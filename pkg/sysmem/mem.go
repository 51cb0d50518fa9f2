// Package sysmem detects the amount of physical memory on the host.
package sysmem

// FallbackBytes is reported when the platform gives no answer.
const FallbackBytes uint64 = 4 << 30

// Info is the outcome of a memory probe.
type Info struct {
	TotalBytes uint64
	// Reliable is false when TotalBytes is FallbackBytes.
	Reliable bool
}

// Detect probes physical memory, falling back to FallbackBytes.
func Detect() Info {
	n, ok := physicalMemory()
	if !ok || n == 0 {
		return Info{TotalBytes: FallbackBytes}
	}
	return Info{TotalBytes: n, Reliable: true}
}

// TotalBytes returns Detect().TotalBytes.
func TotalBytes() uint64 {
	return Detect().TotalBytes
}
