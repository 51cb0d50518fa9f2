//go:build freebsd || openbsd || netbsd || dragonfly

package sysmem

import "golang.org/x/sys/unix"

// hw.realmem is FreeBSD only.
var sysctlNames = []string{"hw.physmem", "hw.realmem"}

func physicalMemory() (uint64, bool) {
	for _, name := range sysctlNames {
		if n, err := unix.SysctlUint64(name); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}
