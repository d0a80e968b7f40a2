package worker

import (
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// hostInfo reports CPU count and total memory for the register
// message. Failures degrade to zero values rather than blocking
// registration.
func hostInfo() (cpus int, memBytes uint64) {
	if n, err := cpu.Counts(true); err == nil {
		cpus = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		memBytes = vm.Total
	}
	return cpus, memBytes
}
