package observability

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/jonathan/echo-pipeline/internal/types"
)

// SystemInfo describes the host a run executed on
type SystemInfo struct {
	CPUCount        int     `json:"cpu_count"`
	MemoryTotal     uint64  `json:"memory_total"`
	MemoryAvailable uint64  `json:"memory_available"`
	MemoryPercent   float64 `json:"memory_percent"`
	DiskPercent     float64 `json:"disk_percent"`
	CPUPercent      float64 `json:"cpu_percent"`
}

// SampleSystem reads host-wide CPU, memory and disk figures.
// Figures that cannot be read are left at zero.
func SampleSystem(diskPath string) SystemInfo {
	var info SystemInfo
	if n, err := cpu.Counts(true); err == nil {
		info.CPUCount = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryTotal = vm.Total
		info.MemoryAvailable = vm.Available
		info.MemoryPercent = vm.UsedPercent
	}
	if du, err := disk.Usage(diskPath); err == nil {
		info.DiskPercent = du.UsedPercent
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		info.CPUPercent = pct[0]
	}
	return info
}

// SampleProcess reads the current process's resource usage
func SampleProcess() types.ResourceUsage {
	usage := types.ResourceUsage{Goroutines: runtime.NumGoroutine()}

	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pids fit in int32
	if err != nil {
		return usage
	}
	if pct, err := proc.CPUPercent(); err == nil {
		usage.CPUPercent = pct
	}
	if pct, err := proc.MemoryPercent(); err == nil {
		usage.MemoryPercent = pct
	}
	if mi, err := proc.MemoryInfo(); err == nil {
		usage.MemoryRSS = mi.RSS
		usage.MemoryVMS = mi.VMS
	}
	return usage
}
