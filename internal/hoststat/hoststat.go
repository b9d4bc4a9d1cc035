// Package hoststat reports host disk and CPU/memory statistics for the
// /disk control-API endpoint and the recording session's disk gating,
// grounded on the same gopsutil/v3 modules the teacher's health handler
// uses for its own system metrics.
package hoststat

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Reporter reads host statistics via gopsutil.
type Reporter struct{}

// New builds a Reporter.
func New() *Reporter {
	return &Reporter{}
}

// FreeGB returns free space in gigabytes for the filesystem containing path.
// Satisfies recording.DiskStatter.
func (r *Reporter) FreeGB(path string) (float64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return float64(usage.Free) / (1024 * 1024 * 1024), nil
}

// DiskUsage is the raw usage snapshot for a filesystem path.
type DiskUsage struct {
	TotalGB     float64 `json:"total_gb"`
	UsedGB      float64 `json:"used_gb"`
	FreeGB      float64 `json:"free_gb"`
	UsedPercent float64 `json:"used_percent"`
}

// Usage returns a full usage snapshot for path.
func (r *Reporter) Usage(path string) (DiskUsage, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return DiskUsage{}, err
	}
	const gb = 1024 * 1024 * 1024
	return DiskUsage{
		TotalGB:     float64(usage.Total) / gb,
		UsedGB:      float64(usage.Used) / gb,
		FreeGB:      float64(usage.Free) / gb,
		UsedPercent: usage.UsedPercent,
	}, nil
}

// SystemLoad is a point-in-time CPU/memory snapshot.
type SystemLoad struct {
	Cores           int     `json:"cores"`
	CPUPercent      float64 `json:"cpu_percent"`
	MemoryUsedMB    float64 `json:"memory_used_mb"`
	MemoryTotalMB   float64 `json:"memory_total_mb"`
	MemoryPercent   float64 `json:"memory_percent"`
}

// Load samples instantaneous CPU and memory utilization.
func (r *Reporter) Load() (SystemLoad, error) {
	load := SystemLoad{Cores: runtime.NumCPU()}

	percentages, err := cpu.Percent(0, false)
	if err == nil && len(percentages) > 0 {
		load.CPUPercent = percentages[0]
	}

	vm, err := mem.VirtualMemory()
	if err == nil && vm != nil {
		load.MemoryUsedMB = float64(vm.Used) / 1024 / 1024
		load.MemoryTotalMB = float64(vm.Total) / 1024 / 1024
		load.MemoryPercent = vm.UsedPercent
	}

	return load, nil
}
