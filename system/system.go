// Package system reads host resource usage for health reporting.
package system

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// CPUPercent returns the instantaneous CPU usage across all cores.
func CPUPercent() (float64, error) {
	percentages, err := cpu.Percent(0, false)
	if err != nil {
		return 0, fmt.Errorf("reading cpu usage: %w", err)
	}
	if len(percentages) == 0 {
		return 0, fmt.Errorf("no cpu usage samples available")
	}
	return percentages[0], nil
}

// MemoryPercent returns the used fraction of physical memory.
func MemoryPercent() (float64, error) {
	virtualMem, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("reading memory usage: %w", err)
	}
	return virtualMem.UsedPercent, nil
}
