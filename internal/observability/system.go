package observability

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemUsage is a point-in-time view of host load. Audio capture and the
// speech engine stutter on a saturated host, so /health reports it.
type SystemUsage struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// GetSystemUsage samples CPU and memory utilisation without blocking
func GetSystemUsage(ctx context.Context) (*SystemUsage, error) {
	percentages, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, err
	}
	if len(percentages) == 0 {
		return nil, fmt.Errorf("could not get CPU usage")
	}

	virtualMem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}

	return &SystemUsage{
		CPUPercent:    percentages[0],
		MemoryPercent: virtualMem.UsedPercent,
	}, nil
}
