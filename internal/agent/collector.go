package agent

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"

	"pulsewatch/internal/models"
)

const (
	mib = 1024 * 1024
	gib = 1024 * 1024 * 1024
)

// Source produces one metrics sample.
type Source interface {
	Collect(ctx context.Context) (models.ServerMetrics, error)
}

// HostSource reads metrics of the local machine.
type HostSource struct {
	DiskPath string
	// CPUWindow is how long CPU usage is sampled for.
	CPUWindow time.Duration
}

// Collect samples CPU, memory, disk, network and load. CPU, memory and disk
// are required; network and load are best effort.
func (h HostSource) Collect(ctx context.Context) (models.ServerMetrics, error) {
	var sm models.ServerMetrics

	pct, err := cpu.PercentWithContext(ctx, h.CPUWindow, false)
	if err != nil {
		return sm, fmt.Errorf("cpu: %w", err)
	}
	if len(pct) > 0 {
		sm.CPUUsage = clampPct(pct[0])
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return sm, fmt.Errorf("memory: %w", err)
	}
	sm.MemoryUsage = clampPct(vm.UsedPercent)
	sm.MemoryUsedMB = math.Round(float64(vm.Used) / mib)
	sm.MemoryTotalMB = math.Round(float64(vm.Total) / mib)

	path := h.DiskPath
	if path == "" {
		path = "/"
	}
	du, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return sm, fmt.Errorf("disk %s: %w", path, err)
	}
	sm.DiskUsage = clampPct(du.UsedPercent)
	sm.DiskUsedGB = round2(float64(du.Used) / gib)
	sm.DiskTotalGB = round2(float64(du.Total) / gib)

	if io, err := net.IOCountersWithContext(ctx, false); err == nil && len(io) > 0 {
		sm.NetworkIn = float64(io[0].BytesRecv)
		sm.NetworkOut = float64(io[0].BytesSent)
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		sm.LoadAverage = []float64{avg.Load1, avg.Load5, avg.Load15}
	}
	return sm, nil
}

func clampPct(v float64) float64 {
	return round2(math.Max(0, math.Min(100, v)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
