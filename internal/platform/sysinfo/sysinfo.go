// Package sysinfo samples host statistics for threshold triggers.
package sysinfo

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
)

// Stats reads disk and CPU usage from the host. The storage path is the
// mount the dashboard serves user files from.
type Stats struct {
	storagePath string
}

func New(storagePath string) *Stats {
	if storagePath == "" {
		storagePath = "/"
	}
	return &Stats{storagePath: storagePath}
}

// DiskUsedPercent returns used capacity of the storage mount, 0-100.
func (s *Stats) DiskUsedPercent(ctx context.Context) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, s.storagePath)
	if err != nil {
		return 0, fmt.Errorf("disk usage for %s: %w", s.storagePath, err)
	}
	return usage.UsedPercent, nil
}

// CPUPercent returns the instantaneous aggregate CPU load, 0-100.
// Interval 0 compares against the previous call instead of blocking.
func (s *Stats) CPUPercent(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, fmt.Errorf("cpu percent: %w", err)
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("cpu percent: no samples")
	}
	return percents[0], nil
}
