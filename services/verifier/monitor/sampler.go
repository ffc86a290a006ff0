// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package monitor

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Sampler reports instantaneous host utilization.
type Sampler interface {
	// Sample returns CPU and memory utilization as percentages in [0,100].
	Sample(ctx context.Context) (cpuPercent, memPercent float64, err error)
}

// HostSampler samples the host via gopsutil.
type HostSampler struct{}

// Sample reads host-wide CPU and virtual memory utilization.
func (HostSampler) Sample(ctx context.Context) (float64, float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, 0, fmt.Errorf("cpu sample: %w", err)
	}
	var cpuPercent float64
	if len(percents) > 0 {
		cpuPercent = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("memory sample: %w", err)
	}
	return cpuPercent, vm.UsedPercent, nil
}
