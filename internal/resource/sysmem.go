/*
 * MIT License
 *
 * Copyright (c) 2026 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package resource

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemStats is a point-in-time read of host memory and CPU usage,
// independent of the gateway's own MemoryBudget accounting.
type SystemStats struct {
	MemTotalMB     float64
	MemAvailableMB float64
	MemUsedPercent float64
	CPUUsedPercent float64
}

// ReadSystemStats samples host memory immediately and CPU usage over a
// short window, returning zero values for whichever sample fails rather
// than erroring the caller out of a stats response.
func ReadSystemStats() SystemStats {
	var s SystemStats
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemTotalMB = float64(vm.Total) / 1024 / 1024
		s.MemAvailableMB = float64(vm.Available) / 1024 / 1024
		s.MemUsedPercent = vm.UsedPercent
	}
	if pct, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(pct) > 0 {
		s.CPUUsedPercent = pct[0]
	}
	return s
}

// LowMemoryGuard reports whether host memory usage has reached
// floorPercent of total (a floorPercent of zero or less never trips),
// independent of the per-connection MemoryBudget ceiling: a guard against
// the whole host being starved by something other than this gateway's own
// tracked allocations.
func LowMemoryGuard(floorPercent float64) bool {
	if floorPercent <= 0 {
		return false
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return false
	}
	return vm.UsedPercent >= floorPercent
}
