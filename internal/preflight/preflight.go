// internal/preflight/preflight.go
package preflight

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/relaymesh/gauntlet-cli/internal/gateway"
)

// CheckGateway verifies the gateway answers at all before any accounts are
// provisioned. Unreachability here is the one fatal error of a run.
func CheckGateway(ctx context.Context, client *gateway.Client) error {
	if err := client.Reachable(ctx); err != nil {
		return fmt.Errorf("gateway %s is not reachable: %w", client.BaseURL(), err)
	}
	return nil
}

// Vitals is a snapshot of the load-generating host itself. A starved client
// box skews latency numbers long before the gateway does.
type Vitals struct {
	LogicalCPUs int
	CPUPercent  float64
	MemUsed     uint64
	MemTotal    uint64
	MemPercent  float64
	GoMaxProcs  int
	vitalsErr   error
}

// CollectVitals samples CPU and memory usage via gopsutil.
func CollectVitals() Vitals {
	v := Vitals{
		LogicalCPUs: runtime.NumCPU(),
		GoMaxProcs:  runtime.GOMAXPROCS(0),
	}
	percentages, err := cpu.Percent(time.Second, false)
	if err != nil || len(percentages) == 0 {
		v.vitalsErr = err
	} else {
		v.CPUPercent = percentages[0]
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		if v.vitalsErr == nil {
			v.vitalsErr = err
		}
	} else {
		v.MemUsed = vm.Used
		v.MemTotal = vm.Total
		v.MemPercent = vm.UsedPercent
	}
	return v
}

// Print writes the vitals in a compact, human-readable block.
func (v Vitals) Print(w io.Writer) {
	if v.vitalsErr != nil {
		fmt.Fprintf(w, "  (could not sample host vitals: %v)\n", v.vitalsErr)
		return
	}
	fmt.Fprintf(w, "  CPUs: %d (GOMAXPROCS=%d), usage %.1f%%\n", v.LogicalCPUs, v.GoMaxProcs, v.CPUPercent)
	fmt.Fprintf(w, "  Memory: %.1f%% (%s / %s)\n", v.MemPercent, formatBytes(v.MemUsed), formatBytes(v.MemTotal))
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
