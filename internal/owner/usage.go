package owner

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/leeineian/singularity/internal/ui"
)

// Usage is a snapshot of process and host resource usage.
type Usage struct {
	ProcessRSS    uint64
	MemoryPercent float64
	DiskUsed      uint64
	DiskPercent   float64
	CPUPercent    float64
}

// UsageSampler collects a Usage snapshot.
type UsageSampler func(ctx context.Context) (Usage, error)

// SampleUsage reads usage for the current process and the root filesystem.
func SampleUsage(ctx context.Context) (Usage, error) {
	var u Usage

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return u, fmt.Errorf("process: %w", err)
	}
	memInfo, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return u, fmt.Errorf("process memory: %w", err)
	}
	u.ProcessRSS = memInfo.RSS

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return u, fmt.Errorf("virtual memory: %w", err)
	}
	u.MemoryPercent = vm.UsedPercent

	du, err := disk.UsageWithContext(ctx, string(os.PathSeparator))
	if err != nil {
		return u, fmt.Errorf("disk usage: %w", err)
	}
	u.DiskUsed = du.Used
	u.DiskPercent = du.UsedPercent

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return u, fmt.Errorf("cpu: %w", err)
	}
	if len(percents) > 0 {
		u.CPUPercent = percents[0]
	}
	return u, nil
}

// FormatUsage renders the three usage lines of the "usage" command.
func FormatUsage(u Usage) string {
	const mb = 1024 * 1024
	return fmt.Sprintf("Memory usage = %s MB (%s%%)\nDisk usage = %s MB (%s%%)\nCPU usage = %s%%",
		formatFloat(float64(u.ProcessRSS)/mb), formatFloat(u.MemoryPercent),
		formatFloat(float64(u.DiskUsed)/mb), formatFloat(u.DiskPercent),
		formatFloat(u.CPUPercent))
}

func (c *Console) usageCommand(ctx context.Context, req request) error {
	u, err := c.usage(ctx)
	if err != nil {
		return fmt.Errorf("sample usage: %w", err)
	}
	embed := ui.EmbedSpec{
		Title:       "🚀 Usage",
		Description: FormatUsage(u),
		Colour:      ui.ColourSystem,
	}.Build()
	return c.reply(ctx, req.msg, embed)
}
