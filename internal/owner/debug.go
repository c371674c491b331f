package owner

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/leeineian/singularity/internal/ui"
)

const maxDescription = 4096

func (c *Console) debugRuntime(ctx context.Context, req request) error {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	desc := fmt.Sprintf("Goroutines = %d\nHeap in use = %s MB\nGC cycles = %d\nUptime = %s\nGo version = %s",
		runtime.NumGoroutine(),
		formatFloat(float64(ms.HeapInuse)/(1024*1024)),
		ms.NumGC,
		time.Since(c.startedAt).Round(time.Second),
		runtime.Version())
	return c.reply(ctx, req.msg, ui.EmbedSpec{Title: "Runtime", Description: desc, Colour: ui.ColourSystem}.Build())
}

func (c *Console) debugGC(ctx context.Context, req request) error {
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	runtime.GC()
	runtime.ReadMemStats(&after)

	const mb = 1024 * 1024
	freed := float64(0)
	if before.HeapAlloc > after.HeapAlloc {
		freed = float64(before.HeapAlloc-after.HeapAlloc) / mb
	}
	desc := fmt.Sprintf("Freed %s MB of heap (%s MB -> %s MB).",
		formatFloat(freed),
		formatFloat(float64(before.HeapAlloc)/mb),
		formatFloat(float64(after.HeapAlloc)/mb))
	return c.reply(ctx, req.msg, ui.QuickEmbed(desc, ui.ColourSystem))
}

func (c *Console) debugWorkers(ctx context.Context, req request) error {
	var b strings.Builder
	if c.workers != nil {
		for _, s := range c.workers() {
			b.WriteString(s.Summary())
			b.WriteString("\n")
		}
	}
	desc := b.String()
	if desc == "" {
		desc = "No workers registered."
	}
	return c.reply(ctx, req.msg, ui.EmbedSpec{Title: "Workers", Description: ui.Truncate(desc, maxDescription), Colour: ui.ColourSystem}.Build())
}

func (c *Console) debugPermissions(ctx context.Context, req request) error {
	var b strings.Builder
	if c.permissions != nil {
		for _, name := range c.permissions.Commands() {
			e := c.permissions.Get(name)
			fmt.Fprintf(&b, "**%s**: member [%s] bot [%s]\n", name, strings.Join(e.Member, ", "), strings.Join(e.Bot, ", "))
		}
	}
	desc := b.String()
	if desc == "" {
		desc = "No command permissions loaded."
	}
	return c.reply(ctx, req.msg, ui.EmbedSpec{Title: "Command permissions", Description: ui.Truncate(desc, maxDescription), Colour: ui.ColourSystem}.Build())
}
