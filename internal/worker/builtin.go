package worker

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/leeineian/singularity/internal/logger"
)

const (
	NamePresence       = "presence"
	NameLogRetention   = "log-retention"
	NameGatewayLatency = "gateway-latency"
)

// DefaultStatus is the presence shown while the bot is online.
const DefaultStatus = "Singularity | /help"

// PresenceSetter updates the bot's displayed activity.
type PresenceSetter interface {
	SetStatus(ctx context.Context, text string) error
}

// LatencySource reports the current gateway heartbeat latency.
type LatencySource interface {
	Latency() time.Duration
}

// Presence rotates the bot status between the default text, the uptime and
// the gateway ping. It reschedules itself every 15 to 60 seconds.
func Presence(setter PresenceSetter, latency LatencySource, startedAt time.Time) Descriptor {
	var last string
	return Descriptor{
		Name: NamePresence,
		Kind: SelfScheduling,
		Run: func(ctx context.Context) (time.Duration, error) {
			choices := []string{DefaultStatus, uptimeStatus(time.Since(startedAt))}
			if latency != nil {
				if ping := latency.Latency(); ping > 0 {
					choices = append(choices, fmt.Sprintf("Ping: %dms", ping.Milliseconds()))
				}
			}
			text := pickStatus(choices, last)
			if err := setter.SetStatus(ctx, text); err != nil {
				return 0, err
			}
			last = text
			return rotationInterval(), nil
		},
	}
}

func rotationInterval() time.Duration {
	return time.Duration(15+rand.IntN(46)) * time.Second
}

func uptimeStatus(d time.Duration) string {
	return fmt.Sprintf("Uptime: %dh %dm %ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

// pickStatus returns a random choice different from last when possible.
func pickStatus(choices []string, last string) string {
	var fresh []string
	for _, c := range choices {
		if c != last {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		return choices[0]
	}
	return fresh[rand.IntN(len(fresh))]
}

// FilePruner deletes daily log files older than keep days.
type FilePruner interface {
	Prune(now time.Time, keep int) (int, error)
}

// RunPruner deletes stored worker runs started before cutoff.
type RunPruner interface {
	PruneWorkerRuns(ctx context.Context, cutoff time.Time) (int64, error)
}

// LogRetention removes log files and stored worker runs older than
// keepDays. Either pruner may be nil.
func LogRetention(files FilePruner, runs RunPruner, keepDays int) Descriptor {
	return Descriptor{
		Name:         NameLogRetention,
		Kind:         Periodic,
		InitialDelay: time.Minute,
		Frequency:    6 * time.Hour,
		Run: func(ctx context.Context) (time.Duration, error) {
			now := time.Now()
			if files != nil {
				n, err := files.Prune(now, keepDays)
				if err != nil {
					return 0, fmt.Errorf("prune log files: %w", err)
				}
				if n > 0 {
					logger.LogWorker("Removed %d old log files", n)
				}
			}
			if runs != nil {
				n, err := runs.PruneWorkerRuns(ctx, now.AddDate(0, 0, -keepDays))
				if err != nil {
					return 0, fmt.Errorf("prune worker runs: %w", err)
				}
				if n > 0 {
					logger.LogWorker("Removed %d old worker runs", n)
				}
			}
			return 0, nil
		},
	}
}

// GatewayLatency exports the gateway latency as a gauge.
func GatewayLatency(source LatencySource) Descriptor {
	return Descriptor{
		Name:         NameGatewayLatency,
		Kind:         Periodic,
		InitialDelay: 10 * time.Second,
		Frequency:    30 * time.Second,
		Run: func(context.Context) (time.Duration, error) {
			MetricGatewayLatency.Set(source.Latency().Seconds())
			return 0, nil
		},
	}
}
