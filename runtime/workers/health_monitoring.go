package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"live-hub/observability"
)

// HealthWorker periodically logs process health (CPU, RSS, status)
// together with a hub metrics snapshot. It is the out-of-band signal an
// operator watches when clients report lag.
type HealthWorker struct {
	log      *slog.Logger
	metrics  *observability.Metrics
	interval time.Duration
}

func NewHealthWorker(log *slog.Logger, metrics *observability.Metrics, interval time.Duration) *HealthWorker {
	return &HealthWorker{log: log, metrics: metrics, interval: interval}
}

func (w *HealthWorker) Run(ctx context.Context) error {
	w.log.Info("Starting health monitoring worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, status, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			snap := w.metrics.Snapshot()
			w.log.Info("Hub health",
				"pid_status", status,
				"cpu_percent", cpu,
				"ram_bytes", rss,
				"connections", snap["ActiveConnections"],
				"sessions", snap["BoundSessions"],
				"calls", snap["ActiveCalls"],
				"delivered", snap["EventsDelivered"],
				"dropped", snap["EventsDropped"],
			)
		}
	}
}

// selfStats retrieves memory, CPU and OS status for the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}
	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
