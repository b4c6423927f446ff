package workers

import (
	"context"
	"log/slog"
	"time"

	"live-hub/contract"
	"live-hub/domain/event"
)

// HeartbeatWorker probes every authenticated session on a fixed
// interval. Clients answer with heartbeat_ack, which refreshes their
// persisted last-seen through the presence service. A missing ack never
// disconnects anyone here; transport-level disconnect is the terminal
// signal.
type HeartbeatWorker struct {
	log      *slog.Logger
	registry contract.IPresenceRegistry
	interval time.Duration
}

func NewHeartbeatWorker(log *slog.Logger, registry contract.IPresenceRegistry, interval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, registry: registry, interval: interval}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			probe := event.Heartbeat{}
			for _, sink := range w.registry.AllSinks() {
				// A full sink drops its own probe only; the next tick
				// covers it.
				if err := sink.Consume(ctx, probe); err != nil {
					w.log.Debug("Heartbeat probe not delivered", "error", err)
				}
			}
		}
	}
}
