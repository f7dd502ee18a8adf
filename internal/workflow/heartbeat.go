package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"lookbook/internal/logging"
	"lookbook/internal/queue"
)

// HeartbeatMonitor renews the lock on running tasks and reclaims tasks
// whose worker stopped beating.
type HeartbeatMonitor struct {
	tasks     *queue.Store
	logger    *slog.Logger
	interval  time.Duration
	timeout   time.Duration
	maxStalls int
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(tasks *queue.Store, logger *slog.Logger, interval, timeout time.Duration, maxStalls int) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HeartbeatMonitor{
		tasks:     tasks,
		logger:    logger,
		interval:  interval,
		timeout:   timeout,
		maxStalls: maxStalls,
	}
}

// Interval reports how often heartbeats are renewed.
func (h *HeartbeatMonitor) Interval() time.Duration {
	return h.interval
}

// Reclaim recovers tasks whose heartbeat predates the timeout. It returns
// the number of tasks returned to pending and the generation ids of tasks
// that exhausted their stall budget.
func (h *HeartbeatMonitor) Reclaim(ctx context.Context) (int, []string, error) {
	if h.timeout <= 0 {
		return 0, nil, nil
	}
	return h.tasks.ReclaimStale(ctx, time.Now().Add(-h.timeout), h.maxStalls)
}

// StartLoop renews one task's heartbeat until the context is cancelled.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, taskID int64) {
	defer wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.tasks.UpdateHeartbeat(ctx, taskID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				h.logger.Warn("heartbeat update failed",
					logging.Int64("task_id", taskID),
					logging.Error(err))
			}
		}
	}
}
