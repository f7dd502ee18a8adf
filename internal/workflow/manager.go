package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"lookbook/internal/config"
	"lookbook/internal/logging"
	"lookbook/internal/queue"
	"lookbook/internal/services"
)

// TaskHandler executes one claimed render task. A nil return means the
// task finished; a retryable error requeues it with backoff until the
// attempt budget runs out.
type TaskHandler interface {
	Run(ctx context.Context, task *queue.Task) error
}

// RunFailer forces a generation run to its failed terminal state when its
// task can no longer be retried.
type RunFailer interface {
	MarkRunFailed(ctx context.Context, generationID, message string) error
}

// Manager drives the render-task queue: a pool of workers claims tasks,
// executes them with heartbeats, and a maintenance loop reclaims stalled
// tasks and purges old terminal ones.
type Manager struct {
	cfg     *config.Config
	tasks   *queue.Store
	handler TaskHandler
	failer  RunFailer
	logger  *slog.Logger

	workers            int
	maxAttempts        int
	pollInterval       time.Duration
	errorRetryInterval time.Duration
	purgeInterval      time.Duration
	retention          time.Duration
	retryBackoffBase   time.Duration
	retryBackoffMax    time.Duration

	heartbeat *HeartbeatMonitor

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// ManagerOption overrides timing defaults, mainly for tests.
type ManagerOption func(*Manager)

// WithPollInterval overrides how long idle workers wait between claims.
func WithPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithRetryBackoff overrides the requeue backoff schedule.
func WithRetryBackoff(base, max time.Duration) ManagerOption {
	return func(m *Manager) {
		if base > 0 {
			m.retryBackoffBase = base
		}
		if max > 0 {
			m.retryBackoffMax = max
		}
	}
}

// NewManager constructs the workflow manager.
func NewManager(cfg *config.Config, tasks *queue.Store, handler TaskHandler, failer RunFailer, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "workflow")

	m := &Manager{
		cfg:                cfg,
		tasks:              tasks,
		handler:            handler,
		failer:             failer,
		logger:             logger,
		workers:            cfg.Workflow.Workers,
		maxAttempts:        cfg.Queue.MaxAttempts,
		pollInterval:       time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		purgeInterval:      time.Duration(cfg.Workflow.PurgeInterval) * time.Second,
		retention:          time.Duration(cfg.Queue.RetentionHours) * time.Hour,
		retryBackoffBase:   time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		retryBackoffMax:    5 * time.Minute,
		heartbeat: NewHeartbeatMonitor(
			tasks,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
			cfg.Queue.MaxStalls,
		),
	}
	if m.workers < 1 {
		m.workers = 1
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the worker pool and maintenance loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers + 1)
	m.mu.Unlock()

	for i := 0; i < m.workers; i++ {
		go m.runWorker(runCtx, i)
	}
	go m.runMaintenance(runCtx)

	m.logger.Info("workflow started", logging.Int("workers", m.workers))
	return nil
}

// Stop terminates background processing and waits for workers to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped")
}

// Running reports whether the manager is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// LastError returns the most recent background failure, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) runWorker(ctx context.Context, index int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", index))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := m.tasks.ClaimNext(ctx)
		if errors.Is(err, queue.ErrNoTask) {
			m.waitOrShutdown(ctx, m.pollInterval)
			continue
		}
		if err != nil {
			m.setLastError(err)
			logger.Error("failed to claim next task",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"))
			m.waitOrShutdown(ctx, m.errorRetryInterval)
			continue
		}

		m.processTask(ctx, logger, task)
	}
}

func (m *Manager) processTask(ctx context.Context, logger *slog.Logger, task *queue.Task) {
	logger = logger.With(
		logging.Int64("task_id", task.ID),
		logging.String(logging.FieldGenerationID, task.GenerationID),
	)
	logger.Info("task claimed", logging.Int("attempt", task.Attempts))

	beatCtx, stopBeat := context.WithCancel(ctx)
	var beatWG sync.WaitGroup
	beatWG.Add(1)
	go m.heartbeat.StartLoop(beatCtx, &beatWG, task.ID)

	err := m.handler.Run(ctx, task)
	stopBeat()
	beatWG.Wait()

	if err == nil {
		if markErr := m.tasks.MarkCompleted(ctx, task.ID); markErr != nil {
			logger.Error("mark task completed failed", logging.Error(markErr))
		}
		return
	}
	if errors.Is(err, context.Canceled) {
		// Shutdown mid-run. The stalled task is reclaimed on restart.
		return
	}

	m.setLastError(err)
	if services.Retryable(err) && task.Attempts < m.maxAttempts {
		delay := m.retryDelay(task.Attempts)
		logger.Warn("task failed, retrying",
			logging.Error(err),
			logging.Int("attempt", task.Attempts),
			logging.Duration("backoff", delay))
		if reqErr := m.tasks.Requeue(ctx, task.ID, time.Now().Add(delay), err.Error()); reqErr != nil {
			logger.Error("requeue task failed", logging.Error(reqErr))
		}
		return
	}

	logger.Error("task failed permanently",
		logging.Error(err),
		logging.Int("attempt", task.Attempts))
	if markErr := m.tasks.MarkFailed(ctx, task.ID, err.Error()); markErr != nil {
		logger.Error("mark task failed failed", logging.Error(markErr))
	}
	if m.failer != nil {
		if failErr := m.failer.MarkRunFailed(ctx, task.GenerationID, err.Error()); failErr != nil {
			logger.Error("mark run failed failed", logging.Error(failErr))
		}
	}
}

// retryDelay doubles the base per prior attempt, capped at the maximum.
func (m *Manager) retryDelay(attempts int) time.Duration {
	delay := m.retryBackoffBase
	for i := 1; i < attempts; i++ {
		if delay > m.retryBackoffMax/2 {
			return m.retryBackoffMax
		}
		delay *= 2
	}
	if delay > m.retryBackoffMax {
		return m.retryBackoffMax
	}
	return delay
}

func (m *Manager) runMaintenance(ctx context.Context) {
	defer m.wg.Done()

	reclaimTicker := time.NewTicker(m.heartbeat.Interval())
	defer reclaimTicker.Stop()
	purgeTicker := time.NewTicker(m.purgeInterval)
	defer purgeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reclaimTicker.C:
			m.reclaimStale(ctx)
		case <-purgeTicker.C:
			m.purgeTerminal(ctx)
		}
	}
}

func (m *Manager) reclaimStale(ctx context.Context) {
	reclaimed, failedGenerations, err := m.heartbeat.Reclaim(ctx)
	if err != nil {
		m.setLastError(err)
		m.logger.Warn("reclaim stale tasks failed, stuck tasks may remain",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"))
		return
	}
	if reclaimed > 0 {
		m.logger.Info("reclaimed stalled tasks", logging.Int("count", reclaimed))
	}
	for _, generationID := range failedGenerations {
		m.logger.Warn("task exhausted stall budget",
			logging.String(logging.FieldGenerationID, generationID))
		if m.failer == nil {
			continue
		}
		if err := m.failer.MarkRunFailed(ctx, generationID, "worker stalled too many times"); err != nil {
			m.logger.Error("mark stalled run failed failed",
				logging.String(logging.FieldGenerationID, generationID),
				logging.Error(err))
		}
	}
}

func (m *Manager) purgeTerminal(ctx context.Context) {
	purged, err := m.tasks.PurgeTerminal(ctx, time.Now().Add(-m.retention))
	if err != nil {
		m.setLastError(err)
		m.logger.Warn("purge terminal tasks failed", logging.Error(err))
		return
	}
	if purged > 0 {
		m.logger.Info("purged terminal tasks", logging.Int64("count", purged))
	}
}

func (m *Manager) waitOrShutdown(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
