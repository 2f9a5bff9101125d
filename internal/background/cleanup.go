package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultTaskTimeout = 30 * time.Second

// Task is one periodic maintenance job. Run returns the number of rows or
// records it removed.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int64, error)
}

// CleanupManager runs maintenance tasks on their own intervals until stopped
type CleanupManager struct {
	tasks   []Task
	logger  *slog.Logger
	timeout time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCleanupManager creates a new cleanup manager. Tasks with a non-positive
// interval are skipped.
func NewCleanupManager(logger *slog.Logger, tasks ...Task) *CleanupManager {
	return &CleanupManager{
		tasks:   tasks,
		logger:  logger,
		timeout: defaultTaskTimeout,
		stopCh:  make(chan struct{}),
	}
}

// Start launches every task in its own goroutine and returns immediately.
// Each task runs once on startup and then on every tick.
func (cm *CleanupManager) Start(ctx context.Context) {
	for _, task := range cm.tasks {
		if task.Interval <= 0 || task.Run == nil {
			cm.logger.Warn("cleanup task disabled", slog.String("task", task.Name))
			continue
		}

		cm.wg.Add(1)
		go func(task Task) {
			defer cm.wg.Done()
			cm.loop(ctx, task)
		}(task)
	}
}

func (cm *CleanupManager) loop(ctx context.Context, task Task) {
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	cm.runTask(ctx, task)

	for {
		select {
		case <-ticker.C:
			cm.runTask(ctx, task)
		case <-cm.stopCh:
			cm.logger.Info("cleanup task stopped", slog.String("task", task.Name))
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup task context cancelled", slog.String("task", task.Name))
			return
		}
	}
}

func (cm *CleanupManager) runTask(ctx context.Context, task Task) {
	taskCtx, cancel := context.WithTimeout(ctx, cm.timeout)
	defer cancel()

	removed, err := task.Run(taskCtx)
	if err != nil {
		cm.logger.Error("cleanup task failed", slog.String("task", task.Name), slog.Any("error", err))
		return
	}

	if removed > 0 {
		cm.logger.Info("cleanup task completed", slog.String("task", task.Name), slog.Int64("removed", removed))
	}
}

// Stop signals every task to stop and waits for them to return
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
	cm.wg.Wait()
}
