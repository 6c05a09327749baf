package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/ghiblify-backend/internal/observability"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

// Task is one unit of periodic background work.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// Worker runs registered tasks on their own interval until the context ends.
type Worker struct {
	log   *logger.Logger
	mu    sync.Mutex
	tasks []scheduled
	wg    sync.WaitGroup
}

type scheduled struct {
	task     Task
	interval time.Duration
	timeout  time.Duration
}

func NewWorker(baseLog *logger.Logger) *Worker {
	return &Worker{log: baseLog.With("component", "TaskWorker")}
}

// Register adds a task. A non-positive interval disables it. timeout bounds a
// single run; zero means interval.
func (w *Worker) Register(task Task, interval, timeout time.Duration) {
	if task == nil || interval <= 0 {
		return
	}
	if timeout <= 0 {
		timeout = interval
	}
	w.mu.Lock()
	w.tasks = append(w.tasks, scheduled{task: task, interval: interval, timeout: timeout})
	w.mu.Unlock()
}

func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	tasks := append([]scheduled(nil), w.tasks...)
	w.mu.Unlock()
	w.log.Info("Starting task worker", "tasks", len(tasks))
	for _, s := range tasks {
		w.wg.Add(1)
		go w.runLoop(ctx, s)
	}
}

// Wait blocks until every loop has observed cancellation.
func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context, s scheduled) {
	defer w.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Task loop stopped", "task", s.task.Name())
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx, s.task, s.timeout); err != nil {
				observability.Current().IncWorkerRun(s.task.Name(), "error")
				w.log.Warn("Task run failed", "task", s.task.Name(), "error", err)
				continue
			}
			observability.Current().IncWorkerRun(s.task.Name(), "ok")
		}
	}
}

// RunOnce runs task with a timeout, turning a panic into an error.
func (w *Worker) RunOnce(ctx context.Context, task Task, timeout time.Duration) (err error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Task panic", "task", task.Name(), "panic", r)
			err = &panicError{Val: r}
		}
	}()
	return task.Run(runCtx)
}

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
