package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

type countingTask struct {
	runs  atomic.Int32
	panic bool
}

func (t *countingTask) Name() string { return "counting" }

func (t *countingTask) Run(ctx context.Context) error {
	t.runs.Add(1)
	if t.panic {
		panic("boom")
	}
	return nil
}

func TestRunOnceRecoversPanic(t *testing.T) {
	w := NewWorker(logger.Nop())
	err := w.RunOnce(context.Background(), &countingTask{panic: true}, time.Second)
	var pe *panicError
	if !errors.As(err, &pe) {
		t.Fatalf("RunOnce: want panicError got=%v", err)
	}
}

func TestWorkerRunsUntilCancelled(t *testing.T) {
	w := NewWorker(logger.Nop())
	task := &countingTask{}
	w.Register(task, 5*time.Millisecond, 0)
	w.Register(&countingTask{}, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for task.runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	w.Wait()
	if got := task.runs.Load(); got < 2 {
		t.Fatalf("runs: want>=2 got=%d", got)
	}
	if len(w.tasks) != 1 {
		t.Fatalf("registered: want=1 got=%d", len(w.tasks))
	}
}
