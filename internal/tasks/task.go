package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/reddwatch/reddwatch/pkg/logging"
	"github.com/reddwatch/reddwatch/pkg/telemetry"
)

// Task is one periodically repeated unit of background work
type Task interface {
	// Name identifies the task in logs and metrics
	Name() string

	// RunIteration performs one pass of the task's work
	RunIteration(ctx context.Context) error

	// MinRepetition is the minimum spacing between iteration starts. An
	// iteration that runs longer than this is followed immediately.
	MinRepetition() time.Duration

	// ExceptionBackoff is how long to pause after a failed iteration before
	// trying again. A negative value means failures are treated like normal
	// completions and the regular spacing applies.
	ExceptionBackoff() time.Duration
}

// Supervisor runs a set of tasks, each on its own goroutine, restarting
// iterations on their schedules until the context is cancelled
type Supervisor struct {
	tasks  []Task
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewSupervisor creates a supervisor for the given tasks
func NewSupervisor(tasks ...Task) *Supervisor {
	return &Supervisor{
		tasks:  tasks,
		logger: logging.GetLogger().With(zap.String("component", "supervisor")),
	}
}

// Start launches every task. Returns immediately; call Wait to join.
func (s *Supervisor) Start(ctx context.Context) {
	for _, task := range s.tasks {
		s.wg.Add(1)
		go func(task Task) {
			defer s.wg.Done()
			s.run(ctx, task)
		}(task)
	}
	s.logger.Info("Supervisor started", zap.Int("tasks", len(s.tasks)))
}

// Wait blocks until every task loop has exited
func (s *Supervisor) Wait() {
	s.wg.Wait()
	s.logger.Info("All tasks stopped")
}

func (s *Supervisor) run(ctx context.Context, task Task) {
	logger := s.logger.With(zap.String("task", task.Name()))
	iterations := telemetry.Counter("tasks.iterations", "Completed task iterations")
	failures := telemetry.Counter("tasks.failures", "Failed task iterations")

	logger.Info("Task loop started",
		zap.Duration("min_repetition", task.MinRepetition()),
		zap.Duration("exception_backoff", task.ExceptionBackoff()))

	for ctx.Err() == nil {
		started := time.Now()
		err := runIteration(ctx, task)

		var next time.Time
		if err != nil && ctx.Err() == nil && task.ExceptionBackoff() >= 0 {
			logger.Error("Task iteration failed, backing off",
				zap.Duration("backoff", task.ExceptionBackoff()),
				zap.Error(err))
			failures.Add(ctx, 1)
			next = time.Now().Add(task.ExceptionBackoff())
		} else {
			if err != nil && ctx.Err() == nil {
				// Negative backoff: failures repeat on the normal schedule
				logger.Warn("Task iteration failed", zap.Error(err))
				failures.Add(ctx, 1)
			} else if err == nil {
				iterations.Add(ctx, 1)
			}
			next = started.Add(task.MinRepetition())
		}

		sleepUntil(ctx, next)
	}

	logger.Info("Task loop stopped")
}

// runIteration shields the loop from a panicking task
func runIteration(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name(), r)
		}
	}()
	return task.RunIteration(ctx)
}

// sleepUntil waits for the deadline in one-second slices so cancellation is
// observed promptly even for multi-hour schedules
func sleepUntil(ctx context.Context, deadline time.Time) {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		if remaining > time.Second {
			remaining = time.Second
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
