package schedule

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Task is a handle on a repeating job started by Scheduler.Every.
type Task struct {
	done      chan struct{}
	once      sync.Once
	cancelled atomic.Bool
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

// Cancel stops future runs of the task. A run already in progress is not
// interrupted. Cancel reports whether this call was the one that stopped it.
func (t *Task) Cancel() bool {
	stopped := false
	t.once.Do(func() {
		t.cancelled.Store(true)
		close(t.done)
		stopped = true
	})
	return stopped
}

// Cancelled reports whether the task has been cancelled.
func (t *Task) Cancelled() bool {
	return t.cancelled.Load()
}

// Done is closed once the task is cancelled.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Scheduler runs fixed-rate tasks against a clock.
type Scheduler struct {
	clock clock.Clock

	mu     sync.Mutex
	tasks  map[*Task]struct{}
	closed bool
}

// NewScheduler returns a Scheduler driven by clk. A nil clk uses wall time.
func NewScheduler(clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		clock: clk,
		tasks: make(map[*Task]struct{}),
	}
}

// Every runs fn immediately and then once per interval until the returned
// task is cancelled or the scheduler is shut down. Runs of one task never
// overlap.
func (s *Scheduler) Every(interval time.Duration, fn func()) *Task {
	task := newTask()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		task.Cancel()
		return task
	}
	s.tasks[task] = struct{}{}
	s.mu.Unlock()

	ticker := s.clock.Ticker(interval)
	go func() {
		defer s.forget(task)
		defer ticker.Stop()

		run := func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("scheduled task panicked", "panic", r)
				}
			}()
			fn()
		}

		if task.Cancelled() {
			return
		}
		run()
		for {
			select {
			case <-task.done:
				return
			case <-ticker.C:
				if task.Cancelled() {
					return
				}
				run()
			}
		}
	}()
	return task
}

func (s *Scheduler) forget(task *Task) {
	s.mu.Lock()
	delete(s.tasks, task)
	s.mu.Unlock()
}

// Active returns the number of tasks that have not finished.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Shutdown cancels every task and rejects new ones.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.closed = true
	tasks := make([]*Task, 0, len(s.tasks))
	for task := range s.tasks {
		tasks = append(tasks, task)
	}
	s.mu.Unlock()

	for _, task := range tasks {
		task.Cancel()
	}
}
