package controller

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/demon-editor/core/internal/log"
	"github.com/demon-editor/core/internal/transfer"
)

// maxConcurrentTasks bounds how many background jobs run at once; a
// profile only has one receiver on the other end.
const maxConcurrentTasks = 4

// Task is a handle to one background job.
type Task struct {
	ID     string
	Name   string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Cancel requests cooperative cancellation.
func (t *Task) Cancel() { t.cancel() }

// Wait blocks until the job finished and returns its error.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// TaskRunner executes background jobs, publishes their lifecycle on
// the bus, and keeps cancellation out of the error log.
type TaskRunner struct {
	bus *Bus
	log zerolog.Logger

	mu       sync.Mutex
	group    *errgroup.Group
	groupCtx context.Context
	running  map[string]*Task
}

func NewTaskRunner(ctx context.Context, bus *Bus) *TaskRunner {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTasks)
	return &TaskRunner{
		bus:      bus,
		log:      log.WithComponent("tasks"),
		group:    g,
		groupCtx: gctx,
		running:  make(map[string]*Task),
	}
}

// Start launches fn on the pool. Progress is reported through the
// returned task's id; completion publishes task-done or task-canceled.
func (r *TaskRunner) Start(name string, fn func(ctx context.Context, progress func(done, total int)) error) *Task {
	ctx, cancel := context.WithCancel(r.groupCtx)
	t := &Task{
		ID:     uuid.NewString(),
		Name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	// Downstream loggers pick the id up from the context, so every log
	// line of a job carries the task it belongs to.
	ctx = log.ContextWithTaskID(ctx, t.ID)

	r.mu.Lock()
	r.running[t.ID] = t
	r.mu.Unlock()

	progress := func(done, total int) {
		r.bus.Publish(Event{Type: EventTaskProgress, ID: t.ID, Count: done})
	}

	r.group.Go(func() error {
		err := fn(ctx, progress)
		cancel()

		r.mu.Lock()
		delete(r.running, t.ID)
		r.mu.Unlock()

		switch {
		case transfer.IsCanceled(err):
			// A cancel is a user action, not a failure.
			r.log.Info().Str("event", "task.canceled").Str("task", name).Msg("task canceled")
			r.bus.Publish(Event{Type: EventTaskCanceled, ID: t.ID})
			t.err = err
		case err != nil:
			r.log.Error().Err(err).Str("event", "task.failed").Str("task", name).Msg("task failed")
			r.bus.Publish(Event{Type: EventTaskDone, ID: t.ID})
			t.err = err
		default:
			r.bus.Publish(Event{Type: EventTaskDone, ID: t.ID})
		}
		close(t.done)
		// Errors stay on the task handle; one failed transfer must
		// not tear down the pool.
		return nil
	})
	return t
}

// Cancel cancels a running task by id.
func (r *TaskRunner) Cancel(id string) bool {
	r.mu.Lock()
	t, ok := r.running[id]
	r.mu.Unlock()
	if ok {
		t.Cancel()
	}
	return ok
}

// CancelAll stops everything in flight.
func (r *TaskRunner) CancelAll() {
	r.mu.Lock()
	for _, t := range r.running {
		t.Cancel()
	}
	r.mu.Unlock()
}

// Wait blocks until all running tasks finished.
func (r *TaskRunner) Wait() { _ = r.group.Wait() }
