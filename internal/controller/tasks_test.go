package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/demon-editor/core/internal/log"
	"github.com/demon-editor/core/internal/transfer"
)

func TestBusFanOutAndUnsubscribe(t *testing.T) {
	bus := NewBus()
	a, stopA := bus.Subscribe(4)
	b, stopB := bus.Subscribe(4)
	defer stopB()

	bus.Publish(Event{Type: EventFavChanged, ID: "1:1:82:820000"})
	require.Equal(t, EventFavChanged, (<-a).Type)
	require.Equal(t, "1:1:82:820000", (<-b).ID)

	stopA()
	_, open := <-a
	require.False(t, open, "channel must close on unsubscribe")

	// Publishing after an unsubscribe only reaches the live one.
	bus.Publish(Event{Type: EventBouquetChanged, ID: "Favourites:tv"})
	require.Equal(t, EventBouquetChanged, (<-b).Type)
}

func TestBusDoesNotBlockOnSlowSubscriber(t *testing.T) {
	bus := NewBus()
	_, stop := bus.Subscribe(1)
	defer stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Type: EventTaskProgress, Count: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}
}

func TestTaskDonePublished(t *testing.T) {
	bus := NewBus()
	events, stop := bus.Subscribe(16)
	defer stop()
	r := NewTaskRunner(context.Background(), bus)

	task := r.Start("noop", func(ctx context.Context, progress func(done, total int)) error {
		progress(1, 1)
		return nil
	})
	require.NoError(t, task.Wait())

	ev := <-events
	require.Equal(t, EventTaskProgress, ev.Type)
	require.Equal(t, task.ID, ev.ID)
	ev = <-events
	require.Equal(t, EventTaskDone, ev.Type)
	require.Equal(t, task.ID, ev.ID)
}

func TestTaskCancelPublishesCanceled(t *testing.T) {
	bus := NewBus()
	events, stop := bus.Subscribe(16)
	defer stop()
	r := NewTaskRunner(context.Background(), bus)

	started := make(chan struct{})
	task := r.Start("slow", func(ctx context.Context, _ func(done, total int)) error {
		close(started)
		<-ctx.Done()
		return transfer.ErrCanceled
	})

	<-started
	require.True(t, r.Cancel(task.ID))
	err := task.Wait()
	require.ErrorIs(t, err, transfer.ErrCanceled)

	ev := <-events
	require.Equal(t, EventTaskCanceled, ev.Type)
	require.Equal(t, task.ID, ev.ID)
}

func TestTaskFailureKeepsPoolAlive(t *testing.T) {
	bus := NewBus()
	r := NewTaskRunner(context.Background(), bus)

	boom := errors.New("boom")
	first := r.Start("fails", func(context.Context, func(int, int)) error { return boom })
	require.ErrorIs(t, first.Wait(), boom)

	second := r.Start("succeeds", func(context.Context, func(int, int)) error { return nil })
	require.NoError(t, second.Wait())
	r.Wait()
}

func TestCancelUnknownTask(t *testing.T) {
	r := NewTaskRunner(context.Background(), NewBus())
	require.False(t, r.Cancel("no-such-id"))
}

func TestTaskContextCarriesTaskID(t *testing.T) {
	r := NewTaskRunner(context.Background(), NewBus())

	var got string
	task := r.Start("annotated", func(ctx context.Context, _ func(done, total int)) error {
		got = log.TaskIDFromContext(ctx)
		return nil
	})
	require.NoError(t, task.Wait())
	require.Equal(t, task.ID, got)
}
