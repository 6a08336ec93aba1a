package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityOrder(t *testing.T) {
	q := NewInMemoryQueue(0)
	ctx := context.Background()

	require.NoError(t, q.Push(&Task{RunID: "a", Priority: 0}))
	require.NoError(t, q.Push(&Task{RunID: "b", Priority: 5}))
	require.NoError(t, q.Push(&Task{RunID: "c", Priority: 0}))
	require.NoError(t, q.Push(&Task{RunID: "d", Priority: 5}))
	assert.Equal(t, 4, q.Size())

	var order []string
	for i := 0; i < 4; i++ {
		task, err := q.Pop(ctx)
		require.NoError(t, err)
		order = append(order, task.RunID)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, order)
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := NewInMemoryQueue(0)

	got := make(chan *Task, 1)
	go func() {
		task, err := q.Pop(context.Background())
		if err == nil {
			got <- task
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Push(&Task{RunID: "late", Keyword: "yoga mat"}))

	select {
	case task := <-got:
		assert.Equal(t, "late", task.RunID)
		assert.False(t, task.CreatedAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake up after Push")
	}
}

func TestPopHonoursContext(t *testing.T) {
	q := NewInMemoryQueue(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMaxSize(t *testing.T) {
	q := NewInMemoryQueue(1)
	require.NoError(t, q.Push(&Task{RunID: "a"}))
	assert.ErrorIs(t, q.Push(&Task{RunID: "b"}), ErrQueueFull)
}

func TestCloseDrainsThenFails(t *testing.T) {
	q := NewInMemoryQueue(0)
	require.NoError(t, q.Push(&Task{RunID: "a"}))
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Push(&Task{RunID: "b"}), ErrQueueClosed)

	task, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", task.RunID)

	_, err = q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestCloseWakesBlockedPop(t *testing.T) {
	q := NewInMemoryQueue(0)

	errs := make(chan error, 1)
	go func() {
		_, err := q.Pop(context.Background())
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Close())

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not wake blocked Pop")
	}
}
