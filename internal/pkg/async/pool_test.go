package async_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagely/internal/pkg/async"
)

func TestPoolExecutesEveryTask(t *testing.T) {
	var tasks []async.Task[int]
	for i := 0; i < 10; i++ {
		n := i
		tasks = append(tasks, async.Task[int]{
			Name: fmt.Sprintf("task-%d", n),
			Execute: func(ctx context.Context) (int, error) {
				return n * n, nil
			},
		})
	}

	results := async.NewPool[int](3).Execute(context.Background(), tasks)

	require.Len(t, results, 10)
	assert.Equal(t, 49, results["task-7"].Data)
	assert.NoError(t, results["task-7"].Err)
}

func TestPoolKeepsErrorsPerTask(t *testing.T) {
	boom := errors.New("boom")
	tasks := []async.Task[string]{
		{Name: "ok", Execute: func(ctx context.Context) (string, error) { return "fine", nil }},
		{Name: "bad", Execute: func(ctx context.Context) (string, error) { return "", boom }},
	}

	results := async.NewPool[string](4).Execute(context.Background(), tasks)

	assert.Equal(t, "fine", results["ok"].Data)
	assert.ErrorIs(t, results["bad"].Err, boom)
}

func TestPoolStopsWhenContextIsDone(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	tasks := []async.Task[int]{
		{Name: "slow", Execute: func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		}},
	}

	done := make(chan map[string]async.Result[int])
	go func() { done <- async.NewPool[int](1).Execute(ctx, tasks) }()

	select {
	case results := <-done:
		if r, ok := results["slow"]; ok {
			assert.Error(t, r.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("pool did not return after context cancellation")
	}
}
