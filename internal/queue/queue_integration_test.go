package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/repoanalyzer/internal/model"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	q := New(addr, "", nil)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestEnqueueRejectsDuplicateID(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	id := "dup-test-id"
	require.NoError(t, q.Enqueue(ctx, id))
	err := q.Enqueue(ctx, id)
	require.Error(t, err)
}

func TestCancelOnlyAffectsPendingJobs(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	id := "cancel-test-id"
	require.NoError(t, q.Enqueue(ctx, id))
	ok, err := q.Cancel(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	// no longer pending, so a second cancel finds nothing to remove
	ok, err = q.Cancel(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunWorkersInvokesHandlerAndMarksCompleted(t *testing.T) {
	q := openTestQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	id := "handler-test-id"
	require.NoError(t, q.Enqueue(ctx, id))

	done := make(chan struct{})
	go func() {
		q.RunWorkers(ctx, 1, func(ctx context.Context, analysisID string, attempt int, report func(model.Progress)) error {
			report(model.Progress{CurrentStep: "done", Percentage: 100})
			close(done)
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}

	require.Eventually(t, func() bool {
		st, err := q.Status(ctx, id)
		return err == nil && st.State == StateDone
	}, 2*time.Second, 50*time.Millisecond)
}
