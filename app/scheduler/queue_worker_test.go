package scheduler

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amirphl/Orochi-WhatsApp/config"
	"github.com/amirphl/Orochi-WhatsApp/models"
	"github.com/amirphl/Orochi-WhatsApp/repository"
	testingutil "github.com/amirphl/Orochi-WhatsApp/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var workerNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestWorker(t *testing.T, testDB *testingutil.TestDB, cfg config.QueueConfig) (*QueueWorker, repository.QueueTaskRepository) {
	t.Helper()
	repo := repository.NewQueueTaskRepository(testDB.DB)
	w := NewQueueWorker(repo, nil, nil, cfg, log.New(io.Discard, "", 0))
	w.now = func() time.Time { return workerNow }
	return w, repo
}

func enqueue(t *testing.T, repo repository.QueueTaskRepository, kind models.QueueTaskKind, ref uint, attempts, maxAttempts int) *models.QueueTask {
	t.Helper()
	task := &models.QueueTask{
		Kind:        kind,
		ReferenceID: ref,
		AvailableAt: workerNow.Add(-time.Second),
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
	}
	require.NoError(t, repo.Save(context.Background(), task))
	return task
}

func reload(t *testing.T, repo repository.QueueTaskRepository, id uint) *models.QueueTask {
	t.Helper()
	task, err := repo.ByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, task)
	return task
}

func TestQueueWorkerCompletesTask(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		w, repo := newTestWorker(t, testDB, config.QueueConfig{})

		var seen []uint
		var mu sync.Mutex
		w.Register(models.QueueTaskSendMessage, func(ctx context.Context, task *models.QueueTask) error {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			mu.Lock()
			seen = append(seen, task.ReferenceID)
			mu.Unlock()
			return nil
		})

		task := enqueue(t, repo, models.QueueTaskSendMessage, 42, 0, 5)

		assert.Equal(t, 1, w.runOnce(context.Background()))
		assert.Equal(t, []uint{42}, seen)

		got := reload(t, repo, task.ID)
		require.NotNil(t, got.CompletedAt)
		assert.Equal(t, 1, got.Attempts)
		assert.Nil(t, got.LastError)

		// completed tasks are never claimed again
		assert.Equal(t, 0, w.runOnce(context.Background()))
		return nil
	})
	require.NoError(t, err)
}

func TestQueueWorkerRetriesWithBackoff(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		w, repo := newTestWorker(t, testDB, config.QueueConfig{})
		w.Register(models.QueueTaskProcessWebhookEvent, func(context.Context, *models.QueueTask) error {
			return errors.New("database is locked")
		})

		task := enqueue(t, repo, models.QueueTaskProcessWebhookEvent, 7, 1, 5)

		assert.Equal(t, 1, w.runOnce(context.Background()))

		got := reload(t, repo, task.ID)
		assert.Nil(t, got.CompletedAt)
		assert.Nil(t, got.ReservedAt)
		assert.Equal(t, 2, got.Attempts)
		require.NotNil(t, got.LastError)
		assert.Equal(t, "database is locked", *got.LastError)
		assert.True(t, got.AvailableAt.Equal(workerNow.Add(10*time.Second)), "available_at = %s", got.AvailableAt)

		// not due yet
		assert.Equal(t, 0, w.runOnce(context.Background()))

		w.now = func() time.Time { return workerNow.Add(11 * time.Second) }
		assert.Equal(t, 1, w.runOnce(context.Background()))
		return nil
	})
	require.NoError(t, err)
}

func TestQueueWorkerGivesUpAfterMaxAttempts(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		w, repo := newTestWorker(t, testDB, config.QueueConfig{})
		w.Register(models.QueueTaskSendMessage, func(context.Context, *models.QueueTask) error {
			return errors.New("provider unreachable")
		})

		task := enqueue(t, repo, models.QueueTaskSendMessage, 9, 2, 3)
		w.runOnce(context.Background())

		got := reload(t, repo, task.ID)
		require.NotNil(t, got.CompletedAt)
		assert.Equal(t, 3, got.Attempts)
		require.NotNil(t, got.LastError)
		assert.Equal(t, "provider unreachable", *got.LastError)
		assert.False(t, got.Cancelled)
		return nil
	})
	require.NoError(t, err)
}

func TestQueueWorkerGiveUpHook(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		w, repo := newTestWorker(t, testDB, config.QueueConfig{})
		w.Register(models.QueueTaskSendMessage, func(context.Context, *models.QueueTask) error {
			return errors.New("database is locked")
		})

		var abandoned []uint
		var reasons []string
		w.OnGiveUp(models.QueueTaskSendMessage, func(ctx context.Context, task *models.QueueTask, lastErr error) error {
			abandoned = append(abandoned, task.ReferenceID)
			reasons = append(reasons, lastErr.Error())
			return nil
		})

		enqueue(t, repo, models.QueueTaskSendMessage, 11, 0, 5)
		w.runOnce(context.Background())
		assert.Empty(t, abandoned, "hook must not run while attempts remain")

		enqueue(t, repo, models.QueueTaskSendMessage, 12, 4, 5)
		w.now = func() time.Time { return workerNow.Add(time.Millisecond) }
		w.runOnce(context.Background())
		assert.Equal(t, []uint{12}, abandoned)
		assert.Equal(t, []string{"database is locked"}, reasons)
		return nil
	})
	require.NoError(t, err)
}

func TestQueueWorkerRecoversPanics(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		w, repo := newTestWorker(t, testDB, config.QueueConfig{})
		w.Register(models.QueueTaskSendMessage, func(context.Context, *models.QueueTask) error {
			panic("nil template")
		})

		task := enqueue(t, repo, models.QueueTaskSendMessage, 1, 0, 5)
		assert.NotPanics(t, func() { w.runOnce(context.Background()) })

		got := reload(t, repo, task.ID)
		assert.Nil(t, got.CompletedAt)
		require.NotNil(t, got.LastError)
		assert.Equal(t, "panic: nil template", *got.LastError)
		return nil
	})
	require.NoError(t, err)
}

func TestQueueWorkerUnknownKind(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		w, repo := newTestWorker(t, testDB, config.QueueConfig{})

		task := enqueue(t, repo, models.QueueTaskKind("resize_image"), 1, 0, 5)
		w.runOnce(context.Background())

		got := reload(t, repo, task.ID)
		require.NotNil(t, got.CompletedAt)
		require.NotNil(t, got.LastError)
		assert.Contains(t, *got.LastError, "unknown task kind")
		return nil
	})
	require.NoError(t, err)
}

func TestQueueWorkerBoundsConcurrency(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		w, repo := newTestWorker(t, testDB, config.QueueConfig{Workers: 2, BatchSize: 10})

		var running, peak, total int32
		w.Register(models.QueueTaskSendMessage, func(context.Context, *models.QueueTask) error {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			atomic.AddInt32(&total, 1)
			return nil
		})

		for i := 1; i <= 6; i++ {
			enqueue(t, repo, models.QueueTaskSendMessage, uint(i), 0, 5)
		}

		assert.Equal(t, 6, w.runOnce(context.Background()))
		assert.Equal(t, int32(6), atomic.LoadInt32(&total))
		assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))

		open := true
		remaining, err := repo.Count(context.Background(), models.QueueTaskFilter{Open: &open})
		require.NoError(t, err)
		assert.Zero(t, remaining)
		return nil
	})
	require.NoError(t, err)
}

func TestQueueWorkerStartStop(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		w, repo := newTestWorker(t, testDB, config.QueueConfig{PollInterval: 10 * time.Millisecond})

		done := make(chan uint, 1)
		w.Register(models.QueueTaskSendMessage, func(_ context.Context, task *models.QueueTask) error {
			done <- task.ReferenceID
			return nil
		})
		enqueue(t, repo, models.QueueTaskSendMessage, 5, 0, 5)

		stop := w.Start(context.Background())
		select {
		case ref := <-done:
			assert.Equal(t, uint(5), ref)
		case <-time.After(2 * time.Second):
			t.Fatal("task was not processed")
		}
		stop()
		return nil
	})
	require.NoError(t, err)
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{6, 160 * time.Second},
		{7, 5 * time.Minute},
		{30, 5 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}
