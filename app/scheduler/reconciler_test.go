package scheduler

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/amirphl/Orochi-WhatsApp/app/services"
	"github.com/amirphl/Orochi-WhatsApp/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEventReconciler struct {
	calls       int
	minAge      time.Duration
	maxAttempts int
	limit       int
	result      int
	err         error
}

func (f *fakeEventReconciler) ReconcileEvents(_ context.Context, minAge time.Duration, maxAttempts, limit int) (int, error) {
	f.calls++
	f.minAge, f.maxAttempts, f.limit = minAge, maxAttempts, limit
	return f.result, f.err
}

type fakeSweeper struct {
	calls  int
	result int
	err    error
}

func (f *fakeSweeper) SweepProcessing(context.Context) (int, error) {
	f.calls++
	return f.result, f.err
}

func newTestLocker(t *testing.T) services.Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return services.NewLocker(rc, "test:")
}

func TestReconcilerPassesConfig(t *testing.T) {
	events := &fakeEventReconciler{result: 3}
	sweeper := &fakeSweeper{result: 1}
	r := NewReconciler(events, sweeper, newTestLocker(t), config.ReconcileConfig{
		MinAge:      time.Minute,
		MaxAttempts: 4,
		BatchSize:   25,
	}, log.New(io.Discard, "", 0))

	assert.Equal(t, 3, r.reconcileEvents(context.Background()))
	assert.Equal(t, time.Minute, events.minAge)
	assert.Equal(t, 4, events.maxAttempts)
	assert.Equal(t, 25, events.limit)

	assert.Equal(t, 1, r.sweepCompletion(context.Background()))
	assert.Equal(t, 1, sweeper.calls)
}

func TestReconcilerDefaults(t *testing.T) {
	events := &fakeEventReconciler{}
	r := NewReconciler(events, &fakeSweeper{}, newTestLocker(t), config.ReconcileConfig{}, log.New(io.Discard, "", 0))

	r.reconcileEvents(context.Background())
	assert.Equal(t, 2*time.Minute, events.minAge)
	assert.Equal(t, 10, events.maxAttempts)
	assert.Equal(t, 500, events.limit)
	assert.Equal(t, "@every 5m", r.cfg.Cron)
}

func TestReconcilerSkipsWhenLockHeld(t *testing.T) {
	locker := newTestLocker(t)
	events := &fakeEventReconciler{result: 5}
	sweeper := &fakeSweeper{result: 2}
	r := NewReconciler(events, sweeper, locker, config.ReconcileConfig{}, log.New(io.Discard, "", 0))

	release, err := locker.Acquire(context.Background(), reconcileLockKey, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 0, r.reconcileEvents(context.Background()))
	assert.Zero(t, events.calls)

	// the other job has its own lock
	assert.Equal(t, 2, r.sweepCompletion(context.Background()))

	release()
	assert.Equal(t, 5, r.reconcileEvents(context.Background()))
	assert.Equal(t, 1, events.calls)
}

func TestReconcilerReleasesLockOnError(t *testing.T) {
	locker := newTestLocker(t)
	events := &fakeEventReconciler{err: errors.New("connection refused")}
	r := NewReconciler(events, &fakeSweeper{}, locker, config.ReconcileConfig{}, log.New(io.Discard, "", 0))

	r.reconcileEvents(context.Background())
	r.reconcileEvents(context.Background())
	assert.Equal(t, 2, events.calls)
}

func TestReconcilerSetupJobs(t *testing.T) {
	r := NewReconciler(&fakeEventReconciler{}, &fakeSweeper{}, newTestLocker(t), config.ReconcileConfig{Cron: "*/2 * * * *"}, log.New(io.Discard, "", 0))
	require.NoError(t, r.SetupJobs())
	assert.Len(t, r.cron.Entries(), 2)

	stop := r.Start(context.Background())
	stop()

	bad := NewReconciler(&fakeEventReconciler{}, &fakeSweeper{}, newTestLocker(t), config.ReconcileConfig{Cron: "every now and then"}, log.New(io.Discard, "", 0))
	assert.Error(t, bad.SetupJobs())
}
