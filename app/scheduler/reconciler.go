package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/amirphl/Orochi-WhatsApp/app/services"
	"github.com/amirphl/Orochi-WhatsApp/config"
	"github.com/robfig/cron/v3"
)

const (
	reconcileLockKey = "reconcile:webhook-events"
	sweepLockKey     = "reconcile:campaign-completion"
	sweepSchedule    = "@every 1m"
)

// EventReconciler re-enqueues webhook events that lost their processing task
type EventReconciler interface {
	ReconcileEvents(ctx context.Context, minAge time.Duration, maxAttempts, limit int) (int, error)
}

// CompletionSweeper completes campaigns whose messages all reached a terminal state
type CompletionSweeper interface {
	SweepProcessing(ctx context.Context) (int, error)
}

// Reconciler runs the periodic repair jobs. Each job takes a shared lock so
// only one instance in the fleet runs it at a time.
type Reconciler struct {
	cron    *cron.Cron
	events  EventReconciler
	sweeper CompletionSweeper
	locker  services.Locker
	cfg     config.ReconcileConfig
	logger  *log.Logger
	baseCtx context.Context
}

func NewReconciler(events EventReconciler, sweeper CompletionSweeper, locker services.Locker, cfg config.ReconcileConfig, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.New(os.Stdout, "reconcile: ", log.LstdFlags)
	}
	if cfg.Cron == "" {
		cfg.Cron = "@every 5m"
	}
	if cfg.MinAge <= 0 {
		cfg.MinAge = 2 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}

	return &Reconciler{
		cron:    cron.New(),
		events:  events,
		sweeper: sweeper,
		locker:  locker,
		cfg:     cfg,
		logger:  logger,
		baseCtx: context.Background(),
	}
}

// SetupJobs registers the reconciliation jobs with the cron scheduler
func (r *Reconciler) SetupJobs() error {
	if _, err := r.cron.AddFunc(r.cfg.Cron, func() { r.reconcileEvents(r.baseCtx) }); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", r.cfg.Cron, err)
	}
	if _, err := r.cron.AddFunc(sweepSchedule, func() { r.sweepCompletion(r.baseCtx) }); err != nil {
		return fmt.Errorf("invalid sweep schedule: %w", err)
	}
	r.logger.Printf("reconcile jobs scheduled: events=%q completion=%q", r.cfg.Cron, sweepSchedule)
	return nil
}

// Start runs the scheduler and returns a stop function that waits for
// running jobs to finish.
func (r *Reconciler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	r.baseCtx = ctx
	r.cron.Start()

	go func() {
		<-ctx.Done()
		r.cron.Stop()
	}()

	return func() {
		cancel()
		<-r.cron.Stop().Done()
		r.logger.Println("reconcile jobs stopped")
	}
}

func (r *Reconciler) reconcileEvents(parent context.Context) int {
	release, ok := r.lock(parent, reconcileLockKey)
	if !ok {
		return 0
	}
	defer release()

	ctx, cancel := context.WithTimeout(parent, 5*time.Minute)
	defer cancel()

	n, err := r.events.ReconcileEvents(ctx, r.cfg.MinAge, r.cfg.MaxAttempts, r.cfg.BatchSize)
	if err != nil {
		r.logger.Printf("webhook event reconciliation failed: %v", err)
		return n
	}
	if n > 0 {
		r.logger.Printf("re-enqueued %d unprocessed webhook events", n)
	}
	return n
}

func (r *Reconciler) sweepCompletion(parent context.Context) int {
	release, ok := r.lock(parent, sweepLockKey)
	if !ok {
		return 0
	}
	defer release()

	ctx, cancel := context.WithTimeout(parent, 5*time.Minute)
	defer cancel()

	n, err := r.sweeper.SweepProcessing(ctx)
	if err != nil {
		r.logger.Printf("campaign completion sweep failed: %v", err)
		return n
	}
	if n > 0 {
		r.logger.Printf("completed %d campaigns", n)
	}
	return n
}

func (r *Reconciler) lock(ctx context.Context, key string) (func(), bool) {
	release, err := r.locker.Acquire(ctx, key, 10*time.Minute)
	if err != nil {
		if !errors.Is(err, services.ErrLockHeld) {
			r.logger.Printf("failed to acquire %s: %v", key, err)
		}
		return nil, false
	}
	return release, true
}
