// Package scheduler runs the background loops of the service: the queue
// worker that drains the task table and the periodic reconciliation sweeps.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/amirphl/Orochi-WhatsApp/app/metrics"
	businessflow "github.com/amirphl/Orochi-WhatsApp/business_flow"
	"github.com/amirphl/Orochi-WhatsApp/config"
	"github.com/amirphl/Orochi-WhatsApp/models"
	"github.com/amirphl/Orochi-WhatsApp/repository"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
)

// ErrUnknownTaskKind is recorded on tasks no handler is registered for
var ErrUnknownTaskKind = errors.New("unknown task kind")

// TaskHandler executes one claimed task
type TaskHandler func(ctx context.Context, task *models.QueueTask) error

// GiveUpHandler settles the referenced row once a task is out of attempts
type GiveUpHandler func(ctx context.Context, task *models.QueueTask, lastErr error) error

// QueueWorker polls the task table, claims due tasks and runs them on a
// bounded pool of goroutines. All coordination goes through the rows.
type QueueWorker struct {
	repo     repository.QueueTaskRepository
	handlers map[models.QueueTaskKind]TaskHandler
	giveUps  map[models.QueueTaskKind]GiveUpHandler
	cfg      config.QueueConfig
	logger   *log.Logger
	workerID string
	now      func() time.Time
}

func NewQueueWorker(
	repo repository.QueueTaskRepository,
	dispatch businessflow.MessageDispatchFlow,
	webhook businessflow.WebhookFlow,
	cfg config.QueueConfig,
	logger *log.Logger,
) *QueueWorker {
	if logger == nil {
		logger = log.New(os.Stdout, "queue: ", log.LstdFlags)
	}
	host, _ := os.Hostname()

	w := &QueueWorker{
		repo:     repo,
		handlers: make(map[models.QueueTaskKind]TaskHandler),
		giveUps:  make(map[models.QueueTaskKind]GiveUpHandler),
		cfg:      withQueueDefaults(cfg),
		logger:   logger,
		workerID: fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		now:      utils.UTCNow,
	}

	if dispatch != nil {
		w.Register(models.QueueTaskSendMessage, func(ctx context.Context, task *models.QueueTask) error {
			return dispatch.SendMessage(ctx, task.ReferenceID)
		})
		w.OnGiveUp(models.QueueTaskSendMessage, func(ctx context.Context, task *models.QueueTask, lastErr error) error {
			return dispatch.AbandonMessage(ctx, task.ReferenceID, lastErr.Error())
		})
	}
	if webhook != nil {
		w.Register(models.QueueTaskProcessWebhookEvent, func(ctx context.Context, task *models.QueueTask) error {
			return webhook.ProcessEvent(ctx, task.ReferenceID)
		})
	}

	return w
}

func withQueueDefaults(cfg config.QueueConfig) config.QueueConfig {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 2 * time.Minute
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = utils.DefaultQueueMaxAttempts
	}
	return cfg
}

// Register installs the handler for a task kind, replacing any previous one
func (w *QueueWorker) Register(kind models.QueueTaskKind, handler TaskHandler) {
	w.handlers[kind] = handler
}

// OnGiveUp installs the hook run when a task of the kind is abandoned
func (w *QueueWorker) OnGiveUp(kind models.QueueTaskKind, handler GiveUpHandler) {
	w.giveUps[kind] = handler
}

// Start launches the polling loop and returns a stop function. The stop
// function waits for the batch in flight to finish.
func (w *QueueWorker) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(w.cfg.PollInterval)
		defer ticker.Stop()

		w.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.runOnce(ctx)
			}
		}
	}()

	w.logger.Printf("queue worker %s started: workers=%d batch=%d interval=%s", w.workerID, w.cfg.Workers, w.cfg.BatchSize, w.cfg.PollInterval)

	return func() {
		cancel()
		<-done
		w.logger.Printf("queue worker %s stopped", w.workerID)
	}
}

// runOnce claims one batch and blocks until every claimed task has run.
// It returns the number of tasks claimed.
func (w *QueueWorker) runOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	tasks, err := w.repo.Claim(ctx, w.workerID, w.now(), w.cfg.VisibilityTimeout, w.cfg.BatchSize)
	if err != nil {
		// rows claimed before the error are still ours and run below
		w.logger.Printf("claim failed: %v", err)
	}
	if len(tasks) == 0 {
		return 0
	}

	sem := make(chan struct{}, w.cfg.Workers)
	var wg sync.WaitGroup
	for _, task := range tasks {
		sem <- struct{}{}
		wg.Add(1)
		go func(task *models.QueueTask) {
			defer wg.Done()
			defer func() { <-sem }()
			w.process(ctx, task)
		}(task)
	}
	wg.Wait()

	return len(tasks)
}

// process runs one task and records its outcome. Outcome writes use a
// context detached from shutdown so a stopping worker still releases rows.
func (w *QueueWorker) process(ctx context.Context, task *models.QueueTask) {
	started := time.Now()
	kind := string(task.Kind)

	err := w.execute(ctx, task)
	writeCtx := context.WithoutCancel(ctx)
	now := w.now()

	if err == nil {
		if cerr := w.repo.Complete(writeCtx, task.ID, now); cerr != nil {
			w.logger.Printf("task %d: failed to mark complete: %v", task.ID, cerr)
		}
		metrics.QueueTask(kind, "success", started)
		return
	}

	attempt := task.Attempts + 1
	maxAttempts := task.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = w.cfg.MaxAttempts
	}

	var retryAt *time.Time
	result := "exhausted"
	if attempt < maxAttempts && !errors.Is(err, ErrUnknownTaskKind) {
		at := now.Add(Backoff(attempt))
		retryAt = &at
		result = "retry"
	}

	if ferr := w.repo.Fail(writeCtx, task.ID, err.Error(), retryAt, now); ferr != nil {
		w.logger.Printf("task %d: failed to record failure: %v", task.ID, ferr)
	}
	metrics.QueueTask(kind, result, started)

	if retryAt != nil {
		w.logger.Printf("task %d (%s ref=%d) attempt %d/%d failed, retrying at %s: %v", task.ID, kind, task.ReferenceID, attempt, maxAttempts, retryAt.Format(time.RFC3339), err)
		return
	}
	w.logger.Printf("task %d (%s ref=%d) gave up after %d attempts: %v", task.ID, kind, task.ReferenceID, attempt, err)

	if giveUp, ok := w.giveUps[task.Kind]; ok {
		if gerr := giveUp(writeCtx, task, err); gerr != nil {
			w.logger.Printf("task %d: give-up handler failed: %v", task.ID, gerr)
		}
	}
}

func (w *QueueWorker) execute(parent context.Context, task *models.QueueTask) (err error) {
	handler, ok := w.handlers[task.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTaskKind, task.Kind)
	}

	ctx, cancel := context.WithTimeout(parent, w.cfg.TaskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			w.logger.Printf("task %d panicked: %v\n%s", task.ID, r, debug.Stack())
			hub := sentry.CurrentHub().Clone()
			hub.Scope().SetTag("task_kind", string(task.Kind))
			hub.Scope().SetTag("task_id", fmt.Sprint(task.ID))
			hub.Scope().SetTag("reference_id", fmt.Sprint(task.ReferenceID))
			hub.Recover(r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return handler(ctx, task)
}

// Backoff is the delay before the given attempt is retried: 5s doubling per
// attempt, capped at five minutes.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := utils.QueueBackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= utils.QueueBackoffMax {
			return utils.QueueBackoffMax
		}
	}
	return delay
}
