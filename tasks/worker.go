package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/parley-forum/parley/config"
	"github.com/parley-forum/parley/utils"
)

// Worker consumes the task queue. It owns the handlers for content
// cleaning and notification delivery; both resolve all state (post, flags,
// recipients) at execution time, never from the enqueue-time snapshot.
// workerQueue is what the pool needs from its queue; RedisQueue is the
// production implementation.
type workerQueue interface {
	Enqueue(ctx context.Context, t Task) error
	EnqueueIn(ctx context.Context, t Task, delay time.Duration) error
	pop(ctx context.Context, timeout time.Duration) (*Task, error)
	promoteDue(ctx context.Context) error
}

type Worker struct {
	db    *gorm.DB
	queue workerQueue
	cfg   config.AppConfig
	log   *zap.SugaredLogger

	// sendMail is swappable in tests.
	sendMail func(to, subject, body string) error
}

// NewWorker builds a worker pool over the queue.
func NewWorker(db *gorm.DB, queue *RedisQueue, cfg config.AppConfig) *Worker {
	return &Worker{
		db:       db,
		queue:    queue,
		cfg:      cfg,
		log:      utils.Sugar,
		sendMail: utils.SendMail,
	}
}

// Run starts the consumer goroutines plus the delayed-task promoter and
// blocks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	n := w.cfg.WorkerCount
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		go w.consumeLoop(ctx)
	}
	w.promoteLoop(ctx)
}

func (w *Worker) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.promoteDue(ctx); err != nil && ctx.Err() == nil {
				w.log.Warnf("promoting delayed tasks failed: %v", err)
			}
		}
	}
}

func (w *Worker) consumeLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		t, err := w.queue.pop(ctx, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warnf("queue pop failed: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if t == nil {
			continue
		}
		w.dispatch(ctx, *t)
	}
}

// dispatch runs one task and applies the retry policy: ErrRetry-class
// failures are redelivered after the retry delay until attempts are
// exhausted, anything else is logged and dropped.
func (w *Worker) dispatch(ctx context.Context, t Task) {
	err := w.Handle(ctx, t)
	if err == nil {
		return
	}

	if errors.Is(err, ErrRetry) {
		if t.Attempt+1 >= w.cfg.TaskMaxAttempts {
			w.log.Warnf("task %s %s abandoned after %d attempts: %v", t.Type, t.ID, t.Attempt+1, err)
			return
		}
		t.Attempt++
		if qerr := w.queue.EnqueueIn(ctx, t, w.cfg.TaskRetryDelay); qerr != nil {
			w.log.Errorf("requeue of task %s %s failed: %v", t.Type, t.ID, qerr)
		}
		return
	}

	w.log.Errorf("task %s %s failed permanently: %v", t.Type, t.ID, err)
}

// Handle executes a single task. Exported so tests can drive tasks
// through the same code path the pool uses.
func (w *Worker) Handle(ctx context.Context, t Task) error {
	switch t.Type {
	case TypeCleanContent:
		return w.handleCleanContent(t)
	case TypeModerationPending:
		return w.handleModerationPending(ctx, t)
	case TypeModerationPendingUser:
		return w.handleModerationPendingUser(t)
	case TypePostApproved:
		return w.handlePostApproved(t)
	case TypeNewReply:
		return w.handleNewReply(ctx, t)
	case TypeNewReplyUser:
		return w.handleNewReplyUser(t)
	default:
		return fmt.Errorf("unknown task type %q", t.Type)
	}
}
