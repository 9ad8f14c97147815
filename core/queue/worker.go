package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/wunderbyte/evasync/core"
)

// Handler executes one job. A nil return marks the job done. ErrFatal-wrapped
// errors fail the job permanently; any other error schedules a retry until
// the attempt budget is spent.
type Handler func(ctx context.Context, job Job) error

// ErrFatal marks job errors that must not be retried.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal wraps err so the worker fails the job without retrying.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

func isFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

// Worker polls the queue and runs due jobs one at a time. Jobs are claimed
// and executed sequentially, so two jobs referencing the same binding can
// never race each other.
type Worker struct {
	svc      *Service
	conf     core.WorkerConfig
	logger   core.Logger
	handlers map[Kind]Handler
}

func NewWorker(svc *Service, conf core.WorkerConfig, logger core.Logger) *Worker {
	return &Worker{
		svc:      svc,
		conf:     conf,
		logger:   logger,
		handlers: make(map[Kind]Handler),
	}
}

// Handle registers the handler for a job kind. Not safe to call once Run
// has started.
func (w *Worker) Handle(kind Kind, h Handler) {
	w.handlers[kind] = h
}

// Run polls until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.conf.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.logger.Error(fmt.Sprintf("worker: poll failed: %v", err), err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce claims and executes every currently due job.
func (w *Worker) RunOnce(ctx context.Context) error {
	jobs, err := w.svc.repo.ClaimDue(ctx, time.Now().UTC(), 50)
	if err != nil {
		return errors.Wrap(err, "claiming due jobs")
	}
	for _, job := range jobs {
		w.runJob(ctx, job)
	}
	return nil
}

func (w *Worker) runJob(ctx context.Context, job Job) {
	handler, ok := w.handlers[job.Kind]
	if !ok {
		w.logger.Error(fmt.Sprintf("worker: no handler for job kind %q", job.Kind))
		_ = w.svc.repo.MarkFailed(ctx, job.ID, "no handler registered")
		return
	}

	w.logger.Info(fmt.Sprintf("worker: %s job %s (option %d) executed", job.Kind, job.ID, job.OptionID))
	err := handler(ctx, job)
	if err == nil {
		if mErr := w.svc.repo.MarkDone(ctx, job.ID); mErr != nil {
			w.logger.Error(fmt.Sprintf("worker: marking job %s done: %v", job.ID, mErr), mErr)
		}
		return
	}

	if isFatal(err) || job.Attempts+1 >= w.conf.MaxAttempts {
		w.logger.Error(fmt.Sprintf("worker: %s job %s failed permanently: %v", job.Kind, job.ID, err), err)
		if mErr := w.svc.repo.MarkFailed(ctx, job.ID, err.Error()); mErr != nil {
			w.logger.Error(fmt.Sprintf("worker: marking job %s failed: %v", job.ID, mErr), mErr)
		}
		return
	}

	retryAt := time.Now().UTC().Add(w.conf.RetryDelay)
	w.logger.Warn(fmt.Sprintf("worker: %s job %s failed, retrying at %s: %v", job.Kind, job.ID, retryAt.Format(time.RFC3339), err))
	if mErr := w.svc.repo.MarkRetry(ctx, job.ID, err.Error(), retryAt); mErr != nil {
		w.logger.Error(fmt.Sprintf("worker: re-queuing job %s: %v", job.ID, mErr), mErr)
	}
}
