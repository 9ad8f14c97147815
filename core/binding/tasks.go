package binding

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/wunderbyte/evasync/core"
	"github.com/wunderbyte/evasync/core/queue"
)

// RegisterHandlers wires the sync engine into the job worker.
func RegisterHandlers(w *queue.Worker, engine *Engine, logger core.Logger) {
	w.Handle(queue.KindReconcile, ReconcileHandler(engine, logger))
	w.Handle(queue.KindOpenSurvey, OpenSurveyHandler(engine))
	w.Handle(queue.KindCloseSurvey, CloseSurveyHandler(engine))
}

// ReconcileHandler decodes a reconcile job and hands it to the engine.
// A missing payload can never heal, so it fails the job permanently. A
// payload missing one of the required keys is logged and dropped without
// failing the job; stale jobs from before a format change drain silently.
func ReconcileHandler(engine *Engine, logger core.Logger) queue.Handler {
	return func(ctx context.Context, job queue.Job) error {
		if len(job.Payload) == 0 || string(job.Payload) == "null" {
			return queue.Fatal(errors.New("reconcile job without payload"))
		}
		var keys map[string]json.RawMessage
		if err := json.Unmarshal(job.Payload, &keys); err != nil {
			return queue.Fatal(errors.Wrap(err, "decoding reconcile payload"))
		}
		for _, k := range requiredReconcileKeys {
			if _, ok := keys[k]; !ok {
				logger.Warn(fmt.Sprintf("tasks: job %s: reconcile payload missing %q, dropping", job.ID, k))
				return nil
			}
		}
		var p ReconcilePayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return queue.Fatal(errors.Wrap(err, "decoding reconcile payload"))
		}
		return engine.Reconcile(ctx, p)
	}
}

// OpenSurveyHandler opens the survey named in the job payload. Remote
// failures are returned as-is so the worker retries; opening twice is safe.
func OpenSurveyHandler(engine *Engine) queue.Handler {
	return func(ctx context.Context, job queue.Job) error {
		p, err := surveyTask(job)
		if err != nil {
			return err
		}
		return engine.OpenSurvey(ctx, p.SurveyID)
	}
}

// CloseSurveyHandler performs the final close. A close that the remote
// refuses is permanent; leaving the survey open past its window must show
// up as a failed job, not retry forever.
func CloseSurveyHandler(engine *Engine) queue.Handler {
	return func(ctx context.Context, job queue.Job) error {
		p, err := surveyTask(job)
		if err != nil {
			return err
		}
		if err = engine.CloseSurveyFinal(ctx, p.SurveyID); err != nil {
			return queue.Fatal(err)
		}
		return nil
	}
}

func surveyTask(job queue.Job) (SurveyTaskPayload, error) {
	var p SurveyTaskPayload
	if len(job.Payload) == 0 || string(job.Payload) == "null" {
		return p, queue.Fatal(errors.New("survey job without payload"))
	}
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return p, queue.Fatal(errors.Wrap(err, "decoding survey task payload"))
	}
	if p.SurveyID == 0 {
		return p, queue.Fatal(errors.New("survey job without survey id"))
	}
	return p, nil
}
