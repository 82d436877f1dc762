// Package queue implements the durable enrichment job queue. Jobs live in
// the store's ledger table; enqueueing creates a pending row and workers
// claim rows atomically, so any number of API and worker processes can
// share one database.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-api/internal/apperr"
	"github.com/sells-group/prospect-api/internal/model"
	"github.com/sells-group/prospect-api/internal/notify"
	"github.com/sells-group/prospect-api/internal/store"
)

// Queue enqueues enrichment jobs and reports their status.
type Queue struct {
	store    store.Store
	notifier notify.Notifier
}

// New creates a Queue over the given store. A nil notifier disables events.
func New(st store.Store, notifier notify.Notifier) *Queue {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Queue{store: st, notifier: notifier}
}

// Enqueue creates a pending description job for the company and returns the
// job id. Each call creates a fresh job; concurrent requests for the same
// company are not coalesced. Company existence is not checked here: a job
// for an unknown company fails when the worker picks it up.
func (q *Queue) Enqueue(ctx context.Context, companyID string) (string, error) {
	if companyID == "" {
		return "", apperr.Validation("company id is required")
	}

	job, err := q.store.CreateJob(ctx, model.JobTypeDescription, companyID)
	if err != nil {
		return "", eris.Wrap(err, "queue: create job")
	}

	zap.L().Info("queue: job enqueued",
		zap.String("job_id", job.ID),
		zap.String("company_id", companyID),
	)
	q.notifier.Publish(notify.JobTopic(job.ID), notify.JobEvent{
		JobID:     job.ID,
		CompanyID: companyID,
		Status:    string(model.JobStatusPending),
		At:        job.CreatedAt,
	})
	return job.ID, nil
}

// Status is the externally visible state of a job.
type Status struct {
	JobID     string          `json:"jobId"`
	Status    model.JobStatus `json:"status"`
	Progress  int             `json:"progress"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at,omitzero"`
	UpdatedAt time.Time       `json:"updated_at,omitzero"`
}

// GetStatus reports the state of a job. Unknown ids yield a not_found
// status, not an error, so pollers can treat the response uniformly.
func (q *Queue) GetStatus(ctx context.Context, jobID string) (Status, error) {
	job, err := q.store.GetJob(ctx, jobID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return Status{JobID: jobID, Status: model.JobStatusNotFound}, nil
		}
		return Status{}, eris.Wrap(err, "queue: get status")
	}
	return Status{
		JobID:     job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		Result:    job.Result,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}, nil
}

// ListJobs returns the most recent jobs for a company, newest first.
func (q *Queue) ListJobs(ctx context.Context, companyID string, limit int) ([]model.Job, error) {
	if companyID == "" {
		return nil, apperr.Validation("company id is required")
	}
	jobs, err := q.store.ListJobsByCompany(ctx, companyID, limit)
	return jobs, eris.Wrap(err, "queue: list jobs")
}
