package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-api/internal/model"
	"github.com/sells-group/prospect-api/internal/notify"
	"github.com/sells-group/prospect-api/internal/store"
)

// Processor runs one claimed job and returns its result payload.
type Processor interface {
	Process(ctx context.Context, job model.Job) (json.RawMessage, error)
}

// WorkerConfig tunes the polling worker.
type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	JobTimeout   time.Duration
	RatePerSec   float64
}

// Worker polls the ledger for pending jobs, claims them, and runs the
// processor. Failures are contained per job: one bad job marks itself
// failed and never takes down the loop or its batch-mates.
type Worker struct {
	store     store.Store
	processor Processor
	notifier  notify.Notifier

	concurrency  int
	pollInterval time.Duration
	jobTimeout   time.Duration
	limiter      *rate.Limiter
}

// NewWorker creates a Worker with defaults filled in.
func NewWorker(st store.Store, processor Processor, notifier notify.Notifier, cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return &Worker{
		store:        st,
		processor:    processor,
		notifier:     notifier,
		concurrency:  cfg.Concurrency,
		pollInterval: cfg.PollInterval,
		jobTimeout:   cfg.JobTimeout,
		limiter:      limiter,
	}
}

// Run polls until ctx is cancelled. A non-empty claim is followed by an
// immediate re-poll so a backlog drains at full speed.
func (w *Worker) Run(ctx context.Context) error {
	zap.L().Info("worker: started",
		zap.Int("concurrency", w.concurrency),
		zap.Duration("poll_interval", w.pollInterval),
	)
	for {
		n, err := w.RunOnce(ctx)
		if err != nil {
			zap.L().Error("worker: poll failed", zap.Error(err))
		}
		if n > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			zap.L().Info("worker: stopped")
			return nil
		case <-time.After(w.pollInterval):
		}
	}
}

// RunOnce claims and processes a single batch. It returns the number of
// jobs claimed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	jobs, err := w.store.ClaimJobs(ctx, w.concurrency)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	for _, job := range jobs {
		w.notifier.Publish(notify.JobTopic(job.ID), notify.JobEvent{
			JobID:     job.ID,
			CompanyID: job.CompanyID,
			Status:    string(model.JobStatusProcessing),
			At:        job.UpdatedAt,
		})
	}

	g := new(errgroup.Group)
	g.SetLimit(w.concurrency)
	for _, job := range jobs {
		g.Go(func() error {
			w.process(ctx, job)
			return nil
		})
	}
	_ = g.Wait()
	return len(jobs), nil
}

func (w *Worker) process(ctx context.Context, job model.Job) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("worker: job panicked",
				zap.String("job_id", job.ID),
				zap.Any("panic", r),
			)
			w.fail(ctx, job, fmt.Sprintf("panic: %v", r))
		}
	}()

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			w.fail(ctx, job, "worker shutting down")
			return
		}
	}

	jctx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	start := time.Now()
	result, err := w.processor.Process(jctx, job)
	if err != nil {
		zap.L().Warn("worker: job failed",
			zap.String("job_id", job.ID),
			zap.String("company_id", job.CompanyID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		w.fail(ctx, job, err.Error())
		return
	}

	if err := w.store.CompleteJob(ctx, job.ID, result); err != nil {
		zap.L().Error("worker: mark complete failed",
			zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	zap.L().Info("worker: job completed",
		zap.String("job_id", job.ID),
		zap.String("company_id", job.CompanyID),
		zap.Duration("elapsed", time.Since(start)),
	)
	w.notifier.Publish(notify.JobTopic(job.ID), notify.JobEvent{
		JobID:     job.ID,
		CompanyID: job.CompanyID,
		Status:    string(model.JobStatusCompleted),
		Progress:  100,
		Result:    result,
		At:        time.Now().UTC(),
	})
}

func (w *Worker) fail(ctx context.Context, job model.Job, msg string) {
	if err := w.store.FailJob(ctx, job.ID, msg); err != nil {
		zap.L().Error("worker: mark failed errored",
			zap.String("job_id", job.ID), zap.Error(err))
	}
	ev := notify.JobEvent{
		JobID:     job.ID,
		CompanyID: job.CompanyID,
		Status:    string(model.JobStatusFailed),
		Error:     msg,
		At:        time.Now().UTC(),
	}
	w.notifier.Publish(notify.JobTopic(job.ID), ev)
	w.notifier.Publish(notify.CompanyErrorTopic(job.CompanyID), ev)
}
