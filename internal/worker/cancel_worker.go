package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/makeasinger/motionvault/internal/client"
	"github.com/makeasinger/motionvault/internal/logger"
)

const (
	TaskTypeCancel = "generation:cancel"
	QueueCancel    = "cancel"

	cancelTimeout = 30 * time.Second
)

type cancelPayload struct {
	JobID string `json:"jobId"`
}

// NewCancelTask builds the queued request to cancel an external job.
func NewCancelTask(jobID string) (*asynq.Task, error) {
	data, err := json.Marshal(cancelPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeCancel, data), nil
}

// CancelWorker processes queued job cancellations.
type CancelWorker struct {
	jobs client.VideoGenerator
	log  *logger.Logger
}

func NewCancelWorker(jobs client.VideoGenerator, log *logger.Logger) *CancelWorker {
	return &CancelWorker{jobs: jobs, log: log.With("worker", "cancel")}
}

// ProcessTask cancels the job named in the payload. A job the API no longer
// knows counts as settled.
func (w *CancelWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload cancelPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal cancel payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("cancel payload has no job id: %w", asynq.SkipRetry)
	}
	return cancelJob(ctx, w.jobs, w.log, payload.JobID)
}

func cancelJob(ctx context.Context, jobs client.VideoGenerator, log *logger.Logger, jobID string) error {
	err := jobs.Cancel(ctx, jobID)
	switch {
	case err == nil:
		log.Info("Job cancelled", "job_id", jobID)
		return nil
	case errors.Is(err, client.ErrJobNotFound):
		log.Info("Job already settled", "job_id", jobID)
		return nil
	default:
		log.Warn("Job cancellation failed", "job_id", jobID, "error", err)
		return err
	}
}

// DirectCanceller calls the job API on a background goroutine.
type DirectCanceller struct {
	jobs client.VideoGenerator
	log  *logger.Logger
	wg   sync.WaitGroup
}

func NewDirectCanceller(jobs client.VideoGenerator, log *logger.Logger) *DirectCanceller {
	return &DirectCanceller{jobs: jobs, log: log.With("canceller", "direct")}
}

func (c *DirectCanceller) CancelJob(ctx context.Context, jobID string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
		defer cancel()
		_ = cancelJob(cctx, c.jobs, c.log, jobID)
	}()
}

// Wait blocks until every started cancellation has returned.
func (c *DirectCanceller) Wait() {
	c.wg.Wait()
}

// AsynqCanceller queues cancellations so they are retried by the worker
// server. If the queue is unreachable it falls back to a direct call.
type AsynqCanceller struct {
	client   *asynq.Client
	fallback *DirectCanceller
	log      *logger.Logger
}

func NewAsynqCanceller(asynqClient *asynq.Client, fallback *DirectCanceller, log *logger.Logger) *AsynqCanceller {
	return &AsynqCanceller{client: asynqClient, fallback: fallback, log: log.With("canceller", "asynq")}
}

// CancelJob enqueues in the background. The fallback's Wait also covers the
// enqueue.
func (c *AsynqCanceller) CancelJob(ctx context.Context, jobID string) {
	c.fallback.wg.Add(1)
	go func() {
		defer c.fallback.wg.Done()
		task, err := NewCancelTask(jobID)
		if err == nil {
			ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			_, err = c.client.EnqueueContext(ectx, task,
				asynq.Queue(QueueCancel),
				asynq.MaxRetry(3),
				asynq.Retention(time.Hour),
			)
			cancel()
		}
		if err != nil {
			c.log.Warn("Failed to enqueue cancellation, calling API directly", "job_id", jobID, "error", err)
			c.fallback.CancelJob(ctx, jobID)
		}
	}()
}
