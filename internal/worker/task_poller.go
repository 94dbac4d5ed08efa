package worker

import (
	"context"
	"sync"
	"time"

	"github.com/makeasinger/motionvault/internal/logger"
	"github.com/makeasinger/motionvault/internal/model"
	"github.com/makeasinger/motionvault/internal/state"
)

const DefaultPollInterval = 10 * time.Second

// TaskPoller advances generation tasks by polling the job API on a fixed
// interval. Only PENDING and RUNNING tasks with an external job id are
// queried.
type TaskPoller struct {
	engine   *state.Engine
	interval time.Duration
	log      *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTaskPoller(engine *state.Engine, interval time.Duration, log *logger.Logger) *TaskPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &TaskPoller{
		engine:   engine,
		interval: interval,
		log:      log.With("worker", "task_poller"),
	}
}

// Start launches the polling loop. The first tick runs immediately. Calling
// Start on a running poller does nothing.
func (p *TaskPoller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			p.Tick(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight tick to finish.
func (p *TaskPoller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *TaskPoller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Tick polls every outstanding task once and returns how many were updated.
// A failed status query marks that task FAILED and does not stop the tick.
func (p *TaskPoller) Tick(ctx context.Context) int {
	jobs := p.engine.Gateway().Jobs
	changed := 0

	for _, task := range p.engine.Store().Tasks() {
		if !task.Status.Polled() || task.RunwayTaskID == nil || *task.RunwayTaskID == "" {
			continue
		}
		if ctx.Err() != nil {
			return changed
		}

		upd, ok := p.next(ctx, task, jobs.GetStatus)
		if !ok {
			continue
		}
		updated, err := p.engine.UpdateTask(ctx, task.ID, upd)
		if err != nil {
			p.log.Warn("Failed to record task status", "task_id", task.ID, "error", err)
			continue
		}
		if updated {
			changed++
			p.log.Info("Task status changed", "task_id", task.ID, "from", task.Status, "to", upd.Status)
		}
	}

	if changed > 0 {
		if err := p.engine.Reload(ctx); err != nil {
			p.log.Warn("Reload after poll failed", "error", err)
		}
	}
	return changed
}

type statusFunc func(ctx context.Context, jobID string) (*model.JobReport, error)

// next computes the update for one task, reporting false when nothing should
// be written.
func (p *TaskPoller) next(ctx context.Context, task model.GenerationTask, status statusFunc) (model.TaskUpdate, bool) {
	report, err := status(ctx, *task.RunwayTaskID)
	if err != nil {
		if ctx.Err() != nil {
			return model.TaskUpdate{}, false
		}
		msg := err.Error()
		p.log.Warn("Task poll failed", "task_id", task.ID, "job_id", *task.RunwayTaskID, "error", err)
		return model.TaskUpdate{Status: model.TaskFailed, ErrorMessage: &msg}, true
	}

	next, err := model.ParseTaskStatus(report.Status)
	if err != nil {
		p.log.Debug("Ignoring job status", "task_id", task.ID, "error", err)
		return model.TaskUpdate{}, false
	}
	if next == task.Status {
		return model.TaskUpdate{}, false
	}
	if !task.Status.CanTransition(next) {
		p.log.Debug("Ignoring backward job status", "task_id", task.ID, "from", task.Status, "to", next)
		return model.TaskUpdate{}, false
	}

	upd := model.TaskUpdate{Status: next}
	if uri := report.Output.URI; uri != "" {
		upd.OutputVideoURL = &uri
	}
	if msg := report.ErrorText(); msg != "" {
		upd.ErrorMessage = &msg
	}
	return upd, true
}
