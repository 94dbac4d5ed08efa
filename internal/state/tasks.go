package state

import (
	"context"
	"fmt"
	"time"

	"github.com/makeasinger/motionvault/internal/model"
)

// AddTask inserts a generation task owned by the engine's user.
func (e *Engine) AddTask(ctx context.Context, task model.GenerationTask) (model.GenerationTask, error) {
	if !task.Status.Valid() {
		return model.GenerationTask{}, model.Invalid(fmt.Sprintf("unknown task status %q", task.Status))
	}
	task.UserID = e.userID
	task.ID = ""

	pending := model.CloneTask(task)
	pending.ID = provisionalID()
	if pending.CreatedAt.IsZero() {
		pending.CreatedAt = time.Now()
	}

	var inserted *model.GenerationTask
	err := e.Mutate(ctx, "add task",
		func(c *Collections) {
			c.Tasks = append(c.Tasks, pending)
		},
		func(ctx context.Context) error {
			row, err := e.gw.Rows.InsertTask(ctx, task)
			inserted = row
			return err
		},
	)
	if err != nil {
		return model.GenerationTask{}, err
	}

	e.store.apply(func(c *Collections) {
		kept := c.Tasks[:0]
		for _, t := range c.Tasks {
			if t.ID == pending.ID || t.ID == inserted.ID {
				continue
			}
			kept = append(kept, t)
		}
		c.Tasks = append(kept, model.CloneTask(*inserted))
	})
	return model.CloneTask(*inserted), nil
}

// UpdateTask writes upd to a task. A status change must be a legal forward
// transition. It reports whether anything was written.
func (e *Engine) UpdateTask(ctx context.Context, id string, upd model.TaskUpdate) (bool, error) {
	task, ok := e.store.Task(id)
	if !ok {
		return false, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}
	if upd.Status == task.Status {
		upd.Status = ""
	}
	if upd.Status != "" && !task.Status.CanTransition(upd.Status) {
		return false, model.Invalid(fmt.Sprintf("illegal task transition %s -> %s", task.Status, upd.Status))
	}
	cols := upd.Columns()
	if len(cols) == 0 {
		return false, nil
	}

	err := e.Mutate(ctx, "update task",
		func(c *Collections) {
			for i := range c.Tasks {
				if c.Tasks[i].ID == id {
					upd.Apply(&c.Tasks[i])
				}
			}
		},
		func(ctx context.Context) error {
			return e.gw.Rows.UpdateTask(ctx, id, cols)
		},
	)
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteTask removes a task record and its temporary input objects. A task
// still waiting on the external job gets a best-effort cancellation that the
// caller never waits for.
func (e *Engine) DeleteTask(ctx context.Context, id string) error {
	task, ok := e.store.Task(id)
	if !ok {
		return fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}
	keys := e.gw.ObjectKeys(task.InputURLs())

	return e.Mutate(ctx, "delete task",
		func(c *Collections) {
			kept := c.Tasks[:0]
			for _, t := range c.Tasks {
				if t.ID != id {
					kept = append(kept, t)
				}
			}
			c.Tasks = kept
		},
		func(ctx context.Context) error {
			if task.Status.Polled() && task.RunwayTaskID != nil && e.canceller != nil {
				e.canceller.CancelJob(ctx, *task.RunwayTaskID)
			}
			if err := e.gw.Rows.DeleteTask(ctx, id); err != nil {
				return err
			}
			if len(keys) == 0 {
				return nil
			}
			return e.gw.Objects.Remove(ctx, keys)
		},
	)
}
