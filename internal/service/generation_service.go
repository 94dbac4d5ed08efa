package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/makeasinger/motionvault/internal/config"
	"github.com/makeasinger/motionvault/internal/logger"
	"github.com/makeasinger/motionvault/internal/model"
	"github.com/makeasinger/motionvault/internal/state"
)

// GenerationService submits generation jobs for a user's session.
type GenerationService struct {
	engine *state.Engine
	runway config.RunwayConfig
	log    *logger.Logger
}

func NewGenerationService(engine *state.Engine, runway config.RunwayConfig, log *logger.Logger) *GenerationService {
	return &GenerationService{
		engine: engine,
		runway: runway,
		log:    log.With("service", "generation"),
	}
}

// Submit records a task as UPLOADING, uploads both inputs, submits the job
// and moves the task to PENDING with the external job id. Any failure after
// the task exists marks it FAILED and is also returned.
func (s *GenerationService) Submit(ctx context.Context, req model.GenerationRequest) (model.GenerationTask, error) {
	defer req.Reference.Release()
	defer req.Character.Release()

	if req.Reference.LocalPath == "" || req.Character.LocalPath == "" {
		return model.GenerationTask{}, model.Invalid("reference video and character file are required")
	}

	meta := req.Metadata
	meta.Tags = model.NormalizeTags(meta.Tags)
	meta.ReferenceFileName = req.Reference.FileName
	meta.CharacterFileName = req.Character.FileName

	task, err := s.engine.AddTask(ctx, model.GenerationTask{
		Status:          model.TaskUploading,
		InitialMetadata: datatypes.NewJSONType(meta),
	})
	if err != nil {
		return model.GenerationTask{}, fmt.Errorf("create task: %w", err)
	}

	objects := s.engine.Gateway().Objects
	userID := s.engine.UserID()
	refKey := ObjectKey(userID, req.Reference.FileName)
	charKey := ObjectKey(userID, req.Character.FileName)

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return uploadLocalFile(egctx, objects, refKey, req.Reference.LocalPath, req.Reference.ContentType)
	})
	eg.Go(func() error {
		return uploadLocalFile(egctx, objects, charKey, req.Character.LocalPath, req.Character.ContentType)
	})
	if err := eg.Wait(); err != nil {
		return s.fail(ctx, task.ID, fmt.Errorf("upload inputs: %w", err))
	}

	refURL := objects.GetPublicURL(refKey)
	charURL := objects.GetPublicURL(charKey)
	if _, err := s.engine.UpdateTask(ctx, task.ID, model.TaskUpdate{
		InputReferenceVideoURL: &refURL,
		InputCharacterURL:      &charURL,
	}); err != nil {
		return s.fail(ctx, task.ID, fmt.Errorf("record inputs: %w", err))
	}

	jobID, err := s.engine.Gateway().Jobs.Submit(ctx, &model.JobRequest{
		Character: charURL,
		Reference: refURL,
		Ratio:     s.runway.Ratio,
		Model:     s.runway.Model,
	})
	if err != nil {
		return s.fail(ctx, task.ID, fmt.Errorf("submit job: %w", err))
	}

	if _, err := s.engine.UpdateTask(ctx, task.ID, model.TaskUpdate{
		Status:       model.TaskPending,
		RunwayTaskID: &jobID,
	}); err != nil {
		// Nothing would poll or cancel an untracked job.
		s.engine.CancelJob(context.WithoutCancel(ctx), jobID)
		return s.fail(ctx, task.ID, fmt.Errorf("record job %s: %w", jobID, err))
	}

	s.log.Info("Generation job submitted", "task_id", task.ID, "job_id", jobID)
	updated, _ := s.engine.Store().Task(task.ID)
	return updated, nil
}

func (s *GenerationService) fail(ctx context.Context, taskID string, cause error) (model.GenerationTask, error) {
	s.log.Warn("Generation submission failed", "task_id", taskID, "error", cause)
	msg := cause.Error()
	if _, err := s.engine.UpdateTask(context.WithoutCancel(ctx), taskID, model.TaskUpdate{
		Status:       model.TaskFailed,
		ErrorMessage: &msg,
	}); err != nil {
		s.log.Error("Failed to mark task failed", "task_id", taskID, "error", err)
	}
	task, _ := s.engine.Store().Task(taskID)
	return task, cause
}
