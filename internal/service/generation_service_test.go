package service

import (
	"context"
	"errors"
	"testing"

	"github.com/makeasinger/motionvault/internal/config"
	"github.com/makeasinger/motionvault/internal/logger"
	"github.com/makeasinger/motionvault/internal/model"
	"github.com/makeasinger/motionvault/internal/testsupport"
)

func generationRequest(t *testing.T) model.GenerationRequest {
	return model.GenerationRequest{
		Reference: stageFile(t, "ref.mp4", 512),
		Character: stageFile(t, "char.png", 256),
		Metadata: model.InitialMetadata{
			PerformanceActor: "Alex",
			MovementType:     "Walk",
			TakeNumber:       2,
			Tags:             []string{"a", " a ", "b"},
		},
	}
}

func TestSubmitMovesTaskToPending(t *testing.T) {
	b := testsupport.NewBackend()
	engine := b.Engine(t, "user-1")
	svc := NewGenerationService(engine, config.RunwayConfig{Model: "act_two", Ratio: "1280:720"}, logger.Nop())

	task, err := svc.Submit(context.Background(), generationRequest(t))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if task.Status != model.TaskPending {
		t.Fatalf("expected PENDING, got %s", task.Status)
	}
	if task.RunwayTaskID == nil || *task.RunwayTaskID != "job-1" {
		t.Fatalf("expected job id job-1, got %v", task.RunwayTaskID)
	}
	if len(task.InputURLs()) != 2 {
		t.Fatalf("expected both input urls, got %v", task.InputURLs())
	}

	meta := task.InitialMetadata.Data()
	if meta.ReferenceFileName != "ref.mp4" || meta.CharacterFileName != "char.png" {
		t.Fatalf("expected file names in metadata, got %+v", meta)
	}
	if len(meta.Tags) != 2 {
		t.Fatalf("expected normalized tags, got %v", meta.Tags)
	}

	if len(b.Jobs.Submitted) != 1 {
		t.Fatalf("expected one submission, got %d", len(b.Jobs.Submitted))
	}
	sub := b.Jobs.Submitted[0]
	if sub.Model != "act_two" || sub.Ratio != "1280:720" {
		t.Fatalf("unexpected job request %+v", sub)
	}
	if sub.Reference != *task.InputReferenceVideoURL || sub.Character != *task.InputCharacterURL {
		t.Fatalf("job inputs do not match task inputs")
	}

	row, _ := b.Rows.Task(task.ID)
	if row.Status != model.TaskPending {
		t.Fatalf("expected row PENDING, got %s", row.Status)
	}
}

func TestSubmitFailureMarksTaskFailed(t *testing.T) {
	b := testsupport.NewBackend()
	b.Jobs.SubmitErr = errors.New("quota exceeded")
	engine := b.Engine(t, "user-1")
	svc := NewGenerationService(engine, config.RunwayConfig{}, logger.Nop())

	task, err := svc.Submit(context.Background(), generationRequest(t))
	if err == nil {
		t.Fatalf("expected error")
	}
	if task.Status != model.TaskFailed {
		t.Fatalf("expected FAILED, got %s", task.Status)
	}
	if task.ErrorMessage == nil || *task.ErrorMessage == "" {
		t.Fatalf("expected an error message on the task")
	}
	row, _ := b.Rows.Task(task.ID)
	if row.Status != model.TaskFailed {
		t.Fatalf("expected row FAILED, got %s", row.Status)
	}
}

func TestSubmitCancelsJobWhenRecordingItFails(t *testing.T) {
	b := testsupport.NewBackend()
	// The first UpdateTask records the input urls; the second records the job.
	b.Rows.FailCall("UpdateTask", 2, testsupport.ErrInjected)
	engine := b.Engine(t, "user-1")
	svc := NewGenerationService(engine, config.RunwayConfig{}, logger.Nop())

	task, err := svc.Submit(context.Background(), generationRequest(t))
	if !errors.Is(err, testsupport.ErrInjected) {
		t.Fatalf("expected the record failure, got %v", err)
	}
	if task.Status != model.TaskFailed {
		t.Fatalf("expected FAILED, got %s", task.Status)
	}
	row, _ := b.Rows.Task(task.ID)
	if row.Status != model.TaskFailed || row.RunwayTaskID != nil {
		t.Fatalf("expected untracked FAILED row, got %+v", row)
	}
	if ids := b.Canceller.Requested(); len(ids) != 1 || ids[0] != "job-1" {
		t.Fatalf("expected job-1 cancelled, got %v", ids)
	}
}

func TestSubmitUploadFailureMarksTaskFailed(t *testing.T) {
	b := testsupport.NewBackend()
	b.Objects.FailUpload = func(string) error { return testsupport.ErrInjected }
	engine := b.Engine(t, "user-1")
	svc := NewGenerationService(engine, config.RunwayConfig{}, logger.Nop())

	task, err := svc.Submit(context.Background(), generationRequest(t))
	if !errors.Is(err, testsupport.ErrInjected) {
		t.Fatalf("expected upload error, got %v", err)
	}
	if task.Status != model.TaskFailed {
		t.Fatalf("expected FAILED, got %s", task.Status)
	}
	if len(b.Jobs.Submitted) != 0 {
		t.Fatalf("expected no job submission")
	}
}

func TestSubmitRequiresBothInputs(t *testing.T) {
	b := testsupport.NewBackend()
	svc := NewGenerationService(b.Engine(t, "user-1"), config.RunwayConfig{}, logger.Nop())

	req := generationRequest(t)
	req.Character = model.StagedFile{}

	var verr *model.ValidationError
	if _, err := svc.Submit(context.Background(), req); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n := b.Rows.CallCount("InsertTask"); n != 0 {
		t.Fatalf("expected no task insert, got %d", n)
	}
}
