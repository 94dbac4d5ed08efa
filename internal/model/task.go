package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TaskStatus is the lifecycle state of a generation task.
type TaskStatus string

const (
	TaskUploading TaskStatus = "UPLOADING"
	TaskPending   TaskStatus = "PENDING"
	TaskRunning   TaskStatus = "RUNNING"
	TaskSucceeded TaskStatus = "SUCCEEDED"
	TaskFailed    TaskStatus = "FAILED"
	TaskArchived  TaskStatus = "ARCHIVED"
)

var ValidTaskStatuses = []TaskStatus{
	TaskUploading, TaskPending, TaskRunning, TaskSucceeded, TaskFailed, TaskArchived,
}

// rank orders the forward path UPLOADING -> PENDING -> RUNNING -> terminal.
func (s TaskStatus) rank() int {
	switch s {
	case TaskUploading:
		return 0
	case TaskPending:
		return 1
	case TaskRunning:
		return 2
	case TaskSucceeded, TaskFailed:
		return 3
	}
	return -1
}

// Valid reports whether s is a member of the closed status set.
func (s TaskStatus) Valid() bool {
	for _, v := range ValidTaskStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can happen.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskArchived
}

// Polled reports whether the poller queries tasks in this state.
func (s TaskStatus) Polled() bool {
	return s == TaskPending || s == TaskRunning
}

// CanTransition reports whether moving from s to next is a legal forward step.
// ARCHIVED is reached only by deletion and is never a transition target.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	if s.IsTerminal() || next == TaskArchived {
		return false
	}
	from, to := s.rank(), next.rank()
	if from < 0 || to < 0 {
		return false
	}
	return to > from
}

// ParseTaskStatus upper-cases a status reported by the job API and maps it
// onto the closed set. THROTTLED is a queued job; CANCELLED is a failure.
func ParseTaskStatus(raw string) (TaskStatus, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch s {
	case "THROTTLED", "QUEUED":
		return TaskPending, nil
	case "CANCELLED", "CANCELED":
		return TaskFailed, nil
	}
	st := TaskStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown task status %q", raw)
	}
	return st, nil
}

// InitialMetadata is the intended asset metadata once a task is promoted.
type InitialMetadata struct {
	PerformanceActor  string   `json:"performance_actor" validate:"required"`
	MovementType      string   `json:"movement_type" validate:"required"`
	TakeNumber        int      `json:"take_number" validate:"min=1"`
	Tags              []string `json:"tags"`
	ReferenceFileName string   `json:"reference_file_name"`
	CharacterFileName string   `json:"character_file_name"`
}

// GenerationTask tracks one external asynchronous generation job.
type GenerationTask struct {
	ID                     string                              `gorm:"column:id;primaryKey;type:uuid" json:"id"`
	CreatedAt              time.Time                           `gorm:"column:created_at;index" json:"created_at"`
	UserID                 string                              `gorm:"column:user_id;not null;index" json:"user_id"`
	RunwayTaskID           *string                             `gorm:"column:runway_task_id" json:"runway_task_id"`
	Status                 TaskStatus                          `gorm:"column:status;size:16;not null" json:"status"`
	InitialMetadata        datatypes.JSONType[InitialMetadata] `gorm:"column:initial_metadata" json:"initial_metadata"`
	InputReferenceVideoURL *string                             `gorm:"column:input_reference_video_url" json:"input_reference_video_url"`
	InputCharacterURL      *string                             `gorm:"column:input_character_url" json:"input_character_url"`
	OutputVideoURL         *string                             `gorm:"column:output_video_url" json:"output_video_url"`
	ErrorMessage           *string                             `gorm:"column:error_message" json:"error_message"`
}

func (GenerationTask) TableName() string {
	return "generation_tasks"
}

func (t *GenerationTask) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// InputURLs returns the temporary input object URLs that are set.
func (t *GenerationTask) InputURLs() []string {
	var urls []string
	if t.InputReferenceVideoURL != nil && *t.InputReferenceVideoURL != "" {
		urls = append(urls, *t.InputReferenceVideoURL)
	}
	if t.InputCharacterURL != nil && *t.InputCharacterURL != "" {
		urls = append(urls, *t.InputCharacterURL)
	}
	return urls
}

// TaskUpdate carries the fields a task update may change. Nil fields are left alone.
type TaskUpdate struct {
	Status                 TaskStatus
	RunwayTaskID           *string
	InputReferenceVideoURL *string
	InputCharacterURL      *string
	OutputVideoURL         *string
	ErrorMessage           *string
}

// Apply writes the update onto t.
func (u TaskUpdate) Apply(t *GenerationTask) {
	if u.Status != "" {
		t.Status = u.Status
	}
	if u.RunwayTaskID != nil {
		t.RunwayTaskID = stringPtr(*u.RunwayTaskID)
	}
	if u.InputReferenceVideoURL != nil {
		t.InputReferenceVideoURL = stringPtr(*u.InputReferenceVideoURL)
	}
	if u.InputCharacterURL != nil {
		t.InputCharacterURL = stringPtr(*u.InputCharacterURL)
	}
	if u.OutputVideoURL != nil {
		t.OutputVideoURL = stringPtr(*u.OutputVideoURL)
	}
	if u.ErrorMessage != nil {
		t.ErrorMessage = stringPtr(*u.ErrorMessage)
	}
}

// Columns returns the update as a column -> value map.
func (u TaskUpdate) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if u.Status != "" {
		cols["status"] = string(u.Status)
	}
	if u.RunwayTaskID != nil {
		cols["runway_task_id"] = *u.RunwayTaskID
	}
	if u.InputReferenceVideoURL != nil {
		cols["input_reference_video_url"] = *u.InputReferenceVideoURL
	}
	if u.InputCharacterURL != nil {
		cols["input_character_url"] = *u.InputCharacterURL
	}
	if u.OutputVideoURL != nil {
		cols["output_video_url"] = *u.OutputVideoURL
	}
	if u.ErrorMessage != nil {
		cols["error_message"] = *u.ErrorMessage
	}
	return cols
}

// CloneTask returns a copy of t with its own pointer fields.
func CloneTask(t GenerationTask) GenerationTask {
	t.RunwayTaskID = clonePtr(t.RunwayTaskID)
	t.InputReferenceVideoURL = clonePtr(t.InputReferenceVideoURL)
	t.InputCharacterURL = clonePtr(t.InputCharacterURL)
	t.OutputVideoURL = clonePtr(t.OutputVideoURL)
	t.ErrorMessage = clonePtr(t.ErrorMessage)
	return t
}

func stringPtr(s string) *string {
	return &s
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	return stringPtr(*p)
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return stringPtr(s)
}
