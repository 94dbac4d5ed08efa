// Package testsupport holds in-memory stand-ins for the backing services,
// shared by package tests.
package testsupport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/makeasinger/motionvault/internal/model"
)

// ErrInjected is returned by fakes told to fail an operation.
var ErrInjected = errors.New("injected failure")

// Rows is an in-memory repository.GalleryStore. Fail makes the named
// operation return ErrInjected; Calls counts invocations per operation.
type Rows struct {
	mu         sync.Mutex
	assets     []model.Asset
	categories []model.Category
	tasks      []model.GenerationTask
	clock      time.Time
	failNth    map[string]map[int]error

	Fail  map[string]error
	Calls map[string]int
}

func NewRows() *Rows {
	return &Rows{
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		failNth: make(map[string]map[int]error),
		Fail:    make(map[string]error),
		Calls:   make(map[string]int),
	}
}

// FailOn makes op return ErrInjected until cleared with FailOn(op, nil).
func (r *Rows) FailOn(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.Fail, op)
		return
	}
	r.Fail[op] = err
}

// CallCount returns how often op was invoked.
func (r *Rows) CallCount(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Calls[op]
}

// FailCall makes only the n-th invocation of op (counting from 1) return err.
func (r *Rows) FailCall(op string, n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNth[op] == nil {
		r.failNth[op] = make(map[int]error)
	}
	r.failNth[op][n] = err
}

// Categories returns the stored category rows.
func (r *Rows) Categories() []model.Category {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Category(nil), r.categories...)
}

func (r *Rows) enter(op string) error {
	r.Calls[op]++
	if err := r.failNth[op][r.Calls[op]]; err != nil {
		return err
	}
	return r.Fail[op]
}

func (r *Rows) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

// SeedAsset stores a row directly, assigning an id and timestamp when missing.
func (r *Rows) SeedAsset(a model.Asset) model.Asset {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.tick()
	}
	r.assets = append(r.assets, model.CloneAsset(a))
	return a
}

func (r *Rows) SeedCategory(c model.Category) model.Category {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.tick()
	}
	r.categories = append(r.categories, c)
	return c
}

func (r *Rows) SeedTask(t model.GenerationTask) model.GenerationTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.tick()
	}
	r.tasks = append(r.tasks, model.CloneTask(t))
	return t
}

func (r *Rows) ListAssets(ctx context.Context) ([]model.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("ListAssets"); err != nil {
		return nil, err
	}
	out := make([]model.Asset, len(r.assets))
	for i, a := range r.assets {
		out[i] = model.CloneAsset(a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Rows) InsertAssets(ctx context.Context, assets []model.Asset) ([]model.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("InsertAssets"); err != nil {
		return nil, err
	}
	out := make([]model.Asset, 0, len(assets))
	for _, a := range assets {
		a = model.CloneAsset(a)
		a.ID = uuid.NewString()
		a.CreatedAt = r.tick()
		r.assets = append(r.assets, a)
		out = append(out, model.CloneAsset(a))
	}
	return out, nil
}

func (r *Rows) UpdateAsset(ctx context.Context, id string, cols map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("UpdateAsset"); err != nil {
		return err
	}
	for i := range r.assets {
		if r.assets[i].ID != id {
			continue
		}
		for col, v := range cols {
			if err := setAssetColumn(&r.assets[i], col, v); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("update video %s: %w", id, model.ErrNotFound)
}

func (r *Rows) replaceAssetField(column, from, to string) error {
	for i := range r.assets {
		a := &r.assets[i]
		var field *string
		switch column {
		case "actor_name":
			field = &a.ActorName
		case "movement_type":
			field = &a.MovementType
		case "performance_actor":
			field = &a.PerformanceActor
		default:
			return fmt.Errorf("unsupported column %q", column)
		}
		if *field == from {
			*field = to
		}
	}
	return nil
}

func (r *Rows) DeleteAssets(ctx context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("DeleteAssets"); err != nil {
		return err
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := r.assets[:0]
	for _, a := range r.assets {
		if !drop[a.ID] {
			kept = append(kept, a)
		}
	}
	r.assets = kept
	return nil
}

func (r *Rows) ListCategories(ctx context.Context) ([]model.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("ListCategories"); err != nil {
		return nil, err
	}
	out := append([]model.Category(nil), r.categories...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Rows) InsertCategories(ctx context.Context, categories []model.Category) ([]model.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("InsertCategories"); err != nil {
		return nil, err
	}
	out := make([]model.Category, 0, len(categories))
	seen := make(map[string]bool, len(categories))
	for _, c := range categories {
		key := model.CategoryKey(c.Type, c.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		if existing, ok := r.findCategory(c.Type, c.Name); ok {
			out = append(out, existing)
			continue
		}
		c.ID = uuid.NewString()
		c.CreatedAt = r.tick()
		r.categories = append(r.categories, c)
		out = append(out, c)
	}
	return out, nil
}

func (r *Rows) findCategory(kind model.CategoryKind, name string) (model.Category, bool) {
	for _, c := range r.categories {
		if c.Type == kind && c.Name == name {
			return c, true
		}
	}
	return model.Category{}, false
}

func (r *Rows) RenameCategory(ctx context.Context, cat model.Category, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("RenameCategory"); err != nil {
		return err
	}
	for i := range r.categories {
		if r.categories[i].ID == cat.ID {
			r.categories[i].Name = name
			return r.replaceAssetField(cat.Type.AssetColumn(), cat.Name, name)
		}
	}
	return fmt.Errorf("rename category %s: %w", cat.ID, model.ErrNotFound)
}

func (r *Rows) DeleteCategory(ctx context.Context, cat model.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("DeleteCategory"); err != nil {
		return err
	}
	kept := r.categories[:0]
	for _, c := range r.categories {
		if c.ID != cat.ID {
			kept = append(kept, c)
		}
	}
	r.categories = kept
	return r.replaceAssetField(cat.Type.AssetColumn(), cat.Name, model.Uncategorized)
}

func (r *Rows) ListTasks(ctx context.Context, userID string) ([]model.GenerationTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("ListTasks"); err != nil {
		return nil, err
	}
	var out []model.GenerationTask
	for _, t := range r.tasks {
		if t.UserID == userID {
			out = append(out, model.CloneTask(t))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Rows) InsertTask(ctx context.Context, task model.GenerationTask) (*model.GenerationTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("InsertTask"); err != nil {
		return nil, err
	}
	task = model.CloneTask(task)
	task.ID = uuid.NewString()
	task.CreatedAt = r.tick()
	r.tasks = append(r.tasks, task)
	out := model.CloneTask(task)
	return &out, nil
}

func (r *Rows) UpdateTask(ctx context.Context, id string, cols map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("UpdateTask"); err != nil {
		return err
	}
	for i := range r.tasks {
		if r.tasks[i].ID != id {
			continue
		}
		for col, v := range cols {
			if err := setTaskColumn(&r.tasks[i], col, v); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("update task %s: %w", id, model.ErrNotFound)
}

func (r *Rows) DeleteTask(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("DeleteTask"); err != nil {
		return err
	}
	kept := r.tasks[:0]
	for _, t := range r.tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	r.tasks = kept
	return nil
}

// Task returns the stored row for id.
func (r *Rows) Task(id string) (model.GenerationTask, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.ID == id {
			return model.CloneTask(t), true
		}
	}
	return model.GenerationTask{}, false
}

// Asset returns the stored row for id.
func (r *Rows) Asset(id string) (model.Asset, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.assets {
		if a.ID == id {
			return model.CloneAsset(a), true
		}
	}
	return model.Asset{}, false
}

func setAssetColumn(a *model.Asset, col string, v interface{}) error {
	switch col {
	case "actor_name":
		a.ActorName = v.(string)
	case "movement_type":
		a.MovementType = v.(string)
	case "performance_actor":
		a.PerformanceActor = v.(string)
	case "take_number":
		a.TakeNumber = v.(int)
	case "tags":
		a.Tags = append(datatypes.JSONSlice[string](nil), v.(datatypes.JSONSlice[string])...)
	case "is_favorite":
		a.IsFavorite = v.(bool)
	default:
		return fmt.Errorf("unknown video column %q", col)
	}
	return nil
}

func setTaskColumn(t *model.GenerationTask, col string, v interface{}) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("task column %q: want string, got %T", col, v)
	}
	switch col {
	case "status":
		t.Status = model.TaskStatus(s)
	case "runway_task_id":
		t.RunwayTaskID = &s
	case "input_reference_video_url":
		t.InputReferenceVideoURL = &s
	case "input_character_url":
		t.InputCharacterURL = &s
	case "output_video_url":
		t.OutputVideoURL = &s
	case "error_message":
		t.ErrorMessage = &s
	default:
		return fmt.Errorf("unknown task column %q", col)
	}
	return nil
}
