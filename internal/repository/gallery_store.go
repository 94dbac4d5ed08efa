package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/makeasinger/motionvault/internal/model"
)

// GalleryStore is the row-oriented persistent store behind the gallery.
type GalleryStore interface {
	ListAssets(ctx context.Context) ([]model.Asset, error)
	InsertAssets(ctx context.Context, assets []model.Asset) ([]model.Asset, error)
	UpdateAsset(ctx context.Context, id string, cols map[string]interface{}) error
	DeleteAssets(ctx context.Context, ids []string) error

	ListCategories(ctx context.Context) ([]model.Category, error)
	// InsertCategories is idempotent per (type, name): rows that already
	// exist are returned as stored instead of being duplicated.
	InsertCategories(ctx context.Context, categories []model.Category) ([]model.Category, error)
	// RenameCategory and DeleteCategory rewrite the matching asset column in
	// the same transaction.
	RenameCategory(ctx context.Context, cat model.Category, name string) error
	DeleteCategory(ctx context.Context, cat model.Category) error

	ListTasks(ctx context.Context, userID string) ([]model.GenerationTask, error)
	InsertTask(ctx context.Context, task model.GenerationTask) (*model.GenerationTask, error)
	UpdateTask(ctx context.Context, id string, cols map[string]interface{}) error
	DeleteTask(ctx context.Context, id string) error
}

// GormStore implements GalleryStore with gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

var assetColumns = map[string]bool{
	"actor_name":        true,
	"movement_type":     true,
	"performance_actor": true,
}

func (s *GormStore) ListAssets(ctx context.Context) ([]model.Asset, error) {
	var assets []model.Asset
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return assets, nil
}

func (s *GormStore) InsertAssets(ctx context.Context, assets []model.Asset) ([]model.Asset, error) {
	if len(assets) == 0 {
		return nil, nil
	}
	rows := make([]model.Asset, len(assets))
	copy(rows, assets)
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("insert videos: %w", err)
	}
	return rows, nil
}

func (s *GormStore) UpdateAsset(ctx context.Context, id string, cols map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&model.Asset{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("update video %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update video %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// replaceAssetField rewrites column from one value to another on every matching video.
func replaceAssetField(tx *gorm.DB, column, from, to string) error {
	if !assetColumns[column] {
		return fmt.Errorf("replace video field: unsupported column %q", column)
	}
	err := tx.Model(&model.Asset{}).
		Where(column+" = ?", from).
		Update(column, to).Error
	if err != nil {
		return fmt.Errorf("replace video %s: %w", column, err)
	}
	return nil
}

func (s *GormStore) DeleteAssets(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.Asset{}).Error; err != nil {
		return fmt.Errorf("delete videos: %w", err)
	}
	return nil
}

func (s *GormStore) ListCategories(ctx context.Context) ([]model.Category, error) {
	var categories []model.Category
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (s *GormStore) InsertCategories(ctx context.Context, categories []model.Category) ([]model.Category, error) {
	if len(categories) == 0 {
		return nil, nil
	}
	rows := make([]model.Category, len(categories))
	copy(rows, categories)

	db := s.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "type"}, {Name: "name"}},
		DoNothing: true,
	}).Create(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("insert categories: %w", err)
	}

	// Conflicting rows keep the ids assigned before the insert, so read back
	// what is stored.
	pairs := make([][]interface{}, 0, len(categories))
	for _, c := range categories {
		pairs = append(pairs, []interface{}{string(c.Type), c.Name})
	}
	var stored []model.Category
	if err := db.Where("(type, name) IN ?", pairs).Find(&stored).Error; err != nil {
		return nil, fmt.Errorf("read back categories: %w", err)
	}
	byKey := make(map[string]model.Category, len(stored))
	for _, c := range stored {
		byKey[model.CategoryKey(c.Type, c.Name)] = c
	}

	out := make([]model.Category, 0, len(categories))
	seen := make(map[string]bool, len(categories))
	for _, c := range categories {
		key := model.CategoryKey(c.Type, c.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		row, ok := byKey[key]
		if !ok {
			return nil, fmt.Errorf("insert categories: %s/%s missing after insert", c.Type, c.Name)
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *GormStore) RenameCategory(ctx context.Context, cat model.Category, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Category{}).Where("id = ?", cat.ID).Update("name", name)
		if res.Error != nil {
			return fmt.Errorf("rename category %s: %w", cat.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("rename category %s: %w", cat.ID, model.ErrNotFound)
		}
		return replaceAssetField(tx, cat.Type.AssetColumn(), cat.Name, name)
	})
}

func (s *GormStore) DeleteCategory(ctx context.Context, cat model.Category) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", cat.ID).Delete(&model.Category{}).Error; err != nil {
			return fmt.Errorf("delete category %s: %w", cat.ID, err)
		}
		return replaceAssetField(tx, cat.Type.AssetColumn(), cat.Name, model.Uncategorized)
	})
}

func (s *GormStore) ListTasks(ctx context.Context, userID string) ([]model.GenerationTask, error) {
	var tasks []model.GenerationTask
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list generation tasks: %w", err)
	}
	return tasks, nil
}

func (s *GormStore) InsertTask(ctx context.Context, task model.GenerationTask) (*model.GenerationTask, error) {
	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		return nil, fmt.Errorf("insert generation task: %w", err)
	}
	return &task, nil
}

func (s *GormStore) UpdateTask(ctx context.Context, id string, cols map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&model.GenerationTask{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("update generation task %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update generation task %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *GormStore) DeleteTask(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.GenerationTask{}).Error; err != nil {
		return fmt.Errorf("delete generation task %s: %w", id, err)
	}
	return nil
}
