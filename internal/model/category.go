package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CategoryKind is one of the three fixed tag kinds.
type CategoryKind string

const (
	KindActors            CategoryKind = "actors"
	KindMovements         CategoryKind = "movements"
	KindPerformanceActors CategoryKind = "performanceActors"
)

var ValidCategoryKinds = []CategoryKind{
	KindActors, KindMovements, KindPerformanceActors,
}

// Uncategorized replaces asset fields whose category was deleted.
const Uncategorized = "Uncategorized"

// Valid reports whether k is one of the fixed kinds.
func (k CategoryKind) Valid() bool {
	switch k {
	case KindActors, KindMovements, KindPerformanceActors:
		return true
	}
	return false
}

// AssetColumn returns the videos column holding names of this kind.
func (k CategoryKind) AssetColumn() string {
	switch k {
	case KindActors:
		return "actor_name"
	case KindMovements:
		return "movement_type"
	case KindPerformanceActors:
		return "performance_actor"
	}
	return ""
}

// Category is a named tag referenced by assets. Names are unique within a
// kind.
type Category struct {
	ID        string       `gorm:"column:id;primaryKey;type:uuid" json:"id"`
	CreatedAt time.Time    `gorm:"column:created_at" json:"created_at"`
	Type      CategoryKind `gorm:"column:type;size:32;not null;uniqueIndex:idx_categories_type_name,priority:1" json:"type"`
	Name      string       `gorm:"column:name;size:255;not null;uniqueIndex:idx_categories_type_name,priority:2" json:"name"`
}

func (Category) TableName() string {
	return "categories"
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// CategoryKey is the dedup key used when reconciling category names.
func CategoryKey(kind CategoryKind, name string) string {
	return string(kind) + "/" + name
}
