package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Resolution is the pixel size of a video.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Asset is a persisted video record with descriptive metadata.
type Asset struct {
	ID               string                         `gorm:"column:id;primaryKey;type:uuid" json:"id"`
	CreatedAt        time.Time                      `gorm:"column:created_at;index" json:"created_at"`
	FilePath         string                         `gorm:"column:file_path;not null" json:"file_path"`
	VideoURL         string                         `gorm:"column:video_url" json:"video_url"`
	ThumbnailURL     *string                        `gorm:"column:thumbnail_url" json:"thumbnail_url,omitempty"`
	ActorName        string                         `gorm:"column:actor_name;index" json:"actor_name"`
	MovementType     string                         `gorm:"column:movement_type;index" json:"movement_type"`
	PerformanceActor string                         `gorm:"column:performance_actor;index" json:"performance_actor"`
	TakeNumber       int                            `gorm:"column:take_number" json:"take_number"`
	Tags             datatypes.JSONSlice[string]    `gorm:"column:tags" json:"tags"`
	Resolution       datatypes.JSONType[Resolution] `gorm:"column:resolution" json:"resolution"`
	FileSize         string                         `gorm:"column:file_size" json:"file_size"`
	IsFavorite       bool                           `gorm:"column:is_favorite;default:false" json:"is_favorite"`
}

func (Asset) TableName() string {
	return "videos"
}

func (a *Asset) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// FieldFor returns the asset's value for the column tied to kind.
func (a *Asset) FieldFor(kind CategoryKind) *string {
	switch kind {
	case KindActors:
		return &a.ActorName
	case KindMovements:
		return &a.MovementType
	case KindPerformanceActors:
		return &a.PerformanceActor
	}
	return nil
}

// AssetPatch is a partial update of the editable asset fields.
type AssetPatch struct {
	ActorName        *string   `json:"actor_name,omitempty"`
	MovementType     *string   `json:"movement_type,omitempty"`
	PerformanceActor *string   `json:"performance_actor,omitempty"`
	TakeNumber       *int      `json:"take_number,omitempty" validate:"omitempty,min=1"`
	Tags             *[]string `json:"tags,omitempty"`
	IsFavorite       *bool     `json:"is_favorite,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p AssetPatch) Empty() bool {
	return p.ActorName == nil && p.MovementType == nil && p.PerformanceActor == nil &&
		p.TakeNumber == nil && p.Tags == nil && p.IsFavorite == nil
}

// Apply writes the patch onto a.
func (p AssetPatch) Apply(a *Asset) {
	if p.ActorName != nil {
		a.ActorName = *p.ActorName
	}
	if p.MovementType != nil {
		a.MovementType = *p.MovementType
	}
	if p.PerformanceActor != nil {
		a.PerformanceActor = *p.PerformanceActor
	}
	if p.TakeNumber != nil {
		a.TakeNumber = *p.TakeNumber
	}
	if p.Tags != nil {
		a.Tags = datatypes.JSONSlice[string](NormalizeTags(*p.Tags))
	}
	if p.IsFavorite != nil {
		a.IsFavorite = *p.IsFavorite
	}
}

// Columns returns the patch as a column -> value map for an update-by-id.
func (p AssetPatch) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if p.ActorName != nil {
		cols["actor_name"] = *p.ActorName
	}
	if p.MovementType != nil {
		cols["movement_type"] = *p.MovementType
	}
	if p.PerformanceActor != nil {
		cols["performance_actor"] = *p.PerformanceActor
	}
	if p.TakeNumber != nil {
		cols["take_number"] = *p.TakeNumber
	}
	if p.Tags != nil {
		cols["tags"] = datatypes.JSONSlice[string](NormalizeTags(*p.Tags))
	}
	if p.IsFavorite != nil {
		cols["is_favorite"] = *p.IsFavorite
	}
	return cols
}

// ParseTags splits a comma separated tag list ("a, b") into a tag set.
func ParseTags(raw string) []string {
	return NormalizeTags(strings.Split(raw, ","))
}

// NormalizeTags trims tags and drops empties and duplicates, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// CloneAsset returns a copy of a that shares no mutable state with it.
func CloneAsset(a Asset) Asset {
	if a.Tags != nil {
		a.Tags = append(datatypes.JSONSlice[string](nil), a.Tags...)
	}
	if a.ThumbnailURL != nil {
		v := *a.ThumbnailURL
		a.ThumbnailURL = &v
	}
	return a
}
