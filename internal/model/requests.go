package model

import "gorm.io/datatypes"

// AssetInput describes an asset whose object is already stored.
type AssetInput struct {
	FilePath         string     `json:"file_path" validate:"required"`
	VideoURL         string     `json:"video_url" validate:"required,url"`
	ThumbnailURL     *string    `json:"thumbnail_url,omitempty"`
	ActorName        string     `json:"actor_name" validate:"required"`
	MovementType     string     `json:"movement_type" validate:"required"`
	PerformanceActor string     `json:"performance_actor" validate:"required"`
	TakeNumber       int        `json:"take_number" validate:"min=1"`
	Tags             []string   `json:"tags"`
	Resolution       Resolution `json:"resolution"`
	FileSize         string     `json:"file_size"`
}

// Asset converts the input into an unsaved asset row.
func (in AssetInput) Asset() Asset {
	return Asset{
		FilePath:         in.FilePath,
		VideoURL:         in.VideoURL,
		ThumbnailURL:     in.ThumbnailURL,
		ActorName:        in.ActorName,
		MovementType:     in.MovementType,
		PerformanceActor: in.PerformanceActor,
		TakeNumber:       in.TakeNumber,
		Tags:             datatypes.JSONSlice[string](NormalizeTags(in.Tags)),
		Resolution:       datatypes.NewJSONType(in.Resolution),
		FileSize:         in.FileSize,
	}
}

type CreateAssetsRequest struct {
	Assets []AssetInput `json:"assets" validate:"required,min=1,dive"`
}

type DeleteAssetsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

type FavoriteResponse struct {
	ID         string `json:"id"`
	IsFavorite bool   `json:"is_favorite"`
}

type CreateCategoryRequest struct {
	Type CategoryKind `json:"type" validate:"required,oneof=actors movements performanceActors"`
	Name string       `json:"name" validate:"required"`
}

type RenameCategoryRequest struct {
	Name string `json:"name" validate:"required"`
}

type PollResponse struct {
	Updated int `json:"updated"`
}
