package model

import "os"

// StagedFile is a client-provided file held on local disk until ingestion.
type StagedFile struct {
	LocalPath   string
	FileName    string
	ContentType string
	Size        int64
	Resolution  Resolution
}

// Release removes the staged file from local disk.
func (f *StagedFile) Release() {
	if f.LocalPath == "" {
		return
	}
	_ = os.Remove(f.LocalPath)
	f.LocalPath = ""
}

// StagedSourceFile is the performance capture of a batch.
type StagedSourceFile struct {
	StagedFile
	PerformanceActor string
	MovementType     string
	TakeNumber       int
	Tags             []string
}

// StagedResultFile is a rendering derived from the batch's source.
type StagedResultFile struct {
	StagedFile
	ActorName string
}

// PerformanceBatch groups one source capture with its result renderings.
type PerformanceBatch struct {
	Source  StagedSourceFile
	Results []StagedResultFile
}

// Release discards every staged file in the batch.
func (b *PerformanceBatch) Release() {
	b.Source.Release()
	for i := range b.Results {
		b.Results[i].Release()
	}
}

// BatchManifest describes one batch of a multipart ingestion request. File
// fields name the multipart parts holding the media.
type BatchManifest struct {
	Source  SourceManifest   `json:"source" validate:"required"`
	Results []ResultManifest `json:"results" validate:"dive"`
}

type SourceManifest struct {
	File             string `json:"file" validate:"required"`
	PerformanceActor string `json:"performance_actor" validate:"required"`
	MovementType     string `json:"movement_type" validate:"required"`
	TakeNumber       int    `json:"take_number" validate:"min=1"`
	Tags             string `json:"tags"`
}

type ResultManifest struct {
	File      string `json:"file" validate:"required"`
	ActorName string `json:"actor_name" validate:"required"`
}

// IngestResult reports what an ingestion created.
type IngestResult struct {
	Assets     []Asset    `json:"assets"`
	Categories []Category `json:"categories"`
}

// PromoteRequest is the user-supplied final metadata for a promotion.
type PromoteRequest struct {
	ActorName string   `json:"actor_name" validate:"required"`
	Tags      []string `json:"tags"`
}

// GenerationRequest is a job submission with its two staged inputs.
type GenerationRequest struct {
	Reference StagedFile
	Character StagedFile
	Metadata  InitialMetadata
}
