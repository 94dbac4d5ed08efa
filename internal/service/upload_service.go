package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/makeasinger/motionvault/internal/logger"
	"github.com/makeasinger/motionvault/internal/model"
	"github.com/makeasinger/motionvault/internal/state"
)

const defaultUploadConcurrency = 4

// FileOutcome is the result of uploading one staged file.
type FileOutcome struct {
	FileName string
	Key      string
	Err      error
}

// UploadError reports which files of an ingestion failed to upload.
type UploadError struct {
	Outcomes []FileOutcome
}

func (e *UploadError) Error() string {
	var failed []string
	for _, o := range e.Outcomes {
		if o.Err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", o.FileName, o.Err))
		}
	}
	return fmt.Sprintf("upload failed for %d of %d files: %s", len(failed), len(e.Outcomes), strings.Join(failed, "; "))
}

func (e *UploadError) Unwrap() []error {
	var errs []error
	for _, o := range e.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errs
}

// UploadService turns staged performance batches into stored objects and
// asset rows.
type UploadService struct {
	engine      *state.Engine
	concurrency int
	log         *logger.Logger
}

func NewUploadService(engine *state.Engine, concurrency int, log *logger.Logger) *UploadService {
	if concurrency <= 0 {
		concurrency = defaultUploadConcurrency
	}
	return &UploadService{
		engine:      engine,
		concurrency: concurrency,
		log:         log.With("service", "upload"),
	}
}

type stagedUpload struct {
	file *model.StagedFile
	key  string
}

// Ingest creates the categories the batches need, uploads every file, then
// inserts one asset per file. Staged files are released whatever the outcome.
// A category insert failure aborts before any upload. An upload failure
// aborts before any asset insert and removes the objects that did upload.
// Categories created earlier in a failed ingestion are kept.
func (s *UploadService) Ingest(ctx context.Context, batches []model.PerformanceBatch) (*model.IngestResult, error) {
	defer func() {
		for i := range batches {
			batches[i].Release()
		}
	}()

	if err := validateBatches(batches); err != nil {
		return nil, err
	}

	objects := s.engine.Gateway().Objects
	userID := s.engine.UserID()

	wanted := BatchCategories(batches)
	created, err := s.engine.EnsureCategories(ctx, func(existing []model.Category) []model.Category {
		return ReconcileCategories(existing, wanted)
	})
	if err != nil {
		return nil, fmt.Errorf("create categories: %w", err)
	}
	if len(created) > 0 {
		s.log.Info("Created categories", "count", len(created))
	}

	var uploads []stagedUpload
	for i := range batches {
		b := &batches[i]
		uploads = append(uploads, stagedUpload{file: &b.Source.StagedFile, key: ObjectKey(userID, b.Source.FileName)})
		for j := range b.Results {
			r := &b.Results[j].StagedFile
			uploads = append(uploads, stagedUpload{file: r, key: ObjectKey(userID, r.FileName)})
		}
	}

	outcomes := make([]FileOutcome, len(uploads))
	var eg errgroup.Group
	eg.SetLimit(s.concurrency)
	for i, u := range uploads {
		eg.Go(func() error {
			outcomes[i] = FileOutcome{
				FileName: u.file.FileName,
				Key:      u.key,
				Err:      uploadLocalFile(ctx, objects, u.key, u.file.LocalPath, u.file.ContentType),
			}
			return nil
		})
	}
	_ = eg.Wait()

	if failed := countFailed(outcomes); failed > 0 {
		s.discardUploaded(ctx, outcomes)
		uerr := &UploadError{Outcomes: outcomes}
		s.log.Warn("Ingestion aborted", "failed", failed, "total", len(outcomes), "error", uerr)
		return nil, uerr
	}

	assets := make([]model.Asset, 0, len(uploads))
	next := 0
	for i := range batches {
		b := &batches[i]
		src := b.Source
		assets = append(assets, buildAsset(src, src.PerformanceActor, &src.StagedFile, uploads[next].key, objects.GetPublicURL(uploads[next].key)))
		next++
		for j := range b.Results {
			r := &b.Results[j]
			assets = append(assets, buildAsset(src, r.ActorName, &r.StagedFile, uploads[next].key, objects.GetPublicURL(uploads[next].key)))
			next++
		}
	}

	inserted, err := s.engine.AddAssets(ctx, assets)
	if err != nil {
		return nil, fmt.Errorf("insert assets: %w", err)
	}

	if err := s.engine.Reload(ctx); err != nil {
		s.log.Warn("Reload after ingestion failed", "error", err)
	}

	s.log.Info("Ingestion complete", "assets", len(inserted), "categories", len(created))
	return &model.IngestResult{Assets: inserted, Categories: created}, nil
}

func (s *UploadService) discardUploaded(ctx context.Context, outcomes []FileOutcome) {
	var keys []string
	for _, o := range outcomes {
		if o.Err == nil {
			keys = append(keys, o.Key)
		}
	}
	if len(keys) == 0 {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.engine.Gateway().Objects.Remove(cctx, keys); err != nil {
		s.log.Warn("Failed to remove uploaded objects of aborted ingestion", "count", len(keys), "error", err)
	}
}

func buildAsset(src model.StagedSourceFile, actor string, file *model.StagedFile, key, url string) model.Asset {
	return model.Asset{
		FilePath:         key,
		VideoURL:         url,
		ActorName:        actor,
		MovementType:     src.MovementType,
		PerformanceActor: src.PerformanceActor,
		TakeNumber:       src.TakeNumber,
		Tags:             datatypes.JSONSlice[string](model.NormalizeTags(src.Tags)),
		Resolution:       datatypes.NewJSONType(file.Resolution),
		FileSize:         humanize.Bytes(uint64(max(file.Size, 0))),
	}
}

func validateBatches(batches []model.PerformanceBatch) error {
	if len(batches) == 0 {
		return model.Invalid("at least one batch is required")
	}
	var errs []error
	for i, b := range batches {
		if b.Source.LocalPath == "" {
			errs = append(errs, fmt.Errorf("batch %d: source file is missing", i+1))
		}
		if strings.TrimSpace(b.Source.PerformanceActor) == "" {
			errs = append(errs, fmt.Errorf("batch %d: performance actor is required", i+1))
		}
		if strings.TrimSpace(b.Source.MovementType) == "" {
			errs = append(errs, fmt.Errorf("batch %d: movement type is required", i+1))
		}
		if b.Source.TakeNumber < 1 {
			errs = append(errs, fmt.Errorf("batch %d: take number must be a positive integer", i+1))
		}
		for j, r := range b.Results {
			if r.LocalPath == "" {
				errs = append(errs, fmt.Errorf("batch %d result %d: file is missing", i+1, j+1))
			}
			if strings.TrimSpace(r.ActorName) == "" {
				errs = append(errs, fmt.Errorf("batch %d result %d: actor name is required", i+1, j+1))
			}
		}
	}
	if len(errs) > 0 {
		return model.Invalid(errors.Join(errs...).Error())
	}
	return nil
}

func countFailed(outcomes []FileOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}
