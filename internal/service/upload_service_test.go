package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/makeasinger/motionvault/internal/config"
	"github.com/makeasinger/motionvault/internal/gateway"
	"github.com/makeasinger/motionvault/internal/logger"
	"github.com/makeasinger/motionvault/internal/model"
	"github.com/makeasinger/motionvault/internal/repository"
	"github.com/makeasinger/motionvault/internal/state"
	"github.com/makeasinger/motionvault/internal/testsupport"
)

func stageFile(t *testing.T, name string, size int) model.StagedFile {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write staged file: %v", err)
	}
	return model.StagedFile{
		LocalPath:   path,
		FileName:    name,
		ContentType: "video/mp4",
		Size:        int64(size),
		Resolution:  model.Resolution{Width: 1920, Height: 1080},
	}
}

func walkBatch(t *testing.T) model.PerformanceBatch {
	return model.PerformanceBatch{
		Source: model.StagedSourceFile{
			StagedFile:       stageFile(t, "walk.mp4", 2048),
			PerformanceActor: "Alex",
			MovementType:     "Walk",
			TakeNumber:       1,
			Tags:             model.ParseTags("a, b"),
		},
		Results: []model.StagedResultFile{
			{StagedFile: stageFile(t, "nova.mp4", 1024), ActorName: "Nova"},
		},
	}
}

func TestIngestCreatesCategoriesAndAssets(t *testing.T) {
	b := testsupport.NewBackend()
	engine := b.Engine(t, "user-1")
	svc := NewUploadService(engine, 2, logger.Nop())

	batch := walkBatch(t)
	staged := []string{batch.Source.LocalPath, batch.Results[0].LocalPath}

	res, err := svc.Ingest(context.Background(), []model.PerformanceBatch{batch})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(res.Categories) != 4 {
		t.Fatalf("expected 4 categories, got %+v", res.Categories)
	}
	if len(res.Assets) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(res.Assets))
	}

	byActor := map[string]model.Asset{}
	for _, a := range engine.Store().Assets() {
		byActor[a.ActorName] = a
	}
	src, ok := byActor["Alex"]
	if !ok {
		t.Fatalf("expected source asset under the performance actor")
	}
	result, ok := byActor["Nova"]
	if !ok {
		t.Fatalf("expected result asset under its own actor")
	}
	for _, a := range []model.Asset{src, result} {
		if a.PerformanceActor != "Alex" || a.MovementType != "Walk" || a.TakeNumber != 1 {
			t.Fatalf("unexpected metadata %+v", a)
		}
		if strings.Join(a.Tags, ",") != "a,b" {
			t.Fatalf("expected tags [a b], got %v", a.Tags)
		}
		if !b.Objects.Has(a.FilePath) {
			t.Fatalf("object %s not uploaded", a.FilePath)
		}
		if a.VideoURL != b.Objects.GetPublicURL(a.FilePath) {
			t.Fatalf("unexpected url %s", a.VideoURL)
		}
		if a.Resolution.Data().Width != 1920 {
			t.Fatalf("expected probed resolution, got %+v", a.Resolution.Data())
		}
	}
	if src.FileSize != "2.0 kB" {
		t.Fatalf("expected humanized size, got %q", src.FileSize)
	}

	for _, p := range staged {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("staged file %s not released", p)
		}
	}

	// A second identical ingestion adds no categories.
	res, err = svc.Ingest(context.Background(), []model.PerformanceBatch{walkBatch(t)})
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if len(res.Categories) != 0 {
		t.Fatalf("expected no new categories, got %+v", res.Categories)
	}
	if n := len(engine.Store().Categories()); n != 4 {
		t.Fatalf("expected 4 categories overall, got %d", n)
	}
}

func TestIngestUploadFailureInsertsNoAssets(t *testing.T) {
	b := testsupport.NewBackend()
	b.Objects.FailUpload = func(key string) error {
		if strings.HasSuffix(key, "nova.mp4") {
			return testsupport.ErrInjected
		}
		return nil
	}
	engine := b.Engine(t, "user-1")
	svc := NewUploadService(engine, 2, logger.Nop())

	_, err := svc.Ingest(context.Background(), []model.PerformanceBatch{walkBatch(t)})
	var uerr *UploadError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected UploadError, got %v", err)
	}
	if !errors.Is(err, testsupport.ErrInjected) {
		t.Fatalf("expected UploadError to wrap the upload failure")
	}
	if len(uerr.Outcomes) != 2 || countFailed(uerr.Outcomes) != 1 {
		t.Fatalf("unexpected outcomes %+v", uerr.Outcomes)
	}

	if n := b.Rows.CallCount("InsertAssets"); n != 0 {
		t.Fatalf("expected no asset insert, got %d", n)
	}
	if keys := b.Objects.Keys(); len(keys) != 0 {
		t.Fatalf("expected uploaded objects to be discarded, got %v", keys)
	}
	// Categories created before the upload stay.
	if n := len(engine.Store().Categories()); n != 4 {
		t.Fatalf("expected 4 categories kept, got %d", n)
	}
}

func TestIngestCategoryFailureUploadsNothing(t *testing.T) {
	b := testsupport.NewBackend()
	b.Rows.FailOn("InsertCategories", testsupport.ErrInjected)
	engine := b.Engine(t, "user-1")
	svc := NewUploadService(engine, 2, logger.Nop())

	batch := walkBatch(t)
	_, err := svc.Ingest(context.Background(), []model.PerformanceBatch{batch})
	if !errors.Is(err, testsupport.ErrInjected) {
		t.Fatalf("expected category insert failure, got %v", err)
	}
	if keys := b.Objects.Keys(); len(keys) != 0 {
		t.Fatalf("expected nothing uploaded, got %v", keys)
	}
	if n := b.Rows.CallCount("InsertAssets"); n != 0 {
		t.Fatalf("expected no asset insert, got %d", n)
	}
	if n := len(engine.Store().Categories()); n != 0 {
		t.Fatalf("expected optimistic categories reverted, got %d", n)
	}
	if _, err := os.Stat(batch.Source.LocalPath); err == nil {
		t.Fatalf("expected staged files released")
	}
}

func TestIngestAssetFailureKeepsCategories(t *testing.T) {
	b := testsupport.NewBackend()
	b.Rows.FailOn("InsertAssets", testsupport.ErrInjected)
	engine := b.Engine(t, "user-1")
	svc := NewUploadService(engine, 2, logger.Nop())

	_, err := svc.Ingest(context.Background(), []model.PerformanceBatch{walkBatch(t)})
	if !errors.Is(err, testsupport.ErrInjected) {
		t.Fatalf("expected asset insert failure, got %v", err)
	}
	if n := len(b.Rows.Categories()); n != 4 {
		t.Fatalf("expected 4 category rows, got %d", n)
	}
	if n := len(engine.Store().Categories()); n != 4 {
		t.Fatalf("expected 4 local categories, got %d", n)
	}
	if n := len(engine.Store().Assets()); n != 0 {
		t.Fatalf("expected no local assets, got %d", n)
	}
	if rows, _ := b.Rows.ListAssets(context.Background()); len(rows) != 0 {
		t.Fatalf("expected no asset rows, got %d", len(rows))
	}
}

func TestIngestConcurrentBatchesShareCategories(t *testing.T) {
	b := testsupport.NewBackend()
	engine := b.Engine(t, "user-1")
	svc := NewUploadService(engine, 2, logger.Nop())

	batches := []model.PerformanceBatch{walkBatch(t), walkBatch(t)}
	errs := make([]error, len(batches))
	var wg sync.WaitGroup
	for i := range batches {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Ingest(context.Background(), batches[i:i+1])
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Ingest %d: %v", i, err)
		}
	}
	if n := len(b.Rows.Categories()); n != 4 {
		t.Fatalf("expected 4 category rows, got %d", n)
	}
	if n := len(engine.Store().Categories()); n != 4 {
		t.Fatalf("expected 4 local categories, got %d", n)
	}
}

func openSharedEngines(t *testing.T, users ...string) ([]*state.Engine, *repository.GormStore) {
	t.Helper()

	db, err := repository.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "gallery.db"),
	}, logger.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	rows := repository.NewGormStore(db)
	gw := gateway.New(rows, testsupport.NewObjects(), testsupport.NewJobs())
	engines := make([]*state.Engine, 0, len(users))
	for _, user := range users {
		engine := state.NewEngine(state.NewStore(), gw, user, nil, logger.Nop())
		if err := engine.Reload(context.Background()); err != nil {
			t.Fatalf("Reload %s: %v", user, err)
		}
		engines = append(engines, engine)
	}
	return engines, rows
}

func TestIngestFromTwoSessionsDoesNotDuplicateCategories(t *testing.T) {
	engines, rows := openSharedEngines(t, "user-1", "user-2")
	ctx := context.Background()

	// Both sessions loaded before either ingested, so each plans all four.
	for _, engine := range engines {
		svc := NewUploadService(engine, 2, logger.Nop())
		if _, err := svc.Ingest(ctx, []model.PerformanceBatch{walkBatch(t)}); err != nil {
			t.Fatalf("Ingest for %s: %v", engine.UserID(), err)
		}
	}

	cats, err := rows.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(cats) != 4 {
		t.Fatalf("expected 4 category rows, got %+v", cats)
	}

	ids := map[string]bool{}
	for _, c := range cats {
		ids[c.ID] = true
	}
	for _, engine := range engines {
		local := engine.Store().Categories()
		if len(local) != 4 {
			t.Fatalf("expected 4 categories for %s, got %d", engine.UserID(), len(local))
		}
		for _, c := range local {
			if !ids[c.ID] {
				t.Fatalf("%s holds category %s/%s with unknown id %s", engine.UserID(), c.Type, c.Name, c.ID)
			}
		}
	}
}

func TestIngestValidatesBeforeAnyRemoteCall(t *testing.T) {
	b := testsupport.NewBackend()
	engine := b.Engine(t, "user-1")
	svc := NewUploadService(engine, 2, logger.Nop())

	batch := walkBatch(t)
	batch.Source.TakeNumber = 0
	batch.Results[0].ActorName = " "

	_, err := svc.Ingest(context.Background(), []model.PerformanceBatch{batch})
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(verr.Message, "take number") || !strings.Contains(verr.Message, "actor name") {
		t.Fatalf("expected both problems reported, got %q", verr.Message)
	}
	if n := b.Rows.CallCount("InsertCategories"); n != 0 {
		t.Fatalf("expected no category insert, got %d", n)
	}
	if _, err := os.Stat(batch.Source.LocalPath); err == nil {
		t.Fatalf("expected staged files released on validation failure")
	}
}

func TestIngestRequiresBatches(t *testing.T) {
	svc := NewUploadService(testsupport.NewBackend().Engine(t, "user-1"), 0, logger.Nop())

	var verr *model.ValidationError
	if _, err := svc.Ingest(context.Background(), nil); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
