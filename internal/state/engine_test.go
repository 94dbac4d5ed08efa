package state_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gorm.io/datatypes"

	"github.com/makeasinger/motionvault/internal/model"
	"github.com/makeasinger/motionvault/internal/state"
	"github.com/makeasinger/motionvault/internal/testsupport"
)

func seedAsset(b *testsupport.Backend, actor, movement, performer string) model.Asset {
	return b.Rows.SeedAsset(model.Asset{
		FilePath:         "user-1/" + actor + ".mp4",
		VideoURL:         testsupport.PublicBase + "/user-1/" + actor + ".mp4",
		ActorName:        actor,
		MovementType:     movement,
		PerformanceActor: performer,
		TakeNumber:       1,
	})
}

func TestToggleFavoriteFlipsAndPersists(t *testing.T) {
	b := testsupport.NewBackend()
	a := seedAsset(b, "Nova", "Walk", "Alex")
	engine := b.Engine(t, "user-1")

	got, err := engine.ToggleFavorite(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("ToggleFavorite: %v", err)
	}
	if !got {
		t.Fatalf("expected favorite to be true")
	}
	local, _ := engine.Store().Asset(a.ID)
	if !local.IsFavorite {
		t.Fatalf("expected local asset to be favorite")
	}
	row, _ := b.Rows.Asset(a.ID)
	if !row.IsFavorite {
		t.Fatalf("expected row to be favorite")
	}

	got, err = engine.ToggleFavorite(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("ToggleFavorite: %v", err)
	}
	if got {
		t.Fatalf("expected second toggle to clear favorite")
	}
}

func TestToggleFavoriteRevertsOnRemoteFailure(t *testing.T) {
	b := testsupport.NewBackend()
	a := seedAsset(b, "Nova", "Walk", "Alex")
	engine := b.Engine(t, "user-1")
	b.Rows.FailOn("UpdateAsset", testsupport.ErrInjected)

	versions := 0
	unsubscribe := engine.Store().Subscribe(func(uint64, state.Collections) { versions++ })
	defer unsubscribe()

	_, err := engine.ToggleFavorite(context.Background(), a.ID)
	if !errors.Is(err, testsupport.ErrInjected) {
		t.Fatalf("expected injected error, got %v", err)
	}
	local, _ := engine.Store().Asset(a.ID)
	if local.IsFavorite {
		t.Fatalf("expected favorite to be reverted by reload")
	}
	if versions != 2 {
		t.Fatalf("expected optimistic change and reload to notify, got %d notifications", versions)
	}
}

func TestUnknownAssetIsNotFound(t *testing.T) {
	b := testsupport.NewBackend()
	engine := b.Engine(t, "user-1")

	if _, err := engine.ToggleFavorite(context.Background(), "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := engine.DeleteAsset(context.Background(), "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if b.Rows.CallCount("UpdateAsset") != 0 || b.Rows.CallCount("DeleteAssets") != 0 {
		t.Fatalf("expected no remote calls for unknown ids")
	}
}

func TestDeleteAssetsRemovesObjectsInOneCall(t *testing.T) {
	b := testsupport.NewBackend()
	a1 := seedAsset(b, "Nova", "Walk", "Alex")
	a2 := seedAsset(b, "Orion", "Walk", "Alex")
	a3 := seedAsset(b, "Vega", "Run", "Sam")
	engine := b.Engine(t, "user-1")

	if err := engine.DeleteAssets(context.Background(), []string{a1.ID, a2.ID, a1.ID}); err != nil {
		t.Fatalf("DeleteAssets: %v", err)
	}

	calls := b.Objects.RemoveCalls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one removal call, got %d", len(calls))
	}
	if len(calls[0]) != 2 {
		t.Fatalf("expected two paths in removal, got %v", calls[0])
	}
	assets := engine.Store().Assets()
	if len(assets) != 1 || assets[0].ID != a3.ID {
		t.Fatalf("expected only %s to remain, got %+v", a3.ID, assets)
	}
}

func TestDeleteAssetsRequiresSelection(t *testing.T) {
	engine := testsupport.NewBackend().Engine(t, "user-1")

	var verr *model.ValidationError
	if err := engine.DeleteAssets(context.Background(), nil); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateAssetRejectsBadPatchBeforeRemoteCall(t *testing.T) {
	b := testsupport.NewBackend()
	a := seedAsset(b, "Nova", "Walk", "Alex")
	engine := b.Engine(t, "user-1")

	zero := 0
	cases := []struct {
		name  string
		patch model.AssetPatch
	}{
		{name: "empty", patch: model.AssetPatch{}},
		{name: "take below one", patch: model.AssetPatch{TakeNumber: &zero}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var verr *model.ValidationError
			if _, err := engine.UpdateAsset(context.Background(), a.ID, tc.patch); !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if n := b.Rows.CallCount("UpdateAsset"); n != 0 {
		t.Fatalf("expected no remote update, got %d", n)
	}
}

func TestUpdateAssetAppliesPatch(t *testing.T) {
	b := testsupport.NewBackend()
	a := seedAsset(b, "Nova", "Walk", "Alex")
	engine := b.Engine(t, "user-1")

	take := 3
	tags := []string{" night ", "night", "rain"}
	got, err := engine.UpdateAsset(context.Background(), a.ID, model.AssetPatch{TakeNumber: &take, Tags: &tags})
	if err != nil {
		t.Fatalf("UpdateAsset: %v", err)
	}
	if got.TakeNumber != 3 {
		t.Fatalf("expected take 3, got %d", got.TakeNumber)
	}
	want := datatypes.JSONSlice[string]{"night", "rain"}
	row, _ := b.Rows.Asset(a.ID)
	if strings.Join(row.Tags, ",") != strings.Join(want, ",") {
		t.Fatalf("expected tags %v, got %v", want, row.Tags)
	}
}

func TestAddAssetsReplacesProvisionalRows(t *testing.T) {
	b := testsupport.NewBackend()
	engine := b.Engine(t, "user-1")

	var sawProvisional bool
	unsubscribe := engine.Store().Subscribe(func(_ uint64, c state.Collections) {
		for _, a := range c.Assets {
			if strings.HasPrefix(a.ID, "local-") {
				sawProvisional = true
			}
		}
	})
	defer unsubscribe()

	inserted, err := engine.AddAssets(context.Background(), []model.Asset{
		{FilePath: "user-1/a.mp4", ActorName: "Nova", MovementType: "Walk", PerformanceActor: "Alex", TakeNumber: 1},
		{FilePath: "user-1/b.mp4", ActorName: "Orion", MovementType: "Walk", PerformanceActor: "Alex", TakeNumber: 1},
	})
	if err != nil {
		t.Fatalf("AddAssets: %v", err)
	}
	if !sawProvisional {
		t.Fatalf("expected provisional rows to be visible before the insert completed")
	}

	assets := engine.Store().Assets()
	if len(assets) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(assets))
	}
	for _, a := range assets {
		if strings.HasPrefix(a.ID, "local-") {
			t.Fatalf("provisional id %s left behind", a.ID)
		}
	}
	for _, a := range inserted {
		if _, ok := engine.Store().Asset(a.ID); !ok {
			t.Fatalf("inserted asset %s missing from store", a.ID)
		}
	}
}

func TestAddAssetsFailureLeavesStoreMatchingRows(t *testing.T) {
	b := testsupport.NewBackend()
	seedAsset(b, "Nova", "Walk", "Alex")
	engine := b.Engine(t, "user-1")
	b.Rows.FailOn("InsertAssets", testsupport.ErrInjected)

	_, err := engine.AddAssets(context.Background(), []model.Asset{{FilePath: "user-1/x.mp4", TakeNumber: 1}})
	if !errors.Is(err, testsupport.ErrInjected) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if n := len(engine.Store().Assets()); n != 1 {
		t.Fatalf("expected store to be reloaded to 1 asset, got %d", n)
	}
}

func TestMutateJoinsReloadFailure(t *testing.T) {
	b := testsupport.NewBackend()
	a := seedAsset(b, "Nova", "Walk", "Alex")
	engine := b.Engine(t, "user-1")

	reloadErr := errors.New("list down")
	b.Rows.FailOn("UpdateAsset", testsupport.ErrInjected)
	b.Rows.FailOn("ListAssets", reloadErr)

	_, err := engine.ToggleFavorite(context.Background(), a.ID)
	if !errors.Is(err, testsupport.ErrInjected) || !errors.Is(err, reloadErr) {
		t.Fatalf("expected both mutation and reload errors, got %v", err)
	}
}

func TestReloadSortsCollections(t *testing.T) {
	b := testsupport.NewBackend()
	older := seedAsset(b, "Nova", "Walk", "Alex")
	newer := seedAsset(b, "Orion", "Walk", "Alex")
	b.Rows.SeedCategory(model.Category{Type: model.KindMovements, Name: "Walk"})
	b.Rows.SeedCategory(model.Category{Type: model.KindActors, Name: "Alex"})
	engine := b.Engine(t, "user-1")

	version, c := engine.Store().Snapshot()
	if version == 0 {
		t.Fatalf("expected version to advance after reload")
	}
	if c.Assets[0].ID != newer.ID || c.Assets[1].ID != older.ID {
		t.Fatalf("expected newest asset first")
	}
	if c.Categories[0].Name != "Alex" || c.Categories[1].Name != "Walk" {
		t.Fatalf("expected categories sorted by name, got %+v", c.Categories)
	}
}

func TestSnapshotVersionAdvancesOncePerChange(t *testing.T) {
	b := testsupport.NewBackend()
	a := seedAsset(b, "Nova", "Walk", "Alex")
	engine := b.Engine(t, "user-1")

	before, _ := engine.Store().Snapshot()
	if _, err := engine.ToggleFavorite(context.Background(), a.ID); err != nil {
		t.Fatalf("ToggleFavorite: %v", err)
	}
	after, c := engine.Store().Snapshot()
	if after != before+1 {
		t.Fatalf("expected version %d, got %d", before+1, after)
	}
	if !c.Assets[0].IsFavorite {
		t.Fatalf("expected snapshot to carry the change")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	b := testsupport.NewBackend()
	a := seedAsset(b, "Nova", "Walk", "Alex")
	engine := b.Engine(t, "user-1")

	_, c := engine.Store().Snapshot()
	c.Assets[0].ActorName = "changed"

	local, _ := engine.Store().Asset(a.ID)
	if local.ActorName != "Nova" {
		t.Fatalf("snapshot mutation leaked into store: %q", local.ActorName)
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	b := testsupport.NewBackend()
	engine := b.Engine(t, "user-1")

	calls := 0
	unsubscribe := engine.Store().Subscribe(func(uint64, state.Collections) { calls++ })
	if err := engine.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	unsubscribe()
	if err := engine.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 notification, got %d", calls)
	}
}
