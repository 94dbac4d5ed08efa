package state

import (
	"context"
	"fmt"
	"time"

	"github.com/makeasinger/motionvault/internal/model"
)

func (e *Engine) AddAsset(ctx context.Context, asset model.Asset) (model.Asset, error) {
	rows, err := e.AddAssets(ctx, []model.Asset{asset})
	if err != nil {
		return model.Asset{}, err
	}
	return rows[0], nil
}

// AddAssets inserts assets as one batch. The rows appear locally under
// provisional ids until the row store returns the persisted versions.
func (e *Engine) AddAssets(ctx context.Context, assets []model.Asset) ([]model.Asset, error) {
	if len(assets) == 0 {
		return nil, nil
	}

	now := time.Now()
	pending := make([]model.Asset, len(assets))
	provisional := make(map[string]bool, len(assets))
	for i, a := range assets {
		a = model.CloneAsset(a)
		a.ID = provisionalID()
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		pending[i] = a
		provisional[a.ID] = true
	}

	var inserted []model.Asset
	err := e.Mutate(ctx, "add assets",
		func(c *Collections) {
			c.Assets = append(c.Assets, pending...)
		},
		func(ctx context.Context) error {
			rows, err := e.gw.Rows.InsertAssets(ctx, assets)
			inserted = rows
			return err
		},
	)
	if err != nil {
		return nil, err
	}

	e.store.apply(func(c *Collections) {
		persisted := make(map[string]bool, len(inserted))
		for _, a := range inserted {
			persisted[a.ID] = true
		}
		kept := c.Assets[:0]
		for _, a := range c.Assets {
			if provisional[a.ID] || persisted[a.ID] {
				continue
			}
			kept = append(kept, a)
		}
		c.Assets = append(kept, cloneAssets(inserted)...)
	})
	return inserted, nil
}

func (e *Engine) DeleteAsset(ctx context.Context, id string) error {
	return e.DeleteAssets(ctx, []string{id})
}

// DeleteAssets removes the rows and then their backing objects with a single
// batched removal.
func (e *Engine) DeleteAssets(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return model.Invalid("no assets selected")
	}

	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	paths := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		asset, ok := e.store.Asset(id)
		if !ok {
			return fmt.Errorf("asset %s: %w", id, model.ErrNotFound)
		}
		unique = append(unique, id)
		if asset.FilePath != "" {
			paths = append(paths, asset.FilePath)
		}
	}

	return e.Mutate(ctx, "delete assets",
		func(c *Collections) {
			kept := c.Assets[:0]
			for _, a := range c.Assets {
				if !seen[a.ID] {
					kept = append(kept, a)
				}
			}
			c.Assets = kept
		},
		func(ctx context.Context) error {
			if err := e.gw.Rows.DeleteAssets(ctx, unique); err != nil {
				return err
			}
			if len(paths) == 0 {
				return nil
			}
			return e.gw.Objects.Remove(ctx, paths)
		},
	)
}

// UpdateAsset applies a partial edit to one asset.
func (e *Engine) UpdateAsset(ctx context.Context, id string, patch model.AssetPatch) (model.Asset, error) {
	if patch.Empty() {
		return model.Asset{}, model.Invalid("no fields to update")
	}
	if patch.TakeNumber != nil && *patch.TakeNumber < 1 {
		return model.Asset{}, model.Invalid("take number must be a positive integer")
	}
	asset, ok := e.store.Asset(id)
	if !ok {
		return model.Asset{}, fmt.Errorf("asset %s: %w", id, model.ErrNotFound)
	}
	patch.Apply(&asset)

	err := e.Mutate(ctx, "update asset",
		func(c *Collections) {
			for i := range c.Assets {
				if c.Assets[i].ID == id {
					patch.Apply(&c.Assets[i])
				}
			}
		},
		func(ctx context.Context) error {
			return e.gw.Rows.UpdateAsset(ctx, id, patch.Columns())
		},
	)
	if err != nil {
		return model.Asset{}, err
	}
	return asset, nil
}

// ToggleFavorite flips is_favorite from its current local value and returns
// the new value.
func (e *Engine) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	asset, ok := e.store.Asset(id)
	if !ok {
		return false, fmt.Errorf("asset %s: %w", id, model.ErrNotFound)
	}
	next := !asset.IsFavorite

	err := e.Mutate(ctx, "toggle favorite",
		func(c *Collections) {
			for i := range c.Assets {
				if c.Assets[i].ID == id {
					c.Assets[i].IsFavorite = next
				}
			}
		},
		func(ctx context.Context) error {
			return e.gw.Rows.UpdateAsset(ctx, id, map[string]interface{}{"is_favorite": next})
		},
	)
	if err != nil {
		return asset.IsFavorite, err
	}
	return next, nil
}
