// Package gateway bundles the three backing services the gallery talks to:
// the row store, the object store and the external generation job API.
package gateway

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/makeasinger/motionvault/internal/client"
	"github.com/makeasinger/motionvault/internal/model"
	"github.com/makeasinger/motionvault/internal/repository"
)

// Gateway is the single entry point for remote calls.
type Gateway struct {
	Rows    repository.GalleryStore
	Objects client.StorageClient
	Jobs    client.VideoGenerator
}

func New(rows repository.GalleryStore, objects client.StorageClient, jobs client.VideoGenerator) *Gateway {
	return &Gateway{Rows: rows, Objects: objects, Jobs: jobs}
}

// Snapshot holds the three collections as read from the row store.
type Snapshot struct {
	Assets     []model.Asset
	Categories []model.Category
	Tasks      []model.GenerationTask
}

// LoadAll fetches all three collections for userID concurrently.
func (g *Gateway) LoadAll(ctx context.Context, userID string) (*Snapshot, error) {
	var snap Snapshot
	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		assets, err := g.Rows.ListAssets(egctx)
		snap.Assets = assets
		return err
	})
	eg.Go(func() error {
		categories, err := g.Rows.ListCategories(egctx)
		snap.Categories = categories
		return err
	})
	eg.Go(func() error {
		tasks, err := g.Rows.ListTasks(egctx, userID)
		snap.Tasks = tasks
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("load collections: %w", err)
	}
	return &snap, nil
}

// ObjectKeys maps public URLs back to object keys, skipping URLs that do not
// belong to the object store.
func (g *Gateway) ObjectKeys(urls []string) []string {
	keys := make([]string, 0, len(urls))
	for _, u := range urls {
		if key, ok := g.Objects.KeyFromURL(u); ok {
			keys = append(keys, key)
		}
	}
	return keys
}
