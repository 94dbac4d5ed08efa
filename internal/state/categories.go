package state

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/makeasinger/motionvault/internal/model"
)

// AddCategory creates one user-named category after checking the name is
// present and unused within its kind.
func (e *Engine) AddCategory(ctx context.Context, kind model.CategoryKind, name string) (model.Category, error) {
	name = strings.TrimSpace(name)
	if !kind.Valid() {
		return model.Category{}, model.Invalid(fmt.Sprintf("unknown category type %q", kind))
	}
	if name == "" {
		return model.Category{}, model.Invalid("category name is required")
	}

	e.categoryMu.Lock()
	defer e.categoryMu.Unlock()
	if e.categoryExists(kind, name, "") {
		return model.Category{}, model.Invalid(fmt.Sprintf("category %q already exists in %s", name, kind))
	}

	rows, err := e.addCategories(ctx, []model.Category{{Type: kind, Name: name}})
	if err != nil {
		return model.Category{}, err
	}
	return rows[0], nil
}

// EnsureCategories inserts the categories plan returns for the current
// local categories. Concurrent calls on one engine are serialized so two
// plans never race on the same names; the row store skips names another
// session already created and returns the stored rows.
func (e *Engine) EnsureCategories(ctx context.Context, plan func(existing []model.Category) []model.Category) ([]model.Category, error) {
	e.categoryMu.Lock()
	defer e.categoryMu.Unlock()
	return e.addCategories(ctx, plan(e.store.Categories()))
}

func (e *Engine) addCategories(ctx context.Context, categories []model.Category) ([]model.Category, error) {
	if len(categories) == 0 {
		return nil, nil
	}

	now := time.Now()
	pending := make([]model.Category, len(categories))
	provisional := make(map[string]bool, len(categories))
	for i, c := range categories {
		c.ID = provisionalID()
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		pending[i] = c
		provisional[c.ID] = true
	}

	var inserted []model.Category
	err := e.Mutate(ctx, "add categories",
		func(c *Collections) {
			c.Categories = append(c.Categories, pending...)
		},
		func(ctx context.Context) error {
			rows, err := e.gw.Rows.InsertCategories(ctx, categories)
			inserted = rows
			return err
		},
	)
	if err != nil {
		return nil, err
	}

	e.store.apply(func(c *Collections) {
		persisted := make(map[string]bool, len(inserted))
		for _, cat := range inserted {
			persisted[cat.ID] = true
		}
		kept := c.Categories[:0]
		for _, cat := range c.Categories {
			if provisional[cat.ID] || persisted[cat.ID] {
				continue
			}
			kept = append(kept, cat)
		}
		c.Categories = append(kept, inserted...)
	})
	return inserted, nil
}

// RenameCategory renames a category and rewrites every asset field of the
// same kind that held the old name.
func (e *Engine) RenameCategory(ctx context.Context, id, name string) (model.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Category{}, model.Invalid("category name is required")
	}
	e.categoryMu.Lock()
	defer e.categoryMu.Unlock()

	cat, ok := e.store.Category(id)
	if !ok {
		return model.Category{}, fmt.Errorf("category %s: %w", id, model.ErrNotFound)
	}
	if cat.Name == name {
		return cat, nil
	}
	if e.categoryExists(cat.Type, name, id) {
		return model.Category{}, model.Invalid(fmt.Sprintf("category %q already exists in %s", name, cat.Type))
	}

	old := cat.Name
	err := e.Mutate(ctx, "rename category",
		func(c *Collections) {
			for i := range c.Categories {
				if c.Categories[i].ID == id {
					c.Categories[i].Name = name
				}
			}
			rewriteField(c.Assets, cat.Type, old, name)
		},
		func(ctx context.Context) error {
			return e.gw.Rows.RenameCategory(ctx, cat, name)
		},
	)
	if err != nil {
		return model.Category{}, err
	}
	cat.Name = name
	return cat, nil
}

// DeleteCategory removes a category and marks assets that referenced it as
// Uncategorized.
func (e *Engine) DeleteCategory(ctx context.Context, id string) error {
	cat, ok := e.store.Category(id)
	if !ok {
		return fmt.Errorf("category %s: %w", id, model.ErrNotFound)
	}

	return e.Mutate(ctx, "delete category",
		func(c *Collections) {
			kept := c.Categories[:0]
			for _, existing := range c.Categories {
				if existing.ID != id {
					kept = append(kept, existing)
				}
			}
			c.Categories = kept
			rewriteField(c.Assets, cat.Type, cat.Name, model.Uncategorized)
		},
		func(ctx context.Context) error {
			return e.gw.Rows.DeleteCategory(ctx, cat)
		},
	)
}

func (e *Engine) categoryExists(kind model.CategoryKind, name, exceptID string) bool {
	for _, c := range e.store.Categories() {
		if c.Type == kind && c.Name == name && c.ID != exceptID {
			return true
		}
	}
	return false
}

func rewriteField(assets []model.Asset, kind model.CategoryKind, from, to string) {
	for i := range assets {
		if field := assets[i].FieldFor(kind); field != nil && *field == from {
			*field = to
		}
	}
}
