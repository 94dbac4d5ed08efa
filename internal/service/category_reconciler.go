package service

import (
	"strings"

	"github.com/makeasinger/motionvault/internal/model"
)

// CategoryRequest is a (kind, name) pair implied by incoming asset metadata.
type CategoryRequest struct {
	Kind model.CategoryKind
	Name string
}

// PerformerCategories registers a performer under both performanceActors and
// actors.
func PerformerCategories(name string) []CategoryRequest {
	return []CategoryRequest{
		{Kind: model.KindPerformanceActors, Name: name},
		{Kind: model.KindActors, Name: name},
	}
}

// BatchCategories lists every category a set of batches refers to.
func BatchCategories(batches []model.PerformanceBatch) []CategoryRequest {
	var reqs []CategoryRequest
	for _, b := range batches {
		reqs = append(reqs, PerformerCategories(b.Source.PerformanceActor)...)
		reqs = append(reqs, CategoryRequest{Kind: model.KindMovements, Name: b.Source.MovementType})
		for _, r := range b.Results {
			reqs = append(reqs, CategoryRequest{Kind: model.KindActors, Name: r.ActorName})
		}
	}
	return reqs
}

// ReconcileCategories returns the categories that must be created so every
// incoming pair exists exactly once. Empty names and names already present
// in their kind are skipped; repeats within incoming collapse to one row.
// Output order follows first appearance in incoming.
func ReconcileCategories(existing []model.Category, incoming []CategoryRequest) []model.Category {
	known := make(map[string]bool, len(existing))
	for _, c := range existing {
		known[model.CategoryKey(c.Type, c.Name)] = true
	}

	var created []model.Category
	for _, req := range incoming {
		name := strings.TrimSpace(req.Name)
		if name == "" || !req.Kind.Valid() {
			continue
		}
		key := model.CategoryKey(req.Kind, name)
		if known[key] {
			continue
		}
		known[key] = true
		created = append(created, model.Category{Type: req.Kind, Name: name})
	}
	return created
}
