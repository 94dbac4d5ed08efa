// Package state holds the per-user in-memory mirror of the gallery and the
// engine that mutates it. Store exposes reads and subscriptions only; every
// write goes through Engine.
package state

import (
	"sort"
	"sync"

	"github.com/makeasinger/motionvault/internal/gateway"
	"github.com/makeasinger/motionvault/internal/model"
)

// Collections is a view of the three mirrored collections. Assets and tasks
// are ordered newest first, categories by name.
type Collections struct {
	Assets     []model.Asset
	Categories []model.Category
	Tasks      []model.GenerationTask
}

// Listener receives a snapshot after every change. Listeners run on the
// mutating goroutine and must not block or call back into the engine.
type Listener func(version uint64, c Collections)

// Store is the in-memory mirror of one user's collections.
type Store struct {
	mu      sync.RWMutex
	c       Collections
	version uint64

	notifyMu sync.Mutex
	subMu    sync.Mutex
	nextSub  int
	subs     map[int]Listener
}

func NewStore() *Store {
	return &Store{subs: make(map[int]Listener)}
}

// Snapshot returns a deep copy of all collections and the version it
// reflects. The version increases by one on every change.
func (s *Store) Snapshot() (uint64, Collections) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version, s.c.clone()
}

func (s *Store) Assets() []model.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAssets(s.c.Assets)
}

func (s *Store) Categories() []model.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Category(nil), s.c.Categories...)
}

func (s *Store) Tasks() []model.GenerationTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTasks(s.c.Tasks)
}

func (s *Store) Asset(id string) (model.Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.c.Assets {
		if a.ID == id {
			return model.CloneAsset(a), true
		}
	}
	return model.Asset{}, false
}

func (s *Store) Category(id string) (model.Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.c.Categories {
		if c.ID == id {
			return c, true
		}
	}
	return model.Category{}, false
}

func (s *Store) Task(id string) (model.GenerationTask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.c.Tasks {
		if t.ID == id {
			return model.CloneTask(t), true
		}
	}
	return model.GenerationTask{}, false
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// apply runs fn against the live collections, re-materializes the ordered
// lists and notifies subscribers in version order.
func (s *Store) apply(fn func(c *Collections)) {
	s.mu.Lock()
	fn(&s.c)
	s.c.sort()
	s.version++
	version, snap := s.version, s.c.clone()
	s.notifyMu.Lock()
	s.mu.Unlock()

	defer s.notifyMu.Unlock()
	s.notify(version, snap)
}

// replace swaps in freshly loaded collections.
func (s *Store) replace(snap *gateway.Snapshot) {
	s.apply(func(c *Collections) {
		c.Assets = cloneAssets(snap.Assets)
		c.Categories = append([]model.Category(nil), snap.Categories...)
		c.Tasks = cloneTasks(snap.Tasks)
	})
}

func (s *Store) notify(version uint64, snap Collections) {
	s.subMu.Lock()
	listeners := make([]Listener, 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.subMu.Unlock()

	for i, fn := range listeners {
		if i == 0 {
			fn(version, snap)
			continue
		}
		fn(version, snap.clone())
	}
}

func (c *Collections) sort() {
	sort.SliceStable(c.Assets, func(i, j int) bool {
		if c.Assets[i].CreatedAt.Equal(c.Assets[j].CreatedAt) {
			return c.Assets[i].ID < c.Assets[j].ID
		}
		return c.Assets[i].CreatedAt.After(c.Assets[j].CreatedAt)
	})
	sort.SliceStable(c.Categories, func(i, j int) bool {
		if c.Categories[i].Name == c.Categories[j].Name {
			return c.Categories[i].Type < c.Categories[j].Type
		}
		return c.Categories[i].Name < c.Categories[j].Name
	})
	sort.SliceStable(c.Tasks, func(i, j int) bool {
		if c.Tasks[i].CreatedAt.Equal(c.Tasks[j].CreatedAt) {
			return c.Tasks[i].ID < c.Tasks[j].ID
		}
		return c.Tasks[i].CreatedAt.After(c.Tasks[j].CreatedAt)
	})
}

func (c Collections) clone() Collections {
	return Collections{
		Assets:     cloneAssets(c.Assets),
		Categories: append([]model.Category(nil), c.Categories...),
		Tasks:      cloneTasks(c.Tasks),
	}
}

func cloneAssets(in []model.Asset) []model.Asset {
	out := make([]model.Asset, len(in))
	for i, a := range in {
		out[i] = model.CloneAsset(a)
	}
	return out
}

func cloneTasks(in []model.GenerationTask) []model.GenerationTask {
	out := make([]model.GenerationTask, len(in))
	for i, t := range in {
		out[i] = model.CloneTask(t)
	}
	return out
}
