package core

import (
	"fmt"
	"sort"
	"sync"
)

// Instances is the application-owned map of running clients keyed by config
// entry ID. Setup inserts, teardown removes.
type Instances[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func NewInstances[T any]() *Instances[T] {
	return &Instances[T]{items: make(map[string]T)}
}

func (i *Instances[T]) Insert(id string, item T) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.items[id]; ok {
		return fmt.Errorf("instance %q already registered", id)
	}
	i.items[id] = item
	return nil
}

func (i *Instances[T]) Remove(id string) (T, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	item, ok := i.items[id]
	delete(i.items, id)
	return item, ok
}

func (i *Instances[T]) Get(id string) (T, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	item, ok := i.items[id]
	return item, ok
}

// IDs returns registered entry IDs in sorted order.
func (i *Instances[T]) IDs() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	ids := make([]string, 0, len(i.items))
	for id := range i.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns registered items ordered by ID.
func (i *Instances[T]) All() []T {
	ids := i.IDs()
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if item, ok := i.items[id]; ok {
			out = append(out, item)
		}
	}
	return out
}

func (i *Instances[T]) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.items)
}
