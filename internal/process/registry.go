package process

import (
	"sort"
	"sync"
)

// Registry tracks live entries by a stable key (site name, "<category>-<name>",
// or a singleton key). The owning supervisor is the only writer.
type Registry[T comparable] struct {
	mu    sync.RWMutex
	items map[string]T
}

// NewRegistry creates an empty registry.
func NewRegistry[T comparable]() *Registry[T] {
	return &Registry[T]{items: make(map[string]T)}
}

func (r *Registry[T]) Get(key string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[key]
	return v, ok
}

func (r *Registry[T]) Set(key string, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = v
}

func (r *Registry[T]) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, key)
}

func (r *Registry[T]) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[key]
	return ok
}

// CompareAndDelete removes key only while it still maps to v. Exit handlers use
// it so a late exit of an old process never evicts its replacement.
func (r *Registry[T]) CompareAndDelete(key string, v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[key]
	if !ok || cur != v {
		return false
	}
	delete(r.items, key)
	return true
}

// Keys returns the tracked keys in sorted order.
func (r *Registry[T]) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.items))
	for k := range r.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Spawn starts a process and tracks it under key. The entry is removed when
// the process exits unless it has been replaced meanwhile; onExit runs after
// that removal.
func Spawn(reg *Registry[*Process], key string, opts Options, onExit func(p *Process, err error)) (*Process, error) {
	ready := make(chan *Process, 1)
	opts.OnExit = func(err error) {
		p := <-ready
		reg.CompareAndDelete(key, p)
		if onExit != nil {
			onExit(p, err)
		}
	}

	p, err := Start(opts)
	if err != nil {
		return nil, err
	}
	reg.Set(key, p)
	ready <- p
	return p, nil
}
