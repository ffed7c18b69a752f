// Package keylock provides a process-wide registry of mutexes keyed by string.
//
// Registration uses it to serialize the "check uniqueness, then insert"
// sequence per account name or email. The registry only coordinates goroutines
// of a single process; duplicate prevention across processes relies on the
// UNIQUE constraints declared by the schema.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Registry hands out one mutex per key. Entries are created on demand and
// dropped when the last holder or waiter releases them.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Lock blocks until the mutex for key is held and returns its release func.
func (r *Registry) Lock(key string) (unlock func()) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	e.refs++
	r.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			r.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(r.entries, key)
			}
			r.mu.Unlock()
		})
	}
}

// WithLock runs fn while holding the mutex for key.
func (r *Registry) WithLock(key string, fn func() error) error {
	unlock := r.Lock(key)
	defer unlock()
	return fn()
}

// Len reports how many keys currently have a holder or waiter.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
