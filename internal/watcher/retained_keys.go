package watcher

import (
	"slices"
	"sync"
)

// retainedKeys holds the keys of watched references that have not been
// seen enqueued yet.
type retainedKeys struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

func newRetainedKeys() *retainedKeys {
	return &retainedKeys{keys: make(map[string]struct{})}
}

func (rk *retainedKeys) add(key string) {
	rk.mu.Lock()
	defer rk.mu.Unlock()
	rk.keys[key] = struct{}{}
}

func (rk *retainedKeys) remove(key string) {
	rk.mu.Lock()
	defer rk.mu.Unlock()
	delete(rk.keys, key)
}

func (rk *retainedKeys) contains(key string) bool {
	rk.mu.RLock()
	defer rk.mu.RUnlock()
	_, ok := rk.keys[key]
	return ok
}

// clear empties the set in one step; concurrent readers see either the full
// set or the empty one.
func (rk *retainedKeys) clear() {
	rk.mu.Lock()
	defer rk.mu.Unlock()
	rk.keys = make(map[string]struct{})
}

func (rk *retainedKeys) len() int {
	rk.mu.RLock()
	defer rk.mu.RUnlock()
	return len(rk.keys)
}

// snapshot returns a sorted copy of the keys.
func (rk *retainedKeys) snapshot() []string {
	rk.mu.RLock()
	keys := make([]string, 0, len(rk.keys))
	for key := range rk.keys {
		keys = append(keys, key)
	}
	rk.mu.RUnlock()

	slices.Sort(keys)
	return keys
}
