// Package demo provides workloads that exercise a watcher with objects that
// are either released normally or parked in a cache and leaked on purpose.
package demo

import (
	"fmt"
	"sync"

	"github.com/mabhi256/refwatch/internal/watcher"
)

type Widget struct {
	ID       int
	Label    string
	buffer   [4096]byte
	children []*Widget
}

func newWidget(id int, label string) *Widget {
	w := &Widget{ID: id, Label: label}
	w.children = []*Widget{{ID: -id, Label: label + "/child"}}
	w.buffer[0] = byte(id)
	return w
}

type Workload struct {
	watcher *watcher.RefWatcher

	mu    sync.Mutex
	cache []*Widget
	next  int
}

func New(w *watcher.RefWatcher) *Workload {
	return &Workload{watcher: w}
}

// Release watches n widgets and drops every reference to them, so all of
// them should be collected.
func (wl *Workload) Release(n int) ([]string, error) {
	keys := make([]string, 0, n)
	for range n {
		key, err := wl.releaseOne()
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

//go:noinline
func (wl *Workload) releaseOne() (string, error) {
	id := wl.nextID()
	w := newWidget(id, fmt.Sprintf("released-%d", id))
	return watcher.WatchNamed(wl.watcher, w, w.Label)
}

// Leak watches n widgets that stay reachable from the workload's cache until
// Reset is called.
func (wl *Workload) Leak(n int) ([]string, error) {
	keys := make([]string, 0, n)
	for range n {
		id := wl.nextID()
		w := newWidget(id, fmt.Sprintf("leaked-%d", id))

		wl.mu.Lock()
		wl.cache = append(wl.cache, w)
		wl.mu.Unlock()

		key, err := watcher.WatchNamed(wl.watcher, w, w.Label)
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Reset drops the cache and returns how many widgets it held.
func (wl *Workload) Reset() int {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	n := len(wl.cache)
	wl.cache = nil
	return n
}

func (wl *Workload) Leaked() int {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	return len(wl.cache)
}

func (wl *Workload) nextID() int {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	wl.next++
	return wl.next
}
