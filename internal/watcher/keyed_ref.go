package watcher

import (
	"runtime"
	"sync"
	"weak"
)

// KeyedWeakReference is a weak handle to a watched object, tagged with the
// key generated by the watch call and a name used for diagnostics. It never
// keeps its target alive.
type KeyedWeakReference struct {
	Key  string
	Name string

	cleared func() bool
}

func newKeyedWeakReference[T any](ref *T, key, name string, queue *referenceQueue) *KeyedWeakReference {
	wp := weak.Make(ref)
	kref := &KeyedWeakReference{
		Key:     key,
		Name:    name,
		cleared: func() bool { return wp.Value() == nil },
	}
	queue.register(kref)
	// Neither the queue nor kref may reach ref, or it would never be collected.
	runtime.AddCleanup(ref, queue.enqueue, kref)
	return kref
}

// referenceQueue collects references whose targets became unreachable.
// A reference is enqueued exactly once: either by its cleanup or by a poll
// that finds its weak pointer cleared, whichever comes first.
type referenceQueue struct {
	mu         sync.Mutex
	registered map[*KeyedWeakReference]struct{}
	enqueued   []*KeyedWeakReference
}

func newReferenceQueue() *referenceQueue {
	return &referenceQueue{
		registered: make(map[*KeyedWeakReference]struct{}),
	}
}

func (q *referenceQueue) register(ref *KeyedWeakReference) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.registered[ref] = struct{}{}
}

func (q *referenceQueue) enqueue(ref *KeyedWeakReference) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueueLocked(ref)
}

func (q *referenceQueue) enqueueLocked(ref *KeyedWeakReference) {
	if _, ok := q.registered[ref]; !ok {
		return
	}
	delete(q.registered, ref)
	q.enqueued = append(q.enqueued, ref)
}

// poll removes and returns the next enqueued reference, or nil. It never
// blocks.
func (q *referenceQueue) poll() *KeyedWeakReference {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.enqueued) == 0 {
		q.sweepLocked()
	}
	if len(q.enqueued) == 0 {
		return nil
	}

	ref := q.enqueued[0]
	q.enqueued[0] = nil
	q.enqueued = q.enqueued[1:]
	return ref
}

// sweepLocked enqueues references whose weak pointers were cleared by a
// collection whose cleanups have not run yet.
func (q *referenceQueue) sweepLocked() {
	for ref := range q.registered {
		if ref.cleared() {
			q.enqueueLocked(ref)
		}
	}
}

func (q *referenceQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.registered)
}
