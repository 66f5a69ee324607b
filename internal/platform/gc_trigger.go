package platform

import (
	"runtime"
	"time"

	"github.com/mabhi256/refwatch/internal/watcher"
)

const defaultEnqueueDelay = 100 * time.Millisecond

// GcTrigger runs a full collection, gives cleanup callbacks time to run,
// then collects again so objects released by those callbacks go as well.
type GcTrigger struct {
	EnqueueDelay time.Duration
}

var _ watcher.GcTrigger = (*GcTrigger)(nil)

func NewGcTrigger() *GcTrigger {
	return &GcTrigger{EnqueueDelay: defaultEnqueueDelay}
}

func (g *GcTrigger) RunGc() {
	runtime.GC()
	if g.EnqueueDelay > 0 {
		time.Sleep(g.EnqueueDelay)
	}
	runtime.GC()
}
