// Package lifecycle holds shared process lifecycle state used by the
// readiness endpoint during graceful shutdown.
package lifecycle

import (
	"sync/atomic"
	"time"
)

type Lifecycle struct {
	draining atomic.Bool
	started  atomic.Int64 // unix nanos, set once by MarkStarted
}

func (l *Lifecycle) MarkStarted() {
	if l == nil {
		return
	}
	l.started.CompareAndSwap(0, time.Now().UnixNano())
}

// Uptime reports time since MarkStarted, or zero if never started.
func (l *Lifecycle) Uptime() time.Duration {
	if l == nil {
		return 0
	}
	at := l.started.Load()
	if at == 0 {
		return 0
	}
	return time.Since(time.Unix(0, at))
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}
