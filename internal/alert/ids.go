package alert

import (
	"sync"
	"time"
)

// IDs hands out alert ids that never repeat within a process. Ids start
// at the wall clock in milliseconds so they also differ across restarts.
type IDs struct {
	now func() time.Time

	mu   sync.Mutex
	last int64
}

func NewIDs(now func() time.Time) *IDs {
	if now == nil {
		now = time.Now
	}
	return &IDs{now: now}
}

func (g *IDs) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.now().UnixMilli() & 0x7fffffff
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}
