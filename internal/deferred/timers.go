package deferred

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	logx "wakealert/pkg/logx"
)

var ErrClosed = errors.New("deferred: timers closed")

// Timers keeps at most one pending one-shot callback per name.
//
// It is safe for concurrent use.
type Timers struct {
	clock Clock
	log   logx.Logger

	mu      sync.Mutex
	closed  bool
	pending map[string]Stopper
	dueAt   map[string]time.Time
	ver     map[string]uint64
}

func NewTimers(clock Clock, log logx.Logger) *Timers {
	if clock == nil {
		clock = System()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Timers{
		clock:   clock,
		log:     log,
		pending: map[string]Stopper{},
		dueAt:   map[string]time.Time{},
		ver:     map[string]uint64{},
	}
}

// Clock returns the time source used by these timers.
func (t *Timers) Clock() Clock { return t.clock }

// Schedule runs fn once after delay. An existing pending callback with the
// same name is replaced (upsert).
func (t *Timers) Schedule(name string, delay time.Duration, fn func()) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("deferred: name required")
	}
	if fn == nil {
		return errors.New("deferred: fn required")
	}
	if delay < 0 {
		delay = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if old, ok := t.pending[name]; ok {
		_ = old.Stop()
		delete(t.pending, name)
	}
	// bump version to ignore stale callbacks from previously scheduled timers
	ver := t.ver[name] + 1
	t.ver[name] = ver
	t.dueAt[name] = t.clock.Now().Add(delay)

	t.pending[name] = t.clock.AfterFunc(delay, func() {
		t.mu.Lock()
		if t.closed || t.ver[name] != ver {
			t.mu.Unlock()
			return
		}
		delete(t.pending, name)
		delete(t.dueAt, name)
		t.mu.Unlock()

		t.run(name, fn)
	})
	return nil
}

func (t *Timers) run(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("deferred callback panicked", logx.String("name", name), logx.Any("panic", r))
		}
	}()
	fn()
}

// Cancel drops the pending callback for name. It reports whether one was pending.
func (t *Timers) Cancel(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.pending[name]
	if !ok {
		return false
	}
	_ = st.Stop()
	t.ver[name]++
	delete(t.pending, name)
	delete(t.dueAt, name)
	return true
}

// PendingNames returns pending timer names ordered by due time.
func (t *Timers) PendingNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.pending))
	for n := range t.pending {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		ai, aj := t.dueAt[names[i]], t.dueAt[names[j]]
		if !ai.Equal(aj) {
			return ai.Before(aj)
		}
		return names[i] < names[j]
	})
	return names
}

// Close cancels everything pending and rejects further scheduling.
func (t *Timers) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for name, st := range t.pending {
		_ = st.Stop()
		t.ver[name]++
	}
	t.pending = map[string]Stopper{}
	t.dueAt = map[string]time.Time{}
}
