package alert

import (
	"context"
	"errors"
	"sync"
	"time"

	"wakealert/internal/deferred"
	logx "wakealert/pkg/logx"
)

// ErrWakeHeld is returned when another urgent presentation holds the grant.
var ErrWakeHeld = errors.New("alert: screen-wake grant already held")

const wakeTimer = "alert.wake.release"

// wakeGrant allows one screen-wake grant at a time and always releases it
// on a timer, independently of the presentation outcome.
type wakeGrant struct {
	locks  WakeLocks
	timers *deferred.Timers
	log    logx.Logger

	mu      sync.Mutex
	held    WakeLock
	since   time.Time
	ceiling time.Duration
	release time.Duration
}

func (w *wakeGrant) configure(ceiling, release time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ceiling, w.release = ceiling, release
}

func (w *wakeGrant) acquire(ctx context.Context, tag string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.timers.Clock().Now()
	if w.held != nil && now.Sub(w.since) < w.ceiling {
		return ErrWakeHeld
	}
	// A grant older than the ceiling has been dropped by the host.
	w.held = nil
	lock, err := w.locks.Acquire(ctx, tag, w.ceiling)
	if err != nil {
		return err
	}
	w.held = lock
	w.since = now
	if err := w.timers.Schedule(wakeTimer, w.release, w.releaseNow); err != nil {
		// Without our timer the host ceiling still bounds the grant.
		w.log.Warn("wake release not scheduled; relying on ceiling", logx.Err(err))
	}
	return nil
}

func (w *wakeGrant) releaseNow() {
	w.mu.Lock()
	lock := w.held
	w.held = nil
	w.mu.Unlock()
	if lock == nil {
		return
	}
	if err := lock.Release(); err != nil {
		w.log.Debug("wake release failed; ceiling will drop it", logx.Err(err))
		return
	}
	w.log.Debug("screen wake released")
}

// isHeld is false once the host ceiling has dropped the grant, even when
// the release timer never ran.
func (w *wakeGrant) isHeld() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.held == nil {
		return false
	}
	if w.timers.Clock().Now().Sub(w.since) >= w.ceiling {
		w.held = nil
		return false
	}
	return true
}
