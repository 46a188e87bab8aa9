// Package deferred provides named, cancellable one-shot timers.
//
// The engine never blocks on a delay. Staggered settings navigations and the
// deep-link settle delay are registered here and fire on the clock's own
// goroutine. Re-registering a name replaces the pending timer; a version
// counter discards callbacks from timers that were replaced or cancelled
// after they had already started firing.
package deferred
