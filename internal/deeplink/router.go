package deeplink

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"wakealert/internal/deferred"
	"wakealert/internal/eventbus"
	logx "wakealert/pkg/logx"
)

// App receives routing events.
type App interface {
	Navigate(ctx context.Context, route string) error
}

// Resume describes why a session came to the foreground.
type Resume struct {
	// FromAlertTap is set only when the user tapped an alert (or its
	// interstitial). Every other resume is ignored.
	FromAlertTap  bool   `json:"from_alert_tap"`
	URL           string `json:"url,omitempty"`
	Route         string `json:"route,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// PendingRoute waits for the settle delay, then is delivered and dropped.
type PendingRoute struct {
	Route         string    `json:"route"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	ArrivedAt     time.Time `json:"arrived_at"`
}

// Delivered is published on the bus after a route reaches the app.
type Delivered struct {
	PendingRoute
	Err string `json:"err,omitempty"`
}

const (
	DefaultSettleDelay = 800 * time.Millisecond
	timerName          = "deeplink.deliver"
	rememberIDs        = 64
)

// Router is the DeepLinkRouter.
type Router struct {
	app    App
	timers *deferred.Timers
	bus    eventbus.Bus
	log    logx.Logger

	mu      sync.Mutex
	settle  time.Duration
	aliases map[string]string
	landing string
	pending *PendingRoute
	// correlation ids already delivered, oldest first
	seen []string
}

type Config struct {
	SettleDelay  time.Duration
	Aliases      map[string]string
	LandingRoute string
}

func NewRouter(app App, timers *deferred.Timers, bus eventbus.Bus, log logx.Logger, cfg Config) (*Router, error) {
	if app == nil || timers == nil {
		return nil, errors.New("deeplink: app and timers are required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{app: app, timers: timers, bus: bus, log: log}
	r.Apply(cfg)
	return r, nil
}

// Apply replaces settle delay and aliases for future resumes.
func (r *Router) Apply(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settle = cfg.SettleDelay
	if r.settle <= 0 {
		r.settle = DefaultSettleDelay
	}
	r.aliases = DefaultAliases()
	for k, v := range cfg.Aliases {
		r.aliases[k] = v
	}
	r.landing = cfg.LandingRoute
}

// Pending returns the route awaiting delivery, if any.
func (r *Router) Pending() (PendingRoute, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return PendingRoute{}, false
	}
	return *r.pending, true
}

// OnSessionResumed queues the tapped route for delivery after the settle
// delay. It reports whether a route was queued. A later tap before the
// delay elapses replaces the queued route.
func (r *Router) OnSessionResumed(ctx context.Context, res Resume) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !res.FromAlertTap {
		return false, nil
	}
	route := strings.TrimSpace(res.Route)
	if route == "" {
		route, _ = RouteFromURL(res.URL)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if route == "" {
		route = r.landing
	}
	if route == "" {
		r.log.Debug("alert tap without route; nothing to deliver")
		return false, nil
	}
	if res.CorrelationID != "" && r.seenLocked(res.CorrelationID) {
		r.log.Debug("route already delivered for alert", logx.String("correlation_id", res.CorrelationID))
		return false, nil
	}

	pr := &PendingRoute{
		Route:         Remap(route, r.aliases),
		CorrelationID: res.CorrelationID,
		ArrivedAt:     r.timers.Clock().Now(),
	}
	if err := r.timers.Schedule(timerName, r.settle, r.deliver); err != nil {
		return false, err
	}
	r.pending = pr
	r.log.Debug("route pending", logx.String("route", pr.Route), logx.Duration("settle", r.settle))
	return true, nil
}

func (r *Router) deliver() {
	r.mu.Lock()
	pr := r.pending
	r.pending = nil
	if pr != nil && pr.CorrelationID != "" {
		r.rememberLocked(pr.CorrelationID)
	}
	r.mu.Unlock()
	if pr == nil {
		return
	}

	ev := Delivered{PendingRoute: *pr}
	if err := r.app.Navigate(context.Background(), pr.Route); err != nil {
		r.log.Warn("route delivery failed", logx.String("route", pr.Route), logx.Err(err))
		ev.Err = err.Error()
	} else {
		r.log.Info("route delivered", logx.String("route", pr.Route), logx.String("correlation_id", pr.CorrelationID))
	}
	eventbus.Publish(r.bus, eventbus.TypeRouteDelivered, ev)
}

func (r *Router) seenLocked(id string) bool {
	for _, s := range r.seen {
		if s == id {
			return true
		}
	}
	return false
}

func (r *Router) rememberLocked(id string) {
	if r.seenLocked(id) {
		return
	}
	r.seen = append(r.seen, id)
	if len(r.seen) > rememberIDs {
		r.seen = r.seen[len(r.seen)-rememberIDs:]
	}
}
