// Package engine dispatches host lifecycle events to the alert components.
//
//	OnColdStart       ensure channels, then escalate
//	OnForeground      escalate
//	OnPushReceived    classify, then present or hand off the update
//	OnSessionResumed  route an alert tap
package engine

import (
	"context"
	"errors"
	"sync"

	"wakealert/internal/alert"
	"wakealert/internal/channels"
	"wakealert/internal/deeplink"
	"wakealert/internal/deferred"
	"wakealert/internal/device"
	"wakealert/internal/escalation"
	"wakealert/internal/eventbus"
	"wakealert/internal/push"
	logx "wakealert/pkg/logx"
)

// ErrStopped is returned by every entry point after Stop.
var ErrStopped = errors.New("engine: stopped")

// UpdateSink receives app-update notices. They never become alerts.
type UpdateSink interface {
	OnUpdate(ctx context.Context, n push.UpdateNotice) error
}

// Settings are the knobs that can change at runtime.
type Settings struct {
	Escalation escalation.Timing
	Presenter  alert.Timing
	Router     deeplink.Config
	Locale     string
}

type Deps struct {
	Probe     *device.Probe
	Channels  *channels.Registry
	Sequencer *escalation.Sequencer
	Presenter *alert.Presenter
	Router    *deeplink.Router
	Timers    *deferred.Timers
	Updates   UpdateSink
	Bus       eventbus.Bus
	Log       logx.Logger
	Settings  Settings
}

// Engine is safe for concurrent use; events are handled one at a time.
type Engine struct {
	probe     *device.Probe
	channels  *channels.Registry
	sequencer *escalation.Sequencer
	presenter *alert.Presenter
	router    *deeplink.Router
	timers    *deferred.Timers
	updates   UpdateSink
	bus       eventbus.Bus
	log       logx.Logger

	mu         sync.Mutex
	stopped    bool
	classifier push.Classifier
}

func New(d Deps) (*Engine, error) {
	if d.Probe == nil || d.Channels == nil || d.Sequencer == nil || d.Presenter == nil || d.Router == nil || d.Timers == nil {
		return nil, errors.New("engine: probe, channels, sequencer, presenter, router and timers are required")
	}
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{
		probe:     d.Probe,
		channels:  d.Channels,
		sequencer: d.Sequencer,
		presenter: d.Presenter,
		router:    d.Router,
		timers:    d.Timers,
		updates:   d.Updates,
		bus:       d.Bus,
		log:       log,
	}
	e.applyLocked(d.Settings)
	return e, nil
}

// Apply swaps runtime settings; pending timers keep their original delays.
func (e *Engine) Apply(s Settings) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyLocked(s)
}

func (e *Engine) applyLocked(s Settings) {
	if s.Escalation != (escalation.Timing{}) {
		e.sequencer.SetTiming(s.Escalation)
	}
	e.presenter.SetTiming(s.Presenter)
	e.presenter.SetLandingRoute(s.Router.LandingRoute)
	e.router.Apply(s.Router)
	e.classifier = push.Classifier{Locale: s.Locale, LandingRoute: s.Router.LandingRoute}
}

func (e *Engine) begin() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrStopped
	}
	return nil
}

func (e *Engine) end() { e.mu.Unlock() }

// Profile returns the cached device profile.
func (e *Engine) Profile(ctx context.Context) device.Profile { return e.probe.Profile(ctx) }

// OnColdStart prepares channels and runs the escalation sequence.
func (e *Engine) OnColdStart(ctx context.Context) (escalation.Result, error) {
	if err := e.begin(); err != nil {
		return escalation.Result{}, err
	}
	defer e.end()

	prof := e.probe.Profile(ctx)
	if _, err := e.channels.EnsureChannels(ctx); err != nil {
		e.log.Warn("channel ensure incomplete at cold start", logx.Err(err))
	}
	return e.escalate(ctx, prof)
}

// OnForeground runs the escalation sequence. Already-resolved steps cost
// one store read.
func (e *Engine) OnForeground(ctx context.Context) (escalation.Result, error) {
	if err := e.begin(); err != nil {
		return escalation.Result{}, err
	}
	defer e.end()
	return e.escalate(ctx, e.probe.Profile(ctx))
}

func (e *Engine) escalate(ctx context.Context, prof device.Profile) (escalation.Result, error) {
	res, err := e.sequencer.Run(ctx, prof)
	if err != nil {
		e.log.Warn("escalation run aborted", logx.Err(err))
	}
	return res, err
}

// Outcome reports what happened to one push message.
type Outcome struct {
	Classification push.Classification `json:"classification"`
	Presentation   *alert.Presentation `json:"presentation,omitempty"`
}

// Classify exposes the classifier with the current settings.
func (e *Engine) Classify(m push.Message) push.Classification {
	e.mu.Lock()
	c := e.classifier
	e.mu.Unlock()
	return c.Classify(m)
}

// OnPushReceived classifies m and presents it, or routes an update notice
// to the update sink. Only a failure to post the alert is returned.
func (e *Engine) OnPushReceived(ctx context.Context, m push.Message) (Outcome, error) {
	if err := e.begin(); err != nil {
		return Outcome{}, err
	}
	defer e.end()

	cls := e.classifier.Classify(m)
	out := Outcome{Classification: cls}
	switch cls.Kind {
	case push.KindEmpty:
		e.log.Warn("push message without data or notification; ignored", logx.String("message_id", m.ID))
		return out, nil

	case push.KindUpdate:
		e.log.Info("app update notice received",
			logx.String("version_name", cls.Update.VersionName),
			logx.Bool("mandatory", cls.Update.Mandatory),
		)
		if e.updates != nil {
			if err := e.updates.OnUpdate(ctx, *cls.Update); err != nil {
				e.log.Warn("update sink failed", logx.Err(err))
			}
		}
		eventbus.Publish(e.bus, eventbus.TypeUpdateRouted, *cls.Update)
		return out, nil
	}

	pres, err := e.presenter.Present(ctx, cls.Intent)
	out.Presentation = &pres
	return out, err
}

// OnSessionResumed routes an alert tap to the app. It reports whether a
// route was queued.
func (e *Engine) OnSessionResumed(ctx context.Context, r deeplink.Resume) (bool, error) {
	if err := e.begin(); err != nil {
		return false, err
	}
	defer e.end()
	return e.router.OnSessionResumed(ctx, r)
}

// Stop cancels pending prompts and route deliveries. It is idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.stopped = true
	e.timers.Close()
	e.log.Info("engine stopped")
}
