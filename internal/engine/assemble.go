package engine

import (
	"errors"

	"wakealert/internal/alert"
	"wakealert/internal/channels"
	"wakealert/internal/deeplink"
	"wakealert/internal/deferred"
	"wakealert/internal/device"
	"wakealert/internal/escalation"
	"wakealert/internal/eventbus"
	"wakealert/internal/storage"
	logx "wakealert/pkg/logx"
)

// Host is everything the engine needs from the device.
type Host interface {
	device.Source
	channels.Manager
	escalation.Checker
	escalation.Navigator
	alert.Poster
	alert.WakeLocks
	alert.Launcher
	deeplink.App
}

// Options for Assemble. Store is required; a nil Clock means wall time.
type Options struct {
	Store    storage.Store
	Clock    deferred.Clock
	Bus      eventbus.Bus
	Log      logx.Logger
	Updates  UpdateSink
	Settings Settings
}

// Assemble wires every component against one host.
func Assemble(host Host, o Options) (*Engine, error) {
	if host == nil {
		return nil, errors.New("engine: nil host")
	}
	if o.Store == nil {
		return nil, storage.ErrDisabled
	}
	log := o.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	comp := func(name string) logx.Logger { return log.With(logx.String("comp", name)) }

	timers := deferred.NewTimers(o.Clock, comp("timers"))
	probe := device.NewProbe(host, comp("device"))

	reg, err := channels.NewRegistry(host,
		channels.WithLedger(o.Store),
		channels.WithBus(o.Bus),
		channels.WithLogger(comp("channels")),
	)
	if err != nil {
		return nil, err
	}
	seq, err := escalation.NewSequencer(escalation.Deps{
		State:   escalation.NewStoreState(o.Store),
		Checker: host,
		Nav:     host,
		Timers:  timers,
		Bus:     o.Bus,
		Log:     comp("escalation"),
		Timing:  o.Settings.Escalation,
	})
	if err != nil {
		return nil, err
	}
	pres, err := alert.NewPresenter(alert.Deps{
		Channels: reg,
		Profiler: probe,
		Grants:   host,
		Poster:   host,
		Wake:     host,
		Launcher: host,
		Timers:   timers,
		Bus:      o.Bus,
		Log:      comp("alert"),
		Timing:   o.Settings.Presenter,
	})
	if err != nil {
		return nil, err
	}
	router, err := deeplink.NewRouter(host, timers, o.Bus, comp("deeplink"), o.Settings.Router)
	if err != nil {
		return nil, err
	}
	return New(Deps{
		Probe:     probe,
		Channels:  reg,
		Sequencer: seq,
		Presenter: pres,
		Router:    router,
		Timers:    timers,
		Updates:   o.Updates,
		Bus:       o.Bus,
		Log:       comp("engine"),
		Settings:  o.Settings,
	})
}

// Channels exposes the registry for diagnostics.
func (e *Engine) Channels() *channels.Registry { return e.channels }

// Steps exposes the escalation step table for diagnostics.
func (e *Engine) Steps() []escalation.Step { return e.sequencer.Steps() }
