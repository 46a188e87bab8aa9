// Package app is the reference host: it loads config, opens the flag store,
// builds the simulated device and the engine, and feeds the engine from the
// MQTT push channel.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"wakealert/internal/config"
	"wakealert/internal/deferred"
	"wakealert/internal/engine"
	"wakealert/internal/eventbus"
	"wakealert/internal/host/sim"
	"wakealert/internal/push"
	"wakealert/internal/runtime/supervisor"
	"wakealert/internal/storage"
	"wakealert/internal/transport"
	"wakealert/internal/transport/mqtt"
	logx "wakealert/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter transport.Adapter
	device  *sim.Device
	eng     *engine.Engine

	updates chan transport.Update
	events  chan observation
	stopped atomic.Bool
}

type observation struct {
	Kind    string
	Payload any
}

type Option func(*options)

type options struct {
	clock   deferred.Clock
	adapter transport.Adapter
}

// WithClock drives the engine timers from c instead of wall time.
func WithClock(c deferred.Clock) Option { return func(o *options) { o.clock = c } }

// WithAdapter replaces the configured MQTT adapter.
func WithAdapter(a transport.Adapter) Option { return func(o *options) { o.adapter = a } }

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(config.Validate)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "push"))
	ad := o.adapter
	var relay logx.Relay
	if ad == nil && cfg.Push.Enabled {
		m, err := mqtt.New(mapPushConfig(cfg), bootLog)
		if err != nil {
			return nil, err
		}
		ad = m
	}
	if r, ok := ad.(logx.Relay); ok {
		relay = r
	}

	logSvc, log := logx.New(mapLogConfig(cfg), relay)
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}
	if store == nil {
		log.Warn("storage disabled; escalation and channel state will not survive a restart")
		store = storage.NewMemory()
	}

	settings, err := mapSettings(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	dev := sim.New(mapIdentification(cfg), o.clock)
	dev.Grant(sim.ParsePermissions(cfg.Device.Granted)...)
	dev.RemoveTarget(cfg.Device.MissingTargets...)

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		device:  dev,
		updates: make(chan transport.Update, 256),
		events:  make(chan observation, 64),
	}

	eng, err := engine.Assemble(dev, engine.Options{
		Store:    store,
		Clock:    o.clock,
		Bus:      bus,
		Log:      logSvc.Logger(),
		Updates:  updateSink{app: a},
		Settings: settings,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.eng = eng
	dev.SetObserver(a.observe)
	return a, nil
}

func (a *App) Engine() *engine.Engine { return a.eng }
func (a *App) Device() *sim.Device    { return a.device }
func (a *App) Store() storage.Store   { return a.store }

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Tasks reports the supervised goroutines.
func (a *App) Tasks() []supervisor.TaskStats {
	if a.sup == nil {
		return nil
	}
	return a.sup.Tasks()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	if a.adapter != nil {
		if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
			return err
		}
	}

	a.sup.Go("engine.dispatch", func(c context.Context) error {
		for {
			select {
			case <-c.Done():
				return nil
			case u := <-a.updates:
				if err := a.Dispatch(c, u); err != nil && !errors.Is(err, engine.ErrStopped) {
					a.log.Warn("update handling failed", logx.String("kind", string(u.Kind)), logx.Err(err))
				}
			}
		}
	})

	a.sup.Go("events.publish", func(c context.Context) error {
		for {
			select {
			case <-c.Done():
				return nil
			case ev := <-a.events:
				a.log.Debug("device observation", logx.String("kind", ev.Kind))
				if a.adapter == nil {
					continue
				}
				pctx, cancel := context.WithTimeout(c, 2*time.Second)
				err := a.adapter.Publish(pctx, ev.Kind, ev.Payload)
				cancel()
				if err != nil {
					a.log.Debug("observation not published", logx.String("kind", ev.Kind), logx.Err(err))
				}
			}
		}
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.GoRestart("config.watch", supervisor.DefaultRestart, a.cfgm.Watch)

	res, err := a.eng.OnColdStart(a.sup.Context())
	if err != nil {
		a.log.Warn("cold start escalation failed", logx.Err(err))
	} else {
		a.log.Info("app started",
			logx.Int("prompts_scheduled", len(res.Scheduled)),
			logx.Int("granted", len(res.Granted)),
		)
	}
	return nil
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		switch s {
		case "storage", "device", "push":
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		}
	}

	a.logs.Apply(mapLogConfig(newCfg))

	settings, err := mapSettings(newCfg)
	if err != nil {
		a.log.Warn("invalid engine settings; keeping previous", logx.Err(err))
	} else {
		a.eng.Apply(settings)
	}
	a.log.Info("config reloaded", fields...)
}

// Dispatch hands one update to the engine.
func (a *App) Dispatch(ctx context.Context, u transport.Update) error {
	switch u.Kind {
	case transport.UpdatePush:
		if u.Push == nil {
			return errors.New("push update without message")
		}
		out, err := a.eng.OnPushReceived(ctx, *u.Push)
		if err != nil {
			return err
		}
		fields := []logx.Field{logx.String("kind", out.Classification.Kind.String())}
		if out.Presentation != nil {
			fields = append(fields,
				logx.Int64("alert_id", out.Presentation.AlertID),
				logx.String("full_screen", string(out.Presentation.FullScreen)),
			)
		}
		a.log.Info("push handled", fields...)
		return nil

	case transport.UpdateLifecycle:
		if u.Lifecycle == nil {
			return errors.New("lifecycle update without event")
		}
		switch u.Lifecycle.Event {
		case transport.EventColdStart:
			_, err := a.eng.OnColdStart(ctx)
			return err
		case transport.EventForeground:
			_, err := a.eng.OnForeground(ctx)
			return err
		case transport.EventResumed:
			if u.Lifecycle.Resume == nil {
				return errors.New("resumed event without details")
			}
			queued, err := a.eng.OnSessionResumed(ctx, *u.Lifecycle.Resume)
			if err == nil && queued {
				a.log.Debug("route queued")
			}
			return err
		}
		return fmt.Errorf("unknown lifecycle event %q", u.Lifecycle.Event)
	}
	return fmt.Errorf("unknown update kind %q", u.Kind)
}

// observe runs on the engine goroutine; it must not block.
func (a *App) observe(kind string, payload any) {
	select {
	case a.events <- observation{Kind: kind, Payload: payload}:
	default:
		a.log.Debug("observation dropped", logx.String("kind", kind))
	}
}

type updateSink struct{ app *App }

func (s updateSink) OnUpdate(_ context.Context, n push.UpdateNotice) error {
	select {
	case s.app.events <- observation{Kind: "update", Payload: n}:
		return nil
	default:
		return errors.New("observation queue full")
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil || a.stopped.Swap(true) {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
				max = time.Until(dl)
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("engine", time.Second, func(context.Context) error { a.eng.Stop(); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error {
		if a.adapter != nil {
			return a.adapter.Stop(c)
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Stop(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
