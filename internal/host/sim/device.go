// Package sim is an in-memory handset. It implements every host port the
// engine needs and records what the engine asked of it, so the engine can be
// driven from tests, the CLI and the MQTT reference host without a phone.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"wakealert/internal/alert"
	"wakealert/internal/channels"
	"wakealert/internal/deferred"
	"wakealert/internal/device"
	"wakealert/internal/escalation"
)

// Observer is told about every visible side effect.
type Observer func(kind string, payload any)

// Observation kinds.
const (
	ObservedAlert        = "alert"
	ObservedInterstitial = "interstitial"
	ObservedSettings     = "settings"
	ObservedRoute        = "route"
)

// Device is a simulated handset. It is safe for concurrent use.
type Device struct {
	clock deferred.Clock

	mu       sync.Mutex
	id       device.Identification
	idErr    error
	channels map[string]channels.Descriptor
	deleted  []string
	grants   map[escalation.Permission]bool
	missing  map[string]bool
	opened   []escalation.Target
	posted   []alert.Alert
	launched []alert.Interstitial
	routes   []string

	postErr   error
	wakeErr   error
	launchErr error

	wakeHeld     bool
	wakeAcquires int
	wakeReleases int
	wakeExpiries int

	observer Observer
}

// New returns a device with no grants and no channels.
func New(id device.Identification, clock deferred.Clock) *Device {
	if clock == nil {
		clock = deferred.System()
	}
	return &Device{
		clock:    clock,
		id:       id,
		channels: map[string]channels.Descriptor{},
		grants:   map[escalation.Permission]bool{},
		missing:  map[string]bool{},
	}
}

// SetObserver installs fn; nil removes it.
func (d *Device) SetObserver(fn Observer) {
	d.mu.Lock()
	d.observer = fn
	d.mu.Unlock()
}

func (d *Device) notify(kind string, payload any) {
	d.mu.Lock()
	fn := d.observer
	d.mu.Unlock()
	if fn != nil {
		fn(kind, payload)
	}
}

// ---- configuration ----

func (d *Device) Grant(perms ...escalation.Permission) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range perms {
		d.grants[p] = true
	}
}

func (d *Device) Revoke(perms ...escalation.Permission) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range perms {
		delete(d.grants, p)
	}
}

// RemoveTarget makes the named settings target fail to open.
func (d *Device) RemoveTarget(names ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range names {
		d.missing[n] = true
	}
}

// SetImportance changes a live channel's importance the way a user (or
// vendor ROM) can from system settings.
func (d *Device) SetImportance(id string, imp channels.Importance) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.channels[id]
	if !ok {
		return fmt.Errorf("sim: no channel %q", id)
	}
	c.Importance = imp
	d.channels[id] = c
	return nil
}

// InstallChannel registers a channel directly, as an older app version would have.
func (d *Device) InstallChannel(c channels.Descriptor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[c.ID] = c
}

func (d *Device) FailIdentify(err error) { d.mu.Lock(); d.idErr = err; d.mu.Unlock() }
func (d *Device) FailPost(err error)     { d.mu.Lock(); d.postErr = err; d.mu.Unlock() }
func (d *Device) FailWake(err error)     { d.mu.Lock(); d.wakeErr = err; d.mu.Unlock() }
func (d *Device) FailLaunch(err error)   { d.mu.Lock(); d.launchErr = err; d.mu.Unlock() }

// ---- device.Source ----

func (d *Device) Identify(context.Context) (device.Identification, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.id, d.idErr
}

// ---- channels.Manager ----

func (d *Device) Supported(context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.id.SDK >= device.SDKOreo
}

func (d *Device) Channel(_ context.Context, id string) (channels.Live, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.channels[id]
	if !ok {
		return channels.Live{}, false, nil
	}
	return channels.Live{ID: c.ID, Importance: c.Importance}, true, nil
}

// Create ignores a second registration of a live id, as the OS does.
func (d *Device) Create(_ context.Context, c channels.Descriptor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.id.SDK < device.SDKOreo {
		return channels.ErrUnsupported
	}
	if _, ok := d.channels[c.ID]; ok {
		return nil
	}
	c.Vibration = append([]int64(nil), c.Vibration...)
	d.channels[c.ID] = c
	return nil
}

func (d *Device) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.channels, id)
	d.deleted = append(d.deleted, id)
	return nil
}

// ---- escalation.Checker / escalation.Navigator ----

func (d *Device) Granted(_ context.Context, p escalation.Permission) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch p {
	case escalation.PermBattery, escalation.PermOverlay:
		if d.id.SDK < device.SDKMarshmallow {
			return true, nil
		}
	case escalation.PermFullScreen:
		if d.id.SDK < device.SDKS {
			return true, nil
		}
	}
	return d.grants[p], nil
}

func (d *Device) Open(_ context.Context, t escalation.Target) error {
	d.mu.Lock()
	if d.missing[t.Name] {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", escalation.ErrNavigationUnavailable, t.Name)
	}
	d.opened = append(d.opened, t)
	d.mu.Unlock()
	d.notify(ObservedSettings, t)
	return nil
}

// ---- alert ports ----

func (d *Device) Post(_ context.Context, a alert.Alert) error {
	d.mu.Lock()
	if d.postErr != nil {
		err := d.postErr
		d.mu.Unlock()
		return err
	}
	d.posted = append(d.posted, a)
	d.mu.Unlock()
	d.notify(ObservedAlert, a)
	return nil
}

func (d *Device) Launch(_ context.Context, in alert.Interstitial) error {
	d.mu.Lock()
	if d.launchErr != nil {
		err := d.launchErr
		d.mu.Unlock()
		return err
	}
	d.launched = append(d.launched, in)
	d.mu.Unlock()
	d.notify(ObservedInterstitial, in)
	return nil
}

type wakeLock struct {
	d    *Device
	once sync.Once
	stop deferred.Stopper
}

func (w *wakeLock) Release() error {
	released := false
	w.once.Do(func() {
		released = true
		w.stop.Stop()
		w.d.mu.Lock()
		w.d.wakeHeld = false
		w.d.wakeReleases++
		w.d.mu.Unlock()
	})
	if !released {
		return errors.New("sim: wake lock not held")
	}
	return nil
}

// Acquire holds the screen on until Release or until timeout passes.
func (d *Device) Acquire(_ context.Context, tag string, timeout time.Duration) (alert.WakeLock, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.wakeErr != nil {
		return nil, d.wakeErr
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("sim: wake lock %q needs a timeout", tag)
	}
	w := &wakeLock{d: d}
	w.stop = d.clock.AfterFunc(timeout, func() {
		w.once.Do(func() {
			d.mu.Lock()
			d.wakeHeld = false
			d.wakeExpiries++
			d.mu.Unlock()
		})
	})
	d.wakeHeld = true
	d.wakeAcquires++
	return w, nil
}

// ---- deeplink.App ----

func (d *Device) Navigate(_ context.Context, route string) error {
	d.mu.Lock()
	d.routes = append(d.routes, route)
	d.mu.Unlock()
	d.notify(ObservedRoute, route)
	return nil
}

// ---- inspection ----

// Snapshot is a point-in-time view of the device.
type Snapshot struct {
	Identity     device.Identification `json:"identity"`
	Channels     []ChannelState        `json:"channels"`
	Deleted      []string              `json:"deleted,omitempty"`
	Grants       []string              `json:"grants"`
	Opened       []string              `json:"opened,omitempty"`
	Posted       []alert.Alert         `json:"posted,omitempty"`
	Launched     []alert.Interstitial  `json:"launched,omitempty"`
	Routes       []string              `json:"routes,omitempty"`
	WakeHeld     bool                  `json:"wake_held"`
	WakeAcquires int                   `json:"wake_acquires"`
	WakeReleases int                   `json:"wake_releases"`
	WakeExpiries int                   `json:"wake_expiries"`
}

type ChannelState struct {
	ID         string `json:"id"`
	Importance string `json:"importance"`
	Sound      string `json:"sound"`
}

func (d *Device) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Snapshot{
		Identity:     d.id,
		Deleted:      append([]string(nil), d.deleted...),
		Posted:       append([]alert.Alert(nil), d.posted...),
		Launched:     append([]alert.Interstitial(nil), d.launched...),
		Routes:       append([]string(nil), d.routes...),
		WakeHeld:     d.wakeHeld,
		WakeAcquires: d.wakeAcquires,
		WakeReleases: d.wakeReleases,
		WakeExpiries: d.wakeExpiries,
	}
	for _, c := range d.channels {
		s.Channels = append(s.Channels, ChannelState{ID: c.ID, Importance: c.Importance.String(), Sound: c.Sound})
	}
	sort.Slice(s.Channels, func(i, j int) bool { return s.Channels[i].ID < s.Channels[j].ID })
	for p, ok := range d.grants {
		if ok {
			s.Grants = append(s.Grants, string(p))
		}
	}
	sort.Strings(s.Grants)
	for _, t := range d.opened {
		s.Opened = append(s.Opened, t.Name)
	}
	return s
}

// ParsePermissions converts config names into permissions.
func ParsePermissions(names []string) []escalation.Permission {
	out := make([]escalation.Permission, 0, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			out = append(out, escalation.Permission(n))
		}
	}
	return out
}
