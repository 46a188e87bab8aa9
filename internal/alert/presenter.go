package alert

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"wakealert/internal/channels"
	"wakealert/internal/deeplink"
	"wakealert/internal/deferred"
	"wakealert/internal/device"
	"wakealert/internal/escalation"
	"wakealert/internal/eventbus"
	"wakealert/internal/push"
	logx "wakealert/pkg/logx"
)

// Channels is the slice of the channel registry the presenter needs.
type Channels interface {
	EnsureChannels(ctx context.Context) (channels.Report, error)
	ForRole(role channels.Role) channels.Descriptor
}

// Profiler yields the device profile.
type Profiler interface {
	Profile(ctx context.Context) device.Profile
}

// Timing bounds the wake grant and alert lifetime.
type Timing struct {
	WakeCeiling      time.Duration
	WakeReleaseAfter time.Duration
	AlertTimeout     time.Duration
}

var DefaultTiming = Timing{
	WakeCeiling:      10 * time.Second,
	WakeReleaseAfter: 8 * time.Second,
	AlertTimeout:     30 * time.Second,
}

// Deps wires a Presenter. Launcher may be nil.
type Deps struct {
	Channels Channels
	Profiler Profiler
	Grants   escalation.Checker
	Poster   Poster
	Wake     WakeLocks
	Launcher Launcher
	Timers   *deferred.Timers
	Bus      eventbus.Bus
	Log      logx.Logger
	Timing   Timing
	// LandingRoute is where the interstitial's submit-quote action leads.
	// Empty means push.DefaultLandingRoute.
	LandingRoute string
}

// Presenter is the AlertPresenter.
type Presenter struct {
	channels Channels
	profiler Profiler
	grants   escalation.Checker
	poster   Poster
	launcher Launcher
	bus      eventbus.Bus
	log      logx.Logger

	ids  *IDs
	wake *wakeGrant

	timeout time.Duration
	landing string
}

func NewPresenter(d Deps) (*Presenter, error) {
	if d.Channels == nil || d.Profiler == nil || d.Grants == nil || d.Poster == nil || d.Wake == nil || d.Timers == nil {
		return nil, errors.New("alert: channels, profiler, grants, poster, wake locks and timers are required")
	}
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Presenter{
		channels: d.Channels,
		profiler: d.Profiler,
		grants:   d.Grants,
		poster:   d.Poster,
		launcher: d.Launcher,
		bus:      d.Bus,
		log:      log,
		ids:      NewIDs(d.Timers.Clock().Now),
		wake:     &wakeGrant{locks: d.Wake, timers: d.Timers, log: log},
	}
	p.SetTiming(d.Timing)
	p.SetLandingRoute(d.LandingRoute)
	return p, nil
}

// SetTiming applies new timings; zero fields take the defaults.
func (p *Presenter) SetTiming(t Timing) {
	if t.WakeCeiling <= 0 {
		t.WakeCeiling = DefaultTiming.WakeCeiling
	}
	if t.WakeReleaseAfter <= 0 || t.WakeReleaseAfter > t.WakeCeiling {
		t.WakeReleaseAfter = min(DefaultTiming.WakeReleaseAfter, t.WakeCeiling)
	}
	if t.AlertTimeout <= 0 {
		t.AlertTimeout = DefaultTiming.AlertTimeout
	}
	p.wake.configure(t.WakeCeiling, t.WakeReleaseAfter)
	p.timeout = t.AlertTimeout
}

// SetLandingRoute sets the target of the interstitial's primary action.
func (p *Presenter) SetLandingRoute(route string) {
	if route = strings.TrimSpace(route); route == "" {
		route = push.DefaultLandingRoute
	}
	p.landing = route
}

// WakeHeld reports whether a screen-wake grant is outstanding.
func (p *Presenter) WakeHeld() bool { return p.wake.isHeld() }

// Present posts the alert for in. Only a failure to post the standard
// alert is returned; everything else degrades and is logged.
func (p *Presenter) Present(ctx context.Context, in push.AlertIntent) (Presentation, error) {
	log := p.log.With(logx.String("correlation_id", in.CorrelationID), logx.String("tier", in.Tier.String()))
	var pres Presentation

	rep, err := p.channels.EnsureChannels(ctx)
	if err != nil {
		log.Warn("channel ensure incomplete; posting anyway", logx.Err(err))
		pres.Degraded = append(pres.Degraded, "channels")
	}

	role := channels.RoleStandard
	if in.Tier == push.TierUrgent {
		role = channels.RoleUrgent
	}
	desc := p.channels.ForRole(role)

	tag := uuid.NewString()
	if in.Tier == push.TierUrgent {
		switch err := p.wake.acquire(ctx, "wakealert:"+tag); {
		case err == nil:
			pres.WakeAcquired = true
		case errors.Is(err, ErrWakeHeld):
			log.Debug("screen already held awake by an earlier alert")
		default:
			log.Warn("screen wake failed", logx.Err(err))
			pres.Degraded = append(pres.Degraded, "wake")
		}
	}

	a := p.build(in, desc, rep.Unsupported)
	a.Tag = tag
	pres.AlertID, pres.Tag, pres.ChannelID = a.ID, a.Tag, a.ChannelID
	pres.FullScreen = FullScreenNone

	var launch *Interstitial
	if in.Tier == push.TierUrgent {
		mode, degraded := p.fullScreenMode(ctx, log)
		if degraded != "" {
			pres.Degraded = append(pres.Degraded, degraded)
		}
		inter := interstitial(in, p.landing, a.TapURL)
		switch mode {
		case FullScreenOS:
			a.FullScreen = &inter
		case FullScreenLauncher:
			launch = &inter
		}
		pres.FullScreen = mode
	}

	if err := p.poster.Post(ctx, a); err != nil {
		log.Error("alert post failed", logx.Int64("alert_id", a.ID), logx.Err(err))
		eventbus.Publish(p.bus, eventbus.TypeAlertDegraded, pres)
		return pres, fmt.Errorf("alert: post: %w", err)
	}

	if launch != nil {
		if err := p.launcher.Launch(ctx, *launch); err != nil {
			log.Warn("interstitial launch failed; standard alert stands", logx.Err(err))
			pres.FullScreen = FullScreenNone
			pres.Degraded = append(pres.Degraded, "interstitial")
		}
	}

	log.Info("alert presented",
		logx.Int64("alert_id", a.ID),
		logx.String("channel", a.ChannelID),
		logx.Bool("wake", pres.WakeAcquired),
		logx.String("full_screen", string(pres.FullScreen)),
	)
	if len(pres.Degraded) > 0 {
		eventbus.Publish(p.bus, eventbus.TypeAlertDegraded, pres)
	}
	eventbus.Publish(p.bus, eventbus.TypeAlertPresented, pres)
	return pres, nil
}

func (p *Presenter) build(in push.AlertIntent, d channels.Descriptor, noChannels bool) Alert {
	a := Alert{
		ID:            p.ids.Next(),
		ChannelID:     d.ID,
		Title:         in.Title,
		Body:          in.Body,
		Category:      CategoryMessage,
		Priority:      PriorityHigh,
		Sound:         d.Sound,
		Vibration:     append([]int64(nil), d.Vibration...),
		Visibility:    channels.VisibilityPublic,
		Color:         d.LightColor,
		Timeout:       p.timeout,
		AutoCancel:    true,
		TapURL:        deeplink.BuildURL(in.Route),
		Route:         in.Route,
		CorrelationID: in.CorrelationID,
	}
	if in.Tier == push.TierUrgent {
		a.Category = CategoryCall
		a.Priority = PriorityMax
		a.Sound = channels.SoundRingtone
		a.Vibration = append([]int64(nil), channels.AlertVibration...)
		a.Color = channels.AlertRed
	}
	if noChannels && a.Sound == "" {
		a.Sound = channels.SoundNotification
	}
	return a
}

// fullScreenMode decides how the interstitial reaches the screen. The OS
// path needs the full-screen grant and, on vendors that gate background
// popups, the popup grant. Otherwise the overlay grant allows launching it
// directly.
func (p *Presenter) fullScreenMode(ctx context.Context, log logx.Logger) (FullScreenMode, string) {
	prof := p.profiler.Profile(ctx)

	osOK := true
	if prof.HasFullScreenGrant() {
		osOK = p.granted(ctx, log, escalation.PermFullScreen)
	}
	if osOK && prof.Has(device.QuirkPopupPermission) {
		osOK = p.granted(ctx, log, escalation.PermPopup)
	}
	if osOK {
		return FullScreenOS, ""
	}
	if p.launcher != nil && (!prof.HasOverlayPermission() || p.granted(ctx, log, escalation.PermOverlay)) {
		return FullScreenLauncher, ""
	}
	log.Info("full-screen presentation unavailable; standard alert only")
	return FullScreenNone, "full_screen"
}

func (p *Presenter) granted(ctx context.Context, log logx.Logger, perm escalation.Permission) bool {
	ok, err := p.grants.Granted(ctx, perm)
	if err != nil {
		log.Debug("grant check failed", logx.String("permission", string(perm)), logx.Err(err))
		return false
	}
	return ok
}

// interstitial builds the lock-screen card. Its primary action always
// opens the landing screen for the order, whatever route the tap uses.
func interstitial(in push.AlertIntent, landing, tapURL string) Interstitial {
	action := landing
	if in.OrderID != "" {
		sep := "?"
		if strings.Contains(action, "?") {
			sep = "&"
		}
		action += sep + "orderId=" + url.QueryEscape(in.OrderID)
	}
	return Interstitial{
		Title:          in.Title,
		Body:           in.Body,
		Route:          in.Route,
		OrderID:        in.OrderID,
		CorrelationID:  in.CorrelationID,
		ActionRoute:    action,
		TapURL:         tapURL,
		ShowWhenLocked: true,
		TurnScreenOn:   true,
	}
}
