// Package alert builds and posts the visible alert for an AlertIntent.
//
// The standard alert is always posted. Screen wake, full-screen
// presentation and the interstitial are best effort on top of it.
package alert

import (
	"context"
	"time"

	"wakealert/internal/channels"
)

// Category hints the OS interruption ranking.
type Category string

const (
	CategoryCall    Category = "call"
	CategoryMessage Category = "msg"
)

// Priority for OS versions without channels.
type Priority int

const (
	PriorityDefault Priority = 0
	PriorityHigh    Priority = 1
	PriorityMax     Priority = 2
)

// Interstitial is the full-screen, show-when-locked presentation of an
// urgent alert.
type Interstitial struct {
	Title         string `json:"title"`
	Body          string `json:"body"`
	Route         string `json:"route"`
	OrderID       string `json:"order_id,omitempty"`
	CorrelationID string `json:"correlation_id"`
	// ActionRoute is opened by the primary ("submit quote") action.
	ActionRoute    string `json:"action_route"`
	TapURL         string `json:"tap_url"`
	ShowWhenLocked bool   `json:"show_when_locked"`
	TurnScreenOn   bool   `json:"turn_screen_on"`
}

// Alert is what a Poster renders.
type Alert struct {
	ID            int64               `json:"id"`
	Tag           string              `json:"tag"`
	ChannelID     string              `json:"channel_id"`
	Title         string              `json:"title"`
	Body          string              `json:"body"`
	Category      Category            `json:"category"`
	Priority      Priority            `json:"priority"`
	Sound         string              `json:"sound"`
	Vibration     []int64             `json:"vibration"`
	Visibility    channels.Visibility `json:"visibility"`
	Color         uint32              `json:"color"`
	Timeout       time.Duration       `json:"timeout"`
	AutoCancel    bool                `json:"auto_cancel"`
	OnlyAlertOnce bool                `json:"only_alert_once"`
	TapURL        string              `json:"tap_url"`
	Route         string              `json:"route"`
	CorrelationID string              `json:"correlation_id"`
	// FullScreen is set when the OS will present the interstitial itself.
	FullScreen *Interstitial `json:"full_screen,omitempty"`
}

// Poster posts alerts to the OS notification tray.
type Poster interface {
	Post(ctx context.Context, a Alert) error
}

// WakeLock is a held screen-wake grant.
type WakeLock interface {
	Release() error
}

// WakeLocks acquires screen-wake grants. The host must drop the grant by
// itself after timeout even if Release is never called.
type WakeLocks interface {
	Acquire(ctx context.Context, tag string, timeout time.Duration) (WakeLock, error)
}

// Launcher starts the interstitial through the general app-launch path.
type Launcher interface {
	Launch(ctx context.Context, in Interstitial) error
}

// FullScreenMode says how the interstitial was presented.
type FullScreenMode string

const (
	FullScreenNone     FullScreenMode = "none"
	FullScreenOS       FullScreenMode = "os"
	FullScreenLauncher FullScreenMode = "launcher"
)

// Presentation reports what Present did.
type Presentation struct {
	AlertID      int64          `json:"alert_id"`
	Tag          string         `json:"tag"`
	ChannelID    string         `json:"channel_id"`
	WakeAcquired bool           `json:"wake_acquired"`
	FullScreen   FullScreenMode `json:"full_screen"`
	// Degraded lists the best-effort steps that failed.
	Degraded []string `json:"degraded,omitempty"`
}
