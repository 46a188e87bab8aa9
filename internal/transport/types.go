// Package transport defines how lifecycle events reach the engine from a
// host. Adapters (MQTT for the reference host) translate their wire format
// into Updates.
package transport

import (
	"context"

	"wakealert/internal/deeplink"
	"wakealert/internal/push"
)

type UpdateKind string

const (
	UpdatePush      UpdateKind = "push"
	UpdateLifecycle UpdateKind = "lifecycle"
)

// LifecycleEvent names an OS lifecycle callback.
type LifecycleEvent string

const (
	EventColdStart  LifecycleEvent = "cold_start"
	EventForeground LifecycleEvent = "foreground"
	EventResumed    LifecycleEvent = "resumed"
)

// Lifecycle is one OS lifecycle callback. Resume is set for EventResumed.
type Lifecycle struct {
	Event  LifecycleEvent   `json:"event"`
	Resume *deeplink.Resume `json:"resume,omitempty"`
}

type Update struct {
	Kind      UpdateKind
	Push      *push.Message
	Lifecycle *Lifecycle
}

// Adapter delivers Updates and publishes observations back to the host side.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// Publish sends v (JSON) on the adapter's event stream under name.
	Publish(ctx context.Context, name string, v any) error
}
