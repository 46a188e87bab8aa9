// Package push turns inbound push messages into alert intents.
package push

import "time"

// Tier controls how aggressively an alert interrupts the user.
type Tier int

const (
	TierNormal Tier = iota
	TierUrgent
)

func (t Tier) String() string {
	if t == TierUrgent {
		return "urgent"
	}
	return "normal"
}

// Notification is the display part some senders attach instead of data.
type Notification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

// Message is one inbound push message.
type Message struct {
	ID           string            `json:"id,omitempty"`
	From         string            `json:"from,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	Notification *Notification     `json:"notification,omitempty"`
	ReceivedAt   time.Time         `json:"received_at,omitempty"`
}

// AlertIntent is what the presenter consumes. It is a value; copies are
// independent.
type AlertIntent struct {
	Tier          Tier   `json:"tier"`
	Title         string `json:"title"`
	Body          string `json:"body"`
	Route         string `json:"route"`
	CorrelationID string `json:"correlation_id"`
	SourceType    string `json:"source_type"`
	OrderID       string `json:"order_id,omitempty"`
}

// UpdateNotice is handed to the update flow instead of producing an alert.
type UpdateNotice struct {
	VersionID   string `json:"version_id,omitempty"`
	VersionCode int    `json:"version_code,omitempty"`
	VersionName string `json:"version_name,omitempty"`
	APKURL      string `json:"apk_url,omitempty"`
	Mandatory   bool   `json:"is_mandatory"`
	Changelog   string `json:"changelog,omitempty"`
}

// Kind says which path a classified message takes.
type Kind int

const (
	// KindEmpty: neither data nor notification; nothing to do.
	KindEmpty Kind = iota
	KindAlert
	KindUpdate
)

func (k Kind) String() string {
	switch k {
	case KindAlert:
		return "alert"
	case KindUpdate:
		return "update"
	default:
		return "empty"
	}
}

// Classification is the result of Classify. Exactly one of Intent or
// Update is meaningful, selected by Kind.
type Classification struct {
	Kind   Kind          `json:"kind"`
	Intent AlertIntent   `json:"intent,omitzero"`
	Update *UpdateNotice `json:"update,omitempty"`
}
