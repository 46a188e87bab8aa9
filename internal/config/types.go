package config

// Config is the on-disk configuration of the wakealert reference host.
//
// All durations are Go duration strings (e.g. "800ms", "1.2s", "10s").
// Omitted fields fall back to the defaults documented per section.
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Storage    *StorageConfig   `json:"storage,omitempty"`
	Device     DeviceConfig     `json:"device"`
	Escalation EscalationConfig `json:"escalation"`
	Presenter  PresenterConfig  `json:"presenter"`
	Router     RouterConfig     `json:"router"`
	Push       PushConfig       `json:"push"`
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Relay   LoggingRelay `json:"relay"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingRelay forwards warnings and errors to the push transport's
// diagnostics topic.
type LoggingRelay struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the flag store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/wakealert.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// DeviceConfig describes the simulated handset of the reference host.
type DeviceConfig struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	SDK          int    `json:"sdk"`
	// Granted lists permissions already granted at start:
	// battery, overlay, fullscreen, autostart, popup.
	Granted []string `json:"granted,omitempty"`
	// MissingTargets lists settings screens that fail to open on this build.
	MissingTargets []string `json:"missing_targets,omitempty"`
}

// EscalationConfig controls prompt staggering.
//
// Defaults: first_delay "1s", stagger "1.2s".
type EscalationConfig struct {
	FirstDelay string `json:"first_delay,omitempty"`
	Stagger    string `json:"stagger,omitempty"`
}

// PresenterConfig controls alert presentation.
//
// Defaults: wake_ceiling "10s", wake_release_after "8s",
// alert_timeout "30s", locale "ar".
type PresenterConfig struct {
	WakeCeiling      string `json:"wake_ceiling,omitempty"`
	WakeReleaseAfter string `json:"wake_release_after,omitempty"`
	AlertTimeout     string `json:"alert_timeout,omitempty"`
	Locale           string `json:"locale,omitempty"`
}

// RouterConfig controls deep-link delivery.
//
// Defaults: settle_delay "800ms", landing_route "/specialist-orders/new".
type RouterConfig struct {
	SettleDelay  string            `json:"settle_delay,omitempty"`
	LandingRoute string            `json:"landing_route,omitempty"`
	Aliases      map[string]string `json:"aliases,omitempty"`
}

// PushConfig configures the MQTT push channel.
//
// Topics (under topic_prefix, default "wakealert/<client_id>"):
//   - <prefix>/push       inbound push messages
//   - <prefix>/lifecycle  foreground / cold_start / tap events
//   - <prefix>/events/*   outbound device observations and update notices
//   - <prefix>/diag       outbound diagnostics relay
type PushConfig struct {
	Enabled     bool   `json:"enabled"`
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	TopicPrefix string `json:"topic_prefix,omitempty"`
	QoS         int    `json:"qos,omitempty"`
}
