package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	knownGrants  = map[string]bool{"battery": true, "overlay": true, "fullscreen": true, "autostart": true, "popup": true}
	knownLocales = map[string]bool{"": true, "ar": true, "en": true}
	knownDrivers = map[string]bool{"": true, "none": true, "memory": true, "mem": true, "file": true, "sqlite": true, "sqlite3": true}
)

// Validate checks a parsed config. It is installed as the ConfigManager
// validator so a broken edit never replaces a working config.
func Validate(_ context.Context, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	check := func(path, raw string) {
		if _, err := ParseDuration(path, raw, 0); err != nil {
			errs = append(errs, err)
		}
	}
	check("escalation.first_delay", cfg.Escalation.FirstDelay)
	check("escalation.stagger", cfg.Escalation.Stagger)
	check("presenter.wake_ceiling", cfg.Presenter.WakeCeiling)
	check("presenter.wake_release_after", cfg.Presenter.WakeReleaseAfter)
	check("presenter.alert_timeout", cfg.Presenter.AlertTimeout)
	check("router.settle_delay", cfg.Router.SettleDelay)

	if !knownLocales[strings.ToLower(strings.TrimSpace(cfg.Presenter.Locale))] {
		errs = append(errs, fmt.Errorf("presenter.locale: unsupported %q", cfg.Presenter.Locale))
	}
	if cfg.Storage != nil {
		d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
		if !knownDrivers[d] {
			errs = append(errs, fmt.Errorf("storage.driver: unknown %q", cfg.Storage.Driver))
		}
		if (d == "file" || d == "sqlite" || d == "sqlite3") && strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for %s driver", d))
		}
		check("storage.busy_timeout", cfg.Storage.BusyTimeout)
	}
	for _, g := range cfg.Device.Granted {
		if !knownGrants[strings.ToLower(strings.TrimSpace(g))] {
			errs = append(errs, fmt.Errorf("device.granted: unknown permission %q", g))
		}
	}
	if cfg.Device.SDK < 0 {
		errs = append(errs, errors.New("device.sdk must be >= 0"))
	}
	for from, to := range cfg.Router.Aliases {
		if !strings.HasPrefix(from, "/") || !strings.HasPrefix(to, "/") {
			errs = append(errs, fmt.Errorf("router.aliases: %q -> %q must both be absolute routes", from, to))
		}
	}
	if cfg.Push.Enabled {
		if strings.TrimSpace(cfg.Push.Broker) == "" {
			errs = append(errs, errors.New("push.broker is required when push is enabled"))
		}
		if cfg.Push.QoS < 0 || cfg.Push.QoS > 2 {
			errs = append(errs, fmt.Errorf("push.qos: must be 0, 1 or 2 (got %d)", cfg.Push.QoS))
		}
	}

	// Wake release after the ceiling would never run before the OS drops the grant.
	ceiling, _ := ParseDuration("presenter.wake_ceiling", cfg.Presenter.WakeCeiling, 0)
	release, _ := ParseDuration("presenter.wake_release_after", cfg.Presenter.WakeReleaseAfter, 0)
	if ceiling > 0 && release > ceiling {
		errs = append(errs, errors.New("presenter.wake_release_after must not exceed presenter.wake_ceiling"))
	}
	return errors.Join(errs...)
}
