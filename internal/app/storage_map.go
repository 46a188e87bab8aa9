package app

import (
	"fmt"
	"strings"
	"time"

	"wakealert/internal/alert"
	"wakealert/internal/config"
	"wakealert/internal/deeplink"
	"wakealert/internal/device"
	"wakealert/internal/engine"
	"wakealert/internal/escalation"
	"wakealert/internal/storage"
	"wakealert/internal/transport/mqtt"
	logx "wakealert/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.TrimSpace(sc.Driver)
	if driver == "" || strings.EqualFold(driver, "none") {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	dl := strings.ToLower(driver)
	switch dl {
	case "memory", "mem":
		return storage.Config{Driver: "memory"}, true, nil
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDuration("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: dl, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", driver)
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Relay: logx.RelayConfig{
			Enabled:    cfg.Logging.Relay.Enabled && cfg.Push.Enabled,
			MinLevel:   cfg.Logging.Relay.MinLevel,
			RatePerSec: cfg.Logging.Relay.RatePerSec,
		},
	}
}

// mapSettings converts the runtime-tunable sections into engine settings.
func mapSettings(cfg *config.Config) (engine.Settings, error) {
	var s engine.Settings
	var err error
	d := func(path, raw string, def time.Duration) time.Duration {
		if err != nil {
			return def
		}
		var v time.Duration
		v, err = config.ParseDuration(path, raw, def)
		return v
	}

	s.Escalation = escalation.Timing{
		FirstDelay: d("escalation.first_delay", cfg.Escalation.FirstDelay, escalation.DefaultTiming.FirstDelay),
		Stagger:    d("escalation.stagger", cfg.Escalation.Stagger, escalation.DefaultTiming.Stagger),
	}
	s.Presenter = alert.Timing{
		WakeCeiling:      d("presenter.wake_ceiling", cfg.Presenter.WakeCeiling, alert.DefaultTiming.WakeCeiling),
		WakeReleaseAfter: d("presenter.wake_release_after", cfg.Presenter.WakeReleaseAfter, alert.DefaultTiming.WakeReleaseAfter),
		AlertTimeout:     d("presenter.alert_timeout", cfg.Presenter.AlertTimeout, alert.DefaultTiming.AlertTimeout),
	}
	s.Router = deeplink.Config{
		SettleDelay:  d("router.settle_delay", cfg.Router.SettleDelay, deeplink.DefaultSettleDelay),
		LandingRoute: strings.TrimSpace(cfg.Router.LandingRoute),
		Aliases:      cfg.Router.Aliases,
	}
	s.Locale = strings.ToLower(strings.TrimSpace(cfg.Presenter.Locale))
	if err != nil {
		return engine.Settings{}, err
	}
	return s, nil
}

func mapIdentification(cfg *config.Config) device.Identification {
	id := device.Identification{
		Manufacturer: strings.TrimSpace(cfg.Device.Manufacturer),
		Model:        strings.TrimSpace(cfg.Device.Model),
		SDK:          cfg.Device.SDK,
	}
	if id.Manufacturer == "" {
		id.Manufacturer = "generic"
	}
	if id.SDK == 0 {
		id.SDK = device.SDKS
	}
	return id
}

func mapPushConfig(cfg *config.Config) mqtt.Config {
	p := cfg.Push
	return mqtt.Config{
		Broker:      strings.TrimSpace(p.Broker),
		ClientID:    strings.TrimSpace(p.ClientID),
		Username:    p.Username,
		Password:    p.Password,
		TopicPrefix: strings.TrimSpace(p.TopicPrefix),
		QoS:         byte(p.QoS),
	}
}
