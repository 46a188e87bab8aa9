package config

import (
	"reflect"
	"strings"

	logx "wakealert/pkg/logx"
)

// SummarizeConfigChange returns the names of the changed sections and safe
// structured attrs for logging. The push password is never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.relay_enabled", newCfg.Logging.Relay.Enabled),
		)
	}

	var oldSt, newSt StorageConfig
	if oldCfg.Storage != nil {
		oldSt = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		newSt = *newCfg.Storage
	}
	if oldSt != newSt {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newSt.Driver)),
			logx.String("storage.path", strings.TrimSpace(newSt.Path)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Device, newCfg.Device) {
		changed = append(changed, "device")
		attrs = append(attrs,
			logx.String("device.manufacturer", newCfg.Device.Manufacturer),
			logx.Int("device.sdk", newCfg.Device.SDK),
		)
	}

	if oldCfg.Escalation != newCfg.Escalation {
		changed = append(changed, "escalation")
		attrs = append(attrs,
			logx.String("escalation.first_delay", newCfg.Escalation.FirstDelay),
			logx.String("escalation.stagger", newCfg.Escalation.Stagger),
		)
	}

	if oldCfg.Presenter != newCfg.Presenter {
		changed = append(changed, "presenter")
		attrs = append(attrs,
			logx.String("presenter.wake_ceiling", newCfg.Presenter.WakeCeiling),
			logx.String("presenter.locale", newCfg.Presenter.Locale),
		)
	}

	if !reflect.DeepEqual(oldCfg.Router, newCfg.Router) {
		changed = append(changed, "router")
		attrs = append(attrs,
			logx.String("router.settle_delay", newCfg.Router.SettleDelay),
			logx.Int("router.alias_count", len(newCfg.Router.Aliases)),
		)
	}

	op, np := oldCfg.Push, newCfg.Push
	if op != np {
		changed = append(changed, "push")
		attrs = append(attrs,
			logx.Bool("push.enabled", np.Enabled),
			logx.String("push.broker", np.Broker),
			logx.Bool("push.password_set", np.Password != ""),
		)
	}

	return changed, attrs
}
