package sim

import (
	"wakealert/internal/alert"
	"wakealert/internal/channels"
	"wakealert/internal/deeplink"
	"wakealert/internal/device"
	"wakealert/internal/escalation"
)

var (
	_ device.Source        = (*Device)(nil)
	_ channels.Manager     = (*Device)(nil)
	_ escalation.Checker   = (*Device)(nil)
	_ escalation.Navigator = (*Device)(nil)
	_ alert.Poster         = (*Device)(nil)
	_ alert.Launcher       = (*Device)(nil)
	_ alert.WakeLocks      = (*Device)(nil)
	_ deeplink.App         = (*Device)(nil)
)
