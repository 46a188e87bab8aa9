// Package escalation walks a fresh install through the permission grants
// that reliable alert delivery depends on.
//
// Every step prompts at most once per install. The "prompted" flag is
// persisted before the settings screen is opened, so a crash mid-navigation
// never causes a second prompt.
package escalation

import (
	"wakealert/internal/device"
)

// Permission names a grant the host can check.
type Permission string

const (
	PermBattery    Permission = "battery"
	PermOverlay    Permission = "overlay"
	PermAutostart  Permission = "autostart"
	PermPopup      Permission = "popup"
	PermFullScreen Permission = "fullscreen"
)

// Target is a well-known settings surface. Hosts resolve either the
// component or the action, with Data as the intent data URI template
// ("package:" is completed with the app package by the host).
type Target struct {
	Name      string `json:"name"`
	Action    string `json:"action,omitempty"`
	Package   string `json:"package,omitempty"`
	Component string `json:"component,omitempty"`
	Data      string `json:"data,omitempty"`
}

// Settings surfaces.
var (
	TargetAppDetails = Target{
		Name:   "app_details",
		Action: "android.settings.APPLICATION_DETAILS_SETTINGS",
		Data:   "package:",
	}
	TargetBatteryRequest = Target{
		Name:   "battery_exemption",
		Action: "android.settings.REQUEST_IGNORE_BATTERY_OPTIMIZATIONS",
		Data:   "package:",
	}
	TargetMIUIBatteryList = Target{
		Name:   "miui_battery_list",
		Action: "miui.intent.action.POWER_HIDE_MODE_APP_LIST",
	}
	TargetOverlay = Target{
		Name:   "overlay",
		Action: "android.settings.action.MANAGE_OVERLAY_PERMISSION",
		Data:   "package:",
	}
	TargetMIUIAutostart = Target{
		Name:      "miui_autostart",
		Package:   "com.miui.securitycenter",
		Component: "com.miui.permcenter.autostart.AutoStartManagementActivity",
	}
	TargetMIUIAppDetails = Target{
		Name:      "miui_app_details",
		Package:   "com.miui.securitycenter",
		Component: "com.miui.appmanager.ApplicationsDetailsActivity",
	}
	TargetMIUIPermEditor = Target{
		Name:      "miui_permission_editor",
		Action:    "miui.intent.action.APP_PERM_EDITOR",
		Package:   "com.miui.securitycenter",
		Component: "com.miui.permcenter.permissions.PermissionsEditorActivity",
	}
	TargetFullScreen = Target{
		Name:   "full_screen_intent",
		Action: "android.settings.MANAGE_APP_USE_FULL_SCREEN_INTENT",
		Data:   "package:",
	}
)

// Step is one check-and-maybe-prompt unit.
type Step struct {
	Key        string
	Order      int
	Permission Permission
	// AppliesTo filters by device; a step that does not apply is never
	// evaluated and never gets a flag.
	AppliesTo func(p device.Profile) bool
	// Targets returns the navigation fallback chain, most specific first.
	Targets func(p device.Profile) []Target
}

func chain(ts ...Target) func(device.Profile) []Target {
	return func(device.Profile) []Target { return ts }
}

// DefaultSteps is the fixed priority order. New vendor workarounds are
// added as rows here, keyed off device quirks.
func DefaultSteps() []Step {
	return []Step{
		{
			Key:        "battery_prompt_done",
			Order:      10,
			Permission: PermBattery,
			AppliesTo:  device.Profile.HasBatteryOptimization,
			Targets: func(p device.Profile) []Target {
				if p.Has(device.QuirkBatteryList) {
					return []Target{TargetBatteryRequest, TargetMIUIBatteryList, TargetAppDetails}
				}
				return []Target{TargetBatteryRequest, TargetAppDetails}
			},
		},
		{
			Key:        "overlay_prompt_done",
			Order:      20,
			Permission: PermOverlay,
			AppliesTo:  device.Profile.HasOverlayPermission,
			Targets:    chain(TargetOverlay, TargetAppDetails),
		},
		{
			Key:        "autostart_prompt_done",
			Order:      30,
			Permission: PermAutostart,
			AppliesTo:  func(p device.Profile) bool { return p.Has(device.QuirkAutostart) },
			Targets:    chain(TargetMIUIAutostart, TargetMIUIAppDetails, TargetAppDetails),
		},
		{
			Key:        "popup_prompt_done",
			Order:      40,
			Permission: PermPopup,
			AppliesTo:  func(p device.Profile) bool { return p.Has(device.QuirkPopupPermission) },
			Targets:    chain(TargetMIUIPermEditor, TargetAppDetails),
		},
		{
			Key:        "fs_intent_prompt_done",
			Order:      50,
			Permission: PermFullScreen,
			AppliesTo:  device.Profile.HasFullScreenGrant,
			Targets:    chain(TargetFullScreen, TargetAppDetails),
		},
	}
}
