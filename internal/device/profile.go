// Package device identifies the handset the engine runs on.
//
// A Profile is computed once per process from the device identification
// strings and is read-only afterwards. Vendor-specific behavior is keyed off
// the quirk table in vendors.go, never off ad-hoc manufacturer checks.
package device

import (
	"context"
	"strings"
	"sync"

	logx "wakealert/pkg/logx"
)

// Android API levels the engine branches on.
const (
	SDKMarshmallow = 23 // battery optimization, overlay permission
	SDKOreo        = 26 // notification channels
	SDKOreoMR1     = 27 // show-when-locked / turn-screen-on activity APIs
	SDKS           = 31 // full-screen intent grant can be checked
)

// Tier buckets OS versions by the capabilities the engine cares about.
type Tier int

const (
	TierUnknown Tier = iota
	TierLegacy       // below 23
	TierM            // 23..25
	TierO            // 26
	TierOMR1         // 27..30
	TierS            // 31 and later
)

func (t Tier) String() string {
	switch t {
	case TierLegacy:
		return "legacy"
	case TierM:
		return "m"
	case TierO:
		return "o"
	case TierOMR1:
		return "o_mr1"
	case TierS:
		return "s"
	default:
		return "unknown"
	}
}

// TierFor maps an API level to its Tier. Non-positive levels are unknown.
func TierFor(sdk int) Tier {
	switch {
	case sdk <= 0:
		return TierUnknown
	case sdk < SDKMarshmallow:
		return TierLegacy
	case sdk < SDKOreo:
		return TierM
	case sdk < SDKOreoMR1:
		return TierO
	case sdk < SDKS:
		return TierOMR1
	default:
		return TierS
	}
}

// Identification is the raw identity reported by the host OS.
type Identification struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	SDK          int    `json:"sdk"`
}

// Source reads the device identification strings.
type Source interface {
	Identify(ctx context.Context) (Identification, error)
}

// Profile is the DeviceProfile: manufacturer plus OS version tier.
type Profile struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	SDK          int    `json:"sdk"`
	Tier         Tier   `json:"tier"`
	Family       Family `json:"family"`
	Quirks       Quirk  `json:"quirks"`
}

// NewProfile derives a Profile from raw identification.
func NewProfile(id Identification) Profile {
	v := LookupVendor(id.Manufacturer)
	return Profile{
		Manufacturer: strings.TrimSpace(id.Manufacturer),
		Model:        strings.TrimSpace(id.Model),
		SDK:          id.SDK,
		Tier:         TierFor(id.SDK),
		Family:       v.Family,
		Quirks:       v.Quirks,
	}
}

func (p Profile) atLeast(sdk int) bool { return p.SDK >= sdk }

// SupportsChannels reports whether the OS has notification channels.
func (p Profile) SupportsChannels() bool { return p.atLeast(SDKOreo) }

// HasBatteryOptimization reports whether a battery exemption exists to ask for.
func (p Profile) HasBatteryOptimization() bool { return p.atLeast(SDKMarshmallow) }

// HasOverlayPermission reports whether "display over other apps" is a runtime grant.
func (p Profile) HasOverlayPermission() bool { return p.atLeast(SDKMarshmallow) }

// HasFullScreenGrant reports whether full-screen presentation is gated by a user grant.
func (p Profile) HasFullScreenGrant() bool { return p.atLeast(SDKS) }

// SupportsShowWhenLocked reports whether activities can ask to show over the keyguard.
func (p Profile) SupportsShowWhenLocked() bool { return p.atLeast(SDKOreoMR1) }

// Has reports whether the vendor carries quirk q.
func (p Profile) Has(q Quirk) bool { return p.Quirks&q != 0 }

// Probe is the VendorCapabilityProbe. Profile is computed on first use and
// cached for the life of the process.
type Probe struct {
	src Source
	log logx.Logger

	once    sync.Once
	profile Profile
}

func NewProbe(src Source, log logx.Logger) *Probe {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Probe{src: src, log: log}
}

// Profile returns the device profile. Identification failures degrade to an
// unknown profile, which keeps every vendor step disabled.
func (p *Probe) Profile(ctx context.Context) Profile {
	p.once.Do(func() {
		var id Identification
		if p.src != nil {
			got, err := p.src.Identify(ctx)
			if err != nil {
				p.log.Warn("device identification failed; using unknown profile", logx.Err(err))
			} else {
				id = got
			}
		}
		p.profile = NewProfile(id)
		p.log.Info("device profile",
			logx.String("manufacturer", p.profile.Manufacturer),
			logx.String("model", p.profile.Model),
			logx.Int("sdk", p.profile.SDK),
			logx.String("tier", p.profile.Tier.String()),
			logx.String("family", string(p.profile.Family)),
		)
	})
	return p.profile
}
