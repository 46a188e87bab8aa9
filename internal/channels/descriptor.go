// Package channels owns the canonical notification-channel descriptors and
// keeps the OS registrations in line with them.
//
// The OS freezes a channel's importance, sound, vibration, lock-screen
// visibility and DND bypass at first creation. Changing any of them means
// minting a new id (<family>-v<N+1>); the old id is left to the OS.
package channels

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Importance mirrors the OS channel importance levels.
type Importance int

const (
	ImportanceNone Importance = iota
	ImportanceMin
	ImportanceLow
	ImportanceDefault
	ImportanceHigh
)

func (i Importance) String() string {
	switch i {
	case ImportanceNone:
		return "none"
	case ImportanceMin:
		return "min"
	case ImportanceLow:
		return "low"
	case ImportanceDefault:
		return "default"
	case ImportanceHigh:
		return "high"
	default:
		return "importance(" + strconv.Itoa(int(i)) + ")"
	}
}

// Visibility is the lock-screen visibility of alerts on a channel.
type Visibility int

const (
	VisibilitySecret  Visibility = -1
	VisibilityPrivate Visibility = 0
	VisibilityPublic  Visibility = 1
)

// Role selects which descriptor an alert is posted on.
type Role int

const (
	RoleStandard Role = iota
	RoleUrgent
)

func (r Role) String() string {
	if r == RoleUrgent {
		return "urgent"
	}
	return "standard"
}

// Sound references understood by hosts.
const (
	SoundRingtone     = "ringtone"
	SoundNotification = "notification"
)

// Descriptor is one OS notification channel.
type Descriptor struct {
	ID          string     `json:"id"`
	Role        Role       `json:"role"`
	DisplayName string     `json:"display_name"`
	Description string     `json:"description,omitempty"`
	Importance  Importance `json:"importance"`
	// Vibration is an OS vibration pattern in milliseconds, starting with a delay.
	Vibration  []int64    `json:"vibration"`
	Sound      string     `json:"sound"`
	Lockscreen Visibility `json:"lockscreen"`
	BypassDND  bool       `json:"bypass_dnd"`
	LightColor uint32     `json:"light_color"`
}

// Family returns the id without its version suffix.
func (d Descriptor) Family() string {
	fam, _, _ := SplitID(d.ID)
	return fam
}

// Version returns the numeric id suffix, or 0 when the id is unversioned.
func (d Descriptor) Version() int {
	_, v, _ := SplitID(d.ID)
	return v
}

// Fingerprint hashes the fields the OS freezes at channel creation.
// Display name and description are excluded; the OS lets those change.
func (d Descriptor) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "imp=%d;snd=%s;vis=%d;dnd=%t;light=%08x;vib=", d.Importance, d.Sound, d.Lockscreen, d.BypassDND, d.LightColor)
	for i, v := range d.Vibration {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(v, 10))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:6])
}

// SplitID splits "<family>-v<N>" into its parts.
func SplitID(id string) (family string, version int, ok bool) {
	i := strings.LastIndex(id, "-v")
	if i <= 0 {
		return id, 0, false
	}
	n, err := strconv.Atoi(id[i+2:])
	if err != nil || n <= 0 {
		return id, 0, false
	}
	return id[:i], n, true
}

// ValidateSet checks that every id is versioned, unique, and that each role
// is served by exactly one descriptor.
func ValidateSet(set []Descriptor) error {
	ids := map[string]bool{}
	families := map[string]bool{}
	roles := map[Role]int{}
	for _, d := range set {
		fam, _, ok := SplitID(d.ID)
		if !ok {
			return fmt.Errorf("channel %q: id must end in -v<N>", d.ID)
		}
		if ids[d.ID] {
			return fmt.Errorf("channel %q: duplicate id", d.ID)
		}
		if families[fam] {
			return fmt.Errorf("channel %q: family %q appears twice", d.ID, fam)
		}
		ids[d.ID] = true
		families[fam] = true
		roles[d.Role]++
	}
	for _, r := range []Role{RoleStandard, RoleUrgent} {
		if roles[r] != 1 {
			return fmt.Errorf("role %s: want exactly one descriptor, have %d", r, roles[r])
		}
	}
	return nil
}
