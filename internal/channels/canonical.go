package channels

// Bump the -v suffix whenever importance, sound, vibration, lock-screen
// visibility or DND bypass changes. Ids are never reused.
const (
	StandardID = "new-orders-v7"
	UrgentID   = "booking-calls-v7"
)

// AlertRed is the accent and light color of order alerts (ARGB).
const AlertRed uint32 = 0xFFFF0000

// ChannelVibration is the pattern registered on both channels.
var ChannelVibration = []int64{0, 1000, 500, 1000, 500, 1000, 500, 1000, 500, 1000, 500, 1000}

// AlertVibration is attached to each urgent alert; roughly ten seconds.
var AlertVibration = []int64{0, 1000, 500, 1000, 500, 1000, 500, 1000, 500, 1000, 500, 1000, 500, 1000, 500, 1000}

// Canonical returns a fresh copy of the current descriptor set.
func Canonical() []Descriptor {
	return []Descriptor{
		{
			ID:          StandardID,
			Role:        RoleStandard,
			DisplayName: "New Orders",
			Description: "Notifications for new orders",
			Importance:  ImportanceHigh,
			Vibration:   append([]int64(nil), ChannelVibration...),
			Sound:       SoundRingtone,
			Lockscreen:  VisibilityPublic,
			BypassDND:   true,
			LightColor:  AlertRed,
		},
		{
			ID:          UrgentID,
			Role:        RoleUrgent,
			DisplayName: "Booking Calls",
			Description: "Incoming booking alerts (call style)",
			Importance:  ImportanceHigh,
			Vibration:   append([]int64(nil), ChannelVibration...),
			Sound:       SoundRingtone,
			Lockscreen:  VisibilityPublic,
			BypassDND:   true,
			LightColor:  AlertRed,
		},
	}
}
