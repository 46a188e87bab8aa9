package device

import "strings"

// Family groups manufacturers that share the same background restrictions.
type Family string

const (
	FamilyGeneric Family = "generic"
	FamilyXiaomi  Family = "xiaomi"
)

// Quirk is a vendor-imposed restriction layered on top of stock Android.
type Quirk uint32

const (
	// QuirkAutostart: the vendor blocks background starts unless the app is
	// on a vendor-managed autostart list.
	QuirkAutostart Quirk = 1 << iota
	// QuirkPopupPermission: the vendor gates "display pop-up windows while
	// running in the background", which also suppresses full-screen alerts.
	QuirkPopupPermission
	// QuirkBatteryList: the vendor keeps its own battery saver list on top
	// of the OS battery optimization exemption.
	QuirkBatteryList
)

// Vendor is one row of the quirk table.
type Vendor struct {
	Family Family
	// Match holds lower-case substrings of the manufacturer string.
	Match  []string
	Quirks Quirk
}

// vendors is consulted in order; the first match wins. New vendor
// workarounds are added here and in the escalation step table.
var vendors = []Vendor{
	{
		Family: FamilyXiaomi,
		Match:  []string{"xiaomi", "redmi", "poco"},
		Quirks: QuirkAutostart | QuirkPopupPermission | QuirkBatteryList,
	},
}

// LookupVendor returns the table row for manufacturer, or the generic row.
func LookupVendor(manufacturer string) Vendor {
	m := strings.ToLower(strings.TrimSpace(manufacturer))
	if m != "" {
		for _, v := range vendors {
			for _, s := range v.Match {
				if strings.Contains(m, s) {
					return v
				}
			}
		}
	}
	return Vendor{Family: FamilyGeneric}
}
