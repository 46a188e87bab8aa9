package push

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Payload keys.
const (
	KeyTitle   = "title"
	KeyBody    = "body"
	KeyType    = "type"
	KeyOrderID = "orderId"
	KeyRoute   = "route"
)

// SourceNotification marks intents built from a notification-only message.
const SourceNotification = "notification"

// DefaultLandingRoute is used when a message carries no route.
const DefaultLandingRoute = "/specialist-orders/new"

var urgentTypes = map[string]bool{
	"new_order": true,
	"booking":   true,
	"test":      true,
}

var updateTypes = map[string]bool{
	"app_update": true,
	"app-update": true,
}

// Defaults are the localized fallbacks for missing title and body.
type Defaults struct {
	Title string
	Body  string
}

var locales = map[string]Defaults{
	"ar": {Title: "طلب جديد", Body: "لديك طلب جديد"},
	"en": {Title: "New order", Body: "You have a new order"},
}

// DefaultLocale is used for unknown or empty locales.
const DefaultLocale = "ar"

// LocaleDefaults returns the fallbacks for locale.
func LocaleDefaults(locale string) Defaults {
	if d, ok := locales[strings.ToLower(strings.TrimSpace(locale))]; ok {
		return d
	}
	return locales[DefaultLocale]
}

// Classifier is the PushMessageClassifier. The zero value uses the Arabic
// defaults, the canonical landing route and random correlation ids.
type Classifier struct {
	Locale       string
	LandingRoute string
	// NewID mints correlation ids for messages without an order id.
	NewID func() string
}

// Classify never fails: missing fields take defaults.
func (c Classifier) Classify(m Message) Classification {
	if len(m.Data) == 0 {
		if m.Notification == nil {
			return Classification{Kind: KindEmpty}
		}
		return Classification{Kind: KindAlert, Intent: c.intent(TierUrgent, SourceNotification,
			m.Notification.Title, m.Notification.Body, "", "")}
	}

	typ := strings.TrimSpace(m.Data[KeyType])
	norm := strings.ToLower(typ)
	if updateTypes[norm] {
		return Classification{Kind: KindUpdate, Update: parseUpdate(m.Data)}
	}

	tier := TierNormal
	if urgentTypes[norm] {
		tier = TierUrgent
	}
	return Classification{Kind: KindAlert, Intent: c.intent(tier, typ,
		m.Data[KeyTitle], m.Data[KeyBody], m.Data[KeyRoute], m.Data[KeyOrderID])}
}

func (c Classifier) intent(tier Tier, source, title, body, route, orderID string) AlertIntent {
	def := LocaleDefaults(c.Locale)
	orderID = strings.TrimSpace(orderID)

	in := AlertIntent{
		Tier:       tier,
		Title:      orDefault(title, def.Title),
		Body:       orDefault(body, def.Body),
		Route:      orDefault(route, orDefault(c.LandingRoute, DefaultLandingRoute)),
		SourceType: source,
		OrderID:    orderID,
	}
	switch {
	case orderID != "":
		in.CorrelationID = orderID
	case c.NewID != nil:
		in.CorrelationID = c.NewID()
	default:
		in.CorrelationID = uuid.NewString()
	}
	return in
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func parseUpdate(d map[string]string) *UpdateNotice {
	code, _ := strconv.Atoi(strings.TrimSpace(d["version_code"]))
	mandatory, _ := strconv.ParseBool(strings.TrimSpace(d["is_mandatory"]))
	return &UpdateNotice{
		VersionID:   strings.TrimSpace(d["version_id"]),
		VersionCode: code,
		VersionName: strings.TrimSpace(d["version_name"]),
		APKURL:      strings.TrimSpace(d["apk_url"]),
		Mandatory:   mandatory,
		Changelog:   d["changelog"],
	}
}
