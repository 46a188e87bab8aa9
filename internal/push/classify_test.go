package push

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedID() string { return "corr-1" }

func TestClassifyNewOrderIsUrgent(t *testing.T) {
	c := Classifier{NewID: fixedID}
	got := c.Classify(Message{Data: map[string]string{
		"type": "new_order", "title": "X", "body": "Y", "route": "/r",
	}})
	require.Equal(t, KindAlert, got.Kind)
	assert.Equal(t, AlertIntent{
		Tier: TierUrgent, Title: "X", Body: "Y", Route: "/r",
		CorrelationID: "corr-1", SourceType: "new_order",
	}, got.Intent)
}

func TestClassifyPromoUsesDefaults(t *testing.T) {
	got := Classifier{NewID: fixedID}.Classify(Message{Data: map[string]string{"type": "promo"}})
	require.Equal(t, KindAlert, got.Kind)
	assert.Equal(t, TierNormal, got.Intent.Tier)
	assert.Equal(t, "طلب جديد", got.Intent.Title)
	assert.Equal(t, "لديك طلب جديد", got.Intent.Body)
	assert.Equal(t, DefaultLandingRoute, got.Intent.Route)
}

func TestClassifyUrgentTypesCaseInsensitive(t *testing.T) {
	for _, typ := range []string{"NEW_ORDER", "Booking", "test", " new_order "} {
		got := Classifier{}.Classify(Message{Data: map[string]string{"type": typ}})
		assert.Equal(t, TierUrgent, got.Intent.Tier, typ)
	}
	for _, typ := range []string{"", "promo", "order_cancelled"} {
		got := Classifier{}.Classify(Message{Data: map[string]string{"type": typ, "x": "1"}})
		assert.Equal(t, TierNormal, got.Intent.Tier, typ)
	}
}

func TestClassifyMissingFieldsNeverPanics(t *testing.T) {
	c := Classifier{Locale: "en", LandingRoute: "/home"}
	inputs := []Message{
		{},
		{Data: map[string]string{}},
		{Data: map[string]string{"title": "   "}},
		{Notification: &Notification{}},
	}
	for _, m := range inputs {
		assert.NotPanics(t, func() { c.Classify(m) })
	}
	got := c.Classify(Message{Data: map[string]string{"title": "   "}})
	assert.Equal(t, "New order", got.Intent.Title)
	assert.Equal(t, "You have a new order", got.Intent.Body)
	assert.Equal(t, "/home", got.Intent.Route)
	assert.NotEmpty(t, got.Intent.CorrelationID)
}

func TestClassifyNotificationOnlyIsUrgent(t *testing.T) {
	got := Classifier{}.Classify(Message{Notification: &Notification{Title: "T"}})
	require.Equal(t, KindAlert, got.Kind)
	assert.Equal(t, TierUrgent, got.Intent.Tier)
	assert.Equal(t, SourceNotification, got.Intent.SourceType)
	assert.Equal(t, "T", got.Intent.Title)
	assert.Equal(t, DefaultLandingRoute, got.Intent.Route)
}

func TestClassifyEmptyMessage(t *testing.T) {
	assert.Equal(t, KindEmpty, Classifier{}.Classify(Message{}).Kind)
}

func TestClassifyOrderIDIsCorrelationID(t *testing.T) {
	got := Classifier{NewID: fixedID}.Classify(Message{Data: map[string]string{"type": "new_order", "orderId": "o-42"}})
	assert.Equal(t, "o-42", got.Intent.CorrelationID)
	assert.Equal(t, "o-42", got.Intent.OrderID)
}

func TestClassifyUpdateBypassesAlerts(t *testing.T) {
	for _, typ := range []string{"app_update", "app-update"} {
		got := Classifier{}.Classify(Message{Data: map[string]string{
			"type": typ, "version_code": "42", "version_name": "2.1.0",
			"apk_url": "https://example.invalid/app.apk", "is_mandatory": "true",
		}})
		require.Equal(t, KindUpdate, got.Kind, typ)
		require.NotNil(t, got.Update)
		assert.Equal(t, 42, got.Update.VersionCode)
		assert.True(t, got.Update.Mandatory)
		assert.Equal(t, AlertIntent{}, got.Intent)
	}
}
