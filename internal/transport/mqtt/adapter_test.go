package mqtt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wakealert/internal/push"
	"wakealert/internal/transport"
	logx "wakealert/pkg/logx"
)

func TestTopicsFor(t *testing.T) {
	tp := TopicsFor("wakealert/handset-1/")
	assert.Equal(t, "wakealert/handset-1/push", tp.Push)
	assert.Equal(t, "wakealert/handset-1/lifecycle", tp.Lifecycle)
	assert.Equal(t, "wakealert/handset-1/diag", tp.Diag)
}

func TestDecodePush(t *testing.T) {
	tp := TopicsFor("p")
	u, err := DecodeUpdate(tp, tp.Push, []byte(`{"data":{"type":"new_order","orderId":"o-1"}}`))
	require.NoError(t, err)
	assert.Equal(t, transport.UpdatePush, u.Kind)
	require.NotNil(t, u.Push)
	assert.Equal(t, "o-1", u.Push.Data["orderId"])
	assert.False(t, u.Push.ReceivedAt.IsZero())
}

func TestDecodePushToleratesNonStringFields(t *testing.T) {
	tp := TopicsFor("p")
	payload := `{"id":7,"data":{"type":"new_order","title":"X","orderId":42,` +
		`"is_urgent":true,"meta":{"a":1},"tags":["x"],"route":null},` +
		`"notification":{"title":"T","body":5}}`
	u, err := DecodeUpdate(tp, tp.Push, []byte(payload))
	require.NoError(t, err)
	require.NotNil(t, u.Push)

	assert.Equal(t, "7", u.Push.ID)
	assert.Equal(t, map[string]string{
		"type":      "new_order",
		"title":     "X",
		"orderId":   "42",
		"is_urgent": "true",
	}, u.Push.Data)
	require.NotNil(t, u.Push.Notification)
	assert.Equal(t, "T", u.Push.Notification.Title)
	assert.Equal(t, "5", u.Push.Notification.Body)

	cls := push.Classifier{Locale: "en"}.Classify(*u.Push)
	assert.Equal(t, push.KindAlert, cls.Kind)
	assert.Equal(t, push.TierUrgent, cls.Intent.Tier)
	assert.Equal(t, "42", cls.Intent.CorrelationID)
}

func TestDecodePushDataOfWrongShapeFallsBackToNotification(t *testing.T) {
	tp := TopicsFor("p")
	u, err := DecodeUpdate(tp, tp.Push, []byte(`{"data":"oops","notification":{"title":"T"}}`))
	require.NoError(t, err)
	assert.Nil(t, u.Push.Data)
	require.NotNil(t, u.Push.Notification)
	assert.Equal(t, "T", u.Push.Notification.Title)
}

func TestDecodeLifecycle(t *testing.T) {
	tp := TopicsFor("p")
	u, err := DecodeUpdate(tp, tp.Lifecycle, []byte(`{"event":"resumed","resume":{"from_alert_tap":true,"url":"request-mastermind://open?route=%2Fr"}}`))
	require.NoError(t, err)
	require.NotNil(t, u.Lifecycle)
	assert.Equal(t, transport.EventResumed, u.Lifecycle.Event)
	assert.True(t, u.Lifecycle.Resume.FromAlertTap)

	_, err = DecodeUpdate(tp, tp.Lifecycle, []byte(`{"event":"resumed"}`))
	assert.Error(t, err)
	_, err = DecodeUpdate(tp, tp.Lifecycle, []byte(`{"event":"sleep"}`))
	assert.Error(t, err)
	_, err = DecodeUpdate(tp, "p/other", []byte(`{}`))
	assert.Error(t, err)
	_, err = DecodeUpdate(tp, tp.Push, []byte(`not json`))
	assert.Error(t, err)
	_, err = DecodeUpdate(tp, tp.Push, []byte(`null`))
	assert.Error(t, err)
}

func TestNewDefaults(t *testing.T) {
	_, err := New(Config{}, logx.Nop())
	assert.Error(t, err)

	a, err := New(Config{Broker: "tcp://127.0.0.1:1883", QoS: 7}, logx.Nop())
	require.NoError(t, err)
	assert.Equal(t, "wakealert/wakealert/push", a.Topics().Push)
	assert.Equal(t, byte(1), a.cfg.QoS)
}

func TestPublishBeforeStartFails(t *testing.T) {
	a, err := New(Config{Broker: "tcp://127.0.0.1:1883"}, logx.Nop())
	require.NoError(t, err)
	assert.Error(t, a.Relay(context.Background(), "[WARN] x"))
	assert.NoError(t, a.Stop(context.Background()))
}
