package deeplink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wakealert/internal/deferred"
	logx "wakealert/pkg/logx"
)

type recordingApp struct {
	mu     sync.Mutex
	routes []string
}

func (a *recordingApp) Navigate(_ context.Context, route string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes = append(a.routes, route)
	return nil
}

func newRouter(t *testing.T) (*Router, *recordingApp, *deferred.ManualClock) {
	t.Helper()
	clock := deferred.NewManualClock(time.Unix(0, 0))
	app := &recordingApp{}
	r, err := NewRouter(app, deferred.NewTimers(clock, logx.Nop()), nil, logx.Nop(), Config{})
	require.NoError(t, err)
	return r, app, clock
}

func TestRouteFromURL(t *testing.T) {
	cases := map[string]string{
		BuildURL("/specialist-orders/new?orderId=7"):                "/specialist-orders/new?orderId=7",
		"request-mastermind://open?path=%2Forder-tracking%2F1":      "/order-tracking/1",
		"request-mastermind://open/order-tracking/123":              "/order-tracking/123",
		"weird stuff ?route=%2Fspecialist%2Fnew-orders&x=1":         "/specialist/new-orders",
		"request-mastermind://open?route=/plain&route=/second-wins": "/plain",
	}
	for in, want := range cases {
		got, ok := RouteFromURL(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := RouteFromURL("request-mastermind://open")
	assert.False(t, ok)
	_, ok = RouteFromURL("")
	assert.False(t, ok)
}

func TestRemapAliases(t *testing.T) {
	a := DefaultAliases()
	assert.Equal(t, "/specialist-orders/new", Remap("/specialist/new-orders", a))
	assert.Equal(t, "/specialist-orders/new?orderId=1", Remap("/specialist/new-orders/?orderId=1", a))
	assert.Equal(t, "/other", Remap("/other", a))
}

func TestDeliversOnceAfterSettleDelay(t *testing.T) {
	r, app, clock := newRouter(t)
	ctx := context.Background()

	queued, err := r.OnSessionResumed(ctx, Resume{FromAlertTap: true, URL: BuildURL("/specialist/new-orders"), CorrelationID: "o-1"})
	require.NoError(t, err)
	assert.True(t, queued)

	clock.Advance(DefaultSettleDelay - time.Millisecond)
	assert.Empty(t, app.routes)
	clock.Advance(time.Millisecond)
	assert.Equal(t, []string{"/specialist-orders/new"}, app.routes)

	_, pending := r.Pending()
	assert.False(t, pending)

	queued, err = r.OnSessionResumed(ctx, Resume{FromAlertTap: true, URL: BuildURL("/specialist/new-orders"), CorrelationID: "o-1"})
	require.NoError(t, err)
	assert.False(t, queued)
	clock.Advance(time.Second)
	assert.Len(t, app.routes, 1)
}

func TestNonTapResumeDeliversNothing(t *testing.T) {
	r, app, clock := newRouter(t)
	queued, err := r.OnSessionResumed(context.Background(), Resume{URL: BuildURL("/x")})
	require.NoError(t, err)
	assert.False(t, queued)
	clock.Advance(time.Second)
	assert.Empty(t, app.routes)
}

func TestLaterTapReplacesPending(t *testing.T) {
	r, app, clock := newRouter(t)
	ctx := context.Background()
	_, _ = r.OnSessionResumed(ctx, Resume{FromAlertTap: true, Route: "/a"})
	clock.Advance(100 * time.Millisecond)
	_, _ = r.OnSessionResumed(ctx, Resume{FromAlertTap: true, Route: "/b"})
	clock.Advance(time.Second)
	assert.Equal(t, []string{"/b"}, app.routes)
}

func TestTapWithoutRouteUsesLanding(t *testing.T) {
	clock := deferred.NewManualClock(time.Unix(0, 0))
	app := &recordingApp{}
	r, err := NewRouter(app, deferred.NewTimers(clock, logx.Nop()), nil, logx.Nop(), Config{
		LandingRoute: "/specialist-orders/new",
		SettleDelay:  time.Second,
	})
	require.NoError(t, err)
	queued, err := r.OnSessionResumed(context.Background(), Resume{FromAlertTap: true})
	require.NoError(t, err)
	assert.True(t, queued)
	clock.Advance(time.Second)
	assert.Equal(t, []string{"/specialist-orders/new"}, app.routes)
}
