package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wakealert/internal/config"
	"wakealert/internal/deeplink"
	"wakealert/internal/deferred"
	"wakealert/internal/push"
	"wakealert/internal/storage"
	"wakealert/internal/transport"
	logx "wakealert/pkg/logx"
)

type fakeAdapter struct {
	mu        sync.Mutex
	started   bool
	stopped   bool
	published []string
	relayed   []string
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) Stop(context.Context) error {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) Publish(_ context.Context, name string, _ any) error {
	f.mu.Lock()
	f.published = append(f.published, name)
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) Relay(_ context.Context, line string) error {
	f.mu.Lock()
	f.relayed = append(f.relayed, line)
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.published...)
}

const hostConfig = `
logging:
  level: warn
storage:
  driver: sqlite
  path: %DIR%/state.db
device:
  manufacturer: Google
  model: Pixel 7
  sdk: 33
escalation:
  first_delay: 1s
  stagger: 1.2s
router:
  settle_delay: 800ms
`

type hostFixture struct {
	app   *App
	clock *deferred.ManualClock
	ad    *fakeAdapter
}

func startHost(t *testing.T) *hostFixture {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "wakealert.yaml")
	body := []byte(strings.ReplaceAll(hostConfig, "%DIR%", dir))
	require.NoError(t, os.WriteFile(path, body, 0o600))

	clock := deferred.NewManualClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	ad := &fakeAdapter{}
	a, err := NewApp(path, WithClock(clock), WithAdapter(ad))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopAppStop)
	})
	return &hostFixture{app: a, clock: clock, ad: ad}
}

func TestColdStartSchedulesPromptsAndPublishesScreens(t *testing.T) {
	f := startHost(t)
	assert.True(t, f.ad.started)

	f.clock.Advance(time.Second)
	snap := f.app.Device().Snapshot()
	require.NotEmpty(t, snap.Opened)

	assert.Eventually(t, func() bool {
		for _, n := range f.ad.names() {
			if n == "settings" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatchPushPostsAlert(t *testing.T) {
	f := startHost(t)
	ctx := context.Background()

	err := f.app.Dispatch(ctx, transport.Update{
		Kind: transport.UpdatePush,
		Push: &push.Message{Data: map[string]string{"type": "new_order", "orderId": "o-9", "title": "New order"}},
	})
	require.NoError(t, err)

	snap := f.app.Device().Snapshot()
	require.Len(t, snap.Posted, 1)
	assert.Equal(t, "New order", snap.Posted[0].Title)
}

func TestDispatchUpdateNoticeIsPublishedNotPosted(t *testing.T) {
	f := startHost(t)
	err := f.app.Dispatch(context.Background(), transport.Update{
		Kind: transport.UpdatePush,
		Push: &push.Message{Data: map[string]string{"type": "app_update", "version_name": "2.4.0"}},
	})
	require.NoError(t, err)
	assert.Empty(t, f.app.Device().Snapshot().Posted)

	assert.Eventually(t, func() bool {
		for _, n := range f.ad.names() {
			if n == "update" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatchResumeDeliversRouteAfterSettle(t *testing.T) {
	f := startHost(t)
	err := f.app.Dispatch(context.Background(), transport.Update{
		Kind: transport.UpdateLifecycle,
		Lifecycle: &transport.Lifecycle{
			Event:  transport.EventResumed,
			Resume: &deeplink.Resume{FromAlertTap: true, Route: "/orders/o-9", CorrelationID: "o-9"},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, f.app.Device().Snapshot().Routes)

	f.clock.Advance(800 * time.Millisecond)
	assert.Equal(t, []string{"/orders/o-9"}, f.app.Device().Snapshot().Routes)
}

func TestDispatchRejectsMalformedUpdates(t *testing.T) {
	f := startHost(t)
	ctx := context.Background()
	assert.Error(t, f.app.Dispatch(ctx, transport.Update{Kind: transport.UpdatePush}))
	assert.Error(t, f.app.Dispatch(ctx, transport.Update{Kind: transport.UpdateLifecycle}))
	assert.Error(t, f.app.Dispatch(ctx, transport.Update{Kind: "bogus"}))
}

func TestStopClosesAdapterAndRejectsEvents(t *testing.T) {
	f := startHost(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.app.Stop(ctx, StopSIGTERM))
	assert.True(t, f.ad.stopped)

	_, err := f.app.Engine().OnForeground(ctx)
	assert.Error(t, err)
}

func TestMapSettings(t *testing.T) {
	s, err := mapSettings(&config.Config{})
	require.NoError(t, err)
	assert.Equal(t, time.Second, s.Escalation.FirstDelay)
	assert.Equal(t, 1200*time.Millisecond, s.Escalation.Stagger)
	assert.Equal(t, 10*time.Second, s.Presenter.WakeCeiling)
	assert.Equal(t, deeplink.DefaultSettleDelay, s.Router.SettleDelay)

	cfg := &config.Config{}
	cfg.Presenter.Locale = " EN "
	cfg.Router.SettleDelay = "250ms"
	s, err = mapSettings(cfg)
	require.NoError(t, err)
	assert.Equal(t, "en", s.Locale)
	assert.Equal(t, 250*time.Millisecond, s.Router.SettleDelay)

	cfg.Escalation.Stagger = "soon"
	_, err = mapSettings(cfg)
	assert.Error(t, err)
}

func TestMapStorageConfig(t *testing.T) {
	_, enabled, err := mapStorageConfig(&config.Config{})
	require.NoError(t, err)
	assert.False(t, enabled)

	sc, enabled, err := mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "SQLite", Path: "x.db"}})
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, "sqlite", sc.Driver)
	assert.Equal(t, time.Second, sc.BusyTimeout)

	_, _, err = mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "sqlite"}})
	assert.Error(t, err)
	_, _, err = mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "redis"}})
	assert.Error(t, err)
}

func TestStorageDriversAgreeAcrossValidateMapAndOpen(t *testing.T) {
	for _, d := range []string{"memory", "mem", "file", "sqlite", "sqlite3"} {
		t.Run(d, func(t *testing.T) {
			cfg := &config.Config{Storage: &config.StorageConfig{Driver: d, Path: filepath.Join(t.TempDir(), "state.db")}}
			require.NoError(t, config.Validate(context.Background(), cfg))

			sc, enabled, err := mapStorageConfig(cfg)
			require.NoError(t, err)
			require.True(t, enabled)

			st, err := storage.Open(sc, logx.Nop())
			require.NoError(t, err)
			require.NotNil(t, st)
			assert.NoError(t, st.Close())
		})
	}
}

func TestMapIdentificationDefaults(t *testing.T) {
	id := mapIdentification(&config.Config{})
	assert.Equal(t, "generic", id.Manufacturer)
	assert.Positive(t, id.SDK)
}
