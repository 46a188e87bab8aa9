package escalation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wakealert/internal/deferred"
	"wakealert/internal/device"
	"wakealert/internal/eventbus"
	"wakealert/internal/storage"
	logx "wakealert/pkg/logx"
)

type fakeChecker struct {
	mu      sync.Mutex
	granted map[Permission]bool
	calls   int
}

func (c *fakeChecker) Granted(_ context.Context, p Permission) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if p == PermAutostart {
		return false, errors.New("not checkable")
	}
	return c.granted[p], nil
}

type fakeNav struct {
	mu      sync.Mutex
	missing map[string]bool
	opened  []string
	at      []time.Duration
	clock   *deferred.ManualClock
	start   time.Time
}

func (n *fakeNav) Open(_ context.Context, t Target) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.missing[t.Name] {
		return ErrNavigationUnavailable
	}
	n.opened = append(n.opened, t.Name)
	n.at = append(n.at, n.clock.Now().Sub(n.start))
	return nil
}

type fixture struct {
	seq   *Sequencer
	chk   *fakeChecker
	nav   *fakeNav
	clock *deferred.ManualClock
	store storage.Store
}

func newFixture(t *testing.T, granted map[Permission]bool) *fixture {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := deferred.NewManualClock(start)
	store := storage.NewMemory()
	chk := &fakeChecker{granted: granted}
	nav := &fakeNav{missing: map[string]bool{}, clock: clock, start: start}
	seq, err := NewSequencer(Deps{
		State:   NewStoreState(store),
		Checker: chk,
		Nav:     nav,
		Timers:  deferred.NewTimers(clock, logx.Nop()),
		Log:     logx.Nop(),
	})
	require.NoError(t, err)
	return &fixture{seq: seq, chk: chk, nav: nav, clock: clock, store: store}
}

var xiaomi = device.NewProfile(device.Identification{Manufacturer: "Xiaomi", SDK: 34})

func TestFreshInstallPromptsEachStepOnceInOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.seq.Run(ctx, xiaomi)
	require.NoError(t, err)
	require.Len(t, res.Scheduled, 5)
	assert.Equal(t, PhaseSettled, f.seq.Phase())

	wantKeys := []string{"battery_prompt_done", "overlay_prompt_done", "autostart_prompt_done", "popup_prompt_done", "fs_intent_prompt_done"}
	for i, s := range res.Scheduled {
		assert.Equal(t, wantKeys[i], s.Key)
		if i > 0 {
			assert.Greater(t, s.Delay, res.Scheduled[i-1].Delay)
		}
	}
	assert.Equal(t, time.Second, res.Scheduled[0].Delay)
	assert.Equal(t, 2200*time.Millisecond, res.Scheduled[1].Delay)

	f.clock.Advance(10 * time.Second)
	assert.Equal(t, []string{"battery_exemption", "overlay", "miui_autostart", "miui_permission_editor", "full_screen_intent"}, f.nav.opened)

	again, err := f.seq.Run(ctx, xiaomi)
	require.NoError(t, err)
	assert.Empty(t, again.Scheduled)
	assert.Len(t, again.AlreadySettled, 5)
	f.clock.Advance(10 * time.Second)
	assert.Len(t, f.nav.opened, 5)
}

func TestGrantedStepIsResolvedWithoutPrompt(t *testing.T) {
	f := newFixture(t, map[Permission]bool{PermBattery: true, PermOverlay: true})
	res, err := f.seq.Run(context.Background(), device.NewProfile(device.Identification{Manufacturer: "Google", SDK: 34}))
	require.NoError(t, err)

	assert.Equal(t, []string{"battery_prompt_done", "overlay_prompt_done"}, res.Granted)
	require.Len(t, res.Scheduled, 1)
	assert.Equal(t, "fs_intent_prompt_done", res.Scheduled[0].Key)

	ok, err := f.store.Flag(context.Background(), "escalation.battery_prompt_done")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNonApplicableStepsNeverGetFlags(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	generic := device.NewProfile(device.Identification{Manufacturer: "samsung", SDK: 30})

	res, err := f.seq.Run(ctx, generic)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"autostart_prompt_done", "popup_prompt_done", "fs_intent_prompt_done"}, res.NotApplicable)

	for _, k := range res.NotApplicable {
		ok, err := f.store.Flag(ctx, "escalation."+k)
		require.NoError(t, err)
		assert.False(t, ok, k)
	}
}

func TestPromptIsNeverRepeatedEvenIfStillDenied(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.seq.Run(ctx, xiaomi)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)

	f.chk.granted = map[Permission]bool{}
	for i := 0; i < 3; i++ {
		res, err := f.seq.Run(ctx, xiaomi)
		require.NoError(t, err)
		assert.Empty(t, res.Scheduled)
	}
	f.clock.Advance(time.Minute)
	assert.Len(t, f.nav.opened, 5)
}

func TestNavigationFallsBackToAppDetails(t *testing.T) {
	f := newFixture(t, map[Permission]bool{PermBattery: true, PermOverlay: true, PermPopup: true, PermFullScreen: true})
	f.nav.missing["miui_autostart"] = true
	f.nav.missing["miui_app_details"] = true

	_, err := f.seq.Run(context.Background(), xiaomi)
	require.NoError(t, err)
	f.clock.Advance(5 * time.Second)
	assert.Equal(t, []string{"app_details"}, f.nav.opened)
}

func TestAllTargetsMissingStillResolves(t *testing.T) {
	f := newFixture(t, map[Permission]bool{PermBattery: true, PermOverlay: true, PermAutostart: true, PermPopup: true})
	f.nav.missing["full_screen_intent"] = true
	f.nav.missing["app_details"] = true
	ctx := context.Background()

	_, err := f.seq.Run(ctx, xiaomi)
	require.NoError(t, err)
	assert.NotPanics(t, func() { f.clock.Advance(5 * time.Second) })

	ok, err := f.store.Flag(ctx, "escalation.fs_intent_prompt_done")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStateOnlyGrows(t *testing.T) {
	s := NewState("a")
	s2 := s.With("b")
	assert.False(t, s.Resolved("b"))
	assert.True(t, s2.Resolved("a"))
	assert.Equal(t, []string{"a", "b"}, s2.Keys())
}

func TestNewSequencerRejectsDuplicateKeys(t *testing.T) {
	_, err := NewSequencer(Deps{
		State:   NewStoreState(storage.NewMemory()),
		Checker: &fakeChecker{},
		Nav:     &fakeNav{},
		Timers:  deferred.NewTimers(deferred.System(), logx.Nop()),
		Steps:   []Step{{Key: "a"}, {Key: "a"}},
	})
	assert.Error(t, err)
}

func TestUnschedulablePromptIsReportedAsFailed(t *testing.T) {
	clock := deferred.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	timers := deferred.NewTimers(clock, logx.Nop())
	timers.Close()
	store := storage.NewMemory()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(32)
	defer unsub()

	seq, err := NewSequencer(Deps{
		State:   NewStoreState(store),
		Checker: &fakeChecker{},
		Nav:     &fakeNav{missing: map[string]bool{}, clock: clock},
		Timers:  timers,
		Bus:     bus,
	})
	require.NoError(t, err)

	res, err := seq.Run(context.Background(), device.NewProfile(device.Identification{Manufacturer: "Google", SDK: 34}))
	require.NoError(t, err)
	assert.Empty(t, res.Scheduled)

	var failed []string
	for len(events) > 0 {
		e := <-events
		if p, ok := e.Data.(Prompt); ok && e.Type == eventbus.TypeEscalationPrompt {
			assert.True(t, p.Failed)
			failed = append(failed, p.Key)
		}
	}
	assert.Equal(t, []string{"battery_prompt_done", "overlay_prompt_done", "fs_intent_prompt_done"}, failed)

	ok, err := store.Flag(context.Background(), "escalation.battery_prompt_done")
	require.NoError(t, err)
	assert.True(t, ok)
}
