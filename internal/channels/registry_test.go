package channels_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wakealert/internal/channels"
	"wakealert/internal/device"
	"wakealert/internal/host/sim"
	"wakealert/internal/storage"
	logx "wakealert/pkg/logx"
)

func newRegistry(t *testing.T, sdk int, opts ...channels.Option) (*channels.Registry, *sim.Device, storage.Store) {
	t.Helper()
	dev := sim.New(device.Identification{Manufacturer: "Google", SDK: sdk}, nil)
	st := storage.NewMemory()
	opts = append([]channels.Option{channels.WithLedger(st), channels.WithLogger(logx.Nop())}, opts...)
	reg, err := channels.NewRegistry(dev, opts...)
	require.NoError(t, err)
	return reg, dev, st
}

func TestEnsureChannelsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg, dev, _ := newRegistry(t, 33)

	rep, err := reg.EnsureChannels(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{channels.StandardID, channels.UrgentID}, rep.Created)
	once := dev.Snapshot().Channels

	for i := 0; i < 5; i++ {
		rep, err = reg.EnsureChannels(ctx)
		require.NoError(t, err)
		assert.Empty(t, rep.Created)
		assert.Empty(t, rep.Recreated)
	}
	assert.Equal(t, once, dev.Snapshot().Channels)
	assert.Empty(t, dev.Snapshot().Deleted)
}

func TestImportanceRegressionRecreatesInOnePass(t *testing.T) {
	ctx := context.Background()
	reg, dev, _ := newRegistry(t, 33)
	_, err := reg.EnsureChannels(ctx)
	require.NoError(t, err)

	require.NoError(t, dev.SetImportance(channels.UrgentID, channels.ImportanceLow))
	rep, err := reg.EnsureChannels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{channels.UrgentID}, rep.Recreated)

	live, ok, err := dev.Channel(ctx, channels.UrgentID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, channels.ImportanceHigh, live.Importance)
	assert.Equal(t, []string{channels.UrgentID}, dev.Snapshot().Deleted)
}

func TestOldVersionIsLeftUntouched(t *testing.T) {
	ctx := context.Background()
	reg, dev, _ := newRegistry(t, 33)

	old := channels.Canonical()[1]
	old.ID = "booking-calls-v6"
	old.Vibration = []int64{0, 300, 100, 300}
	dev.InstallChannel(old)

	rep, err := reg.EnsureChannels(ctx)
	require.NoError(t, err)
	assert.Contains(t, rep.Created, channels.UrgentID)

	_, ok, err := dev.Channel(ctx, "booking-calls-v6")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, dev.Snapshot().Deleted)
}

func TestUnsupportedOSIsNoOp(t *testing.T) {
	reg, dev, _ := newRegistry(t, 25)
	rep, err := reg.EnsureChannels(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Unsupported)
	assert.Empty(t, dev.Snapshot().Channels)
}

func TestLedgerFlagsEditWithoutBump(t *testing.T) {
	ctx := context.Background()
	reg, dev, st := newRegistry(t, 33)
	_, err := reg.EnsureChannels(ctx)
	require.NoError(t, err)

	edited := channels.Canonical()
	edited[0].Vibration = []int64{0, 200}
	reg2, err := channels.NewRegistry(dev, channels.WithLedger(st), channels.WithSet(edited))
	require.NoError(t, err)

	rep, err := reg2.EnsureChannels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{channels.StandardID}, rep.Drifted)
}

func TestFingerprintIgnoresDisplayName(t *testing.T) {
	a := channels.Canonical()[0]
	b := a
	b.DisplayName = "Orders"
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	b.Sound = channels.SoundNotification
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestValidateSet(t *testing.T) {
	assert.NoError(t, channels.ValidateSet(channels.Canonical()))

	bad := channels.Canonical()
	bad[0].ID = "new-orders"
	assert.Error(t, channels.ValidateSet(bad))

	bad = channels.Canonical()
	bad[1].Role = channels.RoleStandard
	assert.Error(t, channels.ValidateSet(bad))

	fam, v, ok := channels.SplitID("booking-calls-v12")
	assert.True(t, ok)
	assert.Equal(t, "booking-calls", fam)
	assert.Equal(t, 12, v)
}

type failingManager struct{ *sim.Device }

func (f failingManager) Create(ctx context.Context, d channels.Descriptor) error {
	if d.ID == channels.StandardID {
		return errors.New("binder died")
	}
	return f.Device.Create(ctx, d)
}

func TestPerChannelFailureDoesNotStopPass(t *testing.T) {
	dev := sim.New(device.Identification{SDK: 33}, nil)
	reg, err := channels.NewRegistry(failingManager{dev})
	require.NoError(t, err)

	rep, err := reg.EnsureChannels(context.Background())
	assert.Error(t, err)
	assert.Equal(t, []string{channels.UrgentID}, rep.Created)
}
