package device

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	logx "wakealert/pkg/logx"
)

type countingSource struct {
	id    Identification
	err   error
	calls int
}

func (s *countingSource) Identify(context.Context) (Identification, error) {
	s.calls++
	return s.id, s.err
}

func TestLookupVendor(t *testing.T) {
	cases := map[string]Family{
		"Xiaomi":        FamilyXiaomi,
		"  REDMI ":      FamilyXiaomi,
		"POCO":          FamilyXiaomi,
		"samsung":       FamilyGeneric,
		"":              FamilyGeneric,
		"Google":        FamilyGeneric,
		"xiaomi-global": FamilyXiaomi,
	}
	for in, want := range cases {
		assert.Equal(t, want, LookupVendor(in).Family, in)
	}
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, TierUnknown, TierFor(0))
	assert.Equal(t, TierLegacy, TierFor(22))
	assert.Equal(t, TierM, TierFor(23))
	assert.Equal(t, TierO, TierFor(26))
	assert.Equal(t, TierOMR1, TierFor(30))
	assert.Equal(t, TierS, TierFor(34))
}

func TestProfileCapabilities(t *testing.T) {
	p := NewProfile(Identification{Manufacturer: "Xiaomi", Model: "Redmi Note 12", SDK: 33})
	assert.True(t, p.SupportsChannels())
	assert.True(t, p.HasFullScreenGrant())
	assert.True(t, p.Has(QuirkAutostart))
	assert.True(t, p.Has(QuirkPopupPermission))

	old := NewProfile(Identification{Manufacturer: "samsung", SDK: 25})
	assert.False(t, old.SupportsChannels())
	assert.True(t, old.HasBatteryOptimization())
	assert.False(t, old.HasFullScreenGrant())
	assert.False(t, old.Has(QuirkAutostart))
}

func TestProbeComputesOnce(t *testing.T) {
	src := &countingSource{id: Identification{Manufacturer: "Xiaomi", SDK: 34}}
	probe := NewProbe(src, logx.Nop())
	first := probe.Profile(context.Background())
	src.id.Manufacturer = "Google"
	second := probe.Profile(context.Background())

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, first, second)
	assert.Equal(t, FamilyXiaomi, second.Family)
}

func TestProbeDegradesOnError(t *testing.T) {
	probe := NewProbe(&countingSource{err: errors.New("no build props")}, logx.Nop())
	p := probe.Profile(context.Background())
	assert.Equal(t, TierUnknown, p.Tier)
	assert.Equal(t, FamilyGeneric, p.Family)
	assert.False(t, p.SupportsChannels())
}
