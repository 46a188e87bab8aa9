package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./data/wakealert.db
device:
  manufacturer: Xiaomi
  model: Redmi Note 12
  sdk: 33
  granted: [overlay]
escalation:
  first_delay: 1s
  stagger: 1.2s
router:
  aliases:
    /specialist/new-orders: /specialist-orders/new
push:
  enabled: true
  broker: tcp://127.0.0.1:1883
  client_id: handset-1
  qos: 1
`

func TestParseBytesYAML(t *testing.T) {
	cfg, err := ParseBytes("wakealert.yaml", []byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "Xiaomi", cfg.Device.Manufacturer)
	assert.Equal(t, 33, cfg.Device.SDK)
	assert.Equal(t, "1.2s", cfg.Escalation.Stagger)
	assert.Equal(t, "/specialist-orders/new", cfg.Router.Aliases["/specialist/new-orders"])
	require.NotNil(t, cfg.Storage)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.NoError(t, Validate(context.Background(), cfg))
}

func TestParseBytesRejectsUnknownAndTrailing(t *testing.T) {
	_, err := ParseBytes("c.json", []byte(`{"telegram":{}}`))
	assert.Error(t, err)

	_, err = ParseBytes("c.json", []byte(`{} {}`))
	assert.Error(t, err)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := &Config{
		Escalation: EscalationConfig{Stagger: "soon"},
		Presenter:  PresenterConfig{Locale: "fr", WakeCeiling: "5s", WakeReleaseAfter: "8s"},
		Storage:    &StorageConfig{Driver: "file"},
		Device:     DeviceConfig{Granted: []string{"camera"}},
		Push:       PushConfig{Enabled: true, QoS: 3},
	}
	err := Validate(context.Background(), cfg)
	require.Error(t, err)
	for _, want := range []string{
		"escalation.stagger", "presenter.locale", "storage.path",
		"device.granted", "push.broker", "push.qos", "wake_release_after",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateAcceptsStorageDriverAliases(t *testing.T) {
	for _, d := range []string{"none", "memory", "mem", "file", "sqlite", "SQLite3"} {
		cfg := &Config{Storage: &StorageConfig{Driver: d, Path: "./state.db"}}
		assert.NoError(t, Validate(context.Background(), cfg), d)
	}
	err := Validate(context.Background(), &Config{Storage: &StorageConfig{Driver: "sqlite3"}})
	assert.ErrorContains(t, err, "storage.path")
}

func TestSummarizeConfigChangeHidesPassword(t *testing.T) {
	oldCfg := &Config{Push: PushConfig{Broker: "tcp://a:1883", Password: "one"}}
	newCfg := &Config{Push: PushConfig{Broker: "tcp://a:1883", Password: "two"}, Escalation: EscalationConfig{Stagger: "2s"}}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	assert.ElementsMatch(t, []string{"escalation", "push"}, changed)
	assert.NotEmpty(t, attrs)
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("x", "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	d, err = ParseDuration("x", "0s", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	d, err = ParseDuration("x", "1.2s", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1200*time.Millisecond, d)

	_, err = ParseDuration("x", "-1s", 0)
	assert.Error(t, err)
}

func TestParseBytesSniffsFormatAndRejectsMultiDocYAML(t *testing.T) {
	cfg, err := ParseBytes("wakealert.conf", []byte("presenter:\n  locale: en\n"))
	require.NoError(t, err)
	assert.Equal(t, "en", cfg.Presenter.Locale)

	cfg, err = ParseBytes("wakealert.conf", []byte(`{"presenter":{"locale":"ar"}}`))
	require.NoError(t, err)
	assert.Equal(t, "ar", cfg.Presenter.Locale)

	_, err = ParseBytes("wakealert.yaml", []byte("presenter: {}\n---\nrouter: {}\n"))
	assert.Error(t, err)

	cfg, err = ParseBytes("empty.yaml", nil)
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestWatchPublishesValidEdits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wakealert.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"escalation":{"stagger":"1s"}}`), 0o600))

	m := NewConfigManager(path)
	m.SetValidator(Validate)
	_, err := m.Load()
	require.NoError(t, err)

	sub := m.Subscribe(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-sub:
			assert.Equal(t, "2s", cfg.Escalation.Stagger)
			assert.Equal(t, "2s", m.Get().Escalation.Stagger)
			return
		case <-tick.C:
			// rewrite until the watcher is attached and sees it
			_ = os.WriteFile(path, []byte(`{"escalation":{"stagger":"2s"}}`), 0o600)
		case <-deadline:
			t.Fatal("no config published")
		}
	}
}
