package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanRelay chan string

func (c chanRelay) Relay(_ context.Context, line string) error {
	c <- line
	return nil
}

func TestRelaySinkForwardsAboveMinLevel(t *testing.T) {
	relay := make(chanRelay, 4)
	svc, log := New(Config{
		Level: "debug",
		Relay: RelayConfig{Enabled: true, MinLevel: "warn", RatePerSec: 10},
	}, relay)
	defer svc.Close()

	log.Info("quiet")
	log.Warn("wake grant failed", String("alert", "a-1"))

	select {
	case line := <-relay:
		assert.Contains(t, line, "[WARN] wake grant failed")
		assert.Contains(t, line, "alert=a-1")
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not receive the warning")
	}

	select {
	case line := <-relay:
		t.Fatalf("unexpected relay line: %s", line)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWriterLoggerCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "engine"))
	log.Debug("dispatch", Int("steps", 3), Bool("settled", true))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "engine", rec["comp"])
	assert.Equal(t, float64(3), rec["steps"])
	assert.Equal(t, true, rec["settled"])
	assert.Equal(t, "dispatch", rec["message"])
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var log Logger
	assert.True(t, log.IsZero())
	log.Error("nothing happens")
	assert.False(t, Nop().IsZero())
}

func TestFormatRelayJSONFallsBackToRaw(t *testing.T) {
	assert.Equal(t, "not json", formatRelayJSON([]byte("  not json \n")))
}
