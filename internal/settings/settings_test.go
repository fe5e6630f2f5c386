package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOverlaysValues(t *testing.T) {
	s := Parse(map[string]string{
		KeyCheckInterval:          "120",
		KeyPingCount:              "7",
		KeyHTTPOK:                 "150",
		KeyHTTPDegraded:           "100",
		KeyAlertType:              "Repeated",
		KeyAlertSeverityThreshold: "down_only",
		KeyAlertRepeatMinutes:     "30",
		KeyAlertOnRestored:        "0",
		KeyAlertIncludeHistory:    "last_24h",
		KeyAlertFailureThreshold:  "3",
		KeyAgentTimeoutMinutes:    "10",
		KeySharedSecret:           " hunter2 ",
		KeyAllowedAgents:          "a1, b2\nc3",
	}, Default())

	assert.Equal(t, 120*time.Second, s.Defaults.Interval)
	assert.Equal(t, 7, s.Defaults.PingCount)
	assert.Equal(t, 150, s.Defaults.HTTPOKMs)
	assert.Equal(t, 150, s.Defaults.HTTPDegradedMs, "degraded clamped up to ok")
	assert.Equal(t, AlertRepeated, s.AlertMode)
	assert.Equal(t, ThresholdDownOnly, s.AlertSeverityThreshold)
	assert.Equal(t, 30*time.Minute, s.RepeatFrequency)
	assert.False(t, s.AlertOnRestored)
	assert.True(t, s.IncludeHistory)
	assert.Equal(t, 3, s.FailureThreshold)
	assert.Equal(t, 10*time.Minute, s.AgentTimeout)
	assert.Equal(t, "hunter2", s.SharedSecret)
	assert.Equal(t, []string{"a1", "b2", "c3"}, s.AllowedAgents)
	assert.True(t, s.AgentAllowed("B2"))
	assert.False(t, s.AgentAllowed("d4"))
}

func TestParseKeepsDefaultsForGarbage(t *testing.T) {
	base := Default()
	base.SharedSecret = "bootstrap"
	s := Parse(map[string]string{
		KeyPingCount:             "lots",
		KeyAlertType:             "sometimes",
		KeyAlertOnRestored:       "maybe",
		KeyAlertFailureThreshold: "99",
		KeyCheckInterval:         "1",
		KeySharedSecret:          "  ",
	}, base)

	assert.Equal(t, base.Defaults.PingCount, s.Defaults.PingCount)
	assert.Equal(t, AlertOnce, s.AlertMode)
	assert.True(t, s.AlertOnRestored)
	assert.Equal(t, 10, s.FailureThreshold)
	assert.Equal(t, 10*time.Second, s.Defaults.Interval)
	assert.Equal(t, "bootstrap", s.SharedSecret)
}

func TestStoreCachesForTTL(t *testing.T) {
	calls := 0
	values := map[string]string{KeyAlertType: "none"}
	store := newStore(func(ctx context.Context) (map[string]string, error) {
		calls++
		return values, nil
	}, Default(), 5*time.Second, nil)

	now := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return now }

	s, err := store.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, AlertNone, s.AlertMode)

	values = map[string]string{KeyAlertType: "repeated"}
	_, _ = store.Current(context.Background())
	assert.Equal(t, 1, calls)

	now = now.Add(5 * time.Second)
	s, _ = store.Current(context.Background())
	assert.Equal(t, 2, calls)
	assert.Equal(t, AlertRepeated, s.AlertMode)

	values = map[string]string{KeyAlertType: "once"}
	store.Invalidate()
	s, _ = store.Current(context.Background())
	assert.Equal(t, 3, calls)
	assert.Equal(t, AlertOnce, s.AlertMode)
}

func TestStoreServesPreviousSnapshotOnError(t *testing.T) {
	fail := false
	store := newStore(func(ctx context.Context) (map[string]string, error) {
		if fail {
			return nil, errors.New("connection reset")
		}
		return map[string]string{KeyAlertFailureThreshold: "4"}, nil
	}, Default(), 0, nil)

	s, err := store.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, s.FailureThreshold)

	fail = true
	s, err = store.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, s.FailureThreshold)
}

func TestStoreFirstLoadError(t *testing.T) {
	store := newStore(func(ctx context.Context) (map[string]string, error) {
		return nil, errors.New("no database")
	}, Default(), time.Second, nil)

	s, err := store.Current(context.Background())
	require.Error(t, err)
	assert.Equal(t, Default().FailureThreshold, s.FailureThreshold)
}
