package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuomag9/onlinetracker/internal/models"
)

func TestDecodeConfigDefaults(t *testing.T) {
	d := DefaultDefaults()

	ping, err := DecodeConfig(KindPing, nil, d)
	require.NoError(t, err)
	assert.Equal(t, 5, ping.PingCount)
	assert.Equal(t, 80, ping.OKThresholdMs)
	assert.Equal(t, 200, ping.DegradedThresholdMs)
	assert.Equal(t, 10*time.Second, ping.Timeout)

	tlsCfg, err := DecodeConfig(KindTLS, nil, d)
	require.NoError(t, err)
	assert.Equal(t, 30, tlsCfg.OKThresholdDays)
	assert.Equal(t, 14, tlsCfg.WarningThresholdDays)
}

func TestDecodeConfigOverridesAndClamps(t *testing.T) {
	raw := map[string]interface{}{
		"ping_count":            50.0,
		"request_count":         "0",
		"ok_threshold_ms":       120.0,
		"degraded_threshold_ms": 100.0,
		"expected_status":       200.0,
		"expected_content":      "healthy",
	}
	cfg, err := DecodeConfig(KindHTTP, raw, DefaultDefaults())
	require.NoError(t, err)

	assert.Equal(t, MaxCount, cfg.PingCount)
	assert.Equal(t, MinCount, cfg.RequestCount)
	assert.Equal(t, 120, cfg.OKThresholdMs)
	assert.Equal(t, 120, cfg.DegradedThresholdMs, "degraded never below ok")
	assert.Equal(t, 200, cfg.ExpectedStatus)
	assert.Equal(t, "healthy", cfg.ExpectedContent)
}

func TestDecodeConfigInvalidValueFallsBack(t *testing.T) {
	cfg, err := DecodeConfig(KindPing, map[string]interface{}{"ping_count": "many"}, DefaultDefaults())
	require.Error(t, err)
	assert.GreaterOrEqual(t, cfg.PingCount, MinCount)
	assert.LessOrEqual(t, cfg.PingCount, MaxCount)
}

func TestClampInterval(t *testing.T) {
	assert.Equal(t, MinInterval, ClampInterval(1))
	assert.Equal(t, 60*time.Second, ClampInterval(60))
	assert.Equal(t, MaxInterval, ClampInterval(86400))
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"ping", "http", "https", "tls"} {
		k, err := ParseKind(s)
		require.NoError(t, err)
		assert.Equal(t, Kind(s), k)
	}
	_, err := ParseKind("docker")
	assert.Error(t, err)
}

func TestMonitorTimeoutOverride(t *testing.T) {
	cfg, err := DecodeConfig(KindHTTP, map[string]interface{}{"timeout_seconds": "5"}, DefaultDefaults())
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Timeout)

	cfg, err = DecodeConfig(KindHTTP, map[string]interface{}{"timeout_seconds": 0.0}, DefaultDefaults())
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Timeout, "zero keeps the default")

	cfg, err = DecodeConfig(KindHTTP, map[string]interface{}{"timeout_seconds": 99999.0}, DefaultDefaults())
	require.NoError(t, err)
	assert.Equal(t, MaxInterval, cfg.Timeout)

	job, err := JobFor(&models.Monitor{
		ID: 3, Type: models.MonitorTypeHTTP, Target: "example.com", Interval: 30,
		Config: map[string]interface{}{"timeout_seconds": 45.0},
	}, DefaultDefaults())
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, job.Config.Timeout, "never longer than the interval")
}
