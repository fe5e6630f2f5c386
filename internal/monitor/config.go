package monitor

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Limits applied to every decoded config
const (
	MinCount = 1
	MaxCount = 10

	MinInterval = 10 * time.Second
	MaxInterval = 3600 * time.Second
)

// Defaults are the per-type values used when a monitor does not override them
type Defaults struct {
	PingCount        int
	PingOKMs         int
	PingDegradedMs   int
	HTTPRequestCount int
	HTTPOKMs         int
	HTTPDegradedMs   int
	TLSOKDays        int
	TLSWarningDays   int
	Timeout          time.Duration
	Interval         time.Duration
}

// DefaultDefaults returns the built-in defaults
func DefaultDefaults() Defaults {
	return Defaults{
		PingCount:        5,
		PingOKMs:         80,
		PingDegradedMs:   200,
		HTTPRequestCount: 3,
		HTTPOKMs:         80,
		HTTPDegradedMs:   200,
		TLSOKDays:        30,
		TLSWarningDays:   14,
		Timeout:          10 * time.Second,
		Interval:         60 * time.Second,
	}
}

// Config is the decoded, clamped per-monitor configuration. It is also the
// configuration shipped to agents in assignments.
type Config struct {
	PingCount            int           `json:"ping_count" mapstructure:"ping_count"`
	RequestCount         int           `json:"request_count" mapstructure:"request_count"`
	OKThresholdMs        int           `json:"ok_threshold_ms" mapstructure:"ok_threshold_ms"`
	DegradedThresholdMs  int           `json:"degraded_threshold_ms" mapstructure:"degraded_threshold_ms"`
	ExpectedStatus       int           `json:"expected_status,omitempty" mapstructure:"expected_status"`
	ExpectedContent      string        `json:"expected_content,omitempty" mapstructure:"expected_content"`
	ExpectedBodyHash     string        `json:"expected_body_hash,omitempty" mapstructure:"expected_body_hash"`
	VerifyTLS            bool          `json:"verify_tls,omitempty" mapstructure:"verify_tls"`
	Privileged           bool          `json:"privileged,omitempty" mapstructure:"privileged"`
	OKThresholdDays      int           `json:"ok_threshold_days" mapstructure:"ok_threshold_days"`
	WarningThresholdDays int           `json:"warning_threshold_days" mapstructure:"warning_threshold_days"`
	Timeout              time.Duration `json:"timeout" mapstructure:"-"`
}

// DecodeConfig overlays a monitor's raw JSON config on the defaults for kind and clamps
// every value into range. Invalid values are reported as an error together with the
// clamped config so callers may log and continue.
func DecodeConfig(kind Kind, raw map[string]interface{}, d Defaults) (Config, error) {
	cfg := Config{
		PingCount:            d.PingCount,
		RequestCount:         d.HTTPRequestCount,
		OKThresholdMs:        d.HTTPOKMs,
		DegradedThresholdMs:  d.HTTPDegradedMs,
		OKThresholdDays:      d.TLSOKDays,
		WarningThresholdDays: d.TLSWarningDays,
		Timeout:              d.Timeout,
	}
	if kind == KindPing {
		cfg.OKThresholdMs = d.PingOKMs
		cfg.DegradedThresholdMs = d.PingDegradedMs
	}

	var decodeErr error
	if len(raw) > 0 {
		var overrides struct {
			TimeoutSeconds float64 `mapstructure:"timeout_seconds"`
		}
		for _, out := range []interface{}{&cfg, &overrides} {
			if err := weakDecode(raw, out); err != nil && decodeErr == nil {
				decodeErr = fmt.Errorf("invalid monitor config: %w", err)
			}
		}
		if overrides.TimeoutSeconds > 0 {
			cfg.Timeout = time.Duration(overrides.TimeoutSeconds * float64(time.Second))
		}
	}

	return cfg.clamped(), decodeErr
}

func weakDecode(raw map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

// clamped returns c with every count and threshold forced into a usable range
func (c Config) clamped() Config {
	c.PingCount = clamp(c.PingCount, MinCount, MaxCount)
	c.RequestCount = clamp(c.RequestCount, MinCount, MaxCount)
	if c.OKThresholdMs < 1 {
		c.OKThresholdMs = 1
	}
	if c.DegradedThresholdMs < c.OKThresholdMs {
		c.DegradedThresholdMs = c.OKThresholdMs
	}
	if c.WarningThresholdDays < 1 {
		c.WarningThresholdDays = 1
	}
	if c.OKThresholdDays < c.WarningThresholdDays {
		c.OKThresholdDays = c.WarningThresholdDays
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultDefaults().Timeout
	}
	if c.Timeout > MaxInterval {
		c.Timeout = MaxInterval
	}
	return c
}

// ClampInterval forces a monitor interval into the supported window
func ClampInterval(seconds int) time.Duration {
	d := time.Duration(seconds) * time.Second
	if d < MinInterval {
		return MinInterval
	}
	if d > MaxInterval {
		return MaxInterval
	}
	return d
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
