package settings

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/fuomag9/onlinetracker/internal/monitor"
)

// AlertMode controls whether and how often bad states are notified
type AlertMode string

const (
	AlertOnce     AlertMode = "once"
	AlertRepeated AlertMode = "repeated"
	AlertNone     AlertMode = "none"
)

// SeverityThreshold selects which bad severities raise alerts
type SeverityThreshold string

const (
	ThresholdAll      SeverityThreshold = "all"
	ThresholdDownOnly SeverityThreshold = "down_only"
)

// Setting keys
const (
	KeyCheckInterval          = "check_interval_seconds"
	KeyCheckTimeout           = "check_timeout_seconds"
	KeyPingCount              = "ping_count"
	KeyPingOK                 = "ping_ok_threshold_ms"
	KeyPingDegraded           = "ping_degraded_threshold_ms"
	KeyHTTPRequestCount       = "http_request_count"
	KeyHTTPOK                 = "http_ok_threshold_ms"
	KeyHTTPDegraded           = "http_degraded_threshold_ms"
	KeySSLOKDays              = "ssl_ok_threshold_days"
	KeySSLWarningDays         = "ssl_warning_threshold_days"
	KeyAlertType              = "alert_type"
	KeyAlertSeverityThreshold = "alert_severity_threshold"
	KeyAlertRepeatMinutes     = "alert_repeat_frequency_minutes"
	KeyAlertOnRestored        = "alert_on_restored"
	KeyAlertIncludeHistory    = "alert_include_history"
	KeyAlertFailureThreshold  = "alert_failure_threshold"
	KeyAgentTimeoutMinutes    = "agent_timeout_minutes"
	KeySharedSecret           = "shared_secret"
	KeyAllowedAgents          = "allowed_agent_uuids"
)

// Settings is a snapshot of the runtime-tunable engine settings
type Settings struct {
	Defaults               monitor.Defaults
	AlertMode              AlertMode
	AlertSeverityThreshold SeverityThreshold
	RepeatFrequency        time.Duration
	AlertOnRestored        bool
	IncludeHistory         bool
	FailureThreshold       int
	AgentTimeout           time.Duration
	SharedSecret           string
	AllowedAgents          []string
}

// Default returns the built-in settings
func Default() Settings {
	return Settings{
		Defaults:               monitor.DefaultDefaults(),
		AlertMode:              AlertOnce,
		AlertSeverityThreshold: ThresholdAll,
		RepeatFrequency:        15 * time.Minute,
		AlertOnRestored:        true,
		IncludeHistory:         false,
		FailureThreshold:       2,
		AgentTimeout:           5 * time.Minute,
	}
}

// AgentAllowed reports whether uuid is on the allow-list
func (s Settings) AgentAllowed(uuid string) bool {
	for _, allowed := range s.AllowedAgents {
		if strings.EqualFold(allowed, uuid) {
			return true
		}
	}
	return false
}

// Provider exposes the current settings. Implementations must not cache indefinitely.
type Provider interface {
	Current(ctx context.Context) (Settings, error)
}

// Static is a Provider returning a fixed snapshot
type Static Settings

// Current returns the snapshot
func (s Static) Current(ctx context.Context) (Settings, error) {
	return Settings(s), nil
}

// Parse overlays stored key/value pairs on base. Unparseable values keep the base value and
// every number is clamped into its supported range.
func Parse(values map[string]string, base Settings) Settings {
	s := base
	d := &s.Defaults

	seconds := func(key string, cur time.Duration, lo, hi int) time.Duration {
		return time.Duration(intValue(values, key, int(cur/time.Second), lo, hi)) * time.Second
	}
	minutes := func(key string, cur time.Duration, lo, hi int) time.Duration {
		return time.Duration(intValue(values, key, int(cur/time.Minute), lo, hi)) * time.Minute
	}

	d.Interval = seconds(KeyCheckInterval, d.Interval, 10, 3600)
	d.Timeout = seconds(KeyCheckTimeout, d.Timeout, 1, 300)
	d.PingCount = intValue(values, KeyPingCount, d.PingCount, monitor.MinCount, monitor.MaxCount)
	d.PingOKMs = intValue(values, KeyPingOK, d.PingOKMs, 1, 60000)
	d.PingDegradedMs = intValue(values, KeyPingDegraded, d.PingDegradedMs, d.PingOKMs, 60000)
	d.HTTPRequestCount = intValue(values, KeyHTTPRequestCount, d.HTTPRequestCount, monitor.MinCount, monitor.MaxCount)
	d.HTTPOKMs = intValue(values, KeyHTTPOK, d.HTTPOKMs, 1, 60000)
	d.HTTPDegradedMs = intValue(values, KeyHTTPDegraded, d.HTTPDegradedMs, d.HTTPOKMs, 60000)
	d.TLSWarningDays = intValue(values, KeySSLWarningDays, d.TLSWarningDays, 1, 365)
	d.TLSOKDays = intValue(values, KeySSLOKDays, d.TLSOKDays, d.TLSWarningDays, 365)

	switch mode := AlertMode(strings.ToLower(strings.TrimSpace(values[KeyAlertType]))); mode {
	case AlertOnce, AlertRepeated, AlertNone:
		s.AlertMode = mode
	}
	switch th := SeverityThreshold(strings.ToLower(strings.TrimSpace(values[KeyAlertSeverityThreshold]))); th {
	case ThresholdAll, ThresholdDownOnly:
		s.AlertSeverityThreshold = th
	}

	s.RepeatFrequency = minutes(KeyAlertRepeatMinutes, s.RepeatFrequency, 1, 7*24*60)
	s.AlertOnRestored = boolValue(values, KeyAlertOnRestored, s.AlertOnRestored)
	if v, ok := values[KeyAlertIncludeHistory]; ok {
		switch strings.TrimSpace(v) {
		case "last_24h":
			s.IncludeHistory = true
		case "event_only":
			s.IncludeHistory = false
		}
	}
	s.FailureThreshold = intValue(values, KeyAlertFailureThreshold, s.FailureThreshold, 1, 10)
	s.AgentTimeout = minutes(KeyAgentTimeoutMinutes, s.AgentTimeout, 1, 24*60)

	if v, ok := values[KeySharedSecret]; ok && strings.TrimSpace(v) != "" {
		s.SharedSecret = strings.TrimSpace(v)
	}
	if v, ok := values[KeyAllowedAgents]; ok {
		s.AllowedAgents = splitList(v)
	}

	return s
}

func intValue(values map[string]string, key string, fallback, lo, hi int) int {
	v := fallback
	if raw, ok := values[key]; ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			v = parsed
		}
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func boolValue(values map[string]string, key string, fallback bool) bool {
	raw, ok := values[key]
	if !ok {
		return fallback
	}
	if parsed, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
		return parsed
	}
	return fallback
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' || r == ' ' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
