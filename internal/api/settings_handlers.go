package api

import (
	"net/http"

	"github.com/fuomag9/onlinetracker/internal/settings"
)

// EffectiveSettings is the runtime settings snapshot as the engine currently sees it
type EffectiveSettings struct {
	CheckIntervalSeconds    int      `json:"check_interval_seconds"`
	CheckTimeoutSeconds     int      `json:"check_timeout_seconds"`
	PingCount               int      `json:"ping_count"`
	PingOKThresholdMs       int      `json:"ping_ok_threshold_ms"`
	PingDegradedThresholdMs int      `json:"ping_degraded_threshold_ms"`
	HTTPRequestCount        int      `json:"http_request_count"`
	HTTPOKThresholdMs       int      `json:"http_ok_threshold_ms"`
	HTTPDegradedThresholdMs int      `json:"http_degraded_threshold_ms"`
	SSLOKThresholdDays      int      `json:"ssl_ok_threshold_days"`
	SSLWarningThresholdDays int      `json:"ssl_warning_threshold_days"`
	AlertType               string   `json:"alert_type"`
	AlertSeverityThreshold  string   `json:"alert_severity_threshold"`
	AlertRepeatMinutes      int      `json:"alert_repeat_frequency_minutes"`
	AlertOnRestored         bool     `json:"alert_on_restored"`
	AlertIncludeHistory     bool     `json:"alert_include_history"`
	AlertFailureThreshold   int      `json:"alert_failure_threshold"`
	AgentTimeoutMinutes     int      `json:"agent_timeout_minutes"`
	SharedSecretConfigured  bool     `json:"shared_secret_configured"`
	AllowedAgentUUIDs       []string `json:"allowed_agent_uuids"`
}

// NewEffectiveSettings renders s without exposing the shared secret
func NewEffectiveSettings(s settings.Settings) EffectiveSettings {
	allowed := s.AllowedAgents
	if allowed == nil {
		allowed = []string{}
	}
	return EffectiveSettings{
		CheckIntervalSeconds:    int(s.Defaults.Interval.Seconds()),
		CheckTimeoutSeconds:     int(s.Defaults.Timeout.Seconds()),
		PingCount:               s.Defaults.PingCount,
		PingOKThresholdMs:       s.Defaults.PingOKMs,
		PingDegradedThresholdMs: s.Defaults.PingDegradedMs,
		HTTPRequestCount:        s.Defaults.HTTPRequestCount,
		HTTPOKThresholdMs:       s.Defaults.HTTPOKMs,
		HTTPDegradedThresholdMs: s.Defaults.HTTPDegradedMs,
		SSLOKThresholdDays:      s.Defaults.TLSOKDays,
		SSLWarningThresholdDays: s.Defaults.TLSWarningDays,
		AlertType:               string(s.AlertMode),
		AlertSeverityThreshold:  string(s.AlertSeverityThreshold),
		AlertRepeatMinutes:      int(s.RepeatFrequency.Minutes()),
		AlertOnRestored:         s.AlertOnRestored,
		AlertIncludeHistory:     s.IncludeHistory,
		AlertFailureThreshold:   s.FailureThreshold,
		AgentTimeoutMinutes:     int(s.AgentTimeout.Minutes()),
		SharedSecretConfigured:  s.SharedSecret != "",
		AllowedAgentUUIDs:       allowed,
	}
}

// HandleGetSettings returns the effective runtime settings
func HandleGetSettings(provider settings.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := provider.Current(r.Context())
		if err != nil {
			w.Header().Set("X-Settings-Stale", "true")
		}
		writeJSON(w, http.StatusOK, NewEffectiveSettings(s))
	}
}
