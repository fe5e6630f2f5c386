// Package alert decides when a monitor's results warrant a notification.
package alert

import (
	"time"

	"github.com/fuomag9/onlinetracker/internal/models"
	"github.com/fuomag9/onlinetracker/internal/settings"
)

// Policy is the alerting configuration applied to one monitor
type Policy struct {
	Mode             settings.AlertMode
	Threshold        settings.SeverityThreshold
	RepeatFrequency  time.Duration
	OnRestored       bool
	FailureThreshold int
}

// PolicyFor combines the runtime settings with the monitor's own failure threshold
func PolicyFor(s settings.Settings, m *models.Monitor) Policy {
	threshold := s.FailureThreshold
	if m != nil && m.AlertFailureThreshold > 0 {
		threshold = m.AlertFailureThreshold
	}
	if threshold < 1 {
		threshold = 1
	}
	if threshold > 10 {
		threshold = 10
	}
	return Policy{
		Mode:             s.AlertMode,
		Threshold:        s.AlertSeverityThreshold,
		RepeatFrequency:  s.RepeatFrequency,
		OnRestored:       s.AlertOnRestored,
		FailureThreshold: threshold,
	}
}

// alertable reports whether a bad severity passes the severity threshold
func (p Policy) alertable(sev models.Severity) bool {
	if !sev.Failing() {
		return false
	}
	return p.Threshold != settings.ThresholdDownOnly || sev == models.SeverityDown
}

// Decision is the outcome of applying one result to a monitor's alert state
type Decision struct {
	// Applied is false when the result was a duplicate or older than the last one processed
	Applied bool
	State   models.AlertState
	// Kind is the notification to emit, empty for none
	Kind  string
	Prior models.Severity
}

// NewState returns the initial state for a monitor that has no results yet
func NewState(monitorID int) models.AlertState {
	return models.AlertState{
		MonitorID:            monitorID,
		CurrentSeverity:      models.SeverityUnknown,
		LastNotifiedSeverity: models.SeverityUp,
	}
}

// Decide applies result to prev under policy. prev may be nil for a monitor seen for the
// first time. The result timestamp is the clock for every time comparison.
func Decide(prev *models.AlertState, result models.CheckResult, p Policy) Decision {
	var state models.AlertState
	if prev == nil {
		state = NewState(result.MonitorID)
	} else {
		state = *prev
		if !result.CheckedAt.After(prev.LastResultAt) {
			return Decision{State: state, Prior: state.CurrentSeverity}
		}
	}

	d := Decision{Applied: true, Prior: state.CurrentSeverity}
	now := result.CheckedAt
	sev := result.Severity
	state.LastResultAt = now
	state.CurrentSeverity = sev

	// Unknown carries no information about the target
	if sev == models.SeverityUnknown || !sev.Valid() {
		state.CurrentSeverity = models.SeverityUnknown
		d.State = state
		return d
	}

	if sev.Failing() {
		state.ConsecutiveFailures++
		state.ConsecutiveSuccesses = 0
	} else {
		state.ConsecutiveSuccesses++
		state.ConsecutiveFailures = 0
	}

	if p.Mode == settings.AlertNone {
		if !sev.Failing() {
			state.LastNotifiedSeverity = models.SeverityUp
		}
		d.State = state
		return d
	}

	switch {
	case sev.Failing():
		notifiedBad := state.NotifiedBad()
		switch {
		case p.alertable(sev) && state.ConsecutiveFailures >= p.FailureThreshold &&
			(!notifiedBad || sev.WorseThan(state.LastNotifiedSeverity)):
			d.Kind = models.AlertKindAlert
			state.LastNotifiedSeverity = sev
			state.LastNotifiedAt = &now
		case p.Mode == settings.AlertRepeated && notifiedBad && p.alertable(sev) &&
			state.LastNotifiedAt != nil && now.Sub(*state.LastNotifiedAt) >= p.RepeatFrequency:
			d.Kind = models.AlertKindReminder
			state.LastNotifiedAt = &now
		}

	case state.NotifiedBad():
		suppressed := state.LastNotifiedSeverity == models.SeverityDegraded && p.Threshold == settings.ThresholdDownOnly
		if p.OnRestored && !suppressed {
			d.Kind = models.AlertKindRestored
			state.LastNotifiedAt = &now
		}
		state.LastNotifiedSeverity = models.SeverityUp
	}

	d.State = state
	return d
}
