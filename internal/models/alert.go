package models

import "time"

// AlertState is the per-monitor bookkeeping behind notification decisions
type AlertState struct {
	MonitorID            int        `json:"monitor_id" gorm:"primaryKey;autoIncrement:false"`
	CurrentSeverity      Severity   `json:"current_severity" gorm:"type:varchar(16)"`
	LastNotifiedSeverity Severity   `json:"last_notified_severity" gorm:"type:varchar(16)"`
	LastNotifiedAt       *time.Time `json:"last_notified_at"`
	ConsecutiveFailures  int        `json:"consecutive_failures"`
	ConsecutiveSuccesses int        `json:"consecutive_successes"`
	LastResultAt         time.Time  `json:"last_result_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// TableName specifies the table name for AlertState
func (AlertState) TableName() string {
	return "alert_states"
}

// NotifiedBad reports whether the last notification sent for this monitor was a failure
func (s *AlertState) NotifiedBad() bool {
	return s.LastNotifiedSeverity.Failing()
}

// Alert kinds recorded in the alert log
const (
	AlertKindAlert    = "alert"
	AlertKindReminder = "reminder"
	AlertKindRestored = "restored"
)

// AlertRecord logs a notification the engine attempted to send
type AlertRecord struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	MonitorID int       `json:"monitor_id" gorm:"not null;index"`
	Kind      string    `json:"kind" gorm:"type:varchar(16);not null"`
	Severity  Severity  `json:"severity" gorm:"type:varchar(16);not null"`
	Detail    string    `json:"detail" gorm:"type:text"`
	SentAt    time.Time `json:"sent_at" gorm:"not null;index"`
}

// TableName specifies the table name for AlertRecord
func (AlertRecord) TableName() string {
	return "alerts"
}
