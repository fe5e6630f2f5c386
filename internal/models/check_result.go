package models

import "time"

// CheckResult is one probe outcome. Rows are append-only.
type CheckResult struct {
	ID               int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	MonitorID        int       `json:"monitor_id" gorm:"not null;index:idx_results_monitor_time;uniqueIndex:idx_results_delivery"`
	CheckedAt        time.Time `json:"checked_at" gorm:"not null;index:idx_results_monitor_time,sort:desc;index:idx_results_time;uniqueIndex:idx_results_delivery"`
	Severity         Severity  `json:"status" gorm:"type:varchar(16);not null"`
	LatencyMs        *int      `json:"latency_ms"`
	Detail           string    `json:"detail" gorm:"type:text"`
	TLSDaysRemaining *int      `json:"tls_days_remaining,omitempty"`
	ContentHash      string    `json:"content_hash,omitempty" gorm:"type:varchar(128)"`
	Source           string    `json:"source" gorm:"type:varchar(64);not null;default:'';uniqueIndex:idx_results_delivery"` // "server" or the reporting agent uuid
}

// TableName specifies the table name for CheckResult
func (CheckResult) TableName() string {
	return "check_results"
}
