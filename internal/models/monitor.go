package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Monitor types
const (
	MonitorTypePing  = "ping"
	MonitorTypeHTTP  = "http"
	MonitorTypeHTTPS = "https"
	MonitorTypeTLS   = "tls"
)

// Monitor represents a probe target. Rows are written by the management layer,
// the engine only reads them.
type Monitor struct {
	ID                    int                    `json:"id" gorm:"primaryKey;autoIncrement"`
	Name                  string                 `json:"name" gorm:"not null"`
	Type                  string                 `json:"type" gorm:"not null;index"`
	Target                string                 `json:"target" gorm:"not null"`
	AgentID               *string                `json:"agent_id" gorm:"column:agent_id;index"` // nil = checked by the server
	Interval              int                    `json:"interval" gorm:"default:60"`             // seconds
	Enabled               bool                   `json:"enabled" gorm:"default:true;index"`
	AlertFailureThreshold int                    `json:"alert_failure_threshold" gorm:"default:2"`
	Config                map[string]interface{} `json:"config" gorm:"-"`
	ConfigRaw             string                 `json:"-" gorm:"column:config;type:text"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
}

// TableName specifies the table name for Monitor
func (Monitor) TableName() string {
	return "monitors"
}

// Runner returns the owning runner label used in notifications
func (m *Monitor) Runner() string {
	if m.AgentID == nil {
		return "server"
	}
	return *m.AgentID
}

// BeforeSave marshals the Config map to JSON before saving (GORM hook)
func (m *Monitor) BeforeSave(tx *gorm.DB) error {
	if m.Config != nil {
		configJSON, err := json.Marshal(m.Config)
		if err != nil {
			return err
		}
		m.ConfigRaw = string(configJSON)
	}
	return nil
}

// AfterFind unmarshals the Config JSON after loading (GORM hook)
func (m *Monitor) AfterFind(tx *gorm.DB) error {
	if m.ConfigRaw != "" {
		return json.Unmarshal([]byte(m.ConfigRaw), &m.Config)
	}
	return nil
}
