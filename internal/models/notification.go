package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Notification represents a configured alert channel
type Notification struct {
	ID        int                    `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string                 `json:"name" gorm:"not null"`
	Type      string                 `json:"type" gorm:"not null"` // webhook, smtp, redis
	Config    map[string]interface{} `json:"config" gorm:"-"`
	ConfigRaw string                 `json:"-" gorm:"column:config;type:text"`
	IsDefault bool                   `json:"is_default" gorm:"default:false"`
	Active    bool                   `json:"active" gorm:"default:true"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// TableName specifies the table name for Notification
func (Notification) TableName() string {
	return "notifications"
}

// AfterFind unmarshals the Config JSON after loading (GORM hook)
func (n *Notification) AfterFind(tx *gorm.DB) error {
	if n.ConfigRaw != "" {
		return json.Unmarshal([]byte(n.ConfigRaw), &n.Config)
	}
	return nil
}

// MonitorNotification links monitors to notifications
type MonitorNotification struct {
	MonitorID      int `gorm:"primaryKey;autoIncrement:false"`
	NotificationID int `gorm:"primaryKey;autoIncrement:false"`
}

// TableName specifies the table name for MonitorNotification
func (MonitorNotification) TableName() string {
	return "monitor_notifications"
}
