// Package store persists monitors, check results, agents and alert bookkeeping.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fuomag9/onlinetracker/internal/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// Results is the append-only check result log
type Results interface {
	// AppendResult stores r and reports whether it was new. A result with the same monitor,
	// time and source as a stored one is a redelivery and is not stored again.
	AppendResult(ctx context.Context, r *models.CheckResult) (bool, error)
	LatestResult(ctx context.Context, monitorID int) (*models.CheckResult, error)
	// ResultRange returns results with from <= checked_at < to in ascending time order
	ResultRange(ctx context.Context, monitorID int, from, to time.Time) ([]models.CheckResult, error)
	LatestResults(ctx context.Context, monitorIDs []int) (map[int]models.CheckResult, error)
	DeleteResultsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Monitors reads monitor definitions
type Monitors interface {
	// ServerMonitors returns enabled monitors without an agent
	ServerMonitors(ctx context.Context) ([]models.Monitor, error)
	// AgentMonitors returns enabled monitors assigned to agentID
	AgentMonitors(ctx context.Context, agentID string) ([]models.Monitor, error)
	GetMonitor(ctx context.Context, id int) (*models.Monitor, error)
	ListMonitors(ctx context.Context) ([]models.Monitor, error)
}

// Agents persists agent identities
type Agents interface {
	GetAgent(ctx context.Context, uuid string) (*models.Agent, error)
	SaveAgent(ctx context.Context, a *models.Agent) error
	ListAgents(ctx context.Context) ([]models.Agent, error)
	TouchAgent(ctx context.Context, uuid string, at time.Time) error
}

// AlertStates persists per-monitor alert state
type AlertStates interface {
	LoadAlertState(ctx context.Context, monitorID int) (*models.AlertState, error)
	SaveAlertState(ctx context.Context, s *models.AlertState) error
}

// AlertLog records emitted alerts
type AlertLog interface {
	RecordAlert(ctx context.Context, r *models.AlertRecord) error
	ListAlerts(ctx context.Context, monitorID int, limit int) ([]models.AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Notifications resolves the channels an alert for a monitor goes to
type Notifications interface {
	// NotificationsFor returns the active channels linked to the monitor, or the active
	// default channels when none are linked
	NotificationsFor(ctx context.Context, monitorID int) ([]models.Notification, error)
	GetNotification(ctx context.Context, id int) (*models.Notification, error)
}

// Store is the full persistence surface
type Store interface {
	Results
	Monitors
	Agents
	AlertStates
	AlertLog
	Notifications
}
