package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fuomag9/onlinetracker/internal/models"
)

// Gorm implements Store on a gorm database
type Gorm struct {
	db *gorm.DB
}

// NewGorm creates a new gorm-backed store
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (g *Gorm) AppendResult(ctx context.Context, r *models.CheckResult) (bool, error) {
	res := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "monitor_id"}, {Name: "checked_at"}, {Name: "source"}},
			DoNothing: true,
		}).
		Create(r)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (g *Gorm) LatestResult(ctx context.Context, monitorID int) (*models.CheckResult, error) {
	var r models.CheckResult
	err := g.db.WithContext(ctx).
		Where("monitor_id = ?", monitorID).
		Order("checked_at DESC, id DESC").
		First(&r).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (g *Gorm) ResultRange(ctx context.Context, monitorID int, from, to time.Time) ([]models.CheckResult, error) {
	var results []models.CheckResult
	err := g.db.WithContext(ctx).
		Where("monitor_id = ? AND checked_at >= ? AND checked_at < ?", monitorID, from, to).
		Order("checked_at ASC, id ASC").
		Find(&results).Error
	return results, err
}

func (g *Gorm) LatestResults(ctx context.Context, monitorIDs []int) (map[int]models.CheckResult, error) {
	out := make(map[int]models.CheckResult, len(monitorIDs))
	if len(monitorIDs) == 0 {
		return out, nil
	}

	var rows []models.CheckResult
	err := g.db.WithContext(ctx).Raw(`
		SELECT DISTINCT ON (monitor_id) *
		FROM check_results
		WHERE monitor_id IN ?
		ORDER BY monitor_id, checked_at DESC, id DESC`, monitorIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.MonitorID] = r
	}
	return out, nil
}

func (g *Gorm) DeleteResultsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := g.db.WithContext(ctx).Where("checked_at < ?", cutoff).Delete(&models.CheckResult{})
	return res.RowsAffected, res.Error
}

func (g *Gorm) ServerMonitors(ctx context.Context) ([]models.Monitor, error) {
	var monitors []models.Monitor
	err := g.db.WithContext(ctx).
		Where("enabled = ? AND agent_id IS NULL", true).
		Order("id").
		Find(&monitors).Error
	return monitors, err
}

func (g *Gorm) AgentMonitors(ctx context.Context, agentID string) ([]models.Monitor, error) {
	var monitors []models.Monitor
	err := g.db.WithContext(ctx).
		Where("enabled = ? AND agent_id = ?", true, agentID).
		Order("id").
		Find(&monitors).Error
	return monitors, err
}

func (g *Gorm) GetMonitor(ctx context.Context, id int) (*models.Monitor, error) {
	var m models.Monitor
	if err := g.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (g *Gorm) ListMonitors(ctx context.Context) ([]models.Monitor, error) {
	var monitors []models.Monitor
	err := g.db.WithContext(ctx).Order("id").Find(&monitors).Error
	return monitors, err
}

func (g *Gorm) GetAgent(ctx context.Context, uuid string) (*models.Agent, error) {
	var a models.Agent
	if err := g.db.WithContext(ctx).Where("uuid = ?", uuid).First(&a).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (g *Gorm) SaveAgent(ctx context.Context, a *models.Agent) error {
	return g.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(a).Error
}

func (g *Gorm) ListAgents(ctx context.Context) ([]models.Agent, error) {
	var agents []models.Agent
	err := g.db.WithContext(ctx).Order("first_attempt").Find(&agents).Error
	return agents, err
}

func (g *Gorm) TouchAgent(ctx context.Context, uuid string, at time.Time) error {
	res := g.db.WithContext(ctx).
		Model(&models.Agent{}).
		Where("uuid = ?", uuid).
		Update("last_seen", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) LoadAlertState(ctx context.Context, monitorID int) (*models.AlertState, error) {
	var s models.AlertState
	if err := g.db.WithContext(ctx).Where("monitor_id = ?", monitorID).First(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (g *Gorm) SaveAlertState(ctx context.Context, s *models.AlertState) error {
	return g.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(s).Error
}

func (g *Gorm) RecordAlert(ctx context.Context, r *models.AlertRecord) error {
	return g.db.WithContext(ctx).Create(r).Error
}

func (g *Gorm) ListAlerts(ctx context.Context, monitorID int, limit int) ([]models.AlertRecord, error) {
	var records []models.AlertRecord
	q := g.db.WithContext(ctx).Order("sent_at DESC, id DESC")
	if monitorID > 0 {
		q = q.Where("monitor_id = ?", monitorID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&records).Error
	return records, err
}

func (g *Gorm) DeleteAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := g.db.WithContext(ctx).Where("sent_at < ?", cutoff).Delete(&models.AlertRecord{})
	return res.RowsAffected, res.Error
}

func (g *Gorm) NotificationsFor(ctx context.Context, monitorID int) ([]models.Notification, error) {
	var linked []models.Notification
	err := g.db.WithContext(ctx).
		Joins("JOIN monitor_notifications ON monitor_notifications.notification_id = notifications.id").
		Where("monitor_notifications.monitor_id = ? AND notifications.active = ?", monitorID, true).
		Order("notifications.id").
		Find(&linked).Error
	if err != nil {
		return nil, err
	}
	if len(linked) > 0 {
		return linked, nil
	}

	var defaults []models.Notification
	err = g.db.WithContext(ctx).
		Where("is_default = ? AND active = ?", true, true).
		Order("id").
		Find(&defaults).Error
	return defaults, err
}

func (g *Gorm) GetNotification(ctx context.Context, id int) (*models.Notification, error) {
	var n models.Notification
	if err := g.db.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}
