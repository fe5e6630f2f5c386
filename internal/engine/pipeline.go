// Package engine connects check execution to persistence, the live feed and alerting.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fuomag9/onlinetracker/internal/alert"
	"github.com/fuomag9/onlinetracker/internal/models"
	"github.com/fuomag9/onlinetracker/internal/monitor"
	"github.com/fuomag9/onlinetracker/internal/store"
	"github.com/fuomag9/onlinetracker/internal/websocket"
)

// Broadcaster pushes live updates to dashboard clients
type Broadcaster interface {
	Broadcast(msgType string, monitorID int, payload interface{}) error
}

// Pipeline is the single path every check result takes, whether it was produced locally
// or reported by an agent
type Pipeline struct {
	results  store.Results
	monitors store.Monitors
	alerts   *alert.Engine
	hub      Broadcaster
	logger   *zap.Logger
}

// NewPipeline creates a new result pipeline. hub may be nil.
func NewPipeline(results store.Results, monitors store.Monitors, alerts *alert.Engine, hub Broadcaster, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{results: results, monitors: monitors, alerts: alerts, hub: hub, logger: logger}
}

// Handle appends result, publishes it and runs it through the alert engine
func (p *Pipeline) Handle(ctx context.Context, m *models.Monitor, result models.CheckResult) (*alert.Event, error) {
	result.MonitorID = m.ID
	inserted, err := p.results.AppendResult(ctx, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to store result for monitor %d: %w", m.ID, err)
	}

	// A redelivered result still reaches the alert engine, which ignores it unless an
	// earlier attempt failed before processing it.
	if inserted {
		p.broadcast(websocket.TypeCheckResult, m.ID, result)
	} else {
		p.logger.Debug("duplicate result delivery",
			zap.Int("monitor_id", m.ID), zap.Time("checked_at", result.CheckedAt), zap.String("source", result.Source))
	}

	ev, err := p.alerts.Process(ctx, m, result)
	if err != nil {
		return nil, err
	}
	if ev != nil {
		p.broadcast(websocket.TypeAlert, m.ID, ev)
	}
	return ev, nil
}

// HandleJob resolves the job's monitor and handles result. It matches
// monitor.ResultHandler.
func (p *Pipeline) HandleJob(ctx context.Context, job monitor.Job, result models.CheckResult) {
	m, err := p.monitors.GetMonitor(ctx, job.MonitorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.logger.Debug("dropping result for deleted monitor", zap.Int("monitor_id", job.MonitorID))
			return
		}
		p.logger.Error("failed to load monitor", zap.Int("monitor_id", job.MonitorID), zap.Error(err))
		return
	}

	if _, err := p.Handle(ctx, m, result); err != nil {
		p.logger.Error("failed to handle check result", zap.Int("monitor_id", job.MonitorID), zap.Error(err))
	}
}

func (p *Pipeline) broadcast(msgType string, monitorID int, payload interface{}) {
	if p.hub == nil {
		return
	}
	if err := p.hub.Broadcast(msgType, monitorID, payload); err != nil {
		p.logger.Debug("broadcast failed", zap.String("type", msgType), zap.Error(err))
	}
}
