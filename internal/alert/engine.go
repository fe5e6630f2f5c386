package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fuomag9/onlinetracker/internal/keylock"
	"github.com/fuomag9/onlinetracker/internal/metrics"
	"github.com/fuomag9/onlinetracker/internal/models"
	"github.com/fuomag9/onlinetracker/internal/settings"
	"github.com/fuomag9/onlinetracker/internal/store"
)

const historyWindow = 24 * time.Hour

// Event is the notification handed to channels
type Event struct {
	Kind                string               `json:"kind"`
	MonitorID           int                  `json:"monitor_id"`
	MonitorName         string               `json:"monitor_name"`
	MonitorType         string               `json:"monitor_type"`
	Target              string               `json:"target"`
	Runner              string               `json:"runner"`
	PriorStatus         models.Severity      `json:"prior_status"`
	NewStatus           models.Severity      `json:"new_status"`
	Detail              string               `json:"detail"`
	ConsecutiveFailures int                  `json:"consecutive_failures"`
	Timestamp           time.Time            `json:"timestamp"`
	History             []models.CheckResult `json:"history,omitempty"`
}

// Sink receives emitted events. Emit must not block on delivery.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, ev Event)

// Emit calls f
func (f SinkFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }

// Engine applies results to per-monitor alert state and emits events
type Engine struct {
	states   store.AlertStates
	log      store.AlertLog
	results  store.Results
	settings settings.Provider
	sink     Sink
	locks    keylock.Map[int]
	now      func() time.Time
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithNow overrides the clock used for UpdatedAt stamps
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a new alert engine
func NewEngine(st store.Store, provider settings.Provider, sink Sink, opts ...Option) *Engine {
	e := &Engine{
		states:   st,
		log:      st,
		results:  st,
		settings: provider,
		sink:     sink,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process applies one result for m. Results for the same monitor are serialized; results
// not newer than the last processed one are ignored. The returned event is nil when nothing
// was emitted.
func (e *Engine) Process(ctx context.Context, m *models.Monitor, result models.CheckResult) (*Event, error) {
	unlock := e.locks.Lock(m.ID)
	defer unlock()

	cfg, err := e.settings.Current(ctx)
	if err != nil {
		e.logger.Warn("using fallback alert settings", zap.Error(err))
	}

	prev, err := e.states.LoadAlertState(ctx, m.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to load alert state for monitor %d: %w", m.ID, err)
	}

	result.MonitorID = m.ID
	d := Decide(prev, result, PolicyFor(cfg, m))
	if !d.Applied {
		e.logger.Debug("ignoring stale result",
			zap.Int("monitor_id", m.ID), zap.Time("checked_at", result.CheckedAt))
		return nil, nil
	}

	d.State.UpdatedAt = e.now().UTC()
	if err := e.states.SaveAlertState(ctx, &d.State); err != nil {
		return nil, fmt.Errorf("failed to save alert state for monitor %d: %w", m.ID, err)
	}

	if d.Kind == "" {
		return nil, nil
	}

	ev := Event{
		Kind:                d.Kind,
		MonitorID:           m.ID,
		MonitorName:         m.Name,
		MonitorType:         m.Type,
		Target:              m.Target,
		Runner:              m.Runner(),
		PriorStatus:         d.Prior,
		NewStatus:           result.Severity,
		Detail:              result.Detail,
		ConsecutiveFailures: d.State.ConsecutiveFailures,
		Timestamp:           result.CheckedAt,
	}

	if cfg.IncludeHistory {
		history, err := e.results.ResultRange(ctx, m.ID, result.CheckedAt.Add(-historyWindow), result.CheckedAt.Add(time.Nanosecond))
		if err != nil {
			e.logger.Warn("failed to load alert history", zap.Int("monitor_id", m.ID), zap.Error(err))
		}
		ev.History = history
	}

	record := &models.AlertRecord{
		MonitorID: m.ID,
		Kind:      ev.Kind,
		Severity:  ev.NewStatus,
		Detail:    ev.Detail,
		SentAt:    ev.Timestamp,
	}
	if err := e.log.RecordAlert(ctx, record); err != nil {
		e.logger.Error("failed to record alert", zap.Int("monitor_id", m.ID), zap.Error(err))
	}

	e.metrics.AlertEmitted(ev.Kind)
	e.logger.Info("emitting alert",
		zap.Int("monitor_id", m.ID),
		zap.String("kind", ev.Kind),
		zap.String("prior", string(ev.PriorStatus)),
		zap.String("status", string(ev.NewStatus)),
		zap.Int("consecutive_failures", ev.ConsecutiveFailures))

	if e.sink != nil {
		e.sink.Emit(ctx, ev)
	}
	return &ev, nil
}

// State returns the stored alert state for a monitor
func (e *Engine) State(ctx context.Context, monitorID int) (*models.AlertState, error) {
	return e.states.LoadAlertState(ctx, monitorID)
}
