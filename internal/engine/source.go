package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fuomag9/onlinetracker/internal/monitor"
	"github.com/fuomag9/onlinetracker/internal/settings"
	"github.com/fuomag9/onlinetracker/internal/store"
)

// ServerSource lists the server-run monitors as scheduler jobs using the current settings
type ServerSource struct {
	monitors store.Monitors
	settings settings.Provider
	logger   *zap.Logger
}

// NewServerSource creates a new server job source
func NewServerSource(monitors store.Monitors, provider settings.Provider, logger *zap.Logger) *ServerSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServerSource{monitors: monitors, settings: provider, logger: logger}
}

// Jobs returns one job per enabled monitor without an agent
func (s *ServerSource) Jobs(ctx context.Context) ([]monitor.Job, error) {
	cfg, err := s.settings.Current(ctx)
	if err != nil {
		s.logger.Warn("using fallback check settings", zap.Error(err))
	}

	monitors, err := s.monitors.ServerMonitors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitors: %w", err)
	}

	jobs := make([]monitor.Job, 0, len(monitors))
	for i := range monitors {
		job, err := monitor.JobFor(&monitors[i], cfg.Defaults)
		if err != nil {
			if job.Kind == "" {
				s.logger.Warn("skipping monitor", zap.Int("monitor_id", monitors[i].ID), zap.Error(err))
				continue
			}
			s.logger.Warn("monitor config has invalid values, using defaults",
				zap.Int("monitor_id", monitors[i].ID), zap.Error(err))
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
