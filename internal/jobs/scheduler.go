package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fuomag9/onlinetracker/internal/agentproto"
	"github.com/fuomag9/onlinetracker/internal/metrics"
	"github.com/fuomag9/onlinetracker/internal/store"
)

const jobTimeout = 5 * time.Minute

// AgentLister lists agents with their liveness
type AgentLister interface {
	List(ctx context.Context) ([]agentproto.AgentView, error)
}

// Retention holds how long history is kept
type Retention struct {
	Results time.Duration
	Alerts  time.Duration
}

// Scheduler manages background jobs
type Scheduler struct {
	cron      *cron.Cron
	results   store.Results
	alerts    store.AlertLog
	agents    AgentLister
	retention Retention
	now       func() time.Time
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu     sync.Mutex
	online map[string]bool
}

// NewScheduler creates a new job scheduler
func NewScheduler(results store.Results, alerts store.AlertLog, agents AgentLister, retention Retention, m *metrics.Metrics, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	return &Scheduler{
		cron:      cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		results:   results,
		alerts:    alerts,
		agents:    agents,
		retention: retention,
		now:       time.Now,
		logger:    logger,
		metrics:   m,
		online:    make(map[string]bool),
	}
}

// Start registers the jobs and starts the scheduler
func (s *Scheduler) Start() error {
	specs := []struct {
		spec string
		run  func(context.Context)
	}{
		// Result retention hourly at minute 14
		{"14 * * * *", s.CleanupResults},
		// Alert log retention daily at 3:30 AM
		{"30 3 * * *", s.CleanupAlerts},
		{"@every 1m", s.SweepAgents},
	}

	for _, job := range specs {
		run := job.run
		if _, err := s.cron.AddFunc(job.spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			run(ctx)
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("job scheduler started", zap.Int("jobs", len(specs)))
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("job scheduler stopped")
}

// CleanupResults removes check results older than the retention window
func (s *Scheduler) CleanupResults(ctx context.Context) {
	cutoff := s.now().Add(-s.retention.Results)
	n, err := s.results.DeleteResultsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to clean up old check results", zap.Error(err))
		return
	}
	s.logger.Info("cleaned up old check results", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
}

// CleanupAlerts removes alert log entries older than the retention window
func (s *Scheduler) CleanupAlerts(ctx context.Context) {
	cutoff := s.now().Add(-s.retention.Alerts)
	n, err := s.alerts.DeleteAlertsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to clean up old alerts", zap.Error(err))
		return
	}
	s.logger.Info("cleaned up old alerts", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
}

// SweepAgents updates the online gauge and logs agents that came online or went offline
func (s *Scheduler) SweepAgents(ctx context.Context) {
	views, err := s.agents.List(ctx)
	if err != nil {
		s.logger.Error("failed to list agents", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	online := 0
	seen := make(map[string]bool, len(views))
	for _, v := range views {
		seen[v.UUID] = true
		if v.Online {
			online++
		}
		was, known := s.online[v.UUID]
		switch {
		case v.Online && !was:
			s.logger.Info("agent online", zap.String("uuid", v.UUID))
		case !v.Online && was:
			s.logger.Warn("agent offline", zap.String("uuid", v.UUID), zap.Timep("last_seen", v.LastSeen))
		case !known && !v.Online:
			s.logger.Debug("agent not online", zap.String("uuid", v.UUID), zap.String("status", string(v.Status)))
		}
		s.online[v.UUID] = v.Online
	}
	for id := range s.online {
		if !seen[id] {
			delete(s.online, id)
		}
	}

	s.metrics.SetAgentsOnline(online)
}

// Online reports the last observed liveness of an agent
func (s *Scheduler) Online(uuid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[uuid]
}
