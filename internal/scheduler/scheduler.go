package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fuomag9/onlinetracker/internal/monitor"
)

// DefaultTick is the scheduling resolution
const DefaultTick = 5 * time.Second

// offsetMultiplier is Knuth's multiplicative hash constant. It is prime and larger than any
// supported interval, so id -> offset is a bijection on the residues of each interval.
const offsetMultiplier = 2654435761

// Source lists the monitors a runner is responsible for. It is consulted on every tick so
// monitor and settings changes are picked up without a restart.
type Source interface {
	Jobs(ctx context.Context) ([]monitor.Job, error)
}

// Submitter admits a job without blocking
type Submitter interface {
	TrySubmit(job monitor.Job) bool
}

// TickStats summarizes one scheduling pass
type TickStats struct {
	Monitors   int
	Due        int
	Dispatched int
	Skipped    int
}

// Scheduler dispatches due monitors on a fixed tick
type Scheduler struct {
	source Source
	submit Submitter
	tick   time.Duration
	now    func() time.Time
	logger *zap.Logger

	prev time.Time
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithTick sets the tick resolution
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithNow overrides the clock
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a scheduler feeding submit from source
func New(source Source, submit Submitter, opts ...Option) *Scheduler {
	s := &Scheduler{
		source: source,
		submit: submit,
		tick:   DefaultTick,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Offset returns the stable phase of a monitor inside its interval
func Offset(monitorID int, interval time.Duration) time.Duration {
	secs := uint64(interval / time.Second)
	if secs == 0 {
		return 0
	}
	h := uint64(uint32(monitorID)) * offsetMultiplier
	return time.Duration(h%secs) * time.Second
}

// Due reports whether a due point (offset + k*interval since the epoch) lies in (prev, now]
func Due(prev, now time.Time, offset, interval time.Duration) bool {
	if interval <= 0 || !now.After(prev) {
		return false
	}
	return cycle(now, offset, interval) != cycle(prev, offset, interval)
}

func cycle(t time.Time, offset, interval time.Duration) int64 {
	d := t.UnixNano() - int64(offset)
	q := d / int64(interval)
	if d%int64(interval) < 0 {
		q--
	}
	return q
}

// Run ticks until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logger.Info("scheduler started", zap.Duration("tick", s.tick))
	s.Tick(ctx, s.now())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx, s.now())
		}
	}
}

// Tick runs one scheduling pass at now. Ticks must be called with non-decreasing times.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) TickStats {
	var stats TickStats

	prev := s.prev
	// First tick, or a stall longer than a couple of ticks: only the latest window counts,
	// missed cycles are not caught up
	if prev.IsZero() || now.Sub(prev) > 2*s.tick {
		prev = now.Add(-s.tick)
	}
	if !now.After(prev) {
		return stats
	}
	s.prev = now

	jobs, err := s.source.Jobs(ctx)
	if err != nil {
		s.logger.Error("failed to load monitors", zap.Error(err))
		return stats
	}
	stats.Monitors = len(jobs)

	dispatched := make(map[int]struct{}, len(jobs))
	for _, job := range jobs {
		if _, ok := dispatched[job.MonitorID]; ok {
			continue
		}
		if !Due(prev, now, Offset(job.MonitorID, job.Interval), job.Interval) {
			continue
		}
		stats.Due++

		if !s.submit.TrySubmit(job) {
			stats.Skipped++
			s.logger.Debug("check skipped at concurrency cap", zap.Int("monitor_id", job.MonitorID))
			continue
		}
		dispatched[job.MonitorID] = struct{}{}
		stats.Dispatched++
	}

	if stats.Skipped > 0 {
		s.logger.Warn("executor saturated, checks skipped this cycle",
			zap.Int("due", stats.Due), zap.Int("skipped", stats.Skipped))
	}
	return stats
}
