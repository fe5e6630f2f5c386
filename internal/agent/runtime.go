package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fuomag9/onlinetracker/internal/agentproto"
	"github.com/fuomag9/onlinetracker/internal/models"
	"github.com/fuomag9/onlinetracker/internal/monitor"
	"github.com/fuomag9/onlinetracker/internal/scheduler"
)

// Uplink is the server side of the wire protocol
type Uplink interface {
	Register(ctx context.Context) error
	Assignments(ctx context.Context) (*agentproto.AssignmentsResponse, error)
	Send(ctx context.Context, results []agentproto.ReportedResult) (agentproto.ReportResponse, error)
	Heartbeat(ctx context.Context) error
}

// Options tunes the runtime loops
type Options struct {
	UUID           string
	RegisterRetry  time.Duration
	SyncInterval   time.Duration
	FlushInterval  time.Duration
	HeartbeatEvery time.Duration
	TickInterval   time.Duration
	MaxConcurrent  int
	CheckTimeout   time.Duration
	QueueCapacity  int
	BatchSize      int
}

// DefaultOptions returns the production loop timings
func DefaultOptions(agentUUID string) Options {
	return Options{
		UUID:           agentUUID,
		RegisterRetry:  30 * time.Second,
		SyncInterval:   30 * time.Second,
		FlushInterval:  10 * time.Second,
		HeartbeatEvery: 30 * time.Second,
		TickInterval:   scheduler.DefaultTick,
		MaxConcurrent:  10,
		CheckTimeout:   10 * time.Second,
		QueueCapacity:  1000,
		BatchSize:      200,
	}
}

// Runtime runs assigned monitors locally and ships their results
type Runtime struct {
	uplink   Uplink
	opts     Options
	queue    *ResultQueue
	executor *monitor.Executor
	sched    *scheduler.Scheduler
	logger   *zap.Logger

	mu   sync.RWMutex
	jobs []monitor.Job
}

// NewRuntime creates a new runtime probing with registry
func NewRuntime(uplink Uplink, registry monitor.Registry, opts Options, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	r := &Runtime{
		uplink: uplink,
		opts:   opts,
		queue:  NewResultQueue(opts.QueueCapacity),
		logger: logger,
	}
	r.executor = monitor.NewExecutor(registry, opts.MaxConcurrent, r.enqueue,
		monitor.WithSource(opts.UUID),
		monitor.WithExecutorLogger(logger.Named("executor")))
	r.sched = scheduler.New(r, r.executor,
		scheduler.WithTick(opts.TickInterval),
		scheduler.WithLogger(logger.Named("scheduler")))
	return r
}

// Jobs returns the cached assignments
func (r *Runtime) Jobs(ctx context.Context) ([]monitor.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobs, nil
}

// Queue exposes the pending result buffer
func (r *Runtime) Queue() *ResultQueue {
	return r.queue
}

func (r *Runtime) enqueue(ctx context.Context, job monitor.Job, result models.CheckResult) {
	if r.queue.Enqueue(agentproto.ReportedResultFrom(result)) {
		r.logger.Warn("result queue full, dropped oldest result", zap.Int("capacity", r.opts.QueueCapacity))
	}
}

// Run registers, then runs every loop until ctx is done or one of them fails
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.awaitApproval(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	if err := r.Sync(ctx); err != nil {
		r.logger.Warn("initial assignment sync failed", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.every(gctx, r.opts.SyncInterval, "sync", r.Sync) })
	g.Go(func() error { return r.sched.Run(gctx) })
	g.Go(func() error { return r.every(gctx, r.opts.FlushInterval, "flush", r.Flush) })
	g.Go(func() error { return r.every(gctx, r.opts.HeartbeatEvery, "heartbeat", r.uplink.Heartbeat) })

	err := g.Wait()
	r.executor.Stop()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ferr := r.Flush(flushCtx); ferr != nil {
		r.logger.Warn("final flush failed", zap.Int("pending", r.queue.Len()), zap.Error(ferr))
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// awaitApproval retries registration at a fixed interval until the server approves us
func (r *Runtime) awaitApproval(ctx context.Context) error {
	for {
		err := r.uplink.Register(ctx)
		switch {
		case err == nil:
			r.logger.Info("agent approved", zap.String("uuid", r.opts.UUID))
			return nil
		case errors.Is(err, ErrPending):
			r.logger.Info("waiting for operator approval", zap.String("uuid", r.opts.UUID))
		case errors.Is(err, ErrRejected):
			r.logger.Warn("agent rejected by operator, retrying", zap.String("uuid", r.opts.UUID))
		default:
			r.logger.Warn("registration failed", zap.Error(err))
		}

		if err := sleep(ctx, r.opts.RegisterRetry); err != nil {
			return err
		}
	}
}

// Sync replaces the local schedule with the server's assignments
func (r *Runtime) Sync(ctx context.Context) error {
	resp, err := r.uplink.Assignments(ctx)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			r.setJobs(nil)
		}
		return err
	}

	jobs := make([]monitor.Job, 0, len(resp.Assignments))
	for _, a := range resp.Assignments {
		job, err := a.Job()
		if err != nil {
			r.logger.Warn("ignoring assignment", zap.Int("monitor_id", a.MonitorID), zap.Error(err))
			continue
		}
		if job.Config.Timeout <= 0 {
			job.Config.Timeout = r.opts.CheckTimeout
		}
		jobs = append(jobs, job)
	}
	r.setJobs(jobs)
	r.logger.Debug("assignments synced", zap.Int("monitors", len(jobs)))
	return nil
}

func (r *Runtime) setJobs(jobs []monitor.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = jobs
}

// Flush uploads queued results in batches. A failed batch goes back to the front of the
// queue and the flush stops until the next attempt.
func (r *Runtime) Flush(ctx context.Context) error {
	for {
		batch := r.queue.Drain(r.opts.BatchSize)
		if len(batch) == 0 {
			return nil
		}

		resp, err := r.uplink.Send(ctx, batch)
		if err != nil {
			r.queue.Requeue(batch)
			return err
		}
		if resp.Rejected > 0 {
			r.logger.Warn("server rejected results", zap.Int("rejected", resp.Rejected), zap.Int("accepted", resp.Accepted))
		}
	}
}

// every runs fn each interval. Failures are logged, only ctx ends the loop.
func (r *Runtime) every(ctx context.Context, interval time.Duration, name string, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("agent loop failed", zap.String("loop", name), zap.Error(err))
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
