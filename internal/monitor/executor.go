package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/fuomag9/onlinetracker/internal/metrics"
	"github.com/fuomag9/onlinetracker/internal/models"
)

// timeoutGrace is how long a checker may take to hand back partial results after its
// deadline before the executor gives up on it
const timeoutGrace = 250 * time.Millisecond

// ResultHandler receives every finished check
type ResultHandler func(ctx context.Context, job Job, result models.CheckResult)

// Executor runs checks under a global concurrency cap
type Executor struct {
	registry Registry
	sem      *semaphore.Weighted
	handler  ResultHandler
	guard    *TargetGuard
	source   string
	now      func() time.Time
	logger   *zap.Logger
	metrics  *metrics.Metrics

	inflight atomic.Int64
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithGuard makes the executor refuse targets the guard blocks
func WithGuard(g *TargetGuard) ExecutorOption {
	return func(e *Executor) { e.guard = g }
}

// WithSource sets the source recorded on every result ("server" by default)
func WithSource(source string) ExecutorOption {
	return func(e *Executor) { e.source = source }
}

// WithExecutorNow overrides the clock used to stamp results
func WithExecutorNow(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// WithExecutorLogger sets the logger
func WithExecutorLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithExecutorMetrics sets the metrics sink
func WithExecutorMetrics(m *metrics.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor creates a new executor admitting at most maxConcurrent checks at once
func NewExecutor(registry Registry, maxConcurrent int, handler ResultHandler, opts ...ExecutorOption) *Executor {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		registry: registry,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		handler:  handler,
		source:   "server",
		now:      time.Now,
		logger:   zap.NewNop(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TrySubmit starts job in the background if a slot is free. It never blocks; a false
// return means the executor is at its cap and the job was skipped.
func (e *Executor) TrySubmit(job Job) bool {
	if e.ctx.Err() != nil || !e.sem.TryAcquire(1) {
		e.metrics.Skipped()
		return false
	}
	e.metrics.Dispatched()
	e.inflight.Add(1)
	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		defer e.sem.Release(1)
		defer e.inflight.Add(-1)

		result := e.Run(e.ctx, job)
		if e.handler != nil {
			e.handler(context.WithoutCancel(e.ctx), job, result)
		}
	}()
	return true
}

// InFlight returns the number of checks currently running
func (e *Executor) InFlight() int {
	return int(e.inflight.Load())
}

// Run executes job synchronously. The timeout is the configured check timeout, never
// longer than the monitor's interval.
func (e *Executor) Run(ctx context.Context, job Job) models.CheckResult {
	timeout := job.Config.Timeout
	if timeout <= 0 {
		timeout = DefaultDefaults().Timeout
	}
	if job.Interval > 0 && job.Interval < timeout {
		timeout = job.Interval
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res := e.check(ctx, job, timeout)
	e.metrics.ObserveResult(string(job.Kind), string(res.Severity), time.Since(start).Seconds())

	if res.Severity == models.SeverityUnknown {
		e.logger.Warn("check produced no verdict",
			zap.Int("monitor_id", job.MonitorID), zap.String("type", string(job.Kind)), zap.String("detail", res.Detail))
	} else {
		e.logger.Debug("check finished",
			zap.Int("monitor_id", job.MonitorID), zap.String("status", string(res.Severity)), zap.String("detail", res.Detail))
	}

	return res.ToCheckResult(job.MonitorID, e.now().UTC(), e.source)
}

func (e *Executor) check(ctx context.Context, job Job, timeout time.Duration) Result {
	checker, ok := e.registry.Lookup(job.Kind)
	if !ok {
		return Result{Severity: models.SeverityUnknown, Detail: fmt.Sprintf("Unknown monitor type: %s", job.Kind)}
	}

	if e.guard != nil {
		if err := e.guard.Check(ctx, job.Target); err != nil {
			return down("Target not allowed: %v", err)
		}
	}

	out := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				out <- Result{Severity: models.SeverityUnknown, Detail: fmt.Sprintf("Checker panicked: %v", r)}
			}
		}()
		out <- checker.Check(ctx, job.Target, job.Config)
	}()

	select {
	case res := <-out:
		return res
	case <-ctx.Done():
	}

	select {
	case res := <-out:
		return res
	case <-time.After(timeoutGrace):
		return down("Check timed out after %s", timeout)
	}
}

// Stop refuses new work and waits for running checks to finish
func (e *Executor) Stop() {
	e.cancel()
	e.wg.Wait()
	e.logger.Info("executor stopped")
}
