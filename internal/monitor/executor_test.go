package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuomag9/onlinetracker/internal/metrics"
	"github.com/fuomag9/onlinetracker/internal/models"
)

type collector struct {
	mu      sync.Mutex
	results []models.CheckResult
	done    chan struct{}
}

func newCollector(n int) *collector {
	return &collector{done: make(chan struct{}, n)}
}

func (c *collector) handle(ctx context.Context, job Job, r models.CheckResult) {
	c.mu.Lock()
	c.results = append(c.results, r)
	c.mu.Unlock()
	c.done <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.done:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for result %d", i+1)
		}
	}
}

func testJob(id int, timeout time.Duration) Job {
	cfg := pingConfig()
	cfg.Timeout = timeout
	return Job{MonitorID: id, Kind: KindPing, Target: "192.0.2.1", Interval: time.Minute, Config: cfg}
}

func TestExecutorConcurrencyCap(t *testing.T) {
	release := make(chan struct{})
	registry := Registry{KindPing: CheckerFunc(func(ctx context.Context, target string, cfg Config) Result {
		<-release
		return Result{Severity: models.SeverityUp}
	})}

	m := metrics.New(prometheus.NewRegistry())
	c := newCollector(3)
	e := NewExecutor(registry, 2, c.handle, WithExecutorMetrics(m))

	assert.True(t, e.TrySubmit(testJob(1, time.Second)))
	assert.True(t, e.TrySubmit(testJob(2, time.Second)))
	assert.False(t, e.TrySubmit(testJob(3, time.Second)), "third check is shed at the cap")
	assert.Equal(t, 2, e.InFlight())

	close(release)
	c.wait(t, 2)
	e.Stop()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChecksDispatched))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChecksSkipped))
	assert.Equal(t, 0, e.InFlight())
}

func TestExecutorTimeoutBecomesDown(t *testing.T) {
	registry := Registry{KindPing: CheckerFunc(func(ctx context.Context, target string, cfg Config) Result {
		select {} // never returns
	})}
	e := NewExecutor(registry, 1, nil)

	start := time.Now()
	res := e.Run(context.Background(), testJob(1, 20*time.Millisecond))
	assert.Equal(t, models.SeverityDown, res.Severity)
	assert.Contains(t, res.Detail, "timed out")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecutorTimeoutBoundedByInterval(t *testing.T) {
	var deadline time.Duration
	registry := Registry{KindPing: CheckerFunc(func(ctx context.Context, target string, cfg Config) Result {
		d, _ := ctx.Deadline()
		deadline = time.Until(d)
		return Result{Severity: models.SeverityUp}
	})}
	job := testJob(1, time.Hour)
	job.Interval = 10 * time.Second

	NewExecutor(registry, 1, nil).Run(context.Background(), job)
	assert.LessOrEqual(t, deadline, 10*time.Second)
}

func TestExecutorRecoversPanics(t *testing.T) {
	registry := Registry{KindPing: CheckerFunc(func(ctx context.Context, target string, cfg Config) Result {
		panic("boom")
	})}
	res := NewExecutor(registry, 1, nil).Run(context.Background(), testJob(4, time.Second))
	assert.Equal(t, models.SeverityUnknown, res.Severity)
	assert.Contains(t, res.Detail, "boom")
	assert.Equal(t, 4, res.MonitorID)
}

func TestExecutorUnknownKind(t *testing.T) {
	job := testJob(5, time.Second)
	job.Kind = "smtp"
	res := NewExecutor(Registry{}, 1, nil).Run(context.Background(), job)
	assert.Equal(t, models.SeverityUnknown, res.Severity)
}

func TestExecutorStampsResult(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	registry := Registry{KindPing: CheckerFunc(func(ctx context.Context, target string, cfg Config) Result {
		return Result{Severity: models.SeverityDegraded, LatencyMs: intPtr(120), Detail: "slow"}
	})}
	c := newCollector(1)
	e := NewExecutor(registry, 1, c.handle, WithSource("agent-1"), WithExecutorNow(func() time.Time { return now }))

	require.True(t, e.TrySubmit(testJob(9, time.Second)))
	c.wait(t, 1)
	e.Stop()

	require.Len(t, c.results, 1)
	r := c.results[0]
	assert.Equal(t, 9, r.MonitorID)
	assert.Equal(t, now, r.CheckedAt)
	assert.Equal(t, "agent-1", r.Source)
	assert.Equal(t, models.SeverityDegraded, r.Severity)
	assert.Equal(t, 120, *r.LatencyMs)
}

func TestExecutorRefusesAfterStop(t *testing.T) {
	e := NewExecutor(Registry{}, 1, nil)
	e.Stop()
	assert.False(t, e.TrySubmit(testJob(1, time.Second)))
}
