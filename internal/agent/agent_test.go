package agent

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fuomag9/onlinetracker/internal/agentproto"
	"github.com/fuomag9/onlinetracker/internal/alert"
	"github.com/fuomag9/onlinetracker/internal/models"
	"github.com/fuomag9/onlinetracker/internal/monitor"
	"github.com/fuomag9/onlinetracker/internal/settings"
	"github.com/fuomag9/onlinetracker/internal/store"
)

const secret = "agent-secret"

type collector struct {
	mu      sync.Mutex
	results []models.CheckResult
}

func (c *collector) Handle(ctx context.Context, m *models.Monitor, result models.CheckResult) (*alert.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
	return nil, nil
}

func (c *collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

type server struct {
	store     *store.Memory
	collector *collector
	registry  *agentproto.Registry
	http      *httptest.Server
}

func newServer(t *testing.T, allowed ...string) *server {
	t.Helper()
	cfg := settings.Default()
	cfg.SharedSecret = secret
	cfg.AllowedAgents = allowed

	s := &server{store: store.NewMemory(), collector: &collector{}}
	s.registry = agentproto.NewRegistry(s.store, s.store, s.collector, settings.Static(cfg),
		agentproto.WithLogger(zaptest.NewLogger(t)))
	s.http = httptest.NewServer(agentproto.NewRouter(s.registry))
	t.Cleanup(s.http.Close)
	return s
}

func upChecker() monitor.Registry {
	return monitor.Registry{
		monitor.KindPing: monitor.CheckerFunc(func(ctx context.Context, target string, cfg monitor.Config) monitor.Result {
			ms := 3
			return monitor.Result{Severity: models.SeverityUp, LatencyMs: &ms, Detail: "ok"}
		}),
	}
}

func testOptions(id string) Options {
	opts := DefaultOptions(id)
	opts.RegisterRetry = 20 * time.Millisecond
	opts.SyncInterval = 20 * time.Millisecond
	opts.FlushInterval = 20 * time.Millisecond
	opts.HeartbeatEvery = 20 * time.Millisecond
	opts.TickInterval = 20 * time.Millisecond
	return opts
}

func TestStateCreatedOnceAndReloaded(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrCreateState(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, first.UUID)

	second, err := LoadOrCreateState(dir)
	require.NoError(t, err)
	assert.Equal(t, first.UUID, second.UUID)

	info, err := os.Stat(StatePath(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStateRejectsCorruptUUID(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(StatePath(dir), []byte("uuid: nope\n"), 0o600))

	_, err := LoadOrCreateState(dir)
	assert.Error(t, err)
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	q := NewResultQueue(2)
	assert.False(t, q.Enqueue(agentproto.ReportedResult{MonitorID: 1}))
	assert.False(t, q.Enqueue(agentproto.ReportedResult{MonitorID: 2}))
	assert.True(t, q.Enqueue(agentproto.ReportedResult{MonitorID: 3}))

	items := q.Drain(0)
	require.Len(t, items, 2)
	assert.Equal(t, 2, items[0].MonitorID)
	assert.Equal(t, uint64(1), q.Dropped())
}

func TestQueueRequeueKeepsOrder(t *testing.T) {
	q := NewResultQueue(3)
	q.Enqueue(agentproto.ReportedResult{MonitorID: 1})
	q.Enqueue(agentproto.ReportedResult{MonitorID: 2})
	batch := q.Drain(0)
	q.Enqueue(agentproto.ReportedResult{MonitorID: 3})
	q.Enqueue(agentproto.ReportedResult{MonitorID: 4})

	q.Requeue(batch)

	items := q.Drain(0)
	require.Len(t, items, 3)
	assert.Equal(t, []int{2, 3, 4}, []int{items[0].MonitorID, items[1].MonitorID, items[2].MonitorID})
}

func TestClientRegistrationStatuses(t *testing.T) {
	srv := newServer(t)
	id := "3f1d2c4b-8a9e-4b7c-9d0e-1f2a3b4c5d6e"

	client, err := NewClient(nil, srv.http.URL, id, "edge-1", secret)
	require.NoError(t, err)
	assert.ErrorIs(t, client.Register(context.Background()), ErrPending)

	_, err = srv.registry.Approve(context.Background(), id)
	require.NoError(t, err)
	assert.NoError(t, client.Register(context.Background()))

	_, err = srv.registry.Reject(context.Background(), id)
	require.NoError(t, err)
	assert.ErrorIs(t, client.Register(context.Background()), ErrRejected)

	bad, err := NewClient(nil, srv.http.URL, id, "", "wrong")
	require.NoError(t, err)
	assert.ErrorIs(t, bad.Register(context.Background()), ErrUnauthorized)
}

type failingUplink struct {
	sent int
}

func (f *failingUplink) Register(ctx context.Context) error { return nil }
func (f *failingUplink) Assignments(ctx context.Context) (*agentproto.AssignmentsResponse, error) {
	return &agentproto.AssignmentsResponse{}, nil
}
func (f *failingUplink) Send(ctx context.Context, results []agentproto.ReportedResult) (agentproto.ReportResponse, error) {
	f.sent++
	return agentproto.ReportResponse{}, errors.New("connection refused")
}
func (f *failingUplink) Heartbeat(ctx context.Context) error { return nil }

func TestFlushRequeuesOnFailure(t *testing.T) {
	uplink := &failingUplink{}
	rt := NewRuntime(uplink, upChecker(), testOptions("a"), zaptest.NewLogger(t))
	rt.Queue().Enqueue(agentproto.ReportedResult{MonitorID: 1, Timestamp: time.Now()})
	rt.Queue().Enqueue(agentproto.ReportedResult{MonitorID: 2, Timestamp: time.Now()})

	assert.Error(t, rt.Flush(context.Background()))
	assert.Equal(t, 1, uplink.sent)
	assert.Equal(t, 2, rt.Queue().Len())
}

func TestRuntimeEndToEnd(t *testing.T) {
	id := "7c6b5a49-3827-4165-9a0b-1c2d3e4f5a6b"
	srv := newServer(t)
	owner := id
	srv.store.PutMonitor(models.Monitor{ID: 11, Name: "edge ping", Type: "ping", Target: "192.0.2.1", AgentID: &owner, Enabled: true, Interval: 10})

	client, err := NewClient(nil, srv.http.URL, id, "edge", secret)
	require.NoError(t, err)
	rt := NewRuntime(client, upChecker(), testOptions(id), zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	// Stays in the registration loop until approved
	assert.Eventually(t, func() bool {
		a, err := srv.store.GetAgent(context.Background(), id)
		return err == nil && a.AttemptCount >= 2
	}, 2*time.Second, 10*time.Millisecond)

	_, err = srv.registry.Approve(context.Background(), id)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		jobs, _ := rt.Jobs(context.Background())
		return len(jobs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	jobs, _ := rt.Jobs(context.Background())
	require.True(t, rt.executor.TrySubmit(jobs[0]))

	assert.Eventually(t, func() bool { return srv.collector.Len() >= 1 }, 2*time.Second, 10*time.Millisecond)

	srv.collector.mu.Lock()
	got := srv.collector.results[0]
	srv.collector.mu.Unlock()
	assert.Equal(t, 11, got.MonitorID)
	assert.Equal(t, id, got.Source)
	assert.Equal(t, models.SeverityUp, got.Severity)

	agent, err := srv.store.GetAgent(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, agent.LastSeen)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop")
	}
}
