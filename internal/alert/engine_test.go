package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fuomag9/onlinetracker/internal/models"
	"github.com/fuomag9/onlinetracker/internal/settings"
	"github.com/fuomag9/onlinetracker/internal/store"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Emit(ctx context.Context, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.events {
		out = append(out, ev.Kind)
	}
	return out
}

func newTestEngine(t *testing.T, s settings.Settings) (*Engine, *store.Memory, *recordingSink) {
	mem := store.NewMemory()
	sink := &recordingSink{}
	return NewEngine(mem, settings.Static(s), sink, WithLogger(zaptest.NewLogger(t))), mem, sink
}

func result(at time.Time, sev models.Severity, detail string) models.CheckResult {
	return models.CheckResult{CheckedAt: at, Severity: sev, Detail: detail}
}

func TestEngineDuplicateResultIsIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, _, sink := newTestEngine(t, settings.Default())
	mon := &models.Monitor{ID: 4, Name: "api", Type: "http", AlertFailureThreshold: 1}

	r := result(t0, down, "HTTP 503")
	ev, err := engine.Process(ctx, mon, r)
	require.NoError(t, err)
	require.NotNil(t, ev)

	before, err := engine.State(ctx, mon.ID)
	require.NoError(t, err)

	ev, err = engine.Process(ctx, mon, r)
	require.NoError(t, err)
	assert.Nil(t, ev)

	after, err := engine.State(ctx, mon.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, after.ConsecutiveFailures)
	assert.Len(t, sink.kinds(), 1)
}

func TestEngineOutOfOrderResults(t *testing.T) {
	ctx := context.Background()
	engine, _, sink := newTestEngine(t, settings.Default())
	mon := &models.Monitor{ID: 5, AlertFailureThreshold: 2}

	_, err := engine.Process(ctx, mon, result(t0.Add(2*time.Minute), down, ""))
	require.NoError(t, err)
	_, err = engine.Process(ctx, mon, result(t0.Add(time.Minute), down, "late"))
	require.NoError(t, err)

	state, err := engine.State(ctx, mon.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, state.ConsecutiveFailures)
	assert.Empty(t, sink.kinds())
}

func TestEngineBelowThresholdNeverAlerts(t *testing.T) {
	ctx := context.Background()
	engine, mem, sink := newTestEngine(t, settings.Default())
	mon := &models.Monitor{ID: 6, AlertFailureThreshold: 3}

	for i, sev := range []models.Severity{down, down, up} {
		_, err := engine.Process(ctx, mon, result(t0.Add(time.Duration(i)*time.Minute), sev, ""))
		require.NoError(t, err)
	}

	assert.Empty(t, sink.kinds())
	records, _ := mem.ListAlerts(ctx, mon.ID, 0)
	assert.Empty(t, records)
}

func TestEngineRepeatedModeReminders(t *testing.T) {
	ctx := context.Background()
	s := settings.Default()
	s.AlertMode = settings.AlertRepeated
	s.RepeatFrequency = 15 * time.Minute
	engine, mem, sink := newTestEngine(t, s)
	mon := &models.Monitor{ID: 8, Interval: 60, AlertFailureThreshold: 1}

	for i := 0; i <= 45; i++ {
		_, err := engine.Process(ctx, mon, result(t0.Add(time.Duration(i)*time.Minute), down, "unreachable"))
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"alert", "reminder", "reminder", "reminder"}, sink.kinds())
	records, _ := mem.ListAlerts(ctx, mon.ID, 0)
	assert.Len(t, records, 4)
}

func TestEngineEventContents(t *testing.T) {
	ctx := context.Background()
	s := settings.Default()
	s.IncludeHistory = true
	engine, mem, sink := newTestEngine(t, s)
	agent := "3d8f6c1e-2b47-4f0e-8a11-9c5b7e2d4f60"
	mon := &models.Monitor{ID: 12, Name: "edge", Type: "ping", Target: "10.0.0.1", AgentID: &agent, AlertFailureThreshold: 2}

	for i, sev := range []models.Severity{up, down, down} {
		r := result(t0.Add(time.Duration(i)*time.Minute), sev, "100% packet loss")
		r.MonitorID = mon.ID
		mem.PutResult(r)
		_, err := engine.Process(ctx, mon, r)
		require.NoError(t, err)
	}

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, "alert", ev.Kind)
	assert.Equal(t, down, ev.PriorStatus)
	assert.Equal(t, down, ev.NewStatus)
	assert.Equal(t, agent, ev.Runner)
	assert.Equal(t, 2, ev.ConsecutiveFailures)
	assert.Equal(t, t0.Add(2*time.Minute), ev.Timestamp)
	assert.Len(t, ev.History, 3)
}

func TestEngineConcurrentMonitors(t *testing.T) {
	ctx := context.Background()
	engine, _, sink := newTestEngine(t, settings.Default())

	var wg sync.WaitGroup
	for id := 1; id <= 20; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			mon := &models.Monitor{ID: id, AlertFailureThreshold: 2}
			for i := 0; i < 3; i++ {
				_, err := engine.Process(ctx, mon, result(t0.Add(time.Duration(i)*time.Minute), down, ""))
				assert.NoError(t, err)
			}
		}(id)
	}
	wg.Wait()

	assert.Len(t, sink.kinds(), 20)
}
