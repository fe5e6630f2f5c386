package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"github.com/fuomag9/onlinetracker/internal/agentproto"
	"github.com/fuomag9/onlinetracker/internal/alert"
	"github.com/fuomag9/onlinetracker/internal/auth"
	"github.com/fuomag9/onlinetracker/internal/metrics"
	"github.com/fuomag9/onlinetracker/internal/models"
	"github.com/fuomag9/onlinetracker/internal/notification"
	"github.com/fuomag9/onlinetracker/internal/settings"
	"github.com/fuomag9/onlinetracker/internal/store"
)

const (
	jwtSecret   = "test-secret-that-is-long-enough-000"
	onlineAgent = "11111111-1111-4111-8111-111111111111"
	staleAgent  = "22222222-2222-4222-8222-222222222222"
)

type nopHandler struct{}

func (nopHandler) Handle(ctx context.Context, m *models.Monitor, result models.CheckResult) (*alert.Event, error) {
	return nil, nil
}

type fixture struct {
	store  *store.Memory
	agents *agentproto.Registry
	server *httptest.Server
	token  string
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	cfg := settings.Default()
	cfg.SharedSecret = "agent-secret"
	cfg.AllowedAgents = []string{onlineAgent, staleAgent}

	f := &fixture{store: store.NewMemory(), now: time.Now().UTC()}
	f.agents = agentproto.NewRegistry(f.store, f.store, nopHandler{}, settings.Static(cfg))

	for _, id := range []string{onlineAgent, staleAgent} {
		_, err := f.agents.Register(ctx, agentproto.RegisterRequest{UUID: id, Secret: "agent-secret"})
		require.NoError(t, err)
	}
	require.NoError(t, f.store.TouchAgent(ctx, staleAgent, f.now.Add(-time.Hour)))

	on, stale := onlineAgent, staleAgent
	f.store.PutMonitor(models.Monitor{ID: 1, Name: "web", Type: "https", Target: "example.com", Enabled: true})
	f.store.PutMonitor(models.Monitor{ID: 2, Name: "edge", Type: "ping", Target: "10.0.0.1", AgentID: &on, Enabled: true})
	f.store.PutMonitor(models.Monitor{ID: 3, Name: "branch", Type: "ping", Target: "10.0.0.2", AgentID: &stale, Enabled: true})
	f.store.PutMonitor(models.Monitor{ID: 4, Name: "paused", Type: "ping", Target: "10.0.0.3", Enabled: false})
	f.store.PutMonitor(models.Monitor{ID: 5, Name: "fresh", Type: "tls", Target: "example.org", Enabled: true})

	ms := 42
	for i, sev := range []models.Severity{models.SeverityUp, models.SeverityUp, models.SeverityDown} {
		f.store.PutResult(models.CheckResult{
			MonitorID: 1, CheckedAt: f.now.Add(time.Duration(i-3) * time.Minute), Severity: sev, LatencyMs: &ms,
		})
	}
	f.store.PutResult(models.CheckResult{MonitorID: 2, CheckedAt: f.now.Add(-time.Minute), Severity: models.SeverityDegraded})
	f.store.PutResult(models.CheckResult{MonitorID: 3, CheckedAt: f.now.Add(-2 * time.Hour), Severity: models.SeverityUp})

	reg := prometheus.NewRegistry()
	metrics.New(reg).AlertEmitted("alert")

	router := NewRouter(Deps{
		Store:       f.store,
		Agents:      f.agents,
		Settings:    settings.Static(cfg),
		Dispatcher:  notification.NewDispatcher(f.store, zaptest.NewLogger(t)),
		Gatherer:    reg,
		JWTSecret:   jwtSecret,
		CORSOrigins: []string{"http://localhost:3000"},
		Logger:      zaptest.NewLogger(t),
	})
	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)

	token, err := auth.IssueToken("operator", jwtSecret, time.Hour)
	require.NoError(t, err)
	f.token = token
	return f
}

func (f *fixture) do(t *testing.T, method, path string, authed bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, nil)
	require.NoError(t, err)
	if authed {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthAndSecurityHeaders(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/health", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestAPIRequiresToken(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/status/overview", false).StatusCode)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/agents", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOverview(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/status/overview", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ov Overview
	decodeBody(t, resp, &ov)

	assert.Equal(t, 4, ov.Total)
	assert.Equal(t, 1, ov.Monitors[models.SeverityDown])
	assert.Equal(t, 1, ov.Monitors[models.SeverityDegraded])
	// stale agent's monitor and the never-checked monitor
	assert.Equal(t, 2, ov.Monitors[models.SeverityUnknown])
	assert.Equal(t, 0, ov.Monitors[models.SeverityUp])

	assert.Equal(t, 2, ov.Agents.Approved)
	assert.Equal(t, 1, ov.Agents.Online)

	for _, item := range ov.Items {
		if item.ID == 3 {
			assert.Equal(t, "Agent offline", item.Detail)
			assert.Equal(t, staleAgent, item.Runner)
		}
	}
}

func TestResultsRange(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/monitors/1/results", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var results []models.CheckResult
	decodeBody(t, resp, &results)
	require.Len(t, results, 3)
	assert.True(t, results[0].CheckedAt.Before(results[2].CheckedAt))

	from := f.now.Add(-150 * time.Second).Format(time.RFC3339)
	resp = f.do(t, http.MethodGet, "/api/monitors/1/results?from="+from, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &results)
	assert.Len(t, results, 2)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/monitors/1/results?from=yesterday", true).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/monitors/99/results", true).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/monitors/abc/results", true).StatusCode)
}

func TestUptime(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/monitors/1/uptime", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats struct {
		TotalChecks      int     `json:"total_checks"`
		UptimePercentage float64 `json:"uptime_percentage"`
	}
	decodeBody(t, resp, &stats)
	assert.Equal(t, 3, stats.TotalChecks)
	assert.InDelta(t, 66.66, stats.UptimePercentage, 0.1)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/monitors/1/uptime?period=1y", true).StatusCode)
}

func TestAgentTransitions(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/agents/"+onlineAgent+"/reject", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var agent models.Agent
	decodeBody(t, resp, &agent)
	assert.Equal(t, models.AgentRejected, agent.Status)

	resp = f.do(t, http.MethodPost, "/api/agents/"+onlineAgent+"/approve", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, http.StatusNotFound,
		f.do(t, http.MethodPost, "/api/agents/33333333-3333-4333-8333-333333333333/approve", true).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/agents/nope/approve", true).StatusCode)

	resp = f.do(t, http.MethodGet, "/api/agents", true)
	var views []agentproto.AgentView
	decodeBody(t, resp, &views)
	assert.Len(t, views, 2)
}

func TestSettingsHideSecret(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/settings", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "agent-secret")
	assert.Contains(t, string(body), `"shared_secret_configured":true`)
	assert.Contains(t, string(body), `"alert_type":"once"`)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/metrics", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `onlinetracker_alerts_emitted_total{kind="alert"} 1`))
}

func TestTestNotificationNotFound(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/notifications/7/test", true).StatusCode)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Hour), 2)
	now := time.Now()
	rl.now = func() time.Time { return now }

	lim := rl.GetLimiter("10.0.0.1")
	assert.True(t, lim.Allow())
	assert.True(t, lim.Allow())
	assert.False(t, lim.Allow())

	rl.GetLimiter("10.0.0.2")
	now = now.Add(11 * time.Minute)
	rl.GetLimiter("10.0.0.2")

	assert.Equal(t, 1, rl.Sweep())
	assert.Equal(t, 1, rl.Len())

	handler := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	for _, want := range []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code)
	}
}
