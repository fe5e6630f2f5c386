package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fuomag9/onlinetracker/internal/models"
)

// Memory implements Store in process memory. It backs tests and database-less runs.
type Memory struct {
	mu            sync.RWMutex
	nextResultID  int64
	nextAlertID   int64
	results       map[int][]models.CheckResult
	monitors      map[int]models.Monitor
	agents        map[string]models.Agent
	alertStates   map[int]models.AlertState
	alerts        []models.AlertRecord
	notifications map[int]models.Notification
	links         map[int][]int
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		results:       make(map[int][]models.CheckResult),
		monitors:      make(map[int]models.Monitor),
		agents:        make(map[string]models.Agent),
		alertStates:   make(map[int]models.AlertState),
		notifications: make(map[int]models.Notification),
		links:         make(map[int][]int),
	}
}

// PutMonitor inserts or replaces a monitor
func (m *Memory) PutMonitor(mon models.Monitor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monitors[mon.ID] = mon
}

// PutNotification inserts or replaces a notification channel
func (m *Memory) PutNotification(n models.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[n.ID] = n
}

// LinkNotification attaches a channel to a monitor
func (m *Memory) LinkNotification(monitorID, notificationID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[monitorID] = append(m.links[monitorID], notificationID)
}

// PutResult appends a result without the redelivery check
func (m *Memory) PutResult(r models.CheckResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextResultID++
	r.ID = m.nextResultID
	m.results[r.MonitorID] = append(m.results[r.MonitorID], r)
}

func (m *Memory) AppendResult(ctx context.Context, r *models.CheckResult) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stored := range m.results[r.MonitorID] {
		if stored.CheckedAt.Equal(r.CheckedAt) && stored.Source == r.Source {
			return false, nil
		}
	}
	m.nextResultID++
	r.ID = m.nextResultID
	m.results[r.MonitorID] = append(m.results[r.MonitorID], *r)
	return true, nil
}

func (m *Memory) LatestResult(ctx context.Context, monitorID int) (*models.CheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	latest, ok := latestOf(m.results[monitorID])
	if !ok {
		return nil, ErrNotFound
	}
	return &latest, nil
}

func latestOf(results []models.CheckResult) (models.CheckResult, bool) {
	var best models.CheckResult
	found := false
	for _, r := range results {
		if !found || r.CheckedAt.After(best.CheckedAt) || (r.CheckedAt.Equal(best.CheckedAt) && r.ID > best.ID) {
			best = r
			found = true
		}
	}
	return best, found
}

func (m *Memory) ResultRange(ctx context.Context, monitorID int, from, to time.Time) ([]models.CheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.CheckResult
	for _, r := range m.results[monitorID] {
		if !r.CheckedAt.Before(from) && r.CheckedAt.Before(to) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CheckedAt.Equal(out[j].CheckedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CheckedAt.Before(out[j].CheckedAt)
	})
	return out, nil
}

func (m *Memory) LatestResults(ctx context.Context, monitorIDs []int) (map[int]models.CheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int]models.CheckResult, len(monitorIDs))
	for _, id := range monitorIDs {
		if latest, ok := latestOf(m.results[id]); ok {
			out[id] = latest
		}
	}
	return out, nil
}

func (m *Memory) DeleteResultsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, results := range m.results {
		kept := results[:0]
		for _, r := range results {
			if r.CheckedAt.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, r)
		}
		m.results[id] = kept
	}
	return deleted, nil
}

func (m *Memory) ServerMonitors(ctx context.Context) ([]models.Monitor, error) {
	return m.filterMonitors(func(mon models.Monitor) bool {
		return mon.Enabled && mon.AgentID == nil
	}), nil
}

func (m *Memory) AgentMonitors(ctx context.Context, agentID string) ([]models.Monitor, error) {
	return m.filterMonitors(func(mon models.Monitor) bool {
		return mon.Enabled && mon.AgentID != nil && *mon.AgentID == agentID
	}), nil
}

func (m *Memory) GetMonitor(ctx context.Context, id int) (*models.Monitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mon, ok := m.monitors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &mon, nil
}

func (m *Memory) ListMonitors(ctx context.Context) ([]models.Monitor, error) {
	return m.filterMonitors(func(models.Monitor) bool { return true }), nil
}

func (m *Memory) filterMonitors(keep func(models.Monitor) bool) []models.Monitor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Monitor{}
	for _, mon := range m.monitors {
		if keep(mon) {
			out = append(out, mon)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) GetAgent(ctx context.Context, uuid string) (*models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[uuid]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *Memory) SaveAgent(ctx context.Context, a *models.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[a.UUID] = *a
	return nil
}

func (m *Memory) ListAgents(ctx context.Context) ([]models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstAttempt.Before(out[j].FirstAttempt) })
	return out, nil
}

func (m *Memory) TouchAgent(ctx context.Context, uuid string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[uuid]
	if !ok {
		return ErrNotFound
	}
	a.LastSeen = &at
	m.agents[uuid] = a
	return nil
}

func (m *Memory) LoadAlertState(ctx context.Context, monitorID int) (*models.AlertState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.alertStates[monitorID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *Memory) SaveAlertState(ctx context.Context, s *models.AlertState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertStates[s.MonitorID] = *s
	return nil
}

func (m *Memory) RecordAlert(ctx context.Context, r *models.AlertRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAlertID++
	r.ID = m.nextAlertID
	m.alerts = append(m.alerts, *r)
	return nil
}

func (m *Memory) ListAlerts(ctx context.Context, monitorID int, limit int) ([]models.AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.AlertRecord{}
	for i := len(m.alerts) - 1; i >= 0; i-- {
		if monitorID > 0 && m.alerts[i].MonitorID != monitorID {
			continue
		}
		out = append(out, m.alerts[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) DeleteAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.alerts[:0]
	var deleted int64
	for _, r := range m.alerts {
		if r.SentAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.alerts = kept
	return deleted, nil
}

func (m *Memory) NotificationsFor(ctx context.Context, monitorID int) ([]models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Notification{}
	for _, id := range m.links[monitorID] {
		if n, ok := m.notifications[id]; ok && n.Active {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		for _, n := range m.notifications {
			if n.IsDefault && n.Active {
				out = append(out, n)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetNotification(ctx context.Context, id int) (*models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &n, nil
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Gorm)(nil)
)
