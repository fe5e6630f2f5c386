package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fuomag9/onlinetracker/internal/agentproto"
	"github.com/fuomag9/onlinetracker/internal/models"
	"github.com/fuomag9/onlinetracker/internal/store"
)

// maxResultRange bounds a single results query
const maxResultRange = 31 * 24 * time.Hour

// MonitorStatus is a monitor with its current status
type MonitorStatus struct {
	ID        int             `json:"id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Runner    string          `json:"runner"`
	Status    models.Severity `json:"status"`
	LastCheck *time.Time      `json:"last_check,omitempty"`
	LatencyMs *int            `json:"latency_ms,omitempty"`
	Detail    string          `json:"detail,omitempty"`
}

// AgentCounts summarizes the agent fleet
type AgentCounts struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Online   int `json:"online"`
}

// Overview is the dashboard summary
type Overview struct {
	Total    int                     `json:"total"`
	Monitors map[models.Severity]int `json:"monitors"`
	Agents   AgentCounts             `json:"agents"`
	Items    []MonitorStatus         `json:"items"`
}

// BuildOverview derives each enabled monitor's status from its latest result. Monitors
// owned by an agent that is not online are reported as unknown.
func BuildOverview(monitors []models.Monitor, latest map[int]models.CheckResult, agents []agentproto.AgentView) Overview {
	ov := Overview{
		Monitors: map[models.Severity]int{
			models.SeverityUp:       0,
			models.SeverityDegraded: 0,
			models.SeverityDown:     0,
			models.SeverityUnknown:  0,
		},
		Items: []MonitorStatus{},
	}

	online := make(map[string]bool, len(agents))
	for _, a := range agents {
		switch a.Status {
		case models.AgentPending:
			ov.Agents.Pending++
		case models.AgentApproved:
			ov.Agents.Approved++
		case models.AgentRejected:
			ov.Agents.Rejected++
		}
		if a.Online {
			ov.Agents.Online++
			online[a.UUID] = true
		}
	}

	for _, m := range monitors {
		if !m.Enabled {
			continue
		}
		item := MonitorStatus{ID: m.ID, Name: m.Name, Type: m.Type, Runner: m.Runner(), Status: models.SeverityUnknown}

		if r, ok := latest[m.ID]; ok {
			checked := r.CheckedAt
			item.LastCheck = &checked
			item.LatencyMs = r.LatencyMs
			item.Status = r.Severity
			item.Detail = r.Detail
		}
		if m.AgentID != nil && !online[*m.AgentID] {
			item.Status = models.SeverityUnknown
			item.Detail = "Agent offline"
		}

		ov.Total++
		ov.Monitors[item.Status]++
		ov.Items = append(ov.Items, item)
	}
	return ov
}

// HandleGetOverview returns monitor and agent counts
func HandleGetOverview(st store.Store, agents *agentproto.Registry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		monitors, err := st.ListMonitors(r.Context())
		if err != nil {
			logger.Error("failed to list monitors", zap.Error(err))
			http.Error(w, "Failed to fetch monitors", http.StatusInternalServerError)
			return
		}

		ids := make([]int, 0, len(monitors))
		for _, m := range monitors {
			ids = append(ids, m.ID)
		}
		latest, err := st.LatestResults(r.Context(), ids)
		if err != nil {
			logger.Error("failed to load latest results", zap.Error(err))
			http.Error(w, "Failed to fetch results", http.StatusInternalServerError)
			return
		}

		views, err := agents.List(r.Context())
		if err != nil {
			logger.Error("failed to list agents", zap.Error(err))
			http.Error(w, "Failed to fetch agents", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, BuildOverview(monitors, latest, views))
	}
}

// monitorFromURL resolves the {id} parameter, writing the error response itself
func monitorFromURL(w http.ResponseWriter, r *http.Request, st store.Monitors) (*models.Monitor, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid monitor ID", http.StatusBadRequest)
		return nil, false
	}

	m, err := st.GetMonitor(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Monitor not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, "Failed to fetch monitor", http.StatusInternalServerError)
		return nil, false
	}
	return m, true
}

func parseTimeParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, v)
}

// HandleGetResults returns check results in [from, to), oldest first. Defaults to the last 24 hours.
func HandleGetResults(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := monitorFromURL(w, r, st)
		if !ok {
			return
		}

		now := time.Now().UTC()
		to, err := parseTimeParam(r, "to", now)
		if err != nil {
			http.Error(w, "Invalid 'to' timestamp", http.StatusBadRequest)
			return
		}
		from, err := parseTimeParam(r, "from", to.Add(-24*time.Hour))
		if err != nil {
			http.Error(w, "Invalid 'from' timestamp", http.StatusBadRequest)
			return
		}
		if !from.Before(to) || to.Sub(from) > maxResultRange {
			http.Error(w, "Invalid time range", http.StatusBadRequest)
			return
		}

		results, err := st.ResultRange(r.Context(), m.ID, from, to)
		if err != nil {
			http.Error(w, "Failed to fetch results", http.StatusInternalServerError)
			return
		}
		if results == nil {
			results = []models.CheckResult{}
		}

		writeJSON(w, http.StatusOK, results)
	}
}

// HandleGetAlerts returns the most recent alerts sent for a monitor
func HandleGetAlerts(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := monitorFromURL(w, r, st)
		if !ok {
			return
		}

		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 500 {
				http.Error(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		alerts, err := st.ListAlerts(r.Context(), m.ID, limit)
		if err != nil {
			http.Error(w, "Failed to fetch alerts", http.StatusInternalServerError)
			return
		}
		if alerts == nil {
			alerts = []models.AlertRecord{}
		}

		writeJSON(w, http.StatusOK, alerts)
	}
}
