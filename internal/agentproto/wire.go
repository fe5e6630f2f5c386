// Package agentproto is the server side of the remote agent channel: identity lifecycle,
// work assignments and result reports.
package agentproto

import (
	"time"

	"github.com/fuomag9/onlinetracker/internal/models"
	"github.com/fuomag9/onlinetracker/internal/monitor"
)

// Header names accepted in place of body or query fields
const (
	HeaderSecret = "X-Agent-Secret"
	HeaderUUID   = "X-Agent-UUID"
)

// RegisterRequest is sent by an agent on startup and while pending
type RegisterRequest struct {
	UUID   string  `json:"uuid"`
	Name   *string `json:"name,omitempty"`
	Secret string  `json:"secret"`
}

// RegisterResponse reports the agent's lifecycle status
type RegisterResponse struct {
	Status  models.AgentStatus `json:"status"`
	Message string             `json:"message,omitempty"`
}

// Assignment is one monitor the agent must run
type Assignment struct {
	MonitorID int            `json:"monitor_id"`
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	Target    string         `json:"target"`
	Interval  int            `json:"interval"` // seconds
	Config    monitor.Config `json:"config"`
}

// AssignmentsResponse is the agent's complete work list
type AssignmentsResponse struct {
	Assignments []Assignment `json:"assignments"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// ReportedResult is a check result as recorded by the agent
type ReportedResult struct {
	MonitorID        int             `json:"monitor_id"`
	Timestamp        time.Time       `json:"timestamp"`
	Status           models.Severity `json:"status"`
	LatencyMs        *int            `json:"latency_ms,omitempty"`
	Detail           string          `json:"detail,omitempty"`
	TLSDaysRemaining *int            `json:"tls_days_remaining,omitempty"`
	ContentHash      string          `json:"content_hash,omitempty"`
}

// ReportRequest submits a batch of results
type ReportRequest struct {
	UUID    string           `json:"uuid"`
	Secret  string           `json:"secret"`
	Results []ReportedResult `json:"results"`
}

// ReportResponse counts what the server did with a batch
type ReportResponse struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// HeartbeatRequest keeps an idle agent marked online
type HeartbeatRequest struct {
	UUID   string `json:"uuid"`
	Secret string `json:"secret"`
}

// AssignmentFor converts a job into its wire form
func AssignmentFor(job monitor.Job) Assignment {
	return Assignment{
		MonitorID: job.MonitorID,
		Name:      job.Name,
		Type:      string(job.Kind),
		Target:    job.Target,
		Interval:  int(job.Interval / time.Second),
		Config:    job.Config,
	}
}

// Job converts an assignment back into an executor job
func (a Assignment) Job() (monitor.Job, error) {
	kind, err := monitor.ParseKind(a.Type)
	if err != nil {
		return monitor.Job{}, err
	}
	return monitor.Job{
		MonitorID: a.MonitorID,
		Name:      a.Name,
		Kind:      kind,
		Target:    a.Target,
		Interval:  monitor.ClampInterval(a.Interval),
		Config:    a.Config,
	}, nil
}

// ReportedResultFrom converts a locally produced result into its wire form
func ReportedResultFrom(r models.CheckResult) ReportedResult {
	return ReportedResult{
		MonitorID:        r.MonitorID,
		Timestamp:        r.CheckedAt,
		Status:           r.Severity,
		LatencyMs:        r.LatencyMs,
		Detail:           r.Detail,
		TLSDaysRemaining: r.TLSDaysRemaining,
		ContentHash:      r.ContentHash,
	}
}

// CheckResult converts the reported result into a stored result attributed to source
func (r ReportedResult) CheckResult(source string) models.CheckResult {
	return models.CheckResult{
		MonitorID:        r.MonitorID,
		CheckedAt:        r.Timestamp.UTC(),
		Severity:         r.Status,
		LatencyMs:        r.LatencyMs,
		Detail:           r.Detail,
		TLSDaysRemaining: r.TLSDaysRemaining,
		ContentHash:      r.ContentHash,
		Source:           source,
	}
}
