package agentproto

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fuomag9/onlinetracker/internal/alert"
	"github.com/fuomag9/onlinetracker/internal/keylock"
	"github.com/fuomag9/onlinetracker/internal/metrics"
	"github.com/fuomag9/onlinetracker/internal/models"
	"github.com/fuomag9/onlinetracker/internal/monitor"
	"github.com/fuomag9/onlinetracker/internal/settings"
	"github.com/fuomag9/onlinetracker/internal/store"
)

var (
	// ErrUnauthorized is returned when the shared secret does not match
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotApproved is returned for identities that are unknown, pending or rejected
	ErrNotApproved = errors.New("agent not approved")
	// ErrInvalidUUID is returned for registrations with a malformed identity
	ErrInvalidUUID = errors.New("invalid agent uuid")
	// ErrInvalidTransition is returned for operator actions the lifecycle does not allow
	ErrInvalidTransition = models.ErrInvalidTransition
)

// maxClockSkew bounds how far in the future a reported timestamp may lie
const maxClockSkew = 5 * time.Minute

// ResultHandler consumes accepted results
type ResultHandler interface {
	Handle(ctx context.Context, m *models.Monitor, result models.CheckResult) (*alert.Event, error)
}

// AgentView is an agent with its computed liveness
type AgentView struct {
	models.Agent
	Online bool `json:"online"`
}

// Registry implements the agent lifecycle and the work and report operations
type Registry struct {
	agents   store.Agents
	monitors store.Monitors
	results  ResultHandler
	settings settings.Provider
	locks    keylock.Map[string]
	authLog  rate.Sometimes
	now      func() time.Time
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// Option configures a Registry
type Option func(*Registry)

// WithNow overrides the clock
func WithNow(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates a new agent registry
func NewRegistry(agents store.Agents, monitors store.Monitors, results ResultHandler, provider settings.Provider, opts ...Option) *Registry {
	r := &Registry{
		agents:   agents,
		monitors: monitors,
		results:  results,
		settings: provider,
		authLog:  rate.Sometimes{First: 3, Interval: 30 * time.Second},
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func secretMatches(configured, presented string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}

// authFailure counts every failure but logs only a few per interval
func (r *Registry) authFailure(op, agentID string, err error) {
	r.metrics.AuthFailure()
	r.authLog.Do(func() {
		r.logger.Warn("agent request rejected",
			zap.String("op", op), zap.String("uuid", agentID), zap.Error(err))
	})
}

// Register processes a registration attempt. A wrong secret or malformed uuid creates no
// state. Otherwise exactly one record exists per uuid no matter how often it retries.
func (r *Registry) Register(ctx context.Context, req RegisterRequest) (models.AgentStatus, error) {
	cfg, err := r.settings.Current(ctx)
	if err != nil {
		r.logger.Warn("using fallback agent settings", zap.Error(err))
	}

	if !secretMatches(cfg.SharedSecret, req.Secret) {
		r.authFailure("register", req.UUID, ErrUnauthorized)
		return "", ErrUnauthorized
	}

	parsed, err := uuid.Parse(req.UUID)
	if err != nil {
		r.authFailure("register", req.UUID, ErrInvalidUUID)
		return "", fmt.Errorf("%w: %v", ErrInvalidUUID, err)
	}
	id := parsed.String()

	unlock := r.locks.Lock(id)
	defer unlock()

	now := r.now().UTC()
	allowed := cfg.AgentAllowed(id)

	agent, err := r.agents.GetAgent(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		agent = &models.Agent{
			UUID:         id,
			Name:         req.Name,
			Status:       models.AgentPending,
			FirstAttempt: now,
			CreatedAt:    now,
		}
	case err != nil:
		return "", fmt.Errorf("failed to load agent %s: %w", id, err)
	}

	agent.LastAttempt = now
	agent.AttemptCount++
	agent.UpdatedAt = now
	if agent.Name == nil && req.Name != nil && *req.Name != "" {
		agent.Name = req.Name
	}
	if allowed && agent.Status == models.AgentPending {
		agent.Status = models.AgentApproved
		agent.ApprovedAt = &now
	}
	if agent.Status == models.AgentApproved {
		agent.LastSeen = &now
	}

	if err := r.agents.SaveAgent(ctx, agent); err != nil {
		return "", fmt.Errorf("failed to save agent %s: %w", id, err)
	}

	r.logger.Info("agent registration",
		zap.String("uuid", id),
		zap.String("status", string(agent.Status)),
		zap.Int("attempts", agent.AttemptCount))
	return agent.Status, nil
}

// authorize checks the secret and that the identity is approved. It has no side effects
// beyond rate-limited logging.
func (r *Registry) authorize(ctx context.Context, op, agentID, secret string) (*models.Agent, settings.Settings, error) {
	cfg, err := r.settings.Current(ctx)
	if err != nil {
		r.logger.Warn("using fallback agent settings", zap.Error(err))
	}

	if !secretMatches(cfg.SharedSecret, secret) {
		r.authFailure(op, agentID, ErrUnauthorized)
		return nil, cfg, ErrUnauthorized
	}

	parsed, err := uuid.Parse(agentID)
	if err != nil {
		r.authFailure(op, agentID, ErrNotApproved)
		return nil, cfg, ErrNotApproved
	}

	agent, err := r.agents.GetAgent(ctx, parsed.String())
	if errors.Is(err, store.ErrNotFound) {
		r.authFailure(op, agentID, ErrNotApproved)
		return nil, cfg, ErrNotApproved
	}
	if err != nil {
		return nil, cfg, fmt.Errorf("failed to load agent: %w", err)
	}
	if agent.Status != models.AgentApproved {
		r.authFailure(op, agentID, ErrNotApproved)
		return nil, cfg, ErrNotApproved
	}
	return agent, cfg, nil
}

func (r *Registry) touch(ctx context.Context, agentID string) {
	if err := r.agents.TouchAgent(ctx, agentID, r.now().UTC()); err != nil {
		r.logger.Warn("failed to update agent last seen", zap.String("uuid", agentID), zap.Error(err))
	}
}

// Assignments returns the monitors owned by the agent
func (r *Registry) Assignments(ctx context.Context, agentID, secret string) (*AssignmentsResponse, error) {
	agent, cfg, err := r.authorize(ctx, "assignments", agentID, secret)
	if err != nil {
		return nil, err
	}

	monitors, err := r.monitors.AgentMonitors(ctx, agent.UUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assigned monitors: %w", err)
	}

	resp := &AssignmentsResponse{Assignments: []Assignment{}, GeneratedAt: r.now().UTC()}
	for i := range monitors {
		job, err := monitor.JobFor(&monitors[i], cfg.Defaults)
		if err != nil {
			if job.Kind == "" {
				r.logger.Warn("skipping unassignable monitor", zap.Int("monitor_id", monitors[i].ID), zap.Error(err))
				continue
			}
			r.logger.Warn("monitor config has invalid values, using defaults",
				zap.Int("monitor_id", monitors[i].ID), zap.Error(err))
		}
		resp.Assignments = append(resp.Assignments, AssignmentFor(job))
	}

	r.touch(ctx, agent.UUID)
	return resp, nil
}

// Report accepts a batch of results. Results are applied in the order the agent recorded
// them; results for monitors not assigned to the agent are dropped.
func (r *Registry) Report(ctx context.Context, req ReportRequest) (ReportResponse, error) {
	var resp ReportResponse

	agent, _, err := r.authorize(ctx, "report", req.UUID, req.Secret)
	if err != nil {
		return resp, err
	}

	monitors, err := r.monitors.AgentMonitors(ctx, agent.UUID)
	if err != nil {
		return resp, fmt.Errorf("failed to list assigned monitors: %w", err)
	}
	assigned := make(map[int]*models.Monitor, len(monitors))
	for i := range monitors {
		assigned[monitors[i].ID] = &monitors[i]
	}

	batch := make([]ReportedResult, len(req.Results))
	copy(batch, req.Results)
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].Timestamp.Before(batch[j].Timestamp) })

	latest := r.now().UTC().Add(maxClockSkew)
	for _, reported := range batch {
		m, ok := assigned[reported.MonitorID]
		if !ok || !reported.Status.Valid() || reported.Timestamp.IsZero() || reported.Timestamp.After(latest) {
			resp.Rejected++
			continue
		}

		if _, err := r.results.Handle(ctx, m, reported.CheckResult(agent.UUID)); err != nil {
			return resp, fmt.Errorf("failed to handle result for monitor %d: %w", m.ID, err)
		}
		resp.Accepted++
	}

	if resp.Rejected > 0 {
		r.logger.Warn("dropped reported results",
			zap.String("uuid", agent.UUID), zap.Int("rejected", resp.Rejected), zap.Int("accepted", resp.Accepted))
	}

	r.touch(ctx, agent.UUID)
	return resp, nil
}

// Heartbeat marks the agent as seen
func (r *Registry) Heartbeat(ctx context.Context, agentID, secret string) error {
	agent, _, err := r.authorize(ctx, "heartbeat", agentID, secret)
	if err != nil {
		return err
	}
	r.touch(ctx, agent.UUID)
	return nil
}

// Approve moves an agent to approved
func (r *Registry) Approve(ctx context.Context, agentID string) (*models.Agent, error) {
	return r.transition(ctx, agentID, models.AgentApproved)
}

// Reject moves an agent to rejected
func (r *Registry) Reject(ctx context.Context, agentID string) (*models.Agent, error) {
	return r.transition(ctx, agentID, models.AgentRejected)
}

func (r *Registry) transition(ctx context.Context, agentID string, to models.AgentStatus) (*models.Agent, error) {
	parsed, err := uuid.Parse(agentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUUID, err)
	}
	id := parsed.String()

	unlock := r.locks.Lock(id)
	defer unlock()

	agent, err := r.agents.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := agent.Status.Transition(to)
	if err != nil {
		return nil, err
	}
	if next == agent.Status {
		return agent, nil
	}

	now := r.now().UTC()
	agent.Status = next
	agent.UpdatedAt = now
	if next == models.AgentApproved {
		agent.ApprovedAt = &now
	}

	if err := r.agents.SaveAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("failed to save agent %s: %w", id, err)
	}

	r.logger.Info("agent status changed", zap.String("uuid", id), zap.String("status", string(next)))
	return agent, nil
}

// List returns all agents with their liveness under the current agent timeout
func (r *Registry) List(ctx context.Context) ([]AgentView, error) {
	cfg, err := r.settings.Current(ctx)
	if err != nil {
		r.logger.Warn("using fallback agent settings", zap.Error(err))
	}

	agents, err := r.agents.ListAgents(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now()
	views := make([]AgentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, AgentView{Agent: a, Online: a.Status == models.AgentApproved && a.Online(now, cfg.AgentTimeout)})
	}
	return views, nil
}

// OfflineAgents returns the uuids of approved agents not seen within the agent timeout
func (r *Registry) OfflineAgents(ctx context.Context) (map[string]bool, error) {
	views, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	offline := make(map[string]bool)
	for _, v := range views {
		if v.Status == models.AgentApproved && !v.Online {
			offline[v.UUID] = true
		}
	}
	return offline, nil
}

// Online reports whether the agent is approved and was seen within the agent timeout
func (r *Registry) Online(ctx context.Context, agentID string) (bool, error) {
	id, err := uuid.Parse(agentID)
	if err != nil {
		return false, ErrInvalidUUID
	}

	cfg, err := r.settings.Current(ctx)
	if err != nil {
		r.logger.Warn("using fallback agent settings", zap.Error(err))
	}

	a, err := r.agents.GetAgent(ctx, id.String())
	if err != nil {
		return false, err
	}
	return a.Status == models.AgentApproved && a.Online(r.now(), cfg.AgentTimeout), nil
}
