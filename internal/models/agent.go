package models

import (
	"errors"
	"fmt"
	"time"
)

// AgentStatus is the lifecycle state of a remote agent identity
type AgentStatus string

const (
	AgentPending  AgentStatus = "pending"
	AgentApproved AgentStatus = "approved"
	AgentRejected AgentStatus = "rejected"
)

// ErrInvalidTransition is returned for lifecycle moves the state machine does not allow
var ErrInvalidTransition = errors.New("invalid agent status transition")

var agentTransitions = map[AgentStatus][]AgentStatus{
	AgentPending:  {AgentApproved, AgentRejected},
	AgentRejected: {AgentApproved},
	AgentApproved: {AgentRejected},
}

// Transition returns the next status or ErrInvalidTransition
func (s AgentStatus) Transition(to AgentStatus) (AgentStatus, error) {
	if s == to {
		return s, nil
	}
	for _, allowed := range agentTransitions[s] {
		if allowed == to {
			return to, nil
		}
	}
	return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, to)
}

// Agent is a remote runner identity
type Agent struct {
	UUID         string      `json:"uuid" gorm:"primaryKey;type:varchar(36)"`
	Name         *string     `json:"name"`
	Status       AgentStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	FirstAttempt time.Time   `json:"first_attempt"`
	LastAttempt  time.Time   `json:"last_attempt"`
	AttemptCount int         `json:"attempt_count"`
	LastSeen     *time.Time  `json:"last_seen"`
	ApprovedAt   *time.Time  `json:"approved_at"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// TableName specifies the table name for Agent
func (Agent) TableName() string {
	return "agents"
}

// Online reports whether the agent has been seen within timeout of now
func (a *Agent) Online(now time.Time, timeout time.Duration) bool {
	if a.LastSeen == nil {
		return false
	}
	return now.Sub(*a.LastSeen) <= timeout
}
