package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityDown.WorseThan(SeverityDegraded))
	assert.True(t, SeverityDegraded.WorseThan(SeverityUp))
	assert.False(t, SeverityUp.WorseThan(SeverityUp))

	assert.False(t, SeverityUp.Failing())
	assert.True(t, SeverityDegraded.Failing())
	assert.True(t, SeverityDown.Failing())
	assert.False(t, SeverityUnknown.Failing(), "unknown is not a failure")

	assert.True(t, SeverityUnknown.Valid())
	assert.False(t, Severity("critical").Valid())
}

func TestAgentStatusTransition(t *testing.T) {
	tests := []struct {
		from, to AgentStatus
		ok       bool
	}{
		{AgentPending, AgentApproved, true},
		{AgentPending, AgentRejected, true},
		{AgentApproved, AgentRejected, true},
		{AgentRejected, AgentApproved, true},
		{AgentApproved, AgentApproved, true},
		{AgentApproved, AgentPending, false},
		{AgentRejected, AgentPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			got, err := tt.from.Transition(tt.to)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.to, got)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidTransition))
			assert.Equal(t, tt.from, got)
		})
	}
}

func TestAgentOnline(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &Agent{}
	assert.False(t, a.Online(now, time.Minute), "never seen")

	seen := now.Add(-30 * time.Second)
	a.LastSeen = &seen
	assert.True(t, a.Online(now, time.Minute))
	assert.False(t, a.Online(now, 10*time.Second))
}
