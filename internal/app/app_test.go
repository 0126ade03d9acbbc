package app

import (
	"context"
	"testing"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBudgetPolicy(t *testing.T) {
	tests := map[string]core.BudgetAction{
		"":            core.BudgetWarn,
		"warn":        core.BudgetWarn,
		"Allow":       core.BudgetAllow,
		"allow_muted": core.BudgetAllowMuted,
	}
	for in, want := range tests {
		p, err := ParseBudgetPolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, p.OnOverBudget(domain.Participant{}, 3, 2), in)
	}

	_, err := ParseBudgetPolicy("cull")
	assert.Error(t, err)
}

func TestRegistryKeepsParticipantAcrossReconnect(t *testing.T) {
	r := NewRegistry()
	a := r.GetOrCreateParticipant("tok-a")
	b := r.GetOrCreateParticipant("tok-b")

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a, r.GetOrCreateParticipant("tok-a"))

	require.NoError(t, r.UpdateDisplayName("tok-a", "alice"))
	assert.Equal(t, "alice", r.GetOrCreateParticipant("tok-a").DisplayName)
	assert.ErrorIs(t, r.UpdateDisplayName("tok-a", "this display name is far too long to be accepted"), domain.ErrDisplayNameTooLong)
}

func TestRegistryUnbindOnlyCurrentSession(t *testing.T) {
	r := NewRegistry()
	p := r.GetOrCreateParticipant("tok")
	old := core.NewMemberSession(&p)
	cur := core.NewMemberSession(&p)

	canceled := false
	_, cancel := context.WithCancel(context.Background())
	r.BindSignal("tok", old, cancel)
	r.BindSignal("tok", cur, func() { canceled = true })

	assert.False(t, r.Unbind("tok", old))
	assert.True(t, r.Cancel("tok"))
	assert.True(t, canceled)
	assert.True(t, r.Unbind("tok", cur))
	assert.Zero(t, r.SessionCount())
	assert.False(t, r.Cancel("tok"))
}
