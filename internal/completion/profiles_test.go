// ABOUTME: Tests for the role profile table
// ABOUTME: Every role has a prompt; sampling settings match the role

package completion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/metrosha-gateway/internal/store"
)

func TestProfileFor(t *testing.T) {
	tests := []struct {
		role        store.Role
		temperature float64
	}{
		{store.RoleStudent, 0.8},
		{store.RoleRetraining, 0.4},
		{store.RoleTeacher, 0.6},
		{store.RoleManagement, 0.2},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			p, ok := ProfileFor(tt.role)
			require.True(t, ok)
			assert.Equal(t, tt.role, p.Role)
			assert.Equal(t, tt.temperature, p.Temperature)
			assert.Equal(t, 10000, p.MaxTokens)
			assert.NotEmpty(t, p.SystemPrompt)
		})
	}

	_, ok := ProfileFor("admin")
	assert.False(t, ok)
}

func TestProfile_Request(t *testing.T) {
	p, _ := ProfileFor(store.RoleTeacher)
	req := p.Request("как составить тест?")

	require.Len(t, req.Messages, 2)
	assert.Equal(t, Message{Role: RoleSystem, Content: p.SystemPrompt}, req.Messages[0])
	assert.Equal(t, Message{Role: RoleUser, Content: "как составить тест?"}, req.Messages[1])
	assert.Equal(t, 0.6, req.Temperature)
	assert.Equal(t, 10000, req.MaxTokens)
}

func TestEveryRoleHasProfile(t *testing.T) {
	for _, r := range store.Roles {
		_, ok := ProfileFor(r)
		assert.True(t, ok, r)
	}
}
