package auth

import (
	"testing"
	"time"

	"github.com/BaSui01/ragflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	m := NewManager("test-secret", time.Hour)

	token, err := m.Issue("alice", []string{"hr", "finance"})
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, []string{"hr", "finance"}, claims.Roles)
}

func TestVerifyExpiredToken(t *testing.T) {
	t.Parallel()

	m := NewManager("test-secret", -time.Minute)

	token, err := m.Issue("bob", []string{"hr"})
	require.NoError(t, err)

	_, err = m.Verify(token)
	require.Error(t, err)
	assert.Equal(t, types.ErrAuthentication, types.GetErrorCode(err))
}

func TestVerifyWrongSecret(t *testing.T) {
	t.Parallel()

	token, err := NewManager("secret-a", time.Hour).Issue("carol", nil)
	require.NoError(t, err)

	_, err = NewManager("secret-b", time.Hour).Verify(token)
	require.Error(t, err)
	assert.Equal(t, types.ErrAuthentication, types.GetErrorCode(err))
}

func TestVerifyGarbage(t *testing.T) {
	t.Parallel()

	_, err := NewManager("secret", time.Hour).Verify("not.a.token")
	require.Error(t, err)
}

func TestAllowedSources(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		roles []string
		want  []string
	}{
		{"hr", []string{"hr"}, []string{"hr", "security"}},
		{"admin", []string{"admin"}, []string{"hr", "engineering", "finance", "security"}},
		{"unknown role", []string{"intern"}, nil},
		{"union without duplicates", []string{"hr", "security"}, []string{"hr", "security"}},
		{"empty", nil, nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, AllowedSources(tt.roles))
		})
	}
}
