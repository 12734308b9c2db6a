// Package auth implements JWT issuance/verification and the role-to-source
// permission mapping used by retrieval filtering.
package auth

import (
	"errors"
	"time"

	"github.com/BaSui01/ragflow/types"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the authenticated identity and its role set.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HS256 tokens.
type Manager struct {
	secret []byte
	expiry time.Duration
}

// NewManager creates a token manager. expiry of zero defaults to 24h.
func NewManager(secret string, expiry time.Duration) *Manager {
	if expiry == 0 {
		expiry = 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), expiry: expiry}
}

// Issue signs a token for subject holding roles.
func (m *Manager) Issue(subject string, roles []string) (string, error) {
	now := time.Now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify parses and validates a token, returning its claims.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, types.NewError(types.ErrAuthentication, "token expired").WithCause(err)
		}
		return nil, types.NewError(types.ErrAuthentication, "invalid token").WithCause(err)
	}
	if !token.Valid {
		return nil, types.NewError(types.ErrAuthentication, "invalid token")
	}
	return claims, nil
}

// rolePermissions maps a role to the document source groups it may read.
var rolePermissions = map[string][]string{
	"hr":          {"hr", "security"},
	"engineering": {"engineering"},
	"finance":     {"finance"},
	"security":    {"security"},
	"admin":       {"hr", "engineering", "finance", "security"},
}

// AllowedSources returns the union of source groups granted to roles.
// Unknown roles grant nothing.
func AllowedSources(roles []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, role := range roles {
		for _, src := range rolePermissions[role] {
			if _, ok := seen[src]; ok {
				continue
			}
			seen[src] = struct{}{}
			out = append(out, src)
		}
	}
	return out
}
