package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medmmo/roomsync/internal/core"
	"github.com/medmmo/roomsync/internal/domain"
	"github.com/medmmo/roomsync/internal/storage"
)

const testSecret = "test-secret"

// directoryStub resolves users from a map; every other storage call is
// out of scope for these tests.
type directoryStub struct {
	storage.Store
	users map[domain.UserID]domain.User
}

func (d *directoryStub) GetUser(_ context.Context, id domain.UserID) (domain.User, error) {
	u, ok := d.users[id]
	if !ok {
		return domain.User{}, storage.ErrNotFound
	}
	return u, nil
}

func signToken(t *testing.T, subject string, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func TestAuthenticate(t *testing.T) {
	dir := &directoryStub{users: map[domain.UserID]domain.User{
		"alice": {ID: "alice", Name: "Dr. Alice", Level: 3},
	}}
	a := New(testSecret, dir)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "valid token", token: signToken(t, "alice", time.Hour)},
		{name: "missing token", token: "", wantErr: core.ErrAuth},
		{name: "malformed token", token: "not.a.jwt", wantErr: core.ErrAuth},
		{name: "expired token", token: signToken(t, "alice", -time.Hour), wantErr: core.ErrAuth},
		{name: "wrong secret", token: wrongSecretToken(t), wantErr: core.ErrAuth},
		{name: "no subject", token: signToken(t, "", time.Hour), wantErr: core.ErrAuth},
		{name: "unknown subject", token: signToken(t, "ghost", time.Hour), wantErr: core.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := a.Authenticate(context.Background(), tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.UserID("alice"), user.ID)
			assert.Equal(t, 3, user.Level)
		})
	}
}

func wrongSecretToken(t *testing.T) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	return token
}
