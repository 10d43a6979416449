// Package auth verifies bearer tokens and resolves their subject
// against the user directory.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medmmo/roomsync/internal/core"
	"github.com/medmmo/roomsync/internal/domain"
	"github.com/medmmo/roomsync/internal/storage"
)

type claims struct {
	jwt.RegisteredClaims
}

// Authenticator validates HS256 bearer tokens issued by the account
// service. Token issuance is out of scope here.
type Authenticator struct {
	secret []byte
	users  storage.Store
	now    func() time.Time
}

func New(secret string, users storage.Store) *Authenticator {
	return &Authenticator{secret: []byte(secret), users: users, now: time.Now}
}

// Authenticate verifies the token and resolves its subject to a user
// record. Missing, malformed or expired tokens fail with core.ErrAuth;
// an unresolvable subject fails with core.ErrUserNotFound. No state is
// touched before either failure.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, fmt.Errorf("%w: missing token", core.ErrAuth)
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return domain.User{}, fmt.Errorf("%w: %v", core.ErrAuth, err)
	}
	if c.Subject == "" {
		return domain.User{}, fmt.Errorf("%w: token has no subject", core.ErrAuth)
	}

	user, err := a.users.GetUser(ctx, domain.UserID(c.Subject))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.User{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, c.Subject)
		}
		return domain.User{}, fmt.Errorf("resolve user: %w", err)
	}
	return user, nil
}
