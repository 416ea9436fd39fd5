package auth

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/rhythm/store"
)

// UserStore looks up users.
type UserStore interface {
	GetUser(ctx context.Context, find *store.FindUser) (*store.User, error)
}

// Authenticator verifies bearer tokens and checks the user still exists.
type Authenticator struct {
	store  UserStore
	secret string
}

// NewAuthenticator creates an authenticator for tokens signed with secret.
func NewAuthenticator(s UserStore, secret string) *Authenticator {
	return &Authenticator{store: s, secret: secret}
}

// Authenticate resolves an Authorization header to the user's claims.
func (a *Authenticator) Authenticate(ctx context.Context, authHeader string) (*UserClaims, error) {
	token, err := ExtractBearerToken(authHeader)
	if err != nil {
		return nil, err
	}
	claims, err := ParseAccessToken(a.secret, token)
	if err != nil {
		return nil, err
	}

	user, err := a.store.GetUser(ctx, &store.FindUser{ID: &claims.UserID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user")
	}
	if user == nil {
		return nil, errors.Wrapf(ErrInvalidToken, "user %d not found", claims.UserID)
	}
	return claims, nil
}
