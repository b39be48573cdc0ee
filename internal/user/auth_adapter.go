package user

import (
	"context"

	"github.com/perfecto-hq/perfecto/internal/auth"
)

// AuthAdapter adapts Service to the auth.SessionLookup interface.
type AuthAdapter struct {
	svc *Service
}

// NewAuthAdapter creates a new AuthAdapter wrapping the given user service.
func NewAuthAdapter(svc *Service) *AuthAdapter {
	return &AuthAdapter{svc: svc}
}

// LookupSession looks up a session token and returns the associated auth.User.
func (a *AuthAdapter) LookupSession(ctx context.Context, token string) (*auth.User, error) {
	u, err := a.svc.SessionUser(ctx, token)
	if err != nil {
		return nil, err
	}
	return &auth.User{ID: u.ID, Email: u.Email, Name: u.Name}, nil
}
