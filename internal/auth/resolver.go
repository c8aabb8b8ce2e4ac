// Package auth - resolver.go resolves an authenticated identity to a Principal by
// re-reading the persisted user record.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/edledger/edledger/internal/db/models"
)

var (
	// ErrIdentityNotFound is returned when no user record backs the authenticated identity.
	ErrIdentityNotFound = errors.New("auth: identity not found")
	// ErrAccountInactive is returned when the backing user record is deactivated.
	ErrAccountInactive = errors.New("auth: account inactive")
)

// UserStore is the user lookup the resolver depends on. A nil user with a nil
// error means the record does not exist.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Resolver produces a Principal from an authenticated identity key.
type Resolver struct {
	users UserStore
}

// NewResolver creates a Resolver backed by the given user store.
func NewResolver(users UserStore) *Resolver {
	return &Resolver{users: users}
}

// Resolve looks up the user identified by userID (the JWT subject) and derives
// a Principal. The persisted tier and organization always win over anything a
// session token claims; the token contributes only the identity key. Resolve
// is read-only and is called once per request.
func (r *Resolver) Resolve(ctx context.Context, userID string) (Principal, error) {
	u, err := r.users.GetUserByID(ctx, userID)
	if err != nil {
		return Principal{}, fmt.Errorf("resolve principal: %w", err)
	}
	if u == nil || u.ArchivedAt != nil {
		return Principal{}, ErrIdentityNotFound
	}
	if !u.Active {
		return Principal{}, ErrAccountInactive
	}
	return PrincipalFromUser(u), nil
}
