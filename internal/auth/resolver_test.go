package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/edledger/edledger/internal/db/models"
)

type stubUserStore struct {
	users map[string]*models.User
	err   error
}

func (s *stubUserStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.users[id], nil
}

func TestResolve_PersistedTierWins(t *testing.T) {
	orgID := "org-a"
	store := &stubUserStore{users: map[string]*models.User{
		"user-1": {
			ID:             "user-1",
			OrganizationID: &orgID,
			Tier:           models.TierStudent,
			Active:         true,
		},
	}}

	// The caller may hold a token minted while the user was an admin; Resolve
	// only receives the identity key, so the stale claim cannot surface.
	p, err := NewResolver(store).Resolve(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Tier != models.TierStudent {
		t.Errorf("Tier = %s, want %s", p.Tier, models.TierStudent)
	}
	if p.OrganizationID != "org-a" {
		t.Errorf("OrganizationID = %s, want org-a", p.OrganizationID)
	}
	if p.IsSystemOwner {
		t.Error("IsSystemOwner = true for student")
	}
}

func TestResolve_SystemOwnerHasNoOrg(t *testing.T) {
	store := &stubUserStore{users: map[string]*models.User{
		"root": {ID: "root", Tier: models.TierSystemOwner, Active: true},
	}}

	p, err := NewResolver(store).Resolve(context.Background(), "root")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !p.IsSystemOwner {
		t.Error("IsSystemOwner = false for system_owner tier")
	}
	if p.OrganizationID != "" {
		t.Errorf("OrganizationID = %q, want empty", p.OrganizationID)
	}
}

func TestResolve_IdentityNotFound(t *testing.T) {
	store := &stubUserStore{users: map[string]*models.User{}}

	_, err := NewResolver(store).Resolve(context.Background(), "ghost")
	if !errors.Is(err, ErrIdentityNotFound) {
		t.Errorf("err = %v, want ErrIdentityNotFound", err)
	}
}

func TestResolve_AccountInactive(t *testing.T) {
	orgID := "org-a"
	store := &stubUserStore{users: map[string]*models.User{
		"user-1": {ID: "user-1", OrganizationID: &orgID, Tier: models.TierTeacher, Active: false},
	}}

	_, err := NewResolver(store).Resolve(context.Background(), "user-1")
	if !errors.Is(err, ErrAccountInactive) {
		t.Errorf("err = %v, want ErrAccountInactive", err)
	}
}

func TestResolve_StoreErrorWrapped(t *testing.T) {
	storeErr := errors.New("connection refused")
	store := &stubUserStore{err: storeErr}

	_, err := NewResolver(store).Resolve(context.Background(), "user-1")
	if !errors.Is(err, storeErr) {
		t.Errorf("err = %v, want wrapped store error", err)
	}
}
