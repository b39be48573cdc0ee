package memstore

import (
	"context"
	"sort"

	"github.com/perfecto-hq/perfecto/internal/invitation"
)

// Invitations implements invitation.Repository.
type Invitations struct {
	db *DB
}

func copyInvitation(inv *invitation.Invitation) *invitation.Invitation {
	cp := *inv
	if inv.TeamID != nil {
		id := *inv.TeamID
		cp.TeamID = &id
	}
	return &cp
}

func (s *Invitations) Create(ctx context.Context, inv *invitation.Invitation) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.invitations[inv.ID] = copyInvitation(inv)
	return nil
}

func (s *Invitations) Get(ctx context.Context, id string) (*invitation.Invitation, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	inv, ok := s.db.invitations[id]
	if !ok {
		return nil, invitation.ErrNotFound
	}
	return copyInvitation(inv), nil
}

func (s *Invitations) ListByCreator(ctx context.Context, userID int64) ([]invitation.Invitation, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := []invitation.Invitation{}
	for _, inv := range s.db.invitations {
		if inv.CreatedBy == userID {
			out = append(out, *copyInvitation(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
