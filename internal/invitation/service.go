// Package invitation issues, resolves and accepts invitation tokens.
//
// Expiry is computed from expires_at on every read. Acceptance does not mark
// the invitation, so one link may be accepted by several users.
package invitation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/perfecto-hq/perfecto/internal/org"
	"github.com/perfecto-hq/perfecto/internal/permission"
	"github.com/perfecto-hq/perfecto/internal/validate"
)

var (
	ErrNotFound = errors.New("invitation not found")
	ErrExpired  = errors.New("invitation expired")
)

// DefaultTTL applies when the creator does not supply an expiry.
const DefaultTTL = 7 * 24 * time.Hour

// Repository persists invitations.
type Repository interface {
	Create(ctx context.Context, inv *Invitation) error
	Get(ctx context.Context, id string) (*Invitation, error)
	ListByCreator(ctx context.Context, userID int64) ([]Invitation, error)
}

// Memberships is the subset of the org repository acceptance needs.
type Memberships interface {
	GetCompany(ctx context.Context, id int64) (*org.Company, error)
	GetTeam(ctx context.Context, id int64) (*org.Team, error)
	EnsureCompanyMember(ctx context.Context, companyID, userID int64, role permission.Role) error
	EnsureTeamMember(ctx context.Context, teamID, userID int64, role permission.Role) error
}

// Service implements the invitation lifecycle.
type Service struct {
	repo     Repository
	orgs     Memberships
	resolver *permission.Resolver
	ttl      time.Duration
	baseURL  string
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for creation and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// WithBaseURL sets the absolute origin used to build accept links.
func WithBaseURL(baseURL string) Option {
	return func(s *Service) { s.baseURL = strings.TrimRight(baseURL, "/") }
}

// NewService creates an invitation service.
func NewService(repo Repository, orgs Memberships, resolver *permission.Resolver, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		orgs:     orgs,
		resolver: resolver,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AcceptURL returns the absolute link for accepting invitation id.
func (s *Service) AcceptURL(id string) string {
	return s.baseURL + "/invitations/accept/" + id + "/"
}

// CreateCompanyInvitation issues an invitation to join a company. Requires
// manager or owner on the company.
func (s *Service) CreateCompanyInvitation(ctx context.Context, actorID, companyID int64, in CreateInput) (*Invitation, error) {
	if _, err := s.orgs.GetCompany(ctx, companyID); err != nil {
		return nil, err
	}
	if err := s.resolver.RequireCompany(ctx, actorID, companyID); err != nil {
		return nil, err
	}
	return s.create(ctx, actorID, TypeCompany, companyID, nil, in)
}

// CreateTeamInvitation issues an invitation to join a team. Requires manager
// or owner on the team, or on its company when the actor has no team row.
func (s *Service) CreateTeamInvitation(ctx context.Context, actorID, teamID int64, in CreateInput) (*Invitation, error) {
	t, err := s.orgs.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.RequireTeam(ctx, actorID, teamID, t.CompanyID); err != nil {
		return nil, err
	}
	return s.create(ctx, actorID, TypeTeam, t.CompanyID, &t.ID, in)
}

func (s *Service) create(ctx context.Context, actorID int64, typ Type, companyID int64, teamID *int64, in CreateInput) (*Invitation, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	if in.ExpiresAt != nil {
		if !in.ExpiresAt.After(now) {
			return nil, validate.Field("expires_at", "expiry must be in the future")
		}
		expiresAt = *in.ExpiresAt
	}

	inv := &Invitation{
		ID:              uuid.NewString(),
		CreatedBy:       actorID,
		Type:            typ,
		CompanyID:       companyID,
		TeamID:          teamID,
		Email:           in.Email,
		IsManagerInvite: in.IsManagerInvite,
		CreatedAt:       now,
		ExpiresAt:       expiresAt,
	}
	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Get returns the invitation with the given token. Tokens that are not
// well-formed are reported as ErrNotFound without a lookup; other accepted
// spellings (uppercase, braced, urn:uuid:) are looked up in canonical form.
func (s *Service) Get(ctx context.Context, id string) (*Invitation, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.repo.Get(ctx, parsed.String())
}

// View resolves an invitation with its target names and derived status.
func (s *Service) View(ctx context.Context, id string) (*View, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	v := &View{
		Invitation: inv,
		Status:     inv.StatusAt(s.now()),
		AcceptURL:  s.AcceptURL(inv.ID),
	}
	c, err := s.orgs.GetCompany(ctx, inv.CompanyID)
	if err != nil {
		return nil, err
	}
	v.CompanyName = c.Name
	if inv.TeamID != nil {
		t, err := s.orgs.GetTeam(ctx, *inv.TeamID)
		if err != nil {
			return nil, err
		}
		v.TeamName = t.Name
	}
	return v, nil
}

// Accept grants the memberships an invitation carries to userID. Existing
// memberships are left as they are. Returns ErrExpired past expiry.
func (s *Service) Accept(ctx context.Context, userID int64, id string) (*Invitation, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.IsExpired(s.now()) {
		return inv, ErrExpired
	}

	switch inv.Type {
	case TypeCompany:
		err = s.orgs.EnsureCompanyMember(ctx, inv.CompanyID, userID,
			permission.Role{IsManager: inv.IsManagerInvite})
		if err != nil {
			return nil, err
		}
	case TypeTeam:
		if inv.TeamID == nil {
			return nil, fmt.Errorf("team invitation %s has no team", inv.ID)
		}
		if err := s.orgs.EnsureCompanyMember(ctx, inv.CompanyID, userID, permission.Role{}); err != nil {
			return nil, err
		}
		err = s.orgs.EnsureTeamMember(ctx, *inv.TeamID, userID,
			permission.Role{IsManager: inv.IsManagerInvite})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown invitation type %q", inv.Type)
	}
	return inv, nil
}

// Decline resolves the invitation and changes nothing.
func (s *Service) Decline(ctx context.Context, id string) (*Invitation, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.IsExpired(s.now()) {
		return inv, ErrExpired
	}
	return inv, nil
}

// ListForCreator partitions the invitations userID created into active and
// expired, newest first.
func (s *Service) ListForCreator(ctx context.Context, userID int64) (*Partition, error) {
	invs, err := s.repo.ListByCreator(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(invs, func(i, j int) bool {
		return invs[i].CreatedAt.After(invs[j].CreatedAt)
	})

	now := s.now()
	p := &Partition{Active: []Invitation{}, Expired: []Invitation{}}
	for _, inv := range invs {
		if inv.IsExpired(now) {
			p.Expired = append(p.Expired, inv)
		} else {
			p.Active = append(p.Active, inv)
		}
	}
	return p, nil
}
