// Package org manages companies, teams and the membership rows that carry
// manager and owner flags.
package org

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/perfecto-hq/perfecto/internal/permission"
	"github.com/perfecto-hq/perfecto/internal/user"
	"github.com/perfecto-hq/perfecto/internal/validate"
)

var (
	ErrCompanyNotFound = errors.New("company not found")
	ErrTeamNotFound    = errors.New("team not found")
)

// Repository persists companies, teams and memberships.
//
// EnsureCompanyMember and EnsureTeamMember are get-or-create: an existing row
// is left untouched. SetCompanyManager and SetTeamManager insert or overwrite
// the manager flag of an existing row, keeping its owner flag.
type Repository interface {
	permission.MembershipLookup

	CreateCompany(ctx context.Context, in CompanyInput, ownerID int64) (*Company, error)
	GetCompany(ctx context.Context, id int64) (*Company, error)
	ListCompaniesForUser(ctx context.Context, userID int64) ([]Company, error)
	CompanyMembers(ctx context.Context, companyID int64) ([]Member, error)
	SetCompanyManager(ctx context.Context, companyID, userID int64, isManager bool) error
	EnsureCompanyMember(ctx context.Context, companyID, userID int64, role permission.Role) error

	CreateTeam(ctx context.Context, companyID int64, in TeamInput, ownerID int64) (*Team, error)
	GetTeam(ctx context.Context, id int64) (*Team, error)
	ListTeamsForCompany(ctx context.Context, companyID int64) ([]Team, error)
	ListTeamsForUser(ctx context.Context, userID int64) ([]Team, error)
	TeamMembers(ctx context.Context, teamID int64) ([]Member, error)
	SetTeamManager(ctx context.Context, teamID, userID int64, isManager bool) error
	EnsureTeamMember(ctx context.Context, teamID, userID int64, role permission.Role) error
}

// UserLookup checks that a referenced user exists.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
}

// Service implements company and team operations.
type Service struct {
	repo     Repository
	users    UserLookup
	resolver *permission.Resolver
}

// NewService creates an org service.
func NewService(repo Repository, users UserLookup, resolver *permission.Resolver) *Service {
	return &Service{repo: repo, users: users, resolver: resolver}
}

// CreateCompany creates a company. The creator becomes its owner and manager.
func (s *Service) CreateCompany(ctx context.Context, actorID int64, in CompanyInput) (*Company, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	return s.repo.CreateCompany(ctx, in, actorID)
}

// ListCompanies returns the companies the actor belongs to.
func (s *Service) ListCompanies(ctx context.Context, actorID int64) ([]Company, error) {
	return s.repo.ListCompaniesForUser(ctx, actorID)
}

// CompanyDetail returns a company as seen by a member. Non-members get
// permission.ErrForbidden.
func (s *Service) CompanyDetail(ctx context.Context, actorID, companyID int64) (*CompanyDetail, error) {
	c, err := s.repo.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	role, err := s.repo.CompanyRole(ctx, actorID, companyID)
	if err != nil {
		return nil, fmt.Errorf("looking up company role: %w", err)
	}
	if role == nil {
		return nil, permission.ErrForbidden
	}

	members, err := s.repo.CompanyMembers(ctx, companyID)
	if err != nil {
		return nil, err
	}
	teams, err := s.repo.ListTeamsForCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return &CompanyDetail{
		Company:   c,
		Members:   members,
		Teams:     teams,
		IsManager: role.IsManager,
		IsOwner:   role.IsOwner,
	}, nil
}

// AddCompanyUser adds a user to a company or overwrites the manager flag of
// an existing membership. Requires manager or owner on the company.
func (s *Service) AddCompanyUser(ctx context.Context, actorID, companyID int64, in AddUserInput) error {
	if _, err := s.repo.GetCompany(ctx, companyID); err != nil {
		return err
	}
	if err := s.resolver.RequireCompany(ctx, actorID, companyID); err != nil {
		return err
	}
	if err := s.validateAddUser(ctx, in); err != nil {
		return err
	}
	return s.repo.SetCompanyManager(ctx, companyID, in.UserID, in.IsManager)
}

// CreateTeam creates a team under a company. Requires manager or owner on the
// company; the creator becomes owner and manager of the new team.
func (s *Service) CreateTeam(ctx context.Context, actorID, companyID int64, in TeamInput) (*Team, error) {
	if _, err := s.repo.GetCompany(ctx, companyID); err != nil {
		return nil, err
	}
	if err := s.resolver.RequireCompany(ctx, actorID, companyID); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	return s.repo.CreateTeam(ctx, companyID, in, actorID)
}

// ListTeams returns the teams the actor has a team membership on.
func (s *Service) ListTeams(ctx context.Context, actorID int64) ([]Team, error) {
	return s.repo.ListTeamsForUser(ctx, actorID)
}

// TeamDetail returns a team as seen by a team or company member. The viewer's
// flags come from the team row when present, else from the company row.
func (s *Service) TeamDetail(ctx context.Context, actorID, teamID int64) (*TeamDetail, error) {
	t, err := s.repo.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.GetCompany(ctx, t.CompanyID)
	if err != nil {
		return nil, err
	}

	d := &TeamDetail{Team: t, Company: c}

	teamRole, err := s.repo.TeamRole(ctx, actorID, teamID)
	if err != nil {
		return nil, fmt.Errorf("looking up team role: %w", err)
	}
	if teamRole != nil {
		d.IsManager, d.IsOwner = teamRole.IsManager, teamRole.IsOwner
	} else {
		companyRole, err := s.repo.CompanyRole(ctx, actorID, t.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("looking up company role: %w", err)
		}
		if companyRole == nil {
			return nil, permission.ErrForbidden
		}
		d.IsManager = companyRole.CanManage()
		d.IsOwner = companyRole.IsOwner
	}

	d.Members, err = s.repo.TeamMembers(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// AddTeamUser adds a member of the team's company to the team, or overwrites
// the manager flag of an existing team membership.
func (s *Service) AddTeamUser(ctx context.Context, actorID, teamID int64, in AddUserInput) error {
	t, err := s.repo.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if err := s.resolver.RequireTeam(ctx, actorID, teamID, t.CompanyID); err != nil {
		return err
	}
	if err := s.validateAddUser(ctx, in); err != nil {
		return err
	}
	role, err := s.repo.CompanyRole(ctx, in.UserID, t.CompanyID)
	if err != nil {
		return fmt.Errorf("looking up company role: %w", err)
	}
	if role == nil {
		return validate.Field("user_id", "user is not a member of this company")
	}
	return s.repo.SetTeamManager(ctx, teamID, in.UserID, in.IsManager)
}

func (s *Service) validateAddUser(ctx context.Context, in AddUserInput) error {
	if err := validate.Struct(in); err != nil {
		return err
	}
	if _, err := s.users.GetByID(ctx, in.UserID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return validate.Field("user_id", "select a valid user")
		}
		return err
	}
	return nil
}
