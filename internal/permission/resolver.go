// Package permission decides whether an actor may administer a company or a
// team.
package permission

import (
	"context"
	"errors"
	"fmt"
)

// ErrForbidden is returned by callers when the actor lacks a required role.
var ErrForbidden = errors.New("forbidden")

// Role is the pair of flags carried by a company or team membership row.
type Role struct {
	IsManager bool `json:"is_manager"`
	IsOwner   bool `json:"is_owner"`
}

// CanManage reports whether the role grants administrative capability.
// Owner is capability-equivalent to manager.
func (r *Role) CanManage() bool {
	return r != nil && (r.IsManager || r.IsOwner)
}

// Resolve applies the fallback chain for a team target: a team membership
// row, when present, decides on its own; only when it is absent does the
// company membership row decide. A nil companyRole with a nil teamRole means
// no capability.
func Resolve(teamRole, companyRole *Role) bool {
	if teamRole != nil {
		return teamRole.CanManage()
	}
	return companyRole.CanManage()
}

// MembershipLookup returns the actor's membership row on a company or team,
// or (nil, nil) when no row exists.
type MembershipLookup interface {
	CompanyRole(ctx context.Context, userID, companyID int64) (*Role, error)
	TeamRole(ctx context.Context, userID, teamID int64) (*Role, error)
}

// Resolver answers capability questions by querying membership state on every
// call. There is no cache: concurrent role changes are last-write-wins.
type Resolver struct {
	lookup MembershipLookup
}

// NewResolver creates a Resolver backed by the given membership lookup.
func NewResolver(lookup MembershipLookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// CanManageCompany reports whether userID is a manager or owner of companyID.
func (r *Resolver) CanManageCompany(ctx context.Context, userID, companyID int64) (bool, error) {
	role, err := r.lookup.CompanyRole(ctx, userID, companyID)
	if err != nil {
		return false, fmt.Errorf("looking up company role: %w", err)
	}
	return role.CanManage(), nil
}

// CanManageTeam reports whether userID may administer teamID, falling back to
// the role on the team's parent company when the user has no team row.
func (r *Resolver) CanManageTeam(ctx context.Context, userID, teamID, companyID int64) (bool, error) {
	teamRole, err := r.lookup.TeamRole(ctx, userID, teamID)
	if err != nil {
		return false, fmt.Errorf("looking up team role: %w", err)
	}
	if teamRole != nil {
		return Resolve(teamRole, nil), nil
	}
	companyRole, err := r.lookup.CompanyRole(ctx, userID, companyID)
	if err != nil {
		return false, fmt.Errorf("looking up company role: %w", err)
	}
	return Resolve(nil, companyRole), nil
}

// RequireCompany is CanManageCompany turned into an error: ErrForbidden when
// the capability is missing.
func (r *Resolver) RequireCompany(ctx context.Context, userID, companyID int64) error {
	ok, err := r.CanManageCompany(ctx, userID, companyID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// RequireTeam is CanManageTeam turned into an error.
func (r *Resolver) RequireTeam(ctx context.Context, userID, teamID, companyID int64) error {
	ok, err := r.CanManageTeam(ctx, userID, teamID, companyID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
