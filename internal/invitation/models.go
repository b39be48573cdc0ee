package invitation

import "time"

// Type is the target kind of an invitation.
type Type string

const (
	TypeCompany Type = "company"
	TypeTeam    Type = "team"
)

// Status is derived from the wall clock on every read.
type Status string

const (
	StatusPending Status = "pending"
	StatusExpired Status = "expired"
)

// Invitation is a bearer capability for joining a company or a team. It is
// never mutated after creation.
type Invitation struct {
	ID              string    `json:"id"`
	CreatedBy       int64     `json:"created_by"`
	Type            Type      `json:"type"`
	CompanyID       int64     `json:"company_id"`
	TeamID          *int64    `json:"team_id,omitempty"`
	Email           string    `json:"email,omitempty"`
	IsManagerInvite bool      `json:"is_manager_invite"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// IsExpired reports whether now is strictly past the expiry time.
func (i *Invitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// StatusAt returns the derived status at now.
func (i *Invitation) StatusAt(now time.Time) Status {
	if i.IsExpired(now) {
		return StatusExpired
	}
	return StatusPending
}

// CreateInput holds the optional fields of a new invitation.
type CreateInput struct {
	Email           string     `json:"email" validate:"omitempty,email,max=254"`
	IsManagerInvite bool       `json:"is_manager_invite"`
	ExpiresAt       *time.Time `json:"expires_at"`
}

// View is an invitation resolved for display on the acceptance page.
type View struct {
	Invitation  *Invitation `json:"invitation"`
	Status      Status      `json:"status"`
	CompanyName string      `json:"company_name"`
	TeamName    string      `json:"team_name,omitempty"`
	AcceptURL   string      `json:"accept_url"`
}

// Partition splits a creator's invitations by derived status.
type Partition struct {
	Active  []Invitation `json:"active"`
	Expired []Invitation `json:"expired"`
}
