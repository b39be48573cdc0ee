package org

import (
	"time"

	"github.com/perfecto-hq/perfecto/internal/permission"
)

// Company is a tenant. It owns teams and company memberships.
type Company struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Team belongs to exactly one company.
type Team struct {
	ID          int64     `json:"id"`
	CompanyID   int64     `json:"company_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Member is a membership row joined with the member's identity.
type Member struct {
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsManager bool      `json:"is_manager"`
	IsOwner   bool      `json:"is_owner"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Role returns the member's role flags.
func (m Member) Role() permission.Role {
	return permission.Role{IsManager: m.IsManager, IsOwner: m.IsOwner}
}

// CompanyInput holds the fields for creating a company.
type CompanyInput struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=5000"`
}

// TeamInput holds the fields for creating a team.
type TeamInput struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=5000"`
}

// AddUserInput adds an existing user to a company or team.
type AddUserInput struct {
	UserID    int64 `json:"user_id" validate:"required,gt=0"`
	IsManager bool  `json:"is_manager"`
}

// CompanyDetail is a company together with its members, its teams and the
// viewer's own role flags.
type CompanyDetail struct {
	Company   *Company `json:"company"`
	Members   []Member `json:"members"`
	Teams     []Team   `json:"teams"`
	IsManager bool     `json:"is_manager"`
	IsOwner   bool     `json:"is_owner"`
}

// TeamDetail is a team together with its company, its members and the
// viewer's effective role flags.
type TeamDetail struct {
	Team      *Team    `json:"team"`
	Company   *Company `json:"company"`
	Members   []Member `json:"members"`
	IsManager bool     `json:"is_manager"`
	IsOwner   bool     `json:"is_owner"`
}
