package org

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/perfecto-hq/perfecto/internal/permission"
)

// Store provides database operations for companies, teams and memberships.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new org store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateCompany inserts a company and the creator's owner membership in one
// transaction.
func (s *Store) CreateCompany(ctx context.Context, in CompanyInput, ownerID int64) (*Company, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	c := &Company{}
	err = tx.QueryRow(ctx,
		`INSERT INTO companies (name, description)
		 VALUES ($1, $2)
		 RETURNING id, name, description, created_at, updated_at`,
		in.Name, in.Description,
	).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating company: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO company_users (company_id, user_id, is_manager, is_owner)
		 VALUES ($1, $2, true, true)`,
		c.ID, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("adding company owner: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing company: %w", err)
	}
	return c, nil
}

// GetCompany retrieves a company by id.
func (s *Store) GetCompany(ctx context.Context, id int64) (*Company, error) {
	c := &Company{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, created_at, updated_at FROM companies WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCompanyNotFound
		}
		return nil, fmt.Errorf("getting company: %w", err)
	}
	return c, nil
}

// ListCompaniesForUser returns the companies userID is a member of.
func (s *Store) ListCompaniesForUser(ctx context.Context, userID int64) ([]Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.name, c.description, c.created_at, c.updated_at
		 FROM companies c JOIN company_users cu ON cu.company_id = c.id
		 WHERE cu.user_id = $1
		 ORDER BY c.name, c.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing companies: %w", err)
	}
	defer rows.Close()

	companies := []Company{}
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning company: %w", err)
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// CompanyRole returns userID's membership flags on companyID, or nil.
func (s *Store) CompanyRole(ctx context.Context, userID, companyID int64) (*permission.Role, error) {
	return s.role(ctx,
		`SELECT is_manager, is_owner FROM company_users WHERE user_id = $1 AND company_id = $2`,
		userID, companyID)
}

// TeamRole returns userID's membership flags on teamID, or nil.
func (s *Store) TeamRole(ctx context.Context, userID, teamID int64) (*permission.Role, error) {
	return s.role(ctx,
		`SELECT is_manager, is_owner FROM team_users WHERE user_id = $1 AND team_id = $2`,
		userID, teamID)
}

func (s *Store) role(ctx context.Context, query string, userID, targetID int64) (*permission.Role, error) {
	r := &permission.Role{}
	err := s.pool.QueryRow(ctx, query, userID, targetID).Scan(&r.IsManager, &r.IsOwner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// CompanyMembers lists the members of a company.
func (s *Store) CompanyMembers(ctx context.Context, companyID int64) ([]Member, error) {
	return s.members(ctx,
		`SELECT u.id, u.email, u.name, m.is_manager, m.is_owner, m.created_at
		 FROM company_users m JOIN users u ON u.id = m.user_id
		 WHERE m.company_id = $1
		 ORDER BY u.name, u.id`, companyID)
}

// TeamMembers lists the members of a team.
func (s *Store) TeamMembers(ctx context.Context, teamID int64) ([]Member, error) {
	return s.members(ctx,
		`SELECT u.id, u.email, u.name, m.is_manager, m.is_owner, m.created_at
		 FROM team_users m JOIN users u ON u.id = m.user_id
		 WHERE m.team_id = $1
		 ORDER BY u.name, u.id`, teamID)
}

func (s *Store) members(ctx context.Context, query string, id int64) ([]Member, error) {
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Email, &m.Name, &m.IsManager, &m.IsOwner, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// SetCompanyManager inserts a company membership or overwrites is_manager on
// an existing one.
func (s *Store) SetCompanyManager(ctx context.Context, companyID, userID int64, isManager bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO company_users (company_id, user_id, is_manager, is_owner)
		 VALUES ($1, $2, $3, false)
		 ON CONFLICT (company_id, user_id) DO UPDATE SET is_manager = EXCLUDED.is_manager`,
		companyID, userID, isManager)
	if err != nil {
		return fmt.Errorf("setting company member: %w", err)
	}
	return nil
}

// EnsureCompanyMember creates a company membership with role unless one
// already exists.
func (s *Store) EnsureCompanyMember(ctx context.Context, companyID, userID int64, role permission.Role) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO company_users (company_id, user_id, is_manager, is_owner)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (company_id, user_id) DO NOTHING`,
		companyID, userID, role.IsManager, role.IsOwner)
	if err != nil {
		return fmt.Errorf("ensuring company member: %w", err)
	}
	return nil
}

const teamColumns = `id, company_id, name, description, created_at, updated_at`

func scanTeam(row pgx.Row) (*Team, error) {
	t := &Team{}
	if err := row.Scan(&t.ID, &t.CompanyID, &t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTeam inserts a team and the creator's owner membership in one
// transaction.
func (s *Store) CreateTeam(ctx context.Context, companyID int64, in TeamInput, ownerID int64) (*Team, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	t, err := scanTeam(tx.QueryRow(ctx,
		`INSERT INTO teams (company_id, name, description)
		 VALUES ($1, $2, $3)
		 RETURNING `+teamColumns,
		companyID, in.Name, in.Description,
	))
	if err != nil {
		return nil, fmt.Errorf("creating team: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO team_users (team_id, user_id, is_manager, is_owner)
		 VALUES ($1, $2, true, true)`,
		t.ID, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("adding team owner: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing team: %w", err)
	}
	return t, nil
}

// GetTeam retrieves a team by id.
func (s *Store) GetTeam(ctx context.Context, id int64) (*Team, error) {
	t, err := scanTeam(s.pool.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("getting team: %w", err)
	}
	return t, nil
}

// ListTeamsForCompany returns the teams of a company.
func (s *Store) ListTeamsForCompany(ctx context.Context, companyID int64) ([]Team, error) {
	return s.teams(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE company_id = $1 ORDER BY name, id`, companyID)
}

// ListTeamsForUser returns the teams userID has a team membership on.
func (s *Store) ListTeamsForUser(ctx context.Context, userID int64) ([]Team, error) {
	return s.teams(ctx,
		`SELECT t.id, t.company_id, t.name, t.description, t.created_at, t.updated_at
		 FROM teams t JOIN team_users tu ON tu.team_id = t.id
		 WHERE tu.user_id = $1
		 ORDER BY t.name, t.id`, userID)
}

func (s *Store) teams(ctx context.Context, query string, id int64) ([]Team, error) {
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	defer rows.Close()

	teams := []Team{}
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning team: %w", err)
		}
		teams = append(teams, *t)
	}
	return teams, rows.Err()
}

// SetTeamManager inserts a team membership or overwrites is_manager on an
// existing one.
func (s *Store) SetTeamManager(ctx context.Context, teamID, userID int64, isManager bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO team_users (team_id, user_id, is_manager, is_owner)
		 VALUES ($1, $2, $3, false)
		 ON CONFLICT (team_id, user_id) DO UPDATE SET is_manager = EXCLUDED.is_manager`,
		teamID, userID, isManager)
	if err != nil {
		return fmt.Errorf("setting team member: %w", err)
	}
	return nil
}

// EnsureTeamMember creates a team membership with role unless one already
// exists.
func (s *Store) EnsureTeamMember(ctx context.Context, teamID, userID int64, role permission.Role) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO team_users (team_id, user_id, is_manager, is_owner)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (team_id, user_id) DO NOTHING`,
		teamID, userID, role.IsManager, role.IsOwner)
	if err != nil {
		return fmt.Errorf("ensuring team member: %w", err)
	}
	return nil
}
