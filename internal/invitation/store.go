package invitation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for invitations.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new invitation store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const invitationColumns = `id::text, created_by, type, company_id, team_id, email, is_manager_invite, created_at, expires_at`

func scanInvitation(row pgx.Row) (*Invitation, error) {
	inv := &Invitation{}
	var typ string
	err := row.Scan(&inv.ID, &inv.CreatedBy, &typ, &inv.CompanyID, &inv.TeamID,
		&inv.Email, &inv.IsManagerInvite, &inv.CreatedAt, &inv.ExpiresAt)
	if err != nil {
		return nil, err
	}
	inv.Type = Type(typ)
	return inv, nil
}

// Create inserts an invitation. The id is generated by the caller.
func (s *Store) Create(ctx context.Context, inv *Invitation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO invitations (id, created_by, type, company_id, team_id, email, is_manager_invite, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inv.ID, inv.CreatedBy, string(inv.Type), inv.CompanyID, inv.TeamID,
		inv.Email, inv.IsManagerInvite, inv.CreatedAt, inv.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("creating invitation: %w", err)
	}
	return nil
}

// Get retrieves an invitation by token.
func (s *Store) Get(ctx context.Context, id string) (*Invitation, error) {
	inv, err := scanInvitation(s.pool.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting invitation: %w", err)
	}
	return inv, nil
}

// ListByCreator returns every invitation created by userID, newest first.
func (s *Store) ListByCreator(ctx context.Context, userID int64) ([]Invitation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+invitationColumns+` FROM invitations
		 WHERE created_by = $1
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing invitations: %w", err)
	}
	defer rows.Close()

	invs := []Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning invitation: %w", err)
		}
		invs = append(invs, *inv)
	}
	return invs, rows.Err()
}
