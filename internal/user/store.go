package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/perfecto-hq/perfecto/internal/crypto"
)

// Store provides database operations for users and login sessions.
type Store struct {
	pool   *pgxpool.Pool
	cipher *crypto.FieldCipher
}

// NewStore creates a new user store backed by the given connection pool.
// telegram_id is sealed with cipher when one is configured.
func NewStore(pool *pgxpool.Pool, cipher *crypto.FieldCipher) *Store {
	return &Store{pool: pool, cipher: cipher}
}

const userColumns = `id, email, password_hash, name, job, telegram_username, telegram_id, created_at`

func (s *Store) scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	var sealedTelegramID string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Job, &u.TelegramUsername, &sealedTelegramID, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.TelegramID, err = s.cipher.Open(sealedTelegramID)
	if err != nil {
		return nil, fmt.Errorf("opening telegram_id: %w", err)
	}
	return u, nil
}

// Create inserts a new user.
func (s *Store) Create(ctx context.Context, in CreateUserInput) (*User, error) {
	u, err := s.scanUser(s.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, name, job)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+userColumns,
		in.Email, in.PasswordHash, in.Name, in.Job,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user by primary key.
func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := s.scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("getting user by id: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email address, case-insensitively.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := s.scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// UpdateProfile performs a partial update of profile fields.
func (s *Store) UpdateProfile(ctx context.Context, id int64, in UpdateProfileInput) (*User, error) {
	var setClauses []string
	var args []any
	argIdx := 1

	add := func(column string, value any) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if in.Name != nil {
		add("name", *in.Name)
	}
	if in.Job != nil {
		add("job", *in.Job)
	}
	if in.TelegramUsername != nil {
		add("telegram_username", *in.TelegramUsername)
	}
	if in.TelegramID != nil {
		sealed, err := s.cipher.Seal(*in.TelegramID)
		if err != nil {
			return nil, fmt.Errorf("sealing telegram_id: %w", err)
		}
		add("telegram_id", sealed)
	}

	if len(setClauses) == 0 {
		return s.GetByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(setClauses, ", "), argIdx, userColumns,
	)

	u, err := s.scanUser(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}
	return u, nil
}

// CreateSession stores a hashed session token for userID.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (token_hash, user_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		sess.TokenHash, sess.UserID, sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// GetSessionUser returns the user owning the session with the given token
// hash, provided the session has not expired at now.
func (s *Store) GetSessionUser(ctx context.Context, tokenHash string, now time.Time) (*User, error) {
	u, err := s.scanUser(s.pool.QueryRow(ctx,
		`SELECT u.id, u.email, u.password_hash, u.name, u.job, u.telegram_username, u.telegram_id, u.created_at
		 FROM sessions s JOIN users u ON s.user_id = u.id
		 WHERE s.token_hash = $1 AND s.expires_at > $2`,
		tokenHash, now,
	))
	if err != nil {
		return nil, fmt.Errorf("getting session user: %w", err)
	}
	return u, nil
}

// DeleteSession removes a session by its token hash.
func (s *Store) DeleteSession(ctx context.Context, tokenHash string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// CleanExpiredSessions deletes all sessions that have expired.
func (s *Store) CleanExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("cleaning expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
