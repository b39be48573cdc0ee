package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/perfecto-hq/perfecto/internal/auth"
	"github.com/perfecto-hq/perfecto/internal/validate"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// DefaultSessionTTL is how long a login session stays valid.
const DefaultSessionTTL = 7 * 24 * time.Hour

// Repository is the persistence surface the Service needs. Store and the
// in-memory implementation both satisfy it.
type Repository interface {
	Create(ctx context.Context, in CreateUserInput) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateProfile(ctx context.Context, id int64, in UpdateProfileInput) (*User, error)
	CreateSession(ctx context.Context, sess Session) error
	GetSessionUser(ctx context.Context, tokenHash string, now time.Time) (*User, error)
	DeleteSession(ctx context.Context, tokenHash string) error
}

// Service implements registration, login and profile operations.
type Service struct {
	repo       Repository
	sessionTTL time.Duration
	bcryptCost int
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSessionTTL overrides DefaultSessionTTL.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) { s.sessionTTL = ttl }
}

// WithBcryptCost overrides bcrypt.DefaultCost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

// NewService creates a user service over repo.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		sessionTTL: DefaultSessionTTL,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeEmail trims whitespace and lowercases the domain part.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

// Register validates the form and creates a new account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	in.Email = NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.Job = strings.TrimSpace(in.Job)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetByEmail(ctx, in.Email); err == nil {
		return nil, validate.Field("email", "a user with that email already exists")
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password1), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	u, err := s.repo.Create(ctx, CreateUserInput{
		Email:        in.Email,
		PasswordHash: string(hash),
		Name:         in.Name,
		Job:          in.Job,
	})
	if errors.Is(err, ErrEmailTaken) {
		return nil, validate.Field("email", "a user with that email already exists")
	}
	return u, err
}

// Authenticate checks an email/password pair. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// StartSession creates a login session for userID and returns the plaintext
// token. Only the token hash is stored.
func (s *Service) StartSession(ctx context.Context, userID int64) (string, time.Time, error) {
	token, hash, err := auth.GenerateSessionToken()
	if err != nil {
		return "", time.Time{}, err
	}
	now := s.now()
	expiresAt := now.Add(s.sessionTTL)
	if err := s.repo.CreateSession(ctx, Session{
		TokenHash: hash,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// EndSession deletes the session for token. Unknown tokens are ignored.
func (s *Service) EndSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.repo.DeleteSession(ctx, auth.HashToken(token))
}

// SessionUser resolves a plaintext session token to its user.
func (s *Service) SessionUser(ctx context.Context, token string) (*User, error) {
	return s.repo.GetSessionUser(ctx, auth.HashToken(token), s.now())
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateProfile applies a partial profile update.
func (s *Service) UpdateProfile(ctx context.Context, id int64, in UpdateProfileInput) (*User, error) {
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		in.Name = &trimmed
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	return s.repo.UpdateProfile(ctx, id, in)
}
