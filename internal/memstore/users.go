package memstore

import (
	"context"
	"strings"
	"time"

	"github.com/perfecto-hq/perfecto/internal/user"
)

// Users implements user.Repository.
type Users struct {
	db *DB
}

func (u *Users) Create(ctx context.Context, in user.CreateUserInput) (*user.User, error) {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()

	for _, existing := range u.db.users {
		if strings.EqualFold(existing.Email, in.Email) {
			return nil, user.ErrEmailTaken
		}
	}
	rec := &user.User{
		ID:           u.db.nextID("users"),
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Name:         in.Name,
		Job:          in.Job,
		CreatedAt:    u.db.now(),
	}
	u.db.users[rec.ID] = rec
	cp := *rec
	return &cp, nil
}

func (u *Users) GetByID(ctx context.Context, id int64) (*user.User, error) {
	u.db.mu.RLock()
	defer u.db.mu.RUnlock()

	rec, ok := u.db.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (u *Users) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	u.db.mu.RLock()
	defer u.db.mu.RUnlock()

	for _, rec := range u.db.users {
		if strings.EqualFold(rec.Email, email) {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

func (u *Users) UpdateProfile(ctx context.Context, id int64, in user.UpdateProfileInput) (*user.User, error) {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()

	rec, ok := u.db.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	if in.Name != nil {
		rec.Name = *in.Name
	}
	if in.Job != nil {
		rec.Job = *in.Job
	}
	if in.TelegramUsername != nil {
		rec.TelegramUsername = *in.TelegramUsername
	}
	if in.TelegramID != nil {
		rec.TelegramID = *in.TelegramID
	}
	cp := *rec
	return &cp, nil
}

func (u *Users) CreateSession(ctx context.Context, sess user.Session) error {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()
	u.db.sessions[sess.TokenHash] = sess
	return nil
}

func (u *Users) GetSessionUser(ctx context.Context, tokenHash string, now time.Time) (*user.User, error) {
	u.db.mu.RLock()
	defer u.db.mu.RUnlock()

	sess, ok := u.db.sessions[tokenHash]
	if !ok || !sess.ExpiresAt.After(now) {
		return nil, user.ErrNotFound
	}
	rec, ok := u.db.users[sess.UserID]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (u *Users) DeleteSession(ctx context.Context, tokenHash string) error {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()
	delete(u.db.sessions, tokenHash)
	return nil
}
