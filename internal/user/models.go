package user

import "time"

// User represents a registered account. Email is the identity key.
type User struct {
	ID               int64     `json:"id"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	Name             string    `json:"name"`
	Job              string    `json:"job"`
	TelegramUsername string    `json:"telegram_username"`
	TelegramID       string    `json:"telegram_id"`
	CreatedAt        time.Time `json:"created_at"`
}

// CreateUserInput holds the fields persisted for a new user. The password is
// already hashed by the time it reaches a Repository.
type CreateUserInput struct {
	Email        string
	PasswordHash string
	Name         string
	Job          string
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Name      string `json:"name" validate:"required,max=255"`
	Job       string `json:"job" validate:"max=255"`
	Password1 string `json:"password1" validate:"required,min=8,max=128"`
	Password2 string `json:"password2" validate:"required,eqfield=Password1"`
}

// UpdateProfileInput holds optional fields for a partial profile update.
type UpdateProfileInput struct {
	Name             *string `json:"name,omitempty" validate:"omitnil,min=1,max=255"`
	Job              *string `json:"job,omitempty" validate:"omitnil,max=255"`
	TelegramUsername *string `json:"telegram_username,omitempty" validate:"omitnil,max=255"`
	TelegramID       *string `json:"telegram_id,omitempty" validate:"omitnil,max=255"`
}

// Session represents an active login session.
type Session struct {
	TokenHash string    `json:"-"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
