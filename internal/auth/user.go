// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"regexp"
	"time"

	"github.com/samber/oops"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

// usernameRegex matches usernames that:
// - Start with a letter (a-z, A-Z)
// - Contain only letters, numbers, and underscores
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// emailRegex is a deliberately loose shape check; the mailbox either
// receives mail or it doesn't.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// User represents a registered account. PasswordHash is the only credential
// material stored and never appears in a Profile projection.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Profile is the projection of a User handed to rendering layers.
// It deliberately has no password field.
type Profile struct {
	ID        int64
	Username  string
	Email     string
	CreatedAt time.Time
}

// NewUser builds a validated User ready for persistence. The ID and
// CreatedAt fields are assigned by the store at insert time.
func NewUser(username, email, passwordHash string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	return &User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
	}, nil
}

// Profile returns the render-safe projection of the user.
func (u *User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

// ValidateUsername validates a username against rules.
// Username requirements:
// - Length: MinUsernameLength to MaxUsernameLength characters
// - Must start with a letter
// - Can contain only letters (a-z, A-Z), numbers (0-9), and underscores (_)
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("AUTH_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("AUTH_INVALID_USERNAME").
			Errorf("username must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// ValidateEmail validates the shape of an email address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email address is not valid")
	}
	return nil
}

// UserRepository manages user persistence.
//
// Uniqueness of username and email is enforced by the store's own
// constraints, not by a prior read: concurrent Creates racing on the same
// username must resolve to exactly one success and ErrDuplicate for the rest.
type UserRepository interface {
	// Create inserts the user and returns it with ID and CreatedAt
	// assigned by the store. Returns ErrDuplicate (wrapped) when the
	// username or email is already taken.
	Create(ctx context.Context, user *User) (*User, error)

	// GetByUsername retrieves a user by username (case-insensitive).
	// Returns ErrNotFound if no such user exists. This is the canonical
	// login lookup; email is collected at registration but never used
	// as a login identifier.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetProfileByID retrieves the render-safe projection for a user.
	// The password hash is excluded from the query itself.
	GetProfileByID(ctx context.Context, id int64) (*Profile, error)
}
