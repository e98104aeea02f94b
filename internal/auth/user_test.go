// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"valid simple", "alice", false},
		{"valid with numbers", "alice42", false},
		{"valid with underscores", "alice_w", false},
		{"empty", "", true},
		{"too short", "ab", true},
		{"too long", "a_very_long_username_that_goes_on_forever", true},
		{"starts with digit", "1alice", true},
		{"starts with underscore", "_alice", true},
		{"contains space", "ali ce", true},
		{"contains hyphen", "ali-ce", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidateUsername(tt.username)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"valid", "alice@example.com", false},
		{"valid subdomain", "alice@mail.example.com", false},
		{"empty", "", true},
		{"no at sign", "alice.example.com", true},
		{"no domain", "alice@", true},
		{"no tld", "alice@example", true},
		{"contains space", "ali ce@example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidateEmail(tt.email)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewUser(t *testing.T) {
	t.Run("builds validated user", func(t *testing.T) {
		user, err := auth.NewUser("alice", "alice@x.com", "$argon2id$hash")
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
		assert.Equal(t, "alice@x.com", user.Email)
		assert.Zero(t, user.ID)
	})

	t.Run("rejects empty hash", func(t *testing.T) {
		_, err := auth.NewUser("alice", "alice@x.com", "")
		assert.Error(t, err)
	})

	t.Run("rejects invalid username", func(t *testing.T) {
		_, err := auth.NewUser("", "alice@x.com", "$argon2id$hash")
		assert.Error(t, err)
	})

	t.Run("rejects invalid email", func(t *testing.T) {
		_, err := auth.NewUser("alice", "not-an-email", "$argon2id$hash")
		assert.Error(t, err)
	})
}

func TestUserProfile(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	user := &auth.User{
		ID:           9,
		Username:     "alice",
		Email:        "alice@x.com",
		PasswordHash: "$argon2id$secret",
		CreatedAt:    created,
	}

	profile := user.Profile()
	assert.Equal(t, int64(9), profile.ID)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, "alice@x.com", profile.Email)
	assert.Equal(t, created, profile.CreatedAt)
}
