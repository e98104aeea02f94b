// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import "errors"

// Sentinel errors forming the outcome taxonomy of the auth core. Callers
// branch on these with errors.Is; the oops wrappers added by services and
// repositories carry the operational detail.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an insert violates a uniqueness
	// constraint (username or email already taken).
	ErrDuplicate = errors.New("duplicate credential")

	// ErrInvalidCredentials is returned on login when the username is
	// unknown or the password does not match. The two cases are never
	// distinguished to the caller.
	ErrInvalidCredentials = errors.New("invalid username or password")
)
