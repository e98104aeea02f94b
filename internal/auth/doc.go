// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth provides the credential and session core of Gatehouse.
//
// # Domain Types
//
// Domain types (User, Session) should be created through the flows that
// validate them:
//   - NewUser - validates username, email, and password hash before persistence
//   - NewSession - creates a Session bound to a user with a hashed token
//
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated types from these constructors.
//
// # Service
//
// Service orchestrates the register/login/logout/protected-access flow on top
// of the UserRepository, SessionRepository, and PasswordHasher interfaces.
// Persistence implementations live in the postgres subpackage.
package auth
