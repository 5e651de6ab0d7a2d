// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

// Package auth implements accounts, credentials and sessions.
//
// # Components
//
//   - Argon2idHasher and HashPool - one-way password digests (the credential codec)
//   - Directory - user records, uniqueness, cascade on delete
//   - SessionManager - opaque session tokens with passive expiry
//   - Guard - login, administrator and self-or-administrator checks
//   - Service - the account lifecycle used by the HTTP layer
//
// Domain types (User, Session, Completion) should be created through the
// Directory or their New* constructors. Repository implementations live in
// the postgres, memory and redisstore subpackages and receive pre-validated
// values.
//
// # Errors
//
// Every error returned to callers carries an oops code. KindOf maps it to a
// Kind, and FieldOf names the offending field of validation and duplicate
// errors.
package auth
