// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package auth

import (
	"github.com/samber/oops"

	"github.com/roito2356/giiku-23/internal/access"
)

// Backends bundles the storage the account components run on. Sessions may
// live in a different store than users.
type Backends struct {
	Users       UserRepository
	Sessions    SessionRepository
	Completions CompletionRepository
	Transactor  Transactor
}

// Components are the wired account components.
type Components struct {
	Directory *Directory
	Sessions  *SessionManager
	Guard     *Guard
	Service   *Service
}

// Assemble wires a Directory, SessionManager, Guard and Service over b.
// The same options are applied to every component.
func Assemble(b Backends, codec Codec, ac access.AccessControl, opts ...Option) (*Components, error) {
	dir, err := NewDirectory(b.Users, b.Completions, b.Sessions, b.Transactor, codec, opts...)
	if err != nil {
		return nil, oops.With("component", "directory").Wrap(err)
	}
	sessions, err := NewSessionManager(b.Sessions, b.Users, opts...)
	if err != nil {
		return nil, oops.With("component", "session manager").Wrap(err)
	}
	guard, err := NewGuard(sessions, ac)
	if err != nil {
		return nil, oops.With("component", "guard").Wrap(err)
	}
	svc, err := NewService(dir, sessions, guard, codec, opts...)
	if err != nil {
		return nil, oops.With("component", "service").Wrap(err)
	}
	return &Components{Directory: dir, Sessions: sessions, Guard: guard, Service: svc}, nil
}
