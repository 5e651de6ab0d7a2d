// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

// Package memory provides in-memory implementations of the auth repositories
// for development and tests. State is lost on restart.
package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/roito2356/giiku-23/internal/auth"
)

type txKey struct{}

// Store holds users, sessions and completions in maps. Uniqueness of email
// and username is checked under the same lock as the write, so concurrent
// registrations of one email cannot both succeed.
type Store struct {
	// txMu serializes writers. A transaction holds it for its whole duration.
	txMu sync.Mutex

	mu          sync.RWMutex
	users       map[ulid.ULID]auth.User
	emails      map[string]ulid.ULID
	usernames   map[string]ulid.ULID
	sessions    map[string]auth.Session
	sessionIDs  map[ulid.ULID]string
	completions map[ulid.ULID][]auth.Completion
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users:       make(map[ulid.ULID]auth.User),
		emails:      make(map[string]ulid.ULID),
		usernames:   make(map[string]ulid.ULID),
		sessions:    make(map[string]auth.Session),
		sessionIDs:  make(map[ulid.ULID]string),
		completions: make(map[ulid.ULID][]auth.Completion),
	}
}

// Users returns the store as a UserRepository.
func (s *Store) Users() auth.UserRepository { return (*userRepo)(s) }

// Sessions returns the store as a SessionRepository.
func (s *Store) Sessions() auth.SessionRepository { return (*sessionRepo)(s) }

// Completions returns the store as a CompletionRepository.
func (s *Store) Completions() auth.CompletionRepository { return (*completionRepo)(s) }

type snapshot struct {
	users       map[ulid.ULID]auth.User
	emails      map[string]ulid.ULID
	usernames   map[string]ulid.ULID
	sessions    map[string]auth.Session
	sessionIDs  map[ulid.ULID]string
	completions map[ulid.ULID][]auth.Completion
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	completions := make(map[ulid.ULID][]auth.Completion, len(s.completions))
	for k, v := range s.completions {
		completions[k] = slices.Clone(v)
	}
	return snapshot{
		users:       maps.Clone(s.users),
		emails:      maps.Clone(s.emails),
		usernames:   maps.Clone(s.usernames),
		sessions:    maps.Clone(s.sessions),
		sessionIDs:  maps.Clone(s.sessionIDs),
		completions: completions,
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = snap.users
	s.emails = snap.emails
	s.usernames = snap.usernames
	s.sessions = snap.sessions
	s.sessionIDs = snap.sessionIDs
	s.completions = snap.completions
}

// InTransaction runs fn with exclusive write access. If fn returns an error
// every change it made is rolled back.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTransaction(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func inTransaction(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// write runs fn under the data lock, joining the writer queue unless ctx is
// already inside a transaction.
func (s *Store) write(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return oops.With("operation", "memory write").Wrap(err)
	}
	if !inTransaction(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *Store) read(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return oops.With("operation", "memory read").Wrap(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn()
}

type userRepo Store

func (r *userRepo) store() *Store { return (*Store)(r) }

func fold(s string) string { return strings.ToLower(s) }

func (r *userRepo) Create(ctx context.Context, user *auth.User) error {
	s := r.store()
	return s.write(ctx, func() error {
		if _, ok := s.users[user.ID]; ok {
			return oops.Code("USER_CREATE_FAILED").With("id", user.ID.String()).Errorf("user id already exists")
		}
		if _, ok := s.emails[fold(user.Email)]; ok {
			return auth.DuplicateError("email")
		}
		if _, ok := s.usernames[fold(user.Username)]; ok {
			return auth.DuplicateError("username")
		}
		s.users[user.ID] = *user
		s.emails[fold(user.Email)] = user.ID
		s.usernames[fold(user.Username)] = user.ID
		return nil
	})
}

func (r *userRepo) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	s := r.store()
	var out *auth.User
	err := s.read(ctx, func() error {
		u, ok := s.users[id]
		if !ok {
			return auth.NotFoundError(id.String())
		}
		out = &u
		return nil
	})
	return out, err
}

// GetForUpdate is GetByID; the writer lock held by the transaction already
// excludes concurrent writers.
func (r *userRepo) GetForUpdate(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	return r.GetByID(ctx, id)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.getByIndex(ctx, func(s *Store) (ulid.ULID, bool) {
		id, ok := s.emails[fold(email)]
		return id, ok
	}, email)
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	return r.getByIndex(ctx, func(s *Store) (ulid.ULID, bool) {
		id, ok := s.usernames[fold(username)]
		return id, ok
	}, username)
}

func (r *userRepo) getByIndex(ctx context.Context, lookup func(*Store) (ulid.ULID, bool), key string) (*auth.User, error) {
	s := r.store()
	var out *auth.User
	err := s.read(ctx, func() error {
		id, ok := lookup(s)
		if !ok {
			return auth.NotFoundError(key)
		}
		u := s.users[id]
		out = &u
		return nil
	})
	return out, err
}

func (r *userRepo) Update(ctx context.Context, user *auth.User) error {
	s := r.store()
	return s.write(ctx, func() error {
		old, ok := s.users[user.ID]
		if !ok {
			return auth.NotFoundError(user.ID.String())
		}
		if id, taken := s.emails[fold(user.Email)]; taken && id != user.ID {
			return auth.DuplicateError("email")
		}
		if id, taken := s.usernames[fold(user.Username)]; taken && id != user.ID {
			return auth.DuplicateError("username")
		}
		delete(s.emails, fold(old.Email))
		delete(s.usernames, fold(old.Username))

		updated := *user
		updated.CreatedAt = old.CreatedAt
		s.users[user.ID] = updated
		s.emails[fold(user.Email)] = user.ID
		s.usernames[fold(user.Username)] = user.ID
		return nil
	})
}

func (r *userRepo) Delete(ctx context.Context, id ulid.ULID) error {
	s := r.store()
	return s.write(ctx, func() error {
		u, ok := s.users[id]
		if !ok {
			return auth.NotFoundError(id.String())
		}
		delete(s.users, id)
		delete(s.emails, fold(u.Email))
		delete(s.usernames, fold(u.Username))
		return nil
	})
}

func (r *userRepo) List(ctx context.Context, offset, limit int) ([]*auth.User, error) {
	s := r.store()
	var out []*auth.User
	err := s.read(ctx, func() error {
		ids := slices.SortedFunc(maps.Keys(s.users), func(a, b ulid.ULID) int { return a.Compare(b) })
		if offset >= len(ids) {
			return nil
		}
		end := min(offset+limit, len(ids))
		out = make([]*auth.User, 0, end-offset)
		for _, id := range ids[offset:end] {
			u := s.users[id]
			out = append(out, &u)
		}
		return nil
	})
	return out, err
}

func (r *userRepo) Count(ctx context.Context) (int, error) {
	s := r.store()
	var n int
	err := s.read(ctx, func() error {
		n = len(s.users)
		return nil
	})
	return n, err
}

type sessionRepo Store

func (r *sessionRepo) store() *Store { return (*Store)(r) }

func (r *sessionRepo) Create(ctx context.Context, session *auth.Session) error {
	s := r.store()
	return s.write(ctx, func() error {
		if _, ok := s.sessions[session.TokenHash]; ok {
			return oops.Code("SESSION_CREATE_FAILED").Errorf("token hash already exists")
		}
		s.sessions[session.TokenHash] = *session
		s.sessionIDs[session.ID] = session.TokenHash
		return nil
	})
}

func (r *sessionRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	s := r.store()
	var out *auth.Session
	err := s.read(ctx, func() error {
		sess, ok := s.sessions[tokenHash]
		if !ok {
			return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
		}
		out = &sess
		return nil
	})
	return out, err
}

// UpdateLastSeen takes only the data lock, so it never waits for an open
// transaction.
func (r *sessionRepo) UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error {
	s := r.store()
	if err := ctx.Err(); err != nil {
		return oops.With("operation", "memory touch").Wrap(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	hash, ok := s.sessionIDs[id]
	if !ok {
		return oops.Code("SESSION_NOT_FOUND").With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	sess := s.sessions[hash]
	sess.LastSeenAt = lastSeen
	s.sessions[hash] = sess
	return nil
}

func (r *sessionRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	s := r.store()
	return s.write(ctx, func() error {
		if sess, ok := s.sessions[tokenHash]; ok {
			delete(s.sessionIDs, sess.ID)
			delete(s.sessions, tokenHash)
		}
		return nil
	})
}

func (r *sessionRepo) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	s := r.store()
	return s.write(ctx, func() error {
		maps.DeleteFunc(s.sessions, func(_ string, sess auth.Session) bool {
			if sess.UserID != userID {
				return false
			}
			delete(s.sessionIDs, sess.ID)
			return true
		})
		return nil
	})
}

func (r *sessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s := r.store()
	var n int64
	err := s.write(ctx, func() error {
		maps.DeleteFunc(s.sessions, func(_ string, sess auth.Session) bool {
			if sess.IsExpiredAt(now) {
				delete(s.sessionIDs, sess.ID)
				n++
				return true
			}
			return false
		})
		return nil
	})
	return n, err
}

type completionRepo Store

func (r *completionRepo) store() *Store { return (*Store)(r) }

func (r *completionRepo) Create(ctx context.Context, completion *auth.Completion) error {
	s := r.store()
	return s.write(ctx, func() error {
		if _, ok := s.users[completion.UserID]; !ok {
			return auth.NotFoundError(completion.UserID.String())
		}
		s.completions[completion.UserID] = append(s.completions[completion.UserID], *completion)
		return nil
	})
}

func (r *completionRepo) ListByUser(ctx context.Context, userID ulid.ULID) ([]*auth.Completion, error) {
	s := r.store()
	var out []*auth.Completion
	err := s.read(ctx, func() error {
		items := slices.Clone(s.completions[userID])
		slices.SortFunc(items, func(a, b auth.Completion) int { return a.ID.Compare(b.ID) })
		out = make([]*auth.Completion, 0, len(items))
		for i := range items {
			out = append(out, &items[i])
		}
		return nil
	})
	return out, err
}

func (r *completionRepo) DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	s := r.store()
	var n int64
	err := s.write(ctx, func() error {
		n = int64(len(s.completions[userID]))
		delete(s.completions, userID)
		return nil
	})
	return n, err
}

var (
	_ auth.Transactor           = (*Store)(nil)
	_ auth.UserRepository       = (*userRepo)(nil)
	_ auth.SessionRepository    = (*sessionRepo)(nil)
	_ auth.CompletionRepository = (*completionRepo)(nil)
)
