// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/roito2356/giiku-23/internal/access"
	"github.com/roito2356/giiku-23/pkg/errutil"
)

// Paging limits for List.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// UserUpdate holds optional profile changes. Nil fields are left untouched.
type UserUpdate struct {
	Email    *string
	Username *string
	Password *string
}

// Directory owns user records. It enforces uniqueness of email and username,
// stores only password digests, and cascades deletion to owned records.
type Directory struct {
	users       UserRepository
	completions CompletionRepository
	sessions    SessionRepository
	tx          Transactor
	codec       Codec
	logger      *slog.Logger
	now         func() time.Time
}

// NewDirectory creates a Directory.
func NewDirectory(users UserRepository, completions CompletionRepository, sessions SessionRepository,
	tx Transactor, codec Codec, opts ...Option,
) (*Directory, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if completions == nil {
		return nil, oops.Errorf("completions repository is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("sessions repository is required")
	}
	if tx == nil {
		return nil, oops.Errorf("transactor is required")
	}
	if codec == nil {
		return nil, oops.Errorf("credential codec is required")
	}
	o := newOptions(opts)
	return &Directory{
		users:       users,
		completions: completions,
		sessions:    sessions,
		tx:          tx,
		codec:       codec,
		logger:      o.logger,
		now:         o.now,
	}, nil
}

// Register creates a user with the given role. Email is checked before
// username so the first violation is reported deterministically. Storage
// constraints catch registrations that race past the checks.
// Administrators can only be created from a system context.
func (d *Directory) Register(ctx context.Context, email, username, password string, role Role) (*User, error) {
	if !role.Valid() {
		return nil, ValidationError("role", "unknown role")
	}
	if role.IsAdmin() && !access.IsSystemContext(ctx) {
		return nil, forbiddenError("create", "user:administrator")
	}

	email = NormalizeEmail(email)
	username = NormalizeUsername(username)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, ValidationError("password", "required")
	}

	if err := d.checkEmailFree(ctx, email, ulid.ULID{}); err != nil {
		return nil, err
	}
	if err := d.checkUsernameFree(ctx, username, ulid.ULID{}); err != nil {
		return nil, err
	}

	digest, err := d.codec.Hash(ctx, password)
	if err != nil {
		return nil, oops.With("operation", "hash password").Wrap(err)
	}

	now := d.now().UTC()
	user := &User{
		ID:           NewID(),
		Email:        email,
		Username:     username,
		PasswordHash: digest,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.users.Create(ctx, user); err != nil {
		return nil, oops.With("operation", "create user").Wrap(err)
	}

	d.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String(), "role", user.Role.String())
	return user, nil
}

// FindByEmail looks up a user by email (case-insensitive).
func (d *Directory) FindByEmail(ctx context.Context, email string) (*User, error) {
	user, err := d.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, oops.With("operation", "find user by email").Wrap(err)
	}
	return user, nil
}

// FindByID looks up a user by ID.
func (d *Directory) FindByID(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := d.users.GetByID(ctx, id)
	if err != nil {
		return nil, oops.With("operation", "find user by id").Wrap(err)
	}
	return user, nil
}

// Update applies profile changes. Uniqueness is re-checked against every
// other user; the password is re-hashed only when a new one is given.
func (d *Directory) Update(ctx context.Context, id ulid.ULID, changes UserUpdate) (*User, error) {
	var email, username string
	if changes.Email != nil {
		email = NormalizeEmail(*changes.Email)
		if err := ValidateEmail(email); err != nil {
			return nil, err
		}
	}
	if changes.Username != nil {
		username = NormalizeUsername(*changes.Username)
		if err := ValidateUsername(username); err != nil {
			return nil, err
		}
	}

	var digest string
	if changes.Password != nil {
		if *changes.Password == "" {
			return nil, ValidationError("password", "required")
		}
		var err error
		digest, err = d.codec.Hash(ctx, *changes.Password)
		if err != nil {
			return nil, oops.With("operation", "hash password").Wrap(err)
		}
	}

	var updated *User
	err := d.tx.InTransaction(ctx, func(ctx context.Context) error {
		user, err := d.users.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if changes.Email != nil && !strings.EqualFold(email, user.Email) {
			if err := d.checkEmailFree(ctx, email, user.ID); err != nil {
				return err
			}
		}
		if changes.Email != nil {
			user.Email = email
		}
		if changes.Username != nil && !strings.EqualFold(username, user.Username) {
			if err := d.checkUsernameFree(ctx, username, user.ID); err != nil {
				return err
			}
		}
		if changes.Username != nil {
			user.Username = username
		}
		if digest != "" {
			user.PasswordHash = digest
		}
		user.UpdatedAt = d.now().UTC()
		if err := d.users.Update(ctx, user); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, oops.With("operation", "update user").With("id", id.String()).Wrap(err)
	}
	return updated, nil
}

// SetRole changes a user's role. Only a system context may assign roles.
func (d *Directory) SetRole(ctx context.Context, id ulid.ULID, role Role) (*User, error) {
	if !access.IsSystemContext(ctx) {
		return nil, forbiddenError("grant", "user:"+id.String())
	}
	if !role.Valid() {
		return nil, ValidationError("role", "unknown role")
	}

	var updated *User
	err := d.tx.InTransaction(ctx, func(ctx context.Context) error {
		user, err := d.users.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		user.Role = role
		user.UpdatedAt = d.now().UTC()
		if err := d.users.Update(ctx, user); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, oops.With("operation", "set role").With("id", id.String()).Wrap(err)
	}
	return updated, nil
}

// Delete removes a non-administrator user together with the completion
// records it owns. Sessions are revoked after the deletion commits.
func (d *Directory) Delete(ctx context.Context, id ulid.ULID) error {
	var removed int64
	err := d.tx.InTransaction(ctx, func(ctx context.Context) error {
		user, err := d.users.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if user.IsAdmin() {
			return protectedError(id.String())
		}
		removed, err = d.completions.DeleteByUser(ctx, id)
		if err != nil {
			return err
		}
		return d.users.Delete(ctx, id)
	})
	if err != nil {
		return oops.With("operation", "delete user").With("id", id.String()).Wrap(err)
	}

	// Sessions may live outside the user store; a leftover session no longer
	// resolves because its user is gone.
	if err := d.sessions.DeleteByUser(ctx, id); err != nil {
		errutil.LogWarn(ctx, d.logger, "failed to revoke sessions of deleted user",
			oops.With("user_id", id.String()).Wrap(err))
	}

	d.logger.InfoContext(ctx, "user deleted", "user_id", id.String(), "completions_removed", removed)
	return nil
}

// List returns page (1-based) of users ordered by ID ascending.
func (d *Directory) List(ctx context.Context, page, pageSize int) (Page[*User], error) {
	if page < 1 {
		return Page[*User]{}, ValidationError("page", "must be at least 1")
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return Page[*User]{}, ValidationError("page_size", "must be between 1 and 100")
	}

	total, err := d.users.Count(ctx)
	if err != nil {
		return Page[*User]{}, oops.With("operation", "count users").Wrap(err)
	}
	users, err := d.users.List(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return Page[*User]{}, oops.With("operation", "list users").Wrap(err)
	}
	return Page[*User]{Items: users, Page: page, PageSize: pageSize, Total: total}, nil
}

// Completions returns the completion records owned by a user.
func (d *Directory) Completions(ctx context.Context, id ulid.ULID) ([]*Completion, error) {
	if _, err := d.users.GetByID(ctx, id); err != nil {
		return nil, oops.With("operation", "list completions").Wrap(err)
	}
	completions, err := d.completions.ListByUser(ctx, id)
	if err != nil {
		return nil, oops.With("operation", "list completions").With("id", id.String()).Wrap(err)
	}
	return completions, nil
}

// AddCompletion stores a completion record for an existing user.
func (d *Directory) AddCompletion(ctx context.Context, completion *Completion) error {
	if _, err := d.users.GetByID(ctx, completion.UserID); err != nil {
		return oops.With("operation", "add completion").Wrap(err)
	}
	if err := d.completions.Create(ctx, completion); err != nil {
		return oops.With("operation", "add completion").With("id", completion.UserID.String()).Wrap(err)
	}
	return nil
}

// checkEmailFree returns DuplicateError if another user than self holds email.
func (d *Directory) checkEmailFree(ctx context.Context, email string, self ulid.ULID) error {
	existing, err := d.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return oops.With("operation", "check email").Wrap(err)
	case existing.ID != self:
		return DuplicateError("email")
	default:
		return nil
	}
}

// checkUsernameFree returns DuplicateError if another user than self holds username.
func (d *Directory) checkUsernameFree(ctx context.Context, username string, self ulid.ULID) error {
	existing, err := d.users.GetByUsername(ctx, username)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return oops.With("operation", "check username").Wrap(err)
	case existing.ID != self:
		return DuplicateError("username")
	default:
		return nil
	}
}
