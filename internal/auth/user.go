// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package auth

import (
	"context"
	"crypto/rand"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// Field length limits.
const (
	MaxEmailLength    = 254
	MaxUsernameLength = 80
)

// User is a registered identity. The password is held only as a digest; there
// is no plaintext accessor.
type User struct {
	ID           ulid.ULID
	Email        string
	Username     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAdmin reports whether the user holds the administrator role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role.IsAdmin()
}

// Page is one page of an id-ordered listing.
type Page[T any] struct {
	Items    []T
	Page     int
	PageSize int
	Total    int
}

// TotalPages returns the number of pages needed for Total items.
func (p Page[T]) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a ULID that sorts after every ID previously returned by this
// process, so id order matches assignment order.
func NewID() ulid.ULID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy)
}

// NormalizeEmail trims surrounding whitespace. Case is preserved for display;
// storage compares emails case-insensitively.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

// NormalizeUsername trims surrounding whitespace.
func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

// ValidateEmail checks that email is present and has the shape local@domain.
func ValidateEmail(email string) error {
	if email == "" {
		return ValidationError("email", "required")
	}
	if len(email) > MaxEmailLength {
		return ValidationError("email", "too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return ValidationError("email", "invalid format")
	}
	at := strings.LastIndexByte(email, '@')
	if at < 1 || !strings.Contains(email[at+1:], ".") {
		return ValidationError("email", "invalid format")
	}
	return nil
}

// ValidateUsername checks that username is present, printable and bounded.
func ValidateUsername(username string) error {
	if username == "" {
		return ValidationError("username", "required")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return ValidationError("username", "too long")
	}
	for _, r := range username {
		if !unicode.IsPrint(r) {
			return ValidationError("username", "invalid characters")
		}
	}
	return nil
}

// ValidatePassword checks that a new password is present and confirmed.
func ValidatePassword(password, confirmation string) error {
	if password == "" {
		return ValidationError("password", "required")
	}
	if password != confirmation {
		return ValidationError("password_confirmation", "does not match")
	}
	return nil
}

// UserRepository manages user persistence. Implementations enforce
// case-insensitive uniqueness of email and username atomically with the
// write and report violations with DuplicateError.
type UserRepository interface {
	// Create stores a new user.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetForUpdate retrieves a user and holds a row lock for the remainder
	// of the surrounding transaction.
	GetForUpdate(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByUsername retrieves a user by username (case-insensitive).
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Update stores changed email, username, password hash and role.
	Update(ctx context.Context, user *User) error

	// Delete removes a user.
	Delete(ctx context.Context, id ulid.ULID) error

	// List returns up to limit users ordered by ID ascending, skipping offset.
	List(ctx context.Context, offset, limit int) ([]*User, error)

	// Count returns the number of users.
	Count(ctx context.Context) (int, error)
}

// Transactor runs fn inside a storage transaction. Repositories called with
// the context passed to fn participate in the transaction.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
