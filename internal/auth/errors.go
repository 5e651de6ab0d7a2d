// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Error codes attached to oops errors returned by this package.
const (
	CodeValidation         = "AUTH_VALIDATION_FAILED"
	CodeDuplicate          = "AUTH_DUPLICATE"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidSession     = "SESSION_INVALID"
	CodeUnauthenticated    = "AUTH_UNAUTHENTICATED"
	CodeForbidden          = "AUTH_FORBIDDEN"
	CodeNotFound           = "USER_NOT_FOUND"
	CodeProtected          = "USER_PROTECTED"
)

// Sentinel errors for errors.Is checks. They are plain errors because an
// oops error matches any other oops error under errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique field is already taken.
	ErrDuplicate = errors.New("duplicate")
)

// Kind classifies an error for the presentation layer.
type Kind string

// Error kinds.
const (
	KindValidation         Kind = "validation"
	KindDuplicate          Kind = "duplicate"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindInvalidSession     Kind = "invalid_session"
	KindUnauthenticated    Kind = "unauthenticated"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindProtected          Kind = "protected"
	KindInternal           Kind = "internal"
)

var kindsByCode = map[string]Kind{
	CodeValidation:         KindValidation,
	CodeDuplicate:          KindDuplicate,
	CodeInvalidCredentials: KindInvalidCredentials,
	CodeInvalidSession:     KindInvalidSession,
	CodeUnauthenticated:    KindUnauthenticated,
	CodeForbidden:          KindForbidden,
	CodeNotFound:           KindNotFound,
	CodeProtected:          KindProtected,
}

// KindOf returns the kind of err. Errors without a known code are internal.
// Returns the empty Kind for a nil error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindInternal
	}
	code, _ := oopsErr.Code().(string)
	if kind, found := kindsByCode[code]; found {
		return kind
	}
	return KindInternal
}

// FieldOf returns the offending field of a validation or duplicate error.
func FieldOf(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	field, _ := oopsErr.Context()["field"].(string)
	return field
}

// ReasonOf returns the reason attached to a validation error.
func ReasonOf(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	reason, _ := oopsErr.Context()["reason"].(string)
	return reason
}

// ValidationError reports a malformed or missing input field.
func ValidationError(field, reason string) error {
	return oops.Code(CodeValidation).
		With("field", field).
		With("reason", reason).
		Errorf("invalid %s: %s", field, reason)
}

// DuplicateError reports a unique field that is already taken.
// Storage implementations return it when a uniqueness constraint fires.
func DuplicateError(field string) error {
	return oops.Code(CodeDuplicate).
		With("field", field).
		Wrapf(ErrDuplicate, "%s already registered", field)
}

// NotFoundError reports a user id that does not exist.
func NotFoundError(id string) error {
	return oops.Code(CodeNotFound).
		With("id", id).
		Wrap(ErrNotFound)
}

func invalidCredentialsError() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
}

func invalidSessionError() error {
	return oops.Code(CodeInvalidSession).Errorf("invalid session token")
}

func unauthenticatedError() error {
	return oops.Code(CodeUnauthenticated).Errorf("login required")
}

func forbiddenError(action, resource string) error {
	return oops.Code(CodeForbidden).
		With("action", action).
		With("resource", resource).
		Errorf("permission denied")
}

func protectedError(id string) error {
	return oops.Code(CodeProtected).
		With("id", id).
		Errorf("administrator accounts cannot be deleted")
}
