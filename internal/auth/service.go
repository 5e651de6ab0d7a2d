// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roito2356/giiku-23/internal/access"
	"github.com/roito2356/giiku-23/pkg/errutil"
)

var tracer = otel.Tracer("giiku/auth")

// Landing pages suggested to the presentation layer after login.
const (
	LandingAdmin   = "/users"
	LandingRegular = "/mypage"
)

// RegisterInput is a self-service registration form.
type RegisterInput struct {
	Email                string
	Username             string
	Password             string
	PasswordConfirmation string
}

// ProfileUpdate holds optional profile changes. A new password must be
// accompanied by a matching confirmation.
type ProfileUpdate struct {
	Email                *string
	Username             *string
	Password             *string
	PasswordConfirmation *string
}

// LoginResult is returned on successful login.
type LoginResult struct {
	Token   string
	Session *Session
	User    *User
	Landing string
}

// Service is the account lifecycle entry point for the presentation layer.
type Service struct {
	directory *Directory
	sessions  *SessionManager
	guard     *Guard
	codec     Codec
	logger    *slog.Logger
	now       func() time.Time

	// dummyDigest is verified against when the email is unknown, so a miss
	// costs the same as a wrong password.
	dummyDigest string
}

// NewService creates a Service.
func NewService(directory *Directory, sessions *SessionManager, guard *Guard, codec Codec, opts ...Option) (*Service, error) {
	if directory == nil {
		return nil, oops.Errorf("directory is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session manager is required")
	}
	if guard == nil {
		return nil, oops.Errorf("guard is required")
	}
	if codec == nil {
		return nil, oops.Errorf("credential codec is required")
	}

	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		return nil, oops.Code("AUTH_INIT_FAILED").With("operation", "generate dummy secret").Wrap(err)
	}
	dummy, err := codec.Hash(context.Background(), hex.EncodeToString(secret))
	if err != nil {
		return nil, oops.Code("AUTH_INIT_FAILED").With("operation", "hash dummy secret").Wrap(err)
	}

	o := newOptions(opts)
	return &Service{
		directory:   directory,
		sessions:    sessions,
		guard:       guard,
		codec:       codec,
		logger:      o.logger,
		now:         o.now,
		dummyDigest: dummy,
	}, nil
}

// Register creates a regular account after validating the form.
func (s *Service) Register(ctx context.Context, in RegisterInput) (user *User, err error) {
	ctx, span := tracer.Start(ctx, "auth.register")
	defer func() {
		recordRegistration(err)
		endSpan(span, err)
	}()

	email := NormalizeEmail(in.Email)
	username := NormalizeUsername(in.Username)

	switch {
	case email == "":
		return nil, ValidationError("email", "required")
	case username == "":
		return nil, ValidationError("username", "required")
	case in.Password == "":
		return nil, ValidationError("password", "required")
	case in.PasswordConfirmation == "":
		return nil, ValidationError("password_confirmation", "required")
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password, in.PasswordConfirmation); err != nil {
		return nil, err
	}

	user, err = s.directory.Register(ctx, email, username, in.Password, RoleRegular)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	return user, nil
}

// Login authenticates by email and password and opens a session. Unknown
// emails and wrong passwords produce the same error after the same work.
func (s *Service) Login(ctx context.Context, email, password string, meta SessionMeta) (res *LoginResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer func() {
		recordLogin(err)
		endSpan(span, err)
	}()

	user, lookupErr := s.directory.FindByEmail(ctx, email)
	digest := s.dummyDigest
	switch {
	case lookupErr == nil:
		digest = user.PasswordHash
	case errors.Is(lookupErr, ErrNotFound):
		user = nil
	default:
		return nil, oops.With("operation", "look up login email").Wrap(lookupErr)
	}

	ok, verifyErr := s.codec.Verify(ctx, password, digest)
	if verifyErr != nil {
		return nil, oops.With("operation", "verify password").Wrap(verifyErr)
	}
	if user == nil || !ok {
		return nil, invalidCredentialsError()
	}

	if s.codec.NeedsUpgrade(user.PasswordHash) {
		s.upgradeDigest(ctx, user, password)
	}

	token, session, err := s.sessions.Login(ctx, user.ID, meta)
	if err != nil {
		return nil, oops.With("operation", "open session").Wrap(err)
	}

	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID.String(), "session_id", session.ID.String())
	return &LoginResult{
		Token:   token,
		Session: session,
		User:    user,
		Landing: LandingFor(user),
	}, nil
}

// Logout ends the session for token. It never fails for unknown tokens.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Logout(ctx, token)
}

// CurrentUser returns the user bound to token and records activity on the
// session.
func (s *Service) CurrentUser(ctx context.Context, token string) (*User, error) {
	user, session, err := s.guard.RequireLogin(ctx, token)
	if err != nil {
		return nil, err
	}
	s.sessions.Touch(ctx, session)
	return user, nil
}

// GetUser returns a user's profile to the user itself or an administrator.
func (s *Service) GetUser(ctx context.Context, token string, target ulid.ULID) (*User, error) {
	actor, _, err := s.guard.RequireLogin(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(ctx, actor, access.ActionRead, access.UserResource(target.String())); err != nil {
		return nil, err
	}
	return s.directory.FindByID(ctx, target)
}

// UpdateProfile changes email, username or password of target. The actor
// must be the target or an administrator; nothing is written on denial.
func (s *Service) UpdateProfile(ctx context.Context, token string, target ulid.ULID, in ProfileUpdate) (user *User, err error) {
	ctx, span := tracer.Start(ctx, "auth.update_profile",
		trace.WithAttributes(attribute.String("target.id", target.String())))
	defer func() { endSpan(span, err) }()

	actor, _, err := s.guard.RequireLogin(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireSelfOrAdmin(ctx, actor, target); err != nil {
		return nil, err
	}

	if in.Password != nil {
		confirmation := ""
		if in.PasswordConfirmation != nil {
			confirmation = *in.PasswordConfirmation
		}
		if err := ValidatePassword(*in.Password, confirmation); err != nil {
			return nil, err
		}
	}

	user, err = s.directory.Update(ctx, target, UserUpdate{
		Email:    in.Email,
		Username: in.Username,
		Password: in.Password,
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "profile updated",
		"user_id", target.String(),
		"actor_id", actor.ID.String(),
		"password_changed", in.Password != nil)
	return user, nil
}

// DeleteAccount removes target. Only administrators may delete accounts,
// including their own, and administrator accounts are never deletable.
func (s *Service) DeleteAccount(ctx context.Context, token string, target ulid.ULID) (err error) {
	ctx, span := tracer.Start(ctx, "auth.delete_account",
		trace.WithAttributes(attribute.String("target.id", target.String())))
	defer func() { endSpan(span, err) }()

	actor, _, err := s.guard.RequireLogin(ctx, token)
	if err != nil {
		return err
	}
	if err := s.guard.RequireAdmin(ctx, actor); err != nil {
		return err
	}
	if err := s.directory.Delete(ctx, target); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "account deleted", "user_id", target.String(), "actor_id", actor.ID.String())
	return nil
}

// ListUsers returns a page of users ordered by ID. Administrators only.
func (s *Service) ListUsers(ctx context.Context, token string, page, pageSize int) (Page[*User], error) {
	actor, _, err := s.guard.RequireLogin(ctx, token)
	if err != nil {
		return Page[*User]{}, err
	}
	if err := s.guard.RequireAdmin(ctx, actor); err != nil {
		return Page[*User]{}, err
	}
	return s.directory.List(ctx, page, pageSize)
}

// RecordCompletion stores a completion record for the logged-in user.
func (s *Service) RecordCompletion(ctx context.Context, token string, rating int, comment string) (*Completion, error) {
	actor, _, err := s.guard.RequireLogin(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(ctx, actor, access.ActionWrite, access.CompletionResource(actor.ID.String())); err != nil {
		return nil, err
	}
	completion, err := NewCompletion(actor.ID, rating, comment, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.directory.AddCompletion(ctx, completion); err != nil {
		return nil, err
	}
	return completion, nil
}

// ListCompletions returns the completion records of userID to that user or
// an administrator.
func (s *Service) ListCompletions(ctx context.Context, token string, userID ulid.ULID) ([]*Completion, error) {
	actor, _, err := s.guard.RequireLogin(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(ctx, actor, access.ActionRead, access.CompletionResource(userID.String())); err != nil {
		return nil, err
	}
	return s.directory.Completions(ctx, userID)
}

// LandingFor returns the page a user is sent to after login.
func LandingFor(user *User) string {
	if user.IsAdmin() {
		return LandingAdmin
	}
	return LandingRegular
}

// upgradeDigest re-hashes a legacy or weak digest. Login succeeds either way.
func (s *Service) upgradeDigest(ctx context.Context, user *User, password string) {
	updated, err := s.directory.Update(ctx, user.ID, UserUpdate{Password: &password})
	if err != nil {
		errutil.LogError(ctx, s.logger, "failed to upgrade password digest", err)
		return
	}
	user.PasswordHash = updated.PasswordHash
	s.logger.InfoContext(ctx, "password digest upgraded", "user_id", user.ID.String())
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	}
	span.End()
}

func recordLogin(err error) {
	switch KindOf(err) {
	case "":
		RecordLogin(ResultSuccess)
	case KindInvalidCredentials:
		RecordLogin(ResultFailure)
	default:
		RecordLogin(ResultError)
	}
}

func recordRegistration(err error) {
	switch KindOf(err) {
	case "":
		RecordRegistration(ResultSuccess)
	case KindValidation, KindDuplicate:
		RecordRegistration(ResultInvalid)
	default:
		RecordRegistration(ResultError)
	}
}
