// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

// Package postgres implements the auth repositories on PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/roito2356/giiku-23/internal/auth"
)

// querier abstracts query execution for both a pool and pgx.Tx, so
// repository methods work inside or outside of a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is the subset of *pgxpool.Pool used by this package.
type Pool interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type txKey struct{}

// conn returns the transaction stored in ctx by Transactor, or pool.
func conn(ctx context.Context, pool Pool) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// Unique index names from the users migration.
const (
	usersEmailIndex    = "users_email_lower_idx"
	usersUsernameIndex = "users_username_lower_idx"
)

// duplicateField maps a unique violation on users to the offending field.
func duplicateField(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return "", false
	}
	switch pgErr.ConstraintName {
	case usersEmailIndex:
		return "email", true
	case usersUsernameIndex:
		return "username", true
	default:
		return "", false
	}
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}

// uniqueViolationError converts a users unique violation into auth.DuplicateError.
func uniqueViolationError(err error) error {
	if field, ok := duplicateField(err); ok {
		return auth.DuplicateError(field)
	}
	return nil
}
