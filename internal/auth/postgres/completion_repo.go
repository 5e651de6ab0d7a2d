// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package postgres

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/roito2356/giiku-23/internal/auth"
)

// CompletionRepository implements auth.CompletionRepository using PostgreSQL.
type CompletionRepository struct {
	pool Pool
}

// NewCompletionRepository creates a new CompletionRepository.
func NewCompletionRepository(pool Pool) *CompletionRepository {
	return &CompletionRepository{pool: pool}
}

// Create stores a new completion record.
func (r *CompletionRepository) Create(ctx context.Context, c *auth.Completion) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO completions (id, user_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID.String(), c.UserID.String(), c.Rating, c.Comment, c.CreatedAt)
	if isForeignKeyViolation(err) {
		return auth.NotFoundError(c.UserID.String())
	}
	if err != nil {
		return oops.Code("COMPLETION_CREATE_FAILED").
			With("operation", "insert completion").
			With("user_id", c.UserID.String()).
			Wrap(err)
	}
	return nil
}

// ListByUser returns a user's completions ordered by ID ascending.
func (r *CompletionRepository) ListByUser(ctx context.Context, userID ulid.ULID) ([]*auth.Completion, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, rating, comment, created_at
		FROM completions
		WHERE user_id = $1
		ORDER BY id ASC
	`, userID.String())
	if err != nil {
		return nil, oops.Code("COMPLETION_LIST_FAILED").
			With("operation", "list completions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var out []*auth.Completion
	for rows.Next() {
		var (
			idStr     string
			rating    int
			comment   string
			createdAt time.Time
		)
		if err := rows.Scan(&idStr, &rating, &comment, &createdAt); err != nil {
			return nil, oops.Code("COMPLETION_SCAN_FAILED").Wrap(err)
		}
		id, err := ulid.Parse(idStr)
		if err != nil {
			return nil, oops.Code("COMPLETION_INVALID_ID").With("id", idStr).Wrap(err)
		}
		out = append(out, &auth.Completion{
			ID:        id,
			UserID:    userID,
			Rating:    rating,
			Comment:   comment,
			CreatedAt: createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("COMPLETION_LIST_FAILED").With("operation", "iterate completions").Wrap(err)
	}
	return out, nil
}

// DeleteByUser removes all completions owned by a user.
func (r *CompletionRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	result, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM completions WHERE user_id = $1`, userID.String())
	if err != nil {
		return 0, oops.Code("COMPLETION_DELETE_FAILED").
			With("operation", "delete completions by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// Compile-time interface check.
var _ auth.CompletionRepository = (*CompletionRepository)(nil)
