// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Rating bounds for completion records.
const (
	MinRating = 1
	MaxRating = 5
)

// MaxCommentLength bounds the free-text comment on a completion record.
const MaxCommentLength = 2000

// Completion records that a user finished a material, with a rating.
// Completions are owned by their user and removed with it.
type Completion struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// NewCompletion creates a validated Completion for userID created at now.
func NewCompletion(userID ulid.ULID, rating int, comment string, now time.Time) (*Completion, error) {
	if rating < MinRating || rating > MaxRating {
		return nil, ValidationError("rating", "must be between 1 and 5")
	}
	if len(comment) > MaxCommentLength {
		return nil, ValidationError("comment", "too long")
	}
	return &Completion{
		ID:        NewID(),
		UserID:    userID,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: now.UTC(),
	}, nil
}

// CompletionRepository manages completion persistence.
type CompletionRepository interface {
	// Create stores a new completion record.
	Create(ctx context.Context, completion *Completion) error

	// ListByUser returns a user's completions ordered by ID ascending.
	ListByUser(ctx context.Context, userID ulid.ULID) ([]*Completion, error)

	// DeleteByUser removes all completions owned by a user and returns the
	// number removed.
	DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error)
}
