// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package auth_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/roito2356/giiku-23/internal/auth"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want auth.Kind
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("boom"), auth.KindInternal},
		{"oops without code", oops.Errorf("boom"), auth.KindInternal},
		{"unknown code", oops.Code("SOMETHING_ELSE").Errorf("boom"), auth.KindInternal},
		{"validation", auth.ValidationError("email", "required"), auth.KindValidation},
		{"duplicate", auth.DuplicateError("email"), auth.KindDuplicate},
		{"not found", auth.NotFoundError("x"), auth.KindNotFound},
		{"wrapped keeps deepest code", oops.With("operation", "x").Wrap(auth.DuplicateError("username")), auth.KindDuplicate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.KindOf(tt.err))
		})
	}
}

func TestFieldAndReason(t *testing.T) {
	err := oops.With("operation", "register").Wrap(auth.ValidationError("username", "too long"))
	assert.Equal(t, "username", auth.FieldOf(err))
	assert.Equal(t, "too long", auth.ReasonOf(err))

	assert.Empty(t, auth.FieldOf(errors.New("plain")))
	assert.Empty(t, auth.ReasonOf(nil))
}

func TestSentinels(t *testing.T) {
	assert.ErrorIs(t, auth.DuplicateError("email"), auth.ErrDuplicate)
	assert.ErrorIs(t, auth.NotFoundError("x"), auth.ErrNotFound)
	assert.NotErrorIs(t, auth.DuplicateError("email"), auth.ErrNotFound)
}
