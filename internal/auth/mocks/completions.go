// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/roito2356/giiku-23/internal/auth"
)

// MockCompletionRepository is a mock auth.CompletionRepository.
type MockCompletionRepository struct {
	mock.Mock
}

// NewMockCompletionRepository creates a mock that asserts its expectations on cleanup.
func NewMockCompletionRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockCompletionRepository {
	m := &MockCompletionRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockCompletionRepository) Create(ctx context.Context, completion *auth.Completion) error {
	return m.Called(ctx, completion).Error(0)
}

func (m *MockCompletionRepository) ListByUser(ctx context.Context, userID ulid.ULID) ([]*auth.Completion, error) {
	args := m.Called(ctx, userID)
	c, _ := args.Get(0).([]*auth.Completion)
	return c, args.Error(1)
}

func (m *MockCompletionRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	args := m.Called(ctx, userID)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

var _ auth.CompletionRepository = (*MockCompletionRepository)(nil)
