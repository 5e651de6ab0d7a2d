// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/roito2356/giiku-23/internal/auth"
)

// MockCodec is a mock auth.Codec.
type MockCodec struct {
	mock.Mock
}

// NewMockCodec creates a mock that asserts its expectations on cleanup.
func NewMockCodec(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockCodec {
	m := &MockCodec{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockCodec) Hash(ctx context.Context, password string) (string, error) {
	args := m.Called(ctx, password)
	return args.String(0), args.Error(1)
}

func (m *MockCodec) Verify(ctx context.Context, password, digest string) (bool, error) {
	args := m.Called(ctx, password, digest)
	return args.Bool(0), args.Error(1)
}

func (m *MockCodec) NeedsUpgrade(digest string) bool {
	return m.Called(digest).Bool(0)
}

var _ auth.Codec = (*MockCodec)(nil)

// PassthroughTransactor runs fn directly, for tests that mock repositories.
type PassthroughTransactor struct{}

// InTransaction calls fn with ctx.
func (PassthroughTransactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var _ auth.Transactor = PassthroughTransactor{}
