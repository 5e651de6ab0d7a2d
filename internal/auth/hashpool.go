// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package auth

import (
	"context"
	"runtime"
	"time"

	"github.com/samber/oops"
	"golang.org/x/sync/semaphore"
)

// Codec is the context-aware credential codec used by the directory and the
// lifecycle service.
type Codec interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, digest string) (bool, error)
	NeedsUpgrade(digest string) bool
}

// HashPool bounds the number of concurrent hash computations so a burst of
// logins cannot exhaust memory. Each argon2id run holds its memory cost for
// the duration of the call.
type HashPool struct {
	hasher PasswordHasher
	sem    *semaphore.Weighted
}

// NewHashPool wraps hasher with a pool of the given size.
// A size below one defaults to GOMAXPROCS.
func NewHashPool(hasher PasswordHasher, size int) (*HashPool, error) {
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if size < 1 {
		size = runtime.GOMAXPROCS(0)
	}
	return &HashPool{
		hasher: hasher,
		sem:    semaphore.NewWeighted(int64(size)),
	}, nil
}

// Hash computes a digest once a worker slot is free.
func (p *HashPool) Hash(ctx context.Context, password string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", oops.Code("HASH_POOL_CANCELLED").With("operation", "hash").Wrap(err)
	}
	defer p.sem.Release(1)

	start := time.Now()
	digest, err := p.hasher.Hash(password)
	RecordHashDuration(HashOpHash, time.Since(start))
	return digest, err
}

// Verify checks a password once a worker slot is free. The only error is
// context cancellation while waiting.
func (p *HashPool) Verify(ctx context.Context, password, digest string) (bool, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false, oops.Code("HASH_POOL_CANCELLED").With("operation", "verify").Wrap(err)
	}
	defer p.sem.Release(1)

	start := time.Now()
	ok := p.hasher.Verify(password, digest)
	RecordHashDuration(HashOpVerify, time.Since(start))
	return ok, nil
}

// NeedsUpgrade delegates to the wrapped hasher.
func (p *HashPool) NeedsUpgrade(digest string) bool {
	return p.hasher.NeedsUpgrade(digest)
}

var _ Codec = (*HashPool)(nil)
