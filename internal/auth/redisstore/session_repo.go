// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

// Package redisstore keeps sessions in Redis. Keys carry the session expiry
// as their TTL, so Redis reclaims them without a purge job.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/roito2356/giiku-23/internal/auth"
)

const keyPrefix = "giiku:"

func sessionKey(tokenHash string) string { return keyPrefix + "session:" + tokenHash }
func sessionIDKey(id ulid.ULID) string   { return keyPrefix + "session_id:" + id.String() }
func userSessionsKey(userID string) string {
	return keyPrefix + "user:" + userID + ":sessions"
}

// touch updates one field only if the session still exists, so an update
// racing with expiry cannot resurrect a key without TTL.
var touch = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
	return 1
end
return 0
`)

// SessionRepository implements auth.SessionRepository on Redis.
//
// Layout:
//
//	giiku:session:<token hash>        hash of session fields, TTL = expiry
//	giiku:session_id:<id>             token hash, TTL = expiry
//	giiku:user:<user id>:sessions     set of token hashes
type SessionRepository struct {
	client redis.UniversalClient
}

// NewSessionRepository creates a SessionRepository.
func NewSessionRepository(client redis.UniversalClient) *SessionRepository {
	return &SessionRepository{client: client}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, s *auth.Session) error {
	key := sessionKey(s.TokenHash)
	idKey := sessionIDKey(s.ID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			"id":           s.ID.String(),
			"user_id":      s.UserID.String(),
			"user_agent":   s.UserAgent,
			"ip_address":   s.IPAddress,
			"expires_at":   formatTime(s.ExpiresAt),
			"created_at":   formatTime(s.CreatedAt),
			"last_seen_at": formatTime(s.LastSeenAt),
		})
		pipe.PExpireAt(ctx, key, s.ExpiresAt)
		pipe.Set(ctx, idKey, s.TokenHash, 0)
		pipe.PExpireAt(ctx, idKey, s.ExpiresAt)
		pipe.SAdd(ctx, userSessionsKey(s.UserID.String()), s.TokenHash)
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "store session").
			With("user_id", s.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	fields, err := r.client.HGetAll(ctx, sessionKey(tokenHash)).Result()
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	if len(fields) == 0 {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return decodeSession(tokenHash, fields)
}

// UpdateLastSeen updates the LastSeenAt timestamp for a session.
func (r *SessionRepository) UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error {
	tokenHash, err := r.client.Get(ctx, sessionIDKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return oops.Code("SESSION_NOT_FOUND").With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return oops.Code("SESSION_UPDATE_FAILED").With("session_id", id.String()).Wrap(err)
	}

	updated, err := touch.Run(ctx, r.client, []string{sessionKey(tokenHash)}, "last_seen_at", formatTime(lastSeen)).Int()
	if err != nil {
		return oops.Code("SESSION_UPDATE_FAILED").With("session_id", id.String()).Wrap(err)
	}
	if updated == 0 {
		return oops.Code("SESSION_NOT_FOUND").With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByTokenHash removes a session. Removing an absent session is not an error.
func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	key := sessionKey(tokenHash)
	vals, err := r.client.HMGet(ctx, key, "id", "user_id").Result()
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("operation", "read session").Wrap(err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if id, ok := vals[0].(string); ok {
			if parsed, perr := ulid.Parse(id); perr == nil {
				pipe.Del(ctx, sessionIDKey(parsed))
			}
		}
		if userID, ok := vals[1].(string); ok {
			pipe.SRem(ctx, userSessionsKey(userID), tokenHash)
		}
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("operation", "delete session").Wrap(err)
	}
	return nil
}

// DeleteByUser removes all sessions for a user.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	setKey := userSessionsKey(userID.String())
	hashes, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "list user sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}

	for _, h := range hashes {
		if err := r.DeleteByTokenHash(ctx, h); err != nil {
			return oops.With("user_id", userID.String()).Wrap(err)
		}
	}
	if err := r.client.Del(ctx, setKey).Err(); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete user session set").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// DeleteExpired prunes user session sets of members whose session key has
// expired and returns the number pruned. The session keys themselves are
// removed by Redis; now is not consulted.
func (r *SessionRepository) DeleteExpired(ctx context.Context, _ time.Time) (int64, error) {
	var pruned int64
	iter := r.client.Scan(ctx, 0, keyPrefix+"user:*:sessions", 100).Iterator()
	for iter.Next(ctx) {
		setKey := iter.Val()
		hashes, err := r.client.SMembers(ctx, setKey).Result()
		if err != nil {
			return pruned, oops.Code("SESSION_DELETE_EXPIRED_FAILED").With("key", setKey).Wrap(err)
		}
		for _, h := range hashes {
			n, err := r.client.Exists(ctx, sessionKey(h)).Result()
			if err != nil {
				return pruned, oops.Code("SESSION_DELETE_EXPIRED_FAILED").With("key", setKey).Wrap(err)
			}
			if n > 0 {
				continue
			}
			if err := r.client.SRem(ctx, setKey, h).Err(); err != nil {
				return pruned, oops.Code("SESSION_DELETE_EXPIRED_FAILED").With("key", setKey).Wrap(err)
			}
			pruned++
		}
	}
	if err := iter.Err(); err != nil {
		return pruned, oops.Code("SESSION_DELETE_EXPIRED_FAILED").With("operation", "scan").Wrap(err)
	}
	return pruned, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeSession(tokenHash string, f map[string]string) (*auth.Session, error) {
	id, err := ulid.Parse(f["id"])
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").With("id", f["id"]).Wrap(err)
	}
	userID, err := ulid.Parse(f["user_id"])
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_USER_ID").With("user_id", f["user_id"]).Wrap(err)
	}

	s := &auth.Session{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		UserAgent: f["user_agent"],
		IPAddress: f["ip_address"],
	}
	for name, dst := range map[string]*time.Time{
		"expires_at":   &s.ExpiresAt,
		"created_at":   &s.CreatedAt,
		"last_seen_at": &s.LastSeenAt,
	} {
		t, err := time.Parse(time.RFC3339Nano, f[name])
		if err != nil {
			return nil, oops.Code("SESSION_SCAN_FAILED").With("field", name).Wrap(err)
		}
		*dst = t
	}
	return s, nil
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)
