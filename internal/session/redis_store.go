package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mybk-gateway/internal/logger"
	"mybk-gateway/internal/redis"
)

// RedisStore keeps sessions as sealed blobs with a sliding inactivity
// TTL: every Save rewrites the record with the full window again.
type RedisStore struct {
	kv     KV
	box    *Box
	ttl    time.Duration
	prefix string

	// OnDelete releases in-process state tied to a token (live
	// automation contexts). Set by the wiring layer.
	OnDelete func(token string)
}

func NewRedisStore(kv KV, box *Box, ttl time.Duration) *RedisStore {
	return &RedisStore{
		kv:     kv,
		box:    box,
		ttl:    ttl,
		prefix: "session:",
	}
}

func (r *RedisStore) key(token string) string {
	return r.prefix + token
}

func (r *RedisStore) Save(ctx context.Context, token string, s *Session) error {
	if token == "" || s == nil {
		return fmt.Errorf("session: missing token or session")
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}

	sealed, err := r.box.Seal(data)
	if err != nil {
		return err
	}

	return r.kv.Store(ctx, r.key(token), sealed, r.ttl)
}

func (r *RedisStore) Get(ctx context.Context, token string) (*Session, error) {
	sealed, err := r.kv.Fetch(ctx, r.key(token))
	if errors.Is(err, redis.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	plaintext, ok := r.box.Open(sealed)
	if !ok {
		// Tampered or written under a different key. Treat as absent
		// so the caller is forced to re-login.
		logger.Warn("session record failed authentication, treating as absent", nil)
		return nil, nil
	}

	var s Session
	if err := json.Unmarshal(plaintext, &s); err != nil {
		logger.Warn("session record malformed, treating as absent", nil)
		return nil, nil
	}

	return &s, nil
}

// Touch extends the sliding TTL in place. It never rewrites the
// sealed blob, so concurrent merges (registration cookie, LMS
// sub-record) are not lost to a stale copy.
func (r *RedisStore) Touch(ctx context.Context, token string) error {
	return r.kv.Touch(ctx, r.key(token), r.ttl)
}

func (r *RedisStore) Delete(ctx context.Context, token string) error {
	if r.OnDelete != nil {
		r.OnDelete(token)
	}
	return r.kv.Remove(ctx, r.key(token))
}
