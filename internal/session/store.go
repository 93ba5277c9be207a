package session

import (
	"context"
	"time"
)

// KV is the slice of the shared store the session layer needs.
// *redis.Client satisfies it; tests use an in-memory fake.
type KV interface {
	Store(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Fetch(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
	Touch(ctx context.Context, key string, ttl time.Duration) error
}

// Store defines how sessions are stored and retrieved. Get returns
// (nil, nil) when the token is unknown, expired, or the stored record
// fails authentication. Touch slides the inactivity window without
// rewriting the record, so it cannot race writers that merge
// sub-records into the stored session.
type Store interface {
	Get(ctx context.Context, token string) (*Session, error)
	Save(ctx context.Context, token string, s *Session) error
	Touch(ctx context.Context, token string) error
	Delete(ctx context.Context, token string) error
}
