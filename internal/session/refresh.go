package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mybk-gateway/internal/redis"
)

// ErrRefreshExpired reports an unknown, expired or unreadable refresh
// token.
var ErrRefreshExpired = errors.New("session: refresh credential expired")

// RefreshStore persists sealed refresh credentials under their own
// opaque tokens. The TTL is a sliding window: every successful
// consumption rewrites the record with the full window again, so an
// active "remember me" user never re-enters a password.
type RefreshStore struct {
	kv     KV
	box    *Box
	ttl    time.Duration
	prefix string
}

func NewRefreshStore(kv KV, box *Box, ttl time.Duration) *RefreshStore {
	return &RefreshStore{
		kv:     kv,
		box:    box,
		ttl:    ttl,
		prefix: "refresh:",
	}
}

func (r *RefreshStore) key(token string) string {
	return r.prefix + token
}

// Create seals the credential pair under a fresh token.
func (r *RefreshStore) Create(ctx context.Context, username, password string) (string, error) {
	token, err := GenerateToken()
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(RefreshCredential{
		Username:  username,
		Password:  password,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("session: failed to marshal refresh credential: %w", err)
	}

	sealed, err := r.box.Seal(data)
	if err != nil {
		return "", err
	}

	if err := r.kv.Store(ctx, r.key(token), sealed, r.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Consume reads the credential for one re-authentication attempt. The
// caller must follow up with Renew on success or Delete on failure;
// the record is never handed out in a reusable form.
func (r *RefreshStore) Consume(ctx context.Context, token string) (*RefreshCredential, error) {
	sealed, err := r.kv.Fetch(ctx, r.key(token))
	if errors.Is(err, redis.ErrNotFound) {
		return nil, ErrRefreshExpired
	}
	if err != nil {
		return nil, err
	}

	plaintext, ok := r.box.Open(sealed)
	if !ok {
		return nil, ErrRefreshExpired
	}

	var cred RefreshCredential
	if err := json.Unmarshal(plaintext, &cred); err != nil {
		return nil, ErrRefreshExpired
	}
	return &cred, nil
}

// Renew rewrites the record with a full TTL after a successful
// re-authentication.
func (r *RefreshStore) Renew(ctx context.Context, token string, cred *RefreshCredential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("session: failed to marshal refresh credential: %w", err)
	}

	sealed, err := r.box.Seal(data)
	if err != nil {
		return err
	}
	return r.kv.Store(ctx, r.key(token), sealed, r.ttl)
}

func (r *RefreshStore) Delete(ctx context.Context, token string) error {
	return r.kv.Remove(ctx, r.key(token))
}
