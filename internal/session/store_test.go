package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mybk-gateway/internal/redis"
)

type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newFakeKV() *fakeKV {
	return &fakeKV{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Duration),
	}
}

func (f *fakeKV) Store(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = append([]byte(nil), value...)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeKV) Fetch(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.data[key]
	if !ok {
		return nil, redis.ErrNotFound
	}
	return value, nil
}

func (f *fakeKV) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	delete(f.ttls, key)
	return nil
}

func (f *fakeKV) Touch(_ context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		f.ttls[key] = ttl
	}
	return nil
}

func (f *fakeKV) ttl(key string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[key]
}

func newTestStore(t *testing.T, kv *fakeKV) *RedisStore {
	t.Helper()
	box, err := NewBox(testKey)
	require.NoError(t, err)
	return NewRedisStore(kv, box, 15*time.Minute)
}

func TestRedisStoreSaveGetRoundTrip(t *testing.T) {
	kv := newFakeKV()
	store := newTestStore(t, kv)
	ctx := context.Background()

	s := &Session{
		Username:    "2012345",
		Cookie:      "JSESSIONID=abc; SESSION=def",
		BearerToken: "token-xyz",
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.Save(ctx, "tok1", s))

	got, err := store.Get(ctx, "tok1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2012345", got.Username)
	assert.Equal(t, s.Cookie, got.Cookie)
	assert.Equal(t, s.BearerToken, got.BearerToken)
}

func TestRedisStoreRecordIsOpaqueAtRest(t *testing.T) {
	kv := newFakeKV()
	store := newTestStore(t, kv)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "tok1", &Session{Username: "2012345", Cookie: "SESSION=secret"}))

	raw := kv.data["session:tok1"]
	assert.NotContains(t, string(raw), "2012345")
	assert.NotContains(t, string(raw), "secret")
}

func TestRedisStoreGetUnknownToken(t *testing.T) {
	store := newTestStore(t, newFakeKV())

	got, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreGetTamperedRecord(t *testing.T) {
	kv := newFakeKV()
	store := newTestStore(t, kv)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "tok1", &Session{Username: "2012345"}))
	kv.data["session:tok1"][20] ^= 0x01

	got, err := store.Get(ctx, "tok1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreSaveSlidesTTL(t *testing.T) {
	kv := newFakeKV()
	store := newTestStore(t, kv)
	ctx := context.Background()

	s := &Session{Username: "2012345"}
	require.NoError(t, store.Save(ctx, "tok1", s))
	assert.Equal(t, 15*time.Minute, kv.ttl("session:tok1"))

	// Every rewrite carries the full window again.
	kv.mu.Lock()
	kv.ttls["session:tok1"] = time.Minute
	kv.mu.Unlock()
	require.NoError(t, store.Save(ctx, "tok1", s))
	assert.Equal(t, 15*time.Minute, kv.ttl("session:tok1"))
}

func TestRedisStoreTouchSlidesTTLWithoutRewrite(t *testing.T) {
	kv := newFakeKV()
	store := newTestStore(t, kv)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "tok1", &Session{Username: "2012345"}))
	blob := append([]byte(nil), kv.data["session:tok1"]...)

	kv.mu.Lock()
	kv.ttls["session:tok1"] = time.Minute
	kv.mu.Unlock()

	require.NoError(t, store.Touch(ctx, "tok1"))

	assert.Equal(t, 15*time.Minute, kv.ttl("session:tok1"))
	assert.Equal(t, blob, kv.data["session:tok1"])
}

func TestRedisStoreDeleteFiresOnDelete(t *testing.T) {
	kv := newFakeKV()
	store := newTestStore(t, kv)
	ctx := context.Background()

	var evicted []string
	store.OnDelete = func(token string) { evicted = append(evicted, token) }

	require.NoError(t, store.Save(ctx, "tok1", &Session{Username: "2012345"}))
	require.NoError(t, store.Delete(ctx, "tok1"))

	assert.Equal(t, []string{"tok1"}, evicted)
	got, err := store.Get(ctx, "tok1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreSaveValidation(t *testing.T) {
	store := newTestStore(t, newFakeKV())
	ctx := context.Background()

	assert.Error(t, store.Save(ctx, "", &Session{}))
	assert.Error(t, store.Save(ctx, "tok1", nil))
}

func TestRefreshStoreLifecycle(t *testing.T) {
	kv := newFakeKV()
	box, err := NewBox(testKey)
	require.NoError(t, err)
	store := NewRefreshStore(kv, box, 7*24*time.Hour)
	ctx := context.Background()

	token, err := store.Create(ctx, "2012345", "hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	raw := kv.data["refresh:"+token]
	assert.NotContains(t, string(raw), "hunter2")

	cred, err := store.Consume(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "2012345", cred.Username)
	assert.Equal(t, "hunter2", cred.Password)

	// Renew restores the full sliding window.
	kv.mu.Lock()
	kv.ttls["refresh:"+token] = time.Hour
	kv.mu.Unlock()
	require.NoError(t, store.Renew(ctx, token, cred))
	assert.Equal(t, 7*24*time.Hour, kv.ttl("refresh:"+token))

	require.NoError(t, store.Delete(ctx, token))
	_, err = store.Consume(ctx, token)
	assert.ErrorIs(t, err, ErrRefreshExpired)
}

func TestRefreshStoreConsumeUnknownToken(t *testing.T) {
	box, err := NewBox(testKey)
	require.NoError(t, err)
	store := NewRefreshStore(newFakeKV(), box, 7*24*time.Hour)

	_, err = store.Consume(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRefreshExpired)
}

func TestRefreshStoreConsumeTamperedRecord(t *testing.T) {
	kv := newFakeKV()
	box, err := NewBox(testKey)
	require.NoError(t, err)
	store := NewRefreshStore(kv, box, 7*24*time.Hour)
	ctx := context.Background()

	token, err := store.Create(ctx, "2012345", "hunter2")
	require.NoError(t, err)
	kv.data["refresh:"+token][5] ^= 0x01

	_, err = store.Consume(ctx, token)
	assert.ErrorIs(t, err, ErrRefreshExpired)
}

func TestGenerateTokenUniqueness(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "=")
}
