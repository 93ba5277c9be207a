package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"mybk-gateway/internal/logger"
	"mybk-gateway/internal/redis"
)

// Cache status markers attached to returned payloads under "_cache".
const (
	StatusFresh = "HIT-FRESH"
	StatusStale = "HIT-STALE"
	StatusMiss  = "MISS"
)

// Backend is the slice of the shared store the cache needs.
// *redis.Client satisfies it.
type Backend interface {
	Store(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Fetch(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
}

// FetchFunc produces a fresh payload from upstream.
type FetchFunc func(ctx context.Context) (json.RawMessage, error)

// envelope is the stored record: payload plus write timestamp, which
// decides freshness on read.
type envelope struct {
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Cache is a read-through cache with a freshness window, background
// revalidation and a daily command budget. When the store is
// unreachable or the circuit is open it degrades to calling fetch
// directly; that is never surfaced as an error.
type Cache struct {
	backend Backend
	budget  *Budget
	now     func() time.Time

	// revalidateTimeout bounds detached refresh calls.
	revalidateTimeout time.Duration
}

func New(backend Backend, budget *Budget) *Cache {
	return &Cache{
		backend:           backend,
		budget:            budget,
		now:               time.Now,
		revalidateTimeout: 30 * time.Second,
	}
}

// SetClock replaces the wall clock, for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// ReadThrough implements the SWR policy for one key. Entries younger
// than freshWindow are returned with no upstream call; older entries
// are returned immediately while a detached task refreshes them;
// missing entries trigger a blocking fetch. Error-shaped payloads are
// never written and evict whatever is stored under the key.
func (c *Cache) ReadThrough(
	ctx context.Context,
	key string,
	ttl time.Duration,
	freshWindow time.Duration,
	fetch FetchFunc,
) (json.RawMessage, error) {

	if c.backend == nil || !c.budget.Allow() {
		return fetch(ctx)
	}

	c.budget.Record(1)
	raw, err := c.backend.Fetch(ctx, key)

	if err != nil && !errors.Is(err, redis.ErrNotFound) {
		logger.Error("cache read failed, falling back to direct fetch", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		return fetch(ctx)
	}

	if err == nil {
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.Data != nil {
			age := time.Duration(c.now().UnixMilli()-env.Timestamp) * time.Millisecond

			if age < freshWindow {
				logger.Debug("cache fresh hit", map[string]any{"key": key, "age": age.String()})
				return withMarker(env.Data, StatusFresh), nil
			}

			logger.Debug("cache stale hit, revalidating", map[string]any{"key": key, "age": age.String()})
			go c.revalidate(key, ttl, fetch)
			return withMarker(env.Data, StatusStale), nil
		}
		// Stored format changed underneath us. Treat as miss.
	}

	return c.fetchAndStore(ctx, key, ttl, fetch)
}

// Invalidate drops the entry for a key.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if c.backend == nil || !c.budget.Allow() {
		return nil
	}
	c.budget.Record(1)
	return c.backend.Remove(ctx, key)
}

func (c *Cache) fetchAndStore(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (json.RawMessage, error) {
	data, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	if ErrorShaped(data) {
		// Never cache upstream failures; evict any previous entry so a
		// transient error cannot shadow a good record either way.
		c.budget.Record(1)
		if rmErr := c.backend.Remove(ctx, key); rmErr != nil {
			logger.Error("cache evict failed", map[string]any{"key": key, "error": rmErr.Error()})
		}
		return withMarker(data, StatusMiss), nil
	}

	env, marshalErr := json.Marshal(envelope{
		Timestamp: c.now().UnixMilli(),
		Data:      data,
	})
	if marshalErr == nil {
		c.budget.Record(1)
		if storeErr := c.backend.Store(ctx, key, env, ttl); storeErr != nil {
			logger.Error("cache write failed", map[string]any{"key": key, "error": storeErr.Error()})
		}
	}

	return withMarker(data, StatusMiss), nil
}

// revalidate runs detached from the original caller. A failed refresh
// deletes the stale entry so the next read is a blocking fetch instead
// of serving indefinitely-stale data.
func (c *Cache) revalidate(key string, ttl time.Duration, fetch FetchFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), c.revalidateTimeout)
	defer cancel()

	data, err := fetch(ctx)
	if err != nil || ErrorShaped(data) {
		logger.Warn("background revalidation failed, evicting stale entry", map[string]any{
			"key": key,
		})
		c.budget.Record(1)
		if rmErr := c.backend.Remove(ctx, key); rmErr != nil {
			logger.Error("cache evict failed", map[string]any{"key": key, "error": rmErr.Error()})
		}
		return
	}

	env, marshalErr := json.Marshal(envelope{
		Timestamp: c.now().UnixMilli(),
		Data:      data,
	})
	if marshalErr != nil {
		return
	}

	c.budget.Record(1)
	if storeErr := c.backend.Store(ctx, key, env, ttl); storeErr != nil {
		logger.Error("cache write failed", map[string]any{"key": key, "error": storeErr.Error()})
	}
}

// okCodes are upstream code values that do not indicate failure.
var okCodes = map[string]struct{}{
	"":        {},
	"200":     {},
	"ok":      {},
	"OK":      {},
	"SUCCESS": {},
}

// ErrorShaped reports whether a payload looks like an upstream error
// record: an "error" field, an error status, or a non-success code.
func ErrorShaped(data json.RawMessage) bool {
	var probe struct {
		Error  any             `json:"error"`
		Status string          `json:"status"`
		Code   json.RawMessage `json:"code"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		// Not a JSON object; nothing recognizable as an error.
		return false
	}

	if probe.Error != nil {
		return true
	}
	if probe.Status == "error" || probe.Status == "fail" {
		return true
	}
	if len(probe.Code) > 0 {
		var asString string
		if json.Unmarshal(probe.Code, &asString) != nil {
			var asNumber float64
			if json.Unmarshal(probe.Code, &asNumber) != nil {
				return false
			}
			asString = ""
			if asNumber != 200 {
				return true
			}
			return false
		}
		if _, ok := okCodes[asString]; !ok {
			return true
		}
	}
	return false
}

// withMarker annotates an object payload with its cache status.
// Non-object payloads pass through untouched.
func withMarker(data json.RawMessage, status string) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return data
	}
	obj["_cache"] = json.RawMessage(`"` + status + `"`)
	out, err := json.Marshal(obj)
	if err != nil {
		return data
	}
	return out
}
