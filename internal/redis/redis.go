package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrNotFound reports a missing key on Fetch.
var ErrNotFound = errors.New("redis: key not found")

type Client struct {
	*goredis.Client
}

func New(addr, password string) (*Client, error) {

	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := client.Ping(ctx).Err()

	if err != nil {
		return nil, err
	}

	return &Client{Client: client}, nil

}

// Store, Fetch and Remove adapt go-redis to the narrow key-value
// interfaces the session store and cache declare, so both can run
// against in-memory fakes in tests.

func (c *Client) Store(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Fetch(ctx context.Context, key string) ([]byte, error) {
	b, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (c *Client) Remove(ctx context.Context, key string) error {
	return c.Del(ctx, key).Err()
}

// Touch resets a key's TTL without rewriting its value. A missing key
// is not an error; the caller's next read reports it absent.
func (c *Client) Touch(ctx context.Context, key string, ttl time.Duration) error {
	return c.Expire(ctx, key, ttl).Err()
}
