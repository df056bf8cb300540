package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/kmassidik/movegh/internal/common/config"
	"github.com/kmassidik/movegh/internal/common/logger"
)

// Client wraps go-redis with the idempotency, lock and cache helpers the
// payment services share.
type Client struct {
	*redis.Client
	logger *logger.Logger

	mu     sync.Mutex
	tokens map[string]string
}

// releaseScript deletes the lock only if we still own it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func Connect(cfg config.RedisConfig, log *logger.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Infof("Connected to Redis at %s:%s", cfg.Host, cfg.Port)
	return NewFromClient(rdb, log), nil
}

// NewFromClient wraps an existing go-redis client
func NewFromClient(rdb *redis.Client, log *logger.Logger) *Client {
	return &Client{Client: rdb, logger: log, tokens: make(map[string]string)}
}

// Health pings redis
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

func idempotencyKey(key string) string {
	return "idem:" + key
}

// CheckIdempotency reports whether a response for key is cached
func (c *Client) CheckIdempotency(ctx context.Context, key string) (bool, error) {
	n, err := c.Exists(ctx, idempotencyKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CacheResponse stores the serialized response for an idempotency key
func (c *Client) CacheResponse(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	return c.Set(ctx, idempotencyKey(key), response, ttl).Err()
}

// GetCachedResponse returns the cached response, or nil on a miss
func (c *Client) GetCachedResponse(ctx context.Context, key string) ([]byte, error) {
	val, err := c.Get(ctx, idempotencyKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// AcquireLock takes a short-lived lock. Returns false if someone else holds it.
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := c.SetNX(ctx, "lock:"+key, token, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		c.mu.Lock()
		c.tokens[key] = token
		c.mu.Unlock()
	}
	return ok, nil
}

// ReleaseLock drops a lock taken by AcquireLock on this client
func (c *Client) ReleaseLock(ctx context.Context, key string) error {
	c.mu.Lock()
	token, ok := c.tokens[key]
	delete(c.tokens, key)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return releaseScript.Run(ctx, c.Client, []string{"lock:" + key}, token).Err()
}

func balanceKey(walletID string) string {
	return "wallet:balance:" + walletID
}

// CacheWalletBalance stores the serialized balances of a wallet
func (c *Client) CacheWalletBalance(ctx context.Context, walletID string, balances []byte, ttl time.Duration) error {
	return c.Set(ctx, balanceKey(walletID), balances, ttl).Err()
}

// GetCachedWalletBalance returns "" on a cache miss
func (c *Client) GetCachedWalletBalance(ctx context.Context, walletID string) (string, error) {
	val, err := c.Get(ctx, balanceKey(walletID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (c *Client) InvalidateWalletBalance(ctx context.Context, walletID string) {
	if err := c.Del(ctx, balanceKey(walletID)).Err(); err != nil {
		c.logger.Warnf("Failed to invalidate balance cache for %s: %v", walletID, err)
	}
}
