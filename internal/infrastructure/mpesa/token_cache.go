package mpesa

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenCache アクセストークンのキャッシュ
type TokenCache interface {
	// Get キャッシュ済みトークンを返す。存在しない場合はfalse
	Get(ctx context.Context, key string) (string, bool, error)
	// Set トークンをttlの間キャッシュする
	Set(ctx context.Context, key, token string, ttl time.Duration) error
}

// CacheKey 認証情報の組からキャッシュキーを生成（秘密情報をそのままキーにしない）
func CacheKey(consumerKey, consumerSecret string) string {
	sum := sha256.Sum256([]byte(consumerKey + ":" + consumerSecret))
	return hex.EncodeToString(sum[:])
}

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryTokenCache プロセス内のトークンキャッシュ
type MemoryTokenCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryTokenCache 新しいMemoryTokenCacheを作成
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get キャッシュ済みトークンを返す
func (c *MemoryTokenCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		// 別のgoroutineが更新済みでなければ削除
		if current, ok := c.entries[key]; ok && current == entry {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return "", false, nil
	}
	return entry.token, true, nil
}

// Set トークンをキャッシュする
func (c *MemoryTokenCache) Set(_ context.Context, key, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{
		token:     token,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

const redisKeyPrefix = "mpesa:access_token:"

// RedisTokenCache Redisを使った複数インスタンス共有のトークンキャッシュ
type RedisTokenCache struct {
	client *redis.Client
}

// NewRedisTokenCache 新しいRedisTokenCacheを作成
func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{client: client}
}

// Get キャッシュ済みトークンを返す
func (c *RedisTokenCache) Get(ctx context.Context, key string) (string, bool, error) {
	token, err := c.client.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get access token from redis: %w", err)
	}
	return token, true, nil
}

// Set トークンをキャッシュする
func (c *RedisTokenCache) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, token, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set access token to redis: %w", err)
	}
	return nil
}
