package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"karpet/internal/domain"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultCoinListTTL = 6 * time.Hour
	coinListKeyPrefix  = "karpet:coinlist:"
)

// MemoryCoinListCache keeps coin directories in process memory.
type MemoryCoinListCache struct {
	store *gocache.Cache
}

func NewMemoryCoinListCache(ttl time.Duration) *MemoryCoinListCache {
	if ttl <= 0 {
		ttl = DefaultCoinListTTL
	}
	return &MemoryCoinListCache{store: gocache.New(ttl, 2*ttl)}
}

func (c *MemoryCoinListCache) GetCoinList(_ context.Context, source string) ([]domain.CoinListing, bool) {
	v, ok := c.store.Get(source)
	if !ok {
		return nil, false
	}
	coins, ok := v.([]domain.CoinListing)
	return coins, ok
}

func (c *MemoryCoinListCache) SetCoinList(_ context.Context, source string, coins []domain.CoinListing) {
	c.store.SetDefault(source, coins)
}

// Invalidate drops the cached directory of source.
func (c *MemoryCoinListCache) Invalidate(_ context.Context, source string) {
	c.store.Delete(source)
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCoinListCache shares coin directories between processes. Read and
// write failures degrade to cache misses.
type RedisCoinListCache struct {
	redis RedisClient
	ttl   time.Duration
}

func NewRedisCoinListCache(client RedisClient, ttl time.Duration) *RedisCoinListCache {
	if ttl <= 0 {
		ttl = DefaultCoinListTTL
	}
	return &RedisCoinListCache{redis: client, ttl: ttl}
}

func (c *RedisCoinListCache) GetCoinList(ctx context.Context, source string) ([]domain.CoinListing, bool) {
	val, err := c.redis.Get(ctx, coinListKeyPrefix+source).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("redis coin list read error for %s: %v", source, err)
		}
		return nil, false
	}
	var coins []domain.CoinListing
	if err := json.Unmarshal([]byte(val), &coins); err != nil {
		log.Printf("redis coin list decode error for %s: %v", source, err)
		return nil, false
	}
	return coins, true
}

func (c *RedisCoinListCache) SetCoinList(ctx context.Context, source string, coins []domain.CoinListing) {
	data, err := json.Marshal(coins)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, coinListKeyPrefix+source, data, c.ttl).Err(); err != nil {
		log.Printf("redis coin list write error for %s: %v", source, err)
	}
}

func (c *RedisCoinListCache) Invalidate(ctx context.Context, source string) {
	if err := c.redis.Del(ctx, coinListKeyPrefix+source).Err(); err != nil {
		log.Printf("redis coin list delete error for %s: %v", source, err)
	}
}

// TieredCoinListCache answers from memory first and falls back to Redis,
// promoting Redis hits into memory.
type TieredCoinListCache struct {
	memory *MemoryCoinListCache
	shared *RedisCoinListCache
}

func NewTieredCoinListCache(memory *MemoryCoinListCache, shared *RedisCoinListCache) *TieredCoinListCache {
	return &TieredCoinListCache{memory: memory, shared: shared}
}

func (c *TieredCoinListCache) GetCoinList(ctx context.Context, source string) ([]domain.CoinListing, bool) {
	if coins, ok := c.memory.GetCoinList(ctx, source); ok {
		return coins, true
	}
	if c.shared == nil {
		return nil, false
	}
	coins, ok := c.shared.GetCoinList(ctx, source)
	if ok {
		c.memory.SetCoinList(ctx, source, coins)
	}
	return coins, ok
}

func (c *TieredCoinListCache) SetCoinList(ctx context.Context, source string, coins []domain.CoinListing) {
	c.memory.SetCoinList(ctx, source, coins)
	if c.shared != nil {
		c.shared.SetCoinList(ctx, source, coins)
	}
}

func (c *TieredCoinListCache) Invalidate(ctx context.Context, source string) {
	c.memory.Invalidate(ctx, source)
	if c.shared != nil {
		c.shared.Invalidate(ctx, source)
	}
}
