package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"karpet/internal/domain"

	"github.com/redis/go-redis/v9"
)

type fakeRedis struct {
	data   map[string][]byte
	ttls   map[string]time.Duration
	setErr error
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = append([]byte(nil), v...)
	case string:
		f.data[key] = []byte(v)
	default:
		bytes, _ := json.Marshal(v)
		f.data[key] = bytes
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(string(v), nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

var sampleCoins = []domain.CoinListing{
	{ID: "bitcoin", Symbol: "BTC", Name: "Bitcoin", Rank: 1},
	{ID: "ethereum", Symbol: "ETH", Name: "Ethereum", Rank: 2},
}

func TestMemoryCoinListCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCoinListCache(time.Minute)

	if _, ok := c.GetCoinList(ctx, "coingecko"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.SetCoinList(ctx, "coingecko", sampleCoins)
	coins, ok := c.GetCoinList(ctx, "coingecko")
	if !ok || len(coins) != 2 || coins[1].ID != "ethereum" {
		t.Fatalf("unexpected cached coins: %v %v", coins, ok)
	}
	c.Invalidate(ctx, "coingecko")
	if _, ok := c.GetCoinList(ctx, "coingecko"); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestMemoryCoinListCacheExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCoinListCache(10 * time.Millisecond)
	c.SetCoinList(ctx, "coingecko", sampleCoins)
	time.Sleep(30 * time.Millisecond)
	if _, ok := c.GetCoinList(ctx, "coingecko"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestRedisCoinListCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	c := NewRedisCoinListCache(fake, time.Hour)

	if _, ok := c.GetCoinList(ctx, "coinmarketcap"); ok {
		t.Fatal("expected miss on empty redis")
	}
	c.SetCoinList(ctx, "coinmarketcap", sampleCoins)
	if fake.ttls[coinListKeyPrefix+"coinmarketcap"] != time.Hour {
		t.Fatalf("unexpected ttl: %v", fake.ttls)
	}
	coins, ok := c.GetCoinList(ctx, "coinmarketcap")
	if !ok || len(coins) != 2 || coins[0].Symbol != "BTC" {
		t.Fatalf("unexpected coins: %v %v", coins, ok)
	}
	c.Invalidate(ctx, "coinmarketcap")
	if _, ok := c.GetCoinList(ctx, "coinmarketcap"); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestRedisCoinListCacheErrorsAreMisses(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	fake.data[coinListKeyPrefix+"coingecko"] = []byte("{corrupt")
	c := NewRedisCoinListCache(fake, 0)

	if _, ok := c.GetCoinList(ctx, "coingecko"); ok {
		t.Fatal("expected corrupt payload to be a miss")
	}
	fake.getErr = errors.New("timeout")
	if _, ok := c.GetCoinList(ctx, "coingecko"); ok {
		t.Fatal("expected read error to be a miss")
	}
	fake.setErr = errors.New("readonly")
	c.SetCoinList(ctx, "coingecko", sampleCoins)
}

func TestTieredCoinListCachePromotes(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	shared := NewRedisCoinListCache(fake, time.Hour)
	shared.SetCoinList(ctx, "coingecko", sampleCoins)

	memory := NewMemoryCoinListCache(time.Hour)
	tiered := NewTieredCoinListCache(memory, shared)

	coins, ok := tiered.GetCoinList(ctx, "coingecko")
	if !ok || len(coins) != 2 {
		t.Fatalf("expected redis hit, got %v %v", coins, ok)
	}
	if _, ok := memory.GetCoinList(ctx, "coingecko"); !ok {
		t.Fatal("expected redis hit to be promoted into memory")
	}

	tiered.SetCoinList(ctx, "coinmarketcap", sampleCoins[:1])
	if _, ok := shared.GetCoinList(ctx, "coinmarketcap"); !ok {
		t.Fatal("expected write-through to redis")
	}

	tiered.Invalidate(ctx, "coingecko")
	if _, ok := tiered.GetCoinList(ctx, "coingecko"); ok {
		t.Fatal("expected miss in both tiers after invalidate")
	}
}
