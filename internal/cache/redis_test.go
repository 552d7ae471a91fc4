package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
)

func stubRedis(t *testing.T, pingErr error) *string {
	t.Helper()
	origNewClient := newRedisClient
	origPing := pingRedis
	t.Cleanup(func() {
		newRedisClient = origNewClient
		pingRedis = origPing
		Client = nil
	})

	var capturedAddr string
	newRedisClient = func(opts *redis.Options) *redis.Client {
		capturedAddr = opts.Addr
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return pingErr
	}
	return &capturedAddr
}

func TestInitRedisWithCustomAddr(t *testing.T) {
	addr := stubRedis(t, nil)

	if err := InitRedis(context.Background(), "redis:9999"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *addr != "redis:9999" {
		t.Fatalf("expected custom addr, got %s", *addr)
	}
	if Client == nil {
		t.Fatal("expected shared client to be set")
	}
}

func TestInitRedisDefaults(t *testing.T) {
	addr := stubRedis(t, nil)

	if err := InitRedis(context.Background(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *addr != "localhost:6379" {
		t.Fatalf("expected default addr, got %s", *addr)
	}
}

func TestInitRedisParsesURL(t *testing.T) {
	addr := stubRedis(t, nil)

	if err := InitRedis(context.Background(), "redis://cache.internal:6380/2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *addr != "cache.internal:6380" {
		t.Fatalf("expected parsed addr, got %s", *addr)
	}
}

func TestInitRedisPingFailure(t *testing.T) {
	stubRedis(t, errors.New("connection refused"))

	if err := InitRedis(context.Background(), "redis:9999"); err == nil {
		t.Fatal("expected ping failure to be returned")
	}
	if Client != nil {
		t.Fatal("expected client to stay unset on failure")
	}
}
