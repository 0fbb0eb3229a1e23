package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func exercise(t *testing.T, l Limiter, c *clock) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "user-1", "login")
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if ok, _ := l.Allow(ctx, "user-1", "login"); ok {
		t.Fatal("fourth attempt in the window should be refused")
	}
	if ok, _ := l.Allow(ctx, "user-2", "login"); !ok {
		t.Fatal("other identities have their own counter")
	}
	if ok, _ := l.Allow(ctx, "user-1", "book"); !ok {
		t.Fatal("other actions have their own counter")
	}

	c.t = c.t.Add(time.Minute)
	if ok, _ := l.Allow(ctx, "user-1", "login"); !ok {
		t.Fatal("next window should start over")
	}
}

func TestMemory(t *testing.T) {
	c := &clock{t: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
	exercise(t, NewMemory(Options{Limit: 3, Window: time.Minute, Now: c.now}), c)
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := &clock{t: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
	l := NewRedis(client, Options{Limit: 3, Window: time.Minute, Now: c.now})
	exercise(t, l, c)

	key := windowKey("user-1", "login", c.t, time.Minute)
	if ttl := mr.TTL(key); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected window ttl on %s, got %s", key, ttl)
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	l := NewRedis(client, Options{Limit: 1})
	if _, err := l.Allow(context.Background(), "u", "login"); err == nil {
		t.Fatal("expected error when redis is down")
	}
}

func TestZeroLimitDisables(t *testing.T) {
	l := NewMemory(Options{})
	for i := 0; i < 100; i++ {
		if ok, _ := l.Allow(context.Background(), "u", "a"); !ok {
			t.Fatal("zero limit should allow everything")
		}
	}
}
