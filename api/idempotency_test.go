package api

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestDeduper(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *redis.Client, *RedisDeduper) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})
	return m, client, NewRedisDeduper(client, ttl)
}

func TestRedisDeduperAddRemove(t *testing.T) {
	_, _, deduper := newTestDeduper(t, time.Minute)
	ctx := context.Background()
	scope := moveScope("1032", "P1")

	added, err := deduper.Add(ctx, scope, "k1")
	if err != nil || !added {
		t.Fatalf("first add = %v, %v", added, err)
	}
	added, err = deduper.Add(ctx, scope, "k1")
	if err != nil || added {
		t.Fatalf("second add = %v, %v; expected duplicate", added, err)
	}
	added, err = deduper.Add(ctx, moveScope("2000", "P1"), "k1")
	if err != nil || !added {
		t.Fatalf("other caller add = %v, %v", added, err)
	}

	if err := deduper.Remove(ctx, scope, "k1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	added, err = deduper.Add(ctx, scope, "k1")
	if err != nil || !added {
		t.Fatalf("add after remove = %v, %v", added, err)
	}
}

func TestRedisDeduperKeyNamespacing(t *testing.T) {
	m, client, deduper := newTestDeduper(t, time.Minute)
	ctx := context.Background()

	if _, err := deduper.Add(ctx, moveScope("1032", "P1"), "k1"); err != nil {
		t.Fatalf("add: %v", err)
	}

	expectedKey := dedupeKeyPrefix + ":move:1032:P1:k1"
	exists, err := client.Exists(ctx, expectedKey).Result()
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists != 1 {
		t.Fatalf("expected redis key %q to exist", expectedKey)
	}
	if ttl := m.TTL(expectedKey); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}
}
