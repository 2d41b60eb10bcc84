package api

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newDeduperRedis(t *testing.T) *redis.Client {
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
	return client
}

func TestRedisDeduperAddAndRemove(t *testing.T) {
	deduper := NewRedisDeduper(newDeduperRedis(t), time.Minute)
	ctx := context.Background()

	added, err := deduper.Add(ctx, "user", "k1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !added {
		t.Fatal("expected key to be newly added")
	}

	again, err := deduper.Add(ctx, "user", "k1")
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if again {
		t.Fatal("expected duplicate on second add")
	}

	if err := deduper.Remove(ctx, "user", "k1"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	readded, err := deduper.Add(ctx, "user", "k1")
	if err != nil {
		t.Fatalf("add after remove: %v", err)
	}
	if !readded {
		t.Fatal("expected key to be addable after removal")
	}
}

func TestRedisDeduperKeyNamespacing(t *testing.T) {
	client := newDeduperRedis(t)
	deduper := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()
	const (
		userID = "user"
		key    = "k1"
	)

	added, err := deduper.Add(ctx, userID, key)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !added {
		t.Fatal("expected key to be added")
	}

	expectedKey := userID + ":" + dedupeKeyPrefix + ":" + key
	exists, err := client.Exists(ctx, expectedKey).Result()
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists != 1 {
		t.Fatalf("expected redis key %q to exist", expectedKey)
	}

	otherAdded, err := deduper.Add(ctx, "other", key)
	if err != nil {
		t.Fatalf("add for other user: %v", err)
	}
	if !otherAdded {
		t.Fatal("expected key to be independent per user")
	}
}
