package genstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisGenStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s, err := NewRedisGenStore(RedisConfig{Client: rdb, Namespace: "test", TTL: ttl, CloseClient: true})
	if err != nil {
		t.Fatalf("NewRedisGenStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, mr
}

func TestRedisBumpAndSnapshot(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, 0)

	if g, err := s.Snapshot(ctx, "ref:warehouses"); err != nil || g != 0 {
		t.Fatalf("missing key: g=%d err=%v", g, err)
	}
	for want := uint64(1); want <= 3; want++ {
		g, err := s.Bump(ctx, "ref:warehouses")
		if err != nil || g != want {
			t.Fatalf("Bump: g=%d err=%v want %d", g, err, want)
		}
	}
	if v, err := mr.Get("gen:test:ref:warehouses"); err != nil || v != "3" {
		t.Fatalf("raw key=%q err=%v", v, err)
	}

	got, err := s.SnapshotMany(ctx, []string{"ref:warehouses", "ref:products"})
	if err != nil {
		t.Fatal(err)
	}
	if got["ref:warehouses"] != 3 || got["ref:products"] != 0 {
		t.Fatalf("SnapshotMany=%v", got)
	}
}

func TestRedisBumpRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Minute)

	if _, err := s.Bump(ctx, "heavy:documents"); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("gen:test:heavy:documents"); ttl != time.Minute {
		t.Fatalf("ttl=%v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if g, _ := s.Snapshot(ctx, "heavy:documents"); g != 0 {
		t.Fatalf("expired gen should read 0, got %d", g)
	}
}

func TestRedisSnapshotParseError(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, 0)
	_ = mr.Set("gen:test:bad", "not-a-number")

	if _, err := s.Snapshot(ctx, "bad"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := s.SnapshotMany(ctx, []string{"bad"}); err == nil {
		t.Fatalf("expected parse error from SnapshotMany")
	}
}

func TestRedisOutageSurfacesError(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, 0)
	mr.Close()

	if _, err := s.Bump(ctx, "x"); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}

func TestNewRedisGenStoreValidates(t *testing.T) {
	if _, err := NewRedisGenStore(RedisConfig{Namespace: "x"}); err != ErrNilClient {
		t.Fatalf("err=%v", err)
	}
}
