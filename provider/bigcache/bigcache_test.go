package bigcache

import (
	"context"
	"testing"
	"time"
)

func TestBigcacheSetGetDel(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, Config{LifeWindow: time.Minute})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close(ctx)

	if _, ok, err := p.Get(ctx, "entry:ns:a"); ok || err != nil {
		t.Fatalf("miss expected: ok=%v err=%v", ok, err)
	}
	if ok, err := p.Set(ctx, "entry:ns:a", []byte("v"), 1, time.Second); err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	got, ok, err := p.Get(ctx, "entry:ns:a")
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("Get: %q ok=%v err=%v", got, ok, err)
	}
	if st := p.Stats(); st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("stats=%+v", st)
	}
	if err := p.Del(ctx, "entry:ns:a"); err != nil {
		t.Fatal(err)
	}
	if err := p.Del(ctx, "entry:ns:a"); err != nil {
		t.Fatalf("deleting a missing key should be a no-op: %v", err)
	}
}

func TestBigcacheRequiresLifeWindow(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error")
	}
}
