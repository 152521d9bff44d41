package ristretto

import (
	"context"
	"testing"
	"time"
)

func TestRistrettoSetGetDel(t *testing.T) {
	ctx := context.Background()
	p, err := New(SizedConfig(8))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close(ctx)

	ok, err := p.Set(ctx, "entry:ns:a", []byte("v"), 1, time.Minute)
	if err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	p.Wait()

	got, ok, err := p.Get(ctx, "entry:ns:a")
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("Get: %q ok=%v err=%v", got, ok, err)
	}
	if _, ok, _ := p.Get(ctx, "entry:ns:b"); ok {
		t.Fatalf("unexpected hit")
	}
	if st := p.Stats(); st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("stats=%+v", st)
	}

	_ = p.Del(ctx, "entry:ns:a")
	if _, ok, _ := p.Get(ctx, "entry:ns:a"); ok {
		t.Fatalf("expected miss after Del")
	}
}

func TestSizedConfig(t *testing.T) {
	cfg := SizedConfig(64)
	if cfg.MaxCost != 64<<20 || cfg.NumCounters < 10*(64<<20)/avgEntryBytes || !cfg.Metrics {
		t.Fatalf("cfg=%+v", cfg)
	}
	if small := SizedConfig(0); small.NumCounters != 1e4 {
		t.Fatalf("floor not applied: %+v", small)
	}
}

func TestRistrettoInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for zero config")
	}
}
