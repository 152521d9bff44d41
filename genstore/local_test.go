package genstore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLocalSnapshotManyIncludesAllAndZeroForMissing(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	keys := []string{"ref:warehouses", "heavy:stock-data", "heavy:documents"}
	// bump stock-data twice -> gen=2
	for i := 0; i < 2; i++ {
		if _, err := s.Bump(ctx, "heavy:stock-data"); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.SnapshotMany(ctx, keys)
	if err != nil {
		t.Fatal(err)
	}
	if got["ref:warehouses"] != 0 || got["heavy:stock-data"] != 2 || got["heavy:documents"] != 0 {
		t.Fatalf("got=%v want warehouses=0, stock-data=2, documents=0", got)
	}
}

func TestLocalSnapshotManyDoesNotMutateInput(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	in := []string{"x", "y"}
	cp := append([]string(nil), in...)
	if _, err := s.SnapshotMany(ctx, in); err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if in[i] != cp[i] {
			t.Fatalf("input mutated at %d: %q -> %q", i, cp[i], in[i])
		}
	}
}

func TestLocalCleanupPrunesOld(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if _, err := s.Bump(ctx, "old"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := s.Bump(ctx, "fresh"); err != nil {
		t.Fatal(err)
	}
	s.Cleanup(time.Hour)

	got, _ := s.SnapshotMany(ctx, []string{"old", "fresh"})
	if got["old"] != 0 {
		t.Fatalf("expected pruned -> 0, got %d", got["old"])
	}
	if got["fresh"] != 1 {
		t.Fatalf("fresh entry pruned: %d", got["fresh"])
	}
}

func TestLocalConcurrentBumpsAreCounted(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	const n = 64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _ = s.Bump(ctx, "subject:1")
		}()
	}
	wg.Wait()

	g, _ := s.Snapshot(ctx, "subject:1")
	if g != n {
		t.Fatalf("gen=%d want %d", g, n)
	}
}

func TestLocalCloseIsIdempotent(t *testing.T) {
	s := NewLocalGenStore(time.Millisecond, time.Hour)
	ctx := context.Background()
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
}
