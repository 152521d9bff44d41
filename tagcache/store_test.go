package tagcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	c "github.com/unkn0wn-root/stockcore/codec"
	gen "github.com/unkn0wn-root/stockcore/genstore"
	"github.com/unkn0wn-root/stockcore/internal/keys"
	"github.com/unkn0wn-root/stockcore/internal/wire"
	pr "github.com/unkn0wn-root/stockcore/provider"
)

type memEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type memProvider struct {
	mu     sync.Mutex
	m      map[string]memEntry
	getErr error
	now    func() time.Time
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider(now func() time.Time) *memProvider {
	return &memProvider{m: make(map[string]memEntry), now: now}
}

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, false, p.getErr
	}
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && p.now().After(e.exp) {
		delete(p.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = p.now().Add(ttl)
	}
	p.m[key] = memEntry{v: value, exp: exp}
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *memProvider) Close(_ context.Context) error { return nil }

func (p *memProvider) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

type recHooks struct {
	NopHooks
	mu         sync.Mutex
	selfHeals  []string
	staleSkips int
	bumpErrs   int
}

func (h *recHooks) SelfHeal(_ string, reason string) {
	h.mu.Lock()
	h.selfHeals = append(h.selfHeals, reason)
	h.mu.Unlock()
}

func (h *recHooks) StaleWriteSkipped(string) {
	h.mu.Lock()
	h.staleSkips++
	h.mu.Unlock()
}

func (h *recHooks) GenBumpError(string, error) {
	h.mu.Lock()
	h.bumpErrs++
	h.mu.Unlock()
}

type warehouse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type fixture struct {
	store *Store
	mp    *memProvider
	clock *fakeClock
	hooks *recHooks
}

func newFixture(t *testing.T, optsOpt func(*Options)) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	mp := newMemProvider(clock.Now)
	hooks := &recHooks{}
	opts := Options{
		Namespace: "inv",
		Provider:  mp,
		Hooks:     hooks,
		Now:       clock.Now,
		KnownTags: Registry(),
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return &fixture{store: s, mp: mp, clock: clock, hooks: hooks}
}

func countingFetch(calls *atomic.Int64) func(context.Context) ([]warehouse, error) {
	return func(context.Context) ([]warehouse, error) {
		n := calls.Add(1)
		return []warehouse{{ID: n, Name: "Main"}}, nil
	}
}

var warehousesSpec = Spec{
	KeyParts: []string{"warehouses", "list"},
	TTL:      5 * time.Minute,
	Tags:     []string{TagWarehouses},
}

// ==============================
// Memoization and invalidation
// ==============================

func TestCachedHitWithinTTLAndRecomputeAfterInvalidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	var calls atomic.Int64
	list := Cached(f.store, c.JSON[[]warehouse]{}, countingFetch(&calls), warehousesSpec)

	first, err := list(ctx)
	if err != nil || calls.Load() != 1 {
		t.Fatalf("first call: err=%v calls=%d", err, calls.Load())
	}

	f.clock.Advance(4 * time.Minute)
	second, err := list(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 || second[0].ID != first[0].ID {
		t.Fatalf("expected memoized value, calls=%d got=%v", calls.Load(), second)
	}

	if err := f.store.Invalidate(ctx, TagWarehouses); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	third, err := list(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 || third[0].ID != 2 {
		t.Fatalf("expected recompute after invalidate, calls=%d got=%v", calls.Load(), third)
	}
	if len(f.hooks.selfHeals) != 1 || f.hooks.selfHeals[0] != "gen_mismatch" {
		t.Fatalf("selfHeals=%v", f.hooks.selfHeals)
	}
}

func TestCachedExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	// provider keeps entries forever so expiry must come from the entry header
	f := newFixture(t, func(o *Options) {
		o.Provider = &noTTLProvider{memProvider: newMemProvider(time.Now)}
	})
	var calls atomic.Int64
	list := Cached(f.store, c.JSON[[]warehouse]{}, countingFetch(&calls), warehousesSpec)

	_, _ = list(ctx)
	f.clock.Advance(5 * time.Minute)
	_, _ = list(ctx)
	if calls.Load() != 2 {
		t.Fatalf("expected recompute at TTL boundary, calls=%d", calls.Load())
	}
	if len(f.hooks.selfHeals) != 1 || f.hooks.selfHeals[0] != "expired" {
		t.Fatalf("selfHeals=%v", f.hooks.selfHeals)
	}
}

type noTTLProvider struct{ *memProvider }

func (p *noTTLProvider) Set(ctx context.Context, key string, value []byte, cost int64, _ time.Duration) (bool, error) {
	return p.memProvider.Set(ctx, key, value, cost, 0)
}

func TestUnrelatedTagDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	var calls atomic.Int64
	list := Cached(f.store, c.JSON[[]warehouse]{}, countingFetch(&calls), warehousesSpec)

	_, _ = list(ctx)
	if err := f.store.Invalidate(ctx, TagDocuments, TagStockData); err != nil {
		t.Fatal(err)
	}
	_, _ = list(ctx)
	if calls.Load() != 1 {
		t.Fatalf("unrelated invalidation evicted entry, calls=%d", calls.Load())
	}
}

func TestAnyTagInvalidatesMultiTagEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	var calls atomic.Int64
	spec := Spec{KeyParts: []string{"stock", "summary"}, Tags: []string{TagStockData, TagProducts}}
	summary := Cached(f.store, c.JSON[[]warehouse]{}, countingFetch(&calls), spec)

	for _, tag := range []string{TagProducts, TagStockData} {
		before := calls.Load()
		_, _ = summary(ctx) // prime
		_, _ = summary(ctx) // hit
		if calls.Load() != before+1 {
			t.Fatalf("expected exactly one compute before invalidating %s", tag)
		}
		if err := f.store.Invalidate(ctx, tag); err != nil {
			t.Fatal(err)
		}
	}
	_, _ = summary(ctx)
	if calls.Load() != 3 {
		t.Fatalf("calls=%d want 3", calls.Load())
	}
}

func TestTagOrderDoesNotChangeEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	var calls atomic.Int64
	fetch := countingFetch(&calls)
	a := Cached(f.store, c.JSON[[]warehouse]{}, fetch, Spec{KeyParts: []string{"k"}, Tags: []string{TagProducts, TagStockData}})
	b := Cached(f.store, c.JSON[[]warehouse]{}, fetch, Spec{KeyParts: []string{"k"}, Tags: []string{TagStockData, TagProducts, TagProducts}})

	_, _ = a(ctx)
	_, _ = b(ctx)
	if calls.Load() != 1 {
		t.Fatalf("same key and tag set should share the entry, calls=%d", calls.Load())
	}
}

func TestKeyPartsSeparateEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	var calls atomic.Int64
	fetch := countingFetch(&calls)

	for _, id := range []string{"1", "2", "1"} {
		spec := Spec{KeyParts: []string{"stock", "warehouse", id}, Tags: []string{TagStockData}}
		if _, err := Load(ctx, f.store, c.JSON[[]warehouse]{}, spec, fetch); err != nil {
			t.Fatal(err)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("calls=%d want 2", calls.Load())
	}
}

// ==============================
// Failure handling
// ==============================

func TestComputeErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	boom := errors.New("remote down")
	var calls atomic.Int64
	fetch := func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", boom
		}
		return "ok", nil
	}
	read := Cached(f.store, c.String{}, fetch, Spec{KeyParts: []string{"x"}, Tags: []string{TagTaxes}})

	if _, err := read(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected compute error, got %v", err)
	}
	if f.mp.len() != 0 {
		t.Fatalf("error result was stored")
	}
	if v, err := read(ctx); err != nil || v != "ok" {
		t.Fatalf("retry: v=%q err=%v", v, err)
	}
}

func TestStaleWriteSkippedWhenInvalidatedDuringCompute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	var calls atomic.Int64
	fetch := func(ctx context.Context) (string, error) {
		n := calls.Add(1)
		if n == 1 {
			// a mutation lands while this read is still computing
			if err := f.store.Invalidate(ctx, TagDocuments); err != nil {
				return "", err
			}
			return "pre-mutation", nil
		}
		return "post-mutation", nil
	}
	read := Cached(f.store, c.String{}, fetch, Spec{KeyParts: []string{"docs"}, Tags: []string{TagDocuments}})

	v, err := read(ctx)
	if err != nil || v != "pre-mutation" {
		t.Fatalf("first read: v=%q err=%v", v, err)
	}
	if f.hooks.staleSkips != 1 || f.mp.len() != 0 {
		t.Fatalf("stale value should not be stored: skips=%d stored=%d", f.hooks.staleSkips, f.mp.len())
	}
	if v, _ := read(ctx); v != "post-mutation" {
		t.Fatalf("second read: %q", v)
	}
}

func TestCorruptEntrySelfHeals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	spec := Spec{KeyParts: []string{"x"}, Tags: []string{TagTaxes}}
	k := keys.Entry("inv", spec.KeyParts)
	_, _ = f.mp.Set(ctx, k, []byte("garbage"), 1, 0)

	v, err := Load(ctx, f.store, c.String{}, spec, func(context.Context) (string, error) { return "fresh", nil })
	if err != nil || v != "fresh" {
		t.Fatalf("v=%q err=%v", v, err)
	}
	if len(f.hooks.selfHeals) != 1 || f.hooks.selfHeals[0] != "corrupt" {
		t.Fatalf("selfHeals=%v", f.hooks.selfHeals)
	}
	raw, ok, _ := f.mp.Get(ctx, k)
	if !ok {
		t.Fatalf("fresh value not stored")
	}
	if _, err := wire.Decode(raw); err != nil {
		t.Fatalf("stored entry invalid: %v", err)
	}
}

func TestValueDecodeFailureSelfHeals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	spec := Spec{KeyParts: []string{"x"}}
	// entry written as a string, read back as a struct
	_, _ = Load(ctx, f.store, c.String{}, spec, func(context.Context) (string, error) { return "not json", nil })

	v, err := Load(ctx, f.store, c.JSON[warehouse]{}, spec, func(context.Context) (warehouse, error) {
		return warehouse{ID: 1}, nil
	})
	if err != nil || v.ID != 1 {
		t.Fatalf("v=%v err=%v", v, err)
	}
	if len(f.hooks.selfHeals) != 1 || f.hooks.selfHeals[0] != "value_decode" {
		t.Fatalf("selfHeals=%v", f.hooks.selfHeals)
	}
}

func TestProviderErrorFallsBackToCompute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.mp.getErr = errors.New("connection reset")
	var calls atomic.Int64
	list := Cached(f.store, c.JSON[[]warehouse]{}, countingFetch(&calls), warehousesSpec)

	for i := 0; i < 2; i++ {
		if _, err := list(ctx); err != nil {
			t.Fatalf("cache outage must not fail the read: %v", err)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("calls=%d", calls.Load())
	}
}

type failingGens struct{ err error }

func (g failingGens) Snapshot(context.Context, string) (uint64, error) { return 0, g.err }
func (g failingGens) SnapshotMany(context.Context, []string) (map[string]uint64, error) {
	return nil, g.err
}
func (g failingGens) Bump(context.Context, string) (uint64, error) { return 0, g.err }
func (g failingGens) Cleanup(time.Duration)                        {}
func (g failingGens) Close(context.Context) error                  { return nil }

func TestGenStoreOutage(t *testing.T) {
	ctx := context.Background()
	down := errors.New("redis: connection refused")
	f := newFixture(t, func(o *Options) { o.GenStore = failingGens{err: down} })
	var calls atomic.Int64
	list := Cached(f.store, c.JSON[[]warehouse]{}, countingFetch(&calls), warehousesSpec)

	for i := 0; i < 2; i++ {
		if _, err := list(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if calls.Load() != 2 || f.mp.len() != 0 {
		t.Fatalf("nothing may be stored without generations: calls=%d stored=%d", calls.Load(), f.mp.len())
	}

	err := f.store.Invalidate(ctx, TagWarehouses, TagProducts)
	var ie *InvalidateError
	if !errors.As(err, &ie) {
		t.Fatalf("expected *InvalidateError, got %T %v", err, err)
	}
	if len(ie.Tags) != 2 || !errors.Is(err, down) {
		t.Fatalf("InvalidateError=%+v", ie)
	}
	if f.hooks.bumpErrs != 2 {
		t.Fatalf("bumpErrs=%d", f.hooks.bumpErrs)
	}
}

// ==============================
// Options
// ==============================

func TestUnknownTagRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	if err := f.store.Invalidate(ctx, "ref:warehouse"); !errors.Is(err, ErrUnknownTag) {
		t.Fatalf("Invalidate typo: %v", err)
	}
	_, err := Load(ctx, f.store, c.String{}, Spec{Tags: []string{"heavy:stock"}}, func(context.Context) (string, error) {
		t.Fatalf("compute must not run for an invalid spec")
		return "", nil
	})
	if !errors.Is(err, ErrUnknownTag) {
		t.Fatalf("Load typo: %v", err)
	}
	if err := f.store.Invalidate(ctx, ""); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("empty tag: %v", err)
	}
}

func TestDisabledAlwaysComputes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(o *Options) { o.Disabled = true })
	var calls atomic.Int64
	list := Cached(f.store, c.JSON[[]warehouse]{}, countingFetch(&calls), warehousesSpec)
	_, _ = list(ctx)
	_, _ = list(ctx)
	if calls.Load() != 2 || f.mp.len() != 0 {
		t.Fatalf("calls=%d stored=%d", calls.Load(), f.mp.len())
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Options{Namespace: "x"}); err == nil {
		t.Fatalf("expected error without provider")
	}
	if _, err := New(Options{Provider: newMemProvider(time.Now)}); err == nil {
		t.Fatalf("expected error without namespace")
	}
}

type sharedMem struct{ *memProvider }

func (sharedMem) Shared() bool { return true }

type sharedWarn struct {
	NopHooks
	warned bool
}

func (h *sharedWarn) LocalGenWithSharedProvider() { h.warned = true }

func TestSharedProviderWithLocalGensWarns(t *testing.T) {
	h := &sharedWarn{}
	s, err := New(Options{Namespace: "x", Provider: sharedMem{newMemProvider(time.Now)}, Hooks: h})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(context.Background())
	if !h.warned {
		t.Fatalf("expected LocalGenWithSharedProvider hook")
	}

	h2 := &sharedWarn{}
	s2, err := New(Options{
		Namespace: "x",
		Provider:  sharedMem{newMemProvider(time.Now)},
		GenStore:  failingGens{},
		Hooks:     h2,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close(context.Background())
	if h2.warned {
		t.Fatalf("non-local genstore should not warn")
	}
}

// ==============================
// Concurrency
// ==============================

func TestConcurrentReadersAndInvalidations(t *testing.T) {
	ctx := context.Background()
	gs := gen.NewLocalGenStore(0, 0)
	f := newFixture(t, func(o *Options) { o.GenStore = gs })
	t.Cleanup(func() { _ = gs.Close(ctx) })

	var version atomic.Int64
	fetch := func(context.Context) (int64, error) { return version.Load(), nil }
	read := Cached(f.store, c.JSON[int64]{}, fetch, Spec{KeyParts: []string{"v"}, Tags: []string{TagStockData}})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if _, err := read(ctx); err != nil {
					t.Errorf("read: %v", err)
					return
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		version.Add(1)
		if err := f.store.Invalidate(ctx, TagStockData); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()

	// mutation then invalidation: the next read observes the final version
	v, err := read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v != version.Load() {
		t.Fatalf("read %d after final invalidation, want %d", v, version.Load())
	}
}

func TestStaleWriteSkippedWhenLaterTagMoves(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	var calls atomic.Int64
	fetch := func(ctx context.Context) ([]warehouse, error) {
		if calls.Add(1) == 1 {
			// only the second tag in sorted order moves during compute
			if err := f.store.Invalidate(ctx, TagStockData); err != nil {
				return nil, err
			}
		}
		return []warehouse{{ID: calls.Load()}}, nil
	}
	read := Cached(f.store, c.JSON[[]warehouse]{}, fetch, Spec{KeyParts: []string{"mixed"}, Tags: []string{TagStockData, TagWarehouses}})

	if _, err := read(ctx); err != nil {
		t.Fatal(err)
	}
	if f.hooks.staleSkips != 1 || f.mp.len() != 0 {
		t.Fatalf("skips=%d stored=%d", f.hooks.staleSkips, f.mp.len())
	}
	_, _ = read(ctx) // stores
	_, _ = read(ctx) // hit
	if calls.Load() != 2 {
		t.Fatalf("calls=%d want 2", calls.Load())
	}
	if err := f.store.Invalidate(ctx, TagWarehouses); err != nil {
		t.Fatal(err)
	}
	if v, _ := read(ctx); len(v) != 1 || v[0].ID != 3 {
		t.Fatalf("entry survived invalidation of its first tag: %+v", v)
	}
}
