package tagcache

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/unkn0wn-root/stockcore/codec"
	"github.com/unkn0wn-root/stockcore/internal/keys"
	"github.com/unkn0wn-root/stockcore/internal/wire"
	"github.com/unkn0wn-root/stockcore/logx"
)

// Spec describes one cached read.
type Spec struct {
	// KeyParts identify the read, including its arguments. Order matters.
	KeyParts []string
	// TTL bounds staleness even without invalidation; 0 => Options.DefaultTTL.
	TTL time.Duration
	// Tags the value depends on. Invalidating any of them forces a recompute.
	Tags []string
}

// Cached wraps compute so that calls return a memoized value while it is
// unexpired and none of spec.Tags has been invalidated since it was computed.
//
//	listWarehouses := tagcache.Cached(store, codec.JSON[[]Warehouse]{}, fetch, tagcache.Spec{
//	    KeyParts: []string{"warehouses", "list"},
//	    TTL:      5 * time.Minute,
//	    Tags:     []string{tagcache.TagWarehouses},
//	})
func Cached[V any](s *Store, c codec.Codec[V], compute func(context.Context) (V, error), spec Spec) func(context.Context) (V, error) {
	return func(ctx context.Context) (V, error) {
		return Load(ctx, s, c, spec, compute)
	}
}

// Load is the single-shot form of Cached, for reads whose key parts depend on
// call arguments.
//
// Compute errors are returned and never stored. Cache backend failures are
// logged and reported through Hooks, and the value is computed instead.
func Load[V any](ctx context.Context, s *Store, c codec.Codec[V], spec Spec, compute func(context.Context) (V, error)) (V, error) {
	var zero V
	tags, err := s.normalize(spec.Tags)
	if err != nil {
		return zero, err
	}
	if !s.enabled {
		return compute(ctx)
	}

	k := keys.Entry(s.ns, spec.KeyParts)
	if v, ok := lookup(ctx, s, c, k, tags); ok {
		return v, nil
	}

	start := s.now()
	observed, err := s.snapshot(ctx, tags)
	if err != nil {
		// without observed generations the value cannot be stored safely
		return compute(ctx)
	}

	v, err := compute(ctx)
	if err != nil {
		return zero, err
	}

	ttl := coalesce(spec.TTL, s.ttl)
	store(ctx, s, c, k, v, observed, start.Add(ttl), ttl)
	return v, nil
}

func lookup[V any](ctx context.Context, s *Store, c codec.Codec[V], k string, tags []string) (V, bool) {
	var zero V
	raw, ok, err := s.provider.Get(ctx, k)
	if err != nil {
		s.hooks.ProviderError("get", err)
		s.log.Warn("cache get failed; computing", logx.Fields{"ns": s.ns, "key": k, "err": err})
		return zero, false
	}
	if !ok {
		return zero, false
	}

	e, err := wire.Decode(raw)
	if err != nil {
		s.selfHeal(ctx, k, "corrupt")
		return zero, false
	}
	if !s.now().Before(e.ExpiresAt) {
		s.selfHeal(ctx, k, "expired")
		return zero, false
	}
	if !sameTags(e.Tags, tags) {
		s.selfHeal(ctx, k, "tag_mismatch")
		return zero, false
	}

	if len(tags) > 0 {
		cur, err := s.snapshot(ctx, tags)
		if err != nil {
			return zero, false
		}
		for i, tg := range e.Tags {
			if cur[i].Gen != tg.Gen {
				s.selfHeal(ctx, k, "gen_mismatch")
				return zero, false
			}
		}
	}

	v, err := c.Decode(e.Payload)
	if err != nil {
		s.selfHeal(ctx, k, "value_decode")
		return zero, false
	}
	return v, true
}

func store[V any](ctx context.Context, s *Store, c codec.Codec[V], k string, v V, observed []wire.TagGen, expiresAt time.Time, ttl time.Duration) {
	if len(observed) > 0 {
		tags := make([]string, len(observed))
		for i, tg := range observed {
			tags[i] = tg.Tag
		}
		cur, err := s.snapshot(ctx, tags)
		if err != nil {
			return
		}
		for i, tg := range observed {
			if cur[i].Gen != tg.Gen {
				s.hooks.StaleWriteSkipped(k)
				s.log.Debug("cache write skipped (tag invalidated during compute)",
					logx.Fields{"ns": s.ns, "key": k, "tag": tg.Tag})
				return
			}
		}
	}

	payload, err := c.Encode(v)
	if err != nil {
		s.log.Warn("cache value encode failed", logx.Fields{"ns": s.ns, "key": k, "err": err})
		return
	}
	raw, err := wire.Encode(wire.Entry{ExpiresAt: expiresAt, Tags: observed, Payload: payload})
	if err != nil {
		s.log.Warn("cache entry encode failed", logx.Fields{"ns": s.ns, "key": k, "err": err})
		return
	}
	ok, err := s.provider.Set(ctx, k, raw, s.setCost(k, raw), ttl)
	if err != nil {
		s.hooks.ProviderError("set", err)
		s.log.Warn("cache set failed", logx.Fields{"ns": s.ns, "key": k, "err": err})
		return
	}
	if !ok {
		s.hooks.ProviderSetRejected(k)
		s.log.Debug("cache set rejected by provider (pressure)", logx.Fields{"ns": s.ns, "key": k})
	}
}

// snapshot returns the current generation of each tag, in tag order.
func (s *Store) snapshot(ctx context.Context, tags []string) ([]wire.TagGen, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	m, err := s.gens.SnapshotMany(ctx, tags)
	if err != nil {
		s.hooks.GenSnapshotError(len(tags), err)
		s.log.Warn("tag generation snapshot failed", logx.Fields{"ns": s.ns, "tags": tags, "err": err})
		return nil, err
	}
	out := make([]wire.TagGen, len(tags))
	for i, t := range tags {
		out[i] = wire.TagGen{Tag: t, Gen: m[t]}
	}
	return out, nil
}

func (s *Store) selfHeal(ctx context.Context, k, reason string) {
	s.hooks.SelfHeal(k, reason)
	if err := s.provider.Del(ctx, k); err != nil {
		s.hooks.ProviderError("del", err)
	}
}

// normalize validates tags and returns them sorted and deduplicated.
func (s *Store) normalize(tags []string) ([]string, error) {
	if err := s.checkTags(tags); err != nil {
		return nil, err
	}
	out := dedupe(append([]string(nil), tags...))
	sort.Strings(out)
	if len(out) > 0xFFFF {
		return nil, fmt.Errorf("%w: too many tags", ErrInvalidSpec)
	}
	return out, nil
}

func sameTags(recorded []wire.TagGen, tags []string) bool {
	if len(recorded) != len(tags) {
		return false
	}
	for i, tg := range recorded {
		if tg.Tag != tags[i] {
			return false
		}
	}
	return true
}
