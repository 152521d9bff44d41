package tagcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	gen "github.com/unkn0wn-root/stockcore/genstore"
	"github.com/unkn0wn-root/stockcore/logx"
	pr "github.com/unkn0wn-root/stockcore/provider"
)

const (
	defaultTTL          = 5 * time.Minute
	defaultGenRetention = 30 * 24 * time.Hour
	defaultSweep        = time.Hour
)

// SetCostFunc reports the provider cost of one stored entry.
type SetCostFunc func(storageKey string, raw []byte) int64

// Options configure a Store. Only Namespace and Provider are required.
type Options struct {
	Namespace string // isolates entries of different apps/environments sharing a provider
	Provider  pr.Provider

	GenStore        gen.GenStore  // nil => LocalGenStore owned by the Store
	Logger          logx.Logger   // nil => logx.Nop
	Hooks           Hooks         // nil => NopHooks
	DefaultTTL      time.Duration // Spec.TTL == 0 uses this; 0 => 5m
	CleanupInterval time.Duration // local gen sweep; 0 => 1h
	GenRetention    time.Duration // local gen retention; 0 => 30d
	Disabled        bool          // every read computes
	ComputeSetCost  SetCostFunc   // default len(raw)

	// KnownTags, when set, restricts Spec.Tags and Invalidate to these tags.
	KnownTags []string

	// Now is the cache clock used for entry expiry; nil => time.Now.
	Now func() time.Time
}

// Store memoizes computed reads under tags and invalidates them per tag.
//
// Every tag has a generation in the GenStore. An entry records the generation
// of each of its tags as observed before its value was computed. A read
// accepts the entry only if it has not expired and every recorded generation
// still equals the current one. Invalidate bumps generations, so it never
// needs to know which keys were stored under a tag.
type Store struct {
	ns        string
	provider  pr.Provider
	gens      gen.GenStore
	ownGens   bool
	log       logx.Logger
	hooks     Hooks
	enabled   bool
	ttl       time.Duration
	setCost   SetCostFunc
	knownTags map[string]struct{}
	now       func() time.Time
}

// sharedProvider is implemented by providers whose entries are visible to
// other processes.
type sharedProvider interface{ Shared() bool }

func New(opts Options) (*Store, error) {
	if opts.Provider == nil {
		return nil, errors.New("tagcache: provider is required")
	}
	if opts.Namespace == "" {
		return nil, errors.New("tagcache: namespace is required")
	}

	s := &Store{
		ns:       opts.Namespace,
		provider: opts.Provider,
		enabled:  !opts.Disabled,
		log:      logx.OrNop(opts.Logger),
		ttl:      coalesce(opts.DefaultTTL, defaultTTL),
		now:      opts.Now,
	}
	if opts.Hooks != nil {
		s.hooks = opts.Hooks
	} else {
		s.hooks = NopHooks{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.ComputeSetCost != nil {
		s.setCost = opts.ComputeSetCost
	} else {
		s.setCost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
	}
	if len(opts.KnownTags) > 0 {
		s.knownTags = make(map[string]struct{}, len(opts.KnownTags))
		for _, t := range opts.KnownTags {
			s.knownTags[t] = struct{}{}
		}
	}

	if opts.GenStore != nil {
		s.gens = opts.GenStore
	} else {
		s.gens = gen.NewLocalGenStore(
			coalesce(opts.CleanupInterval, defaultSweep),
			coalesce(opts.GenRetention, defaultGenRetention),
		)
		s.ownGens = true
	}

	if sp, ok := opts.Provider.(sharedProvider); ok && sp.Shared() {
		if _, local := s.gens.(*gen.LocalGenStore); local {
			s.hooks.LocalGenWithSharedProvider()
			s.log.Warn("shared cache provider with in-process generations; invalidations will not reach other replicas",
				logx.Fields{"ns": s.ns})
		}
	}
	return s, nil
}

func (s *Store) Enabled() bool { return s.enabled }

// Invalidate bumps the generation of every tag. Entries stored under an older
// generation of any of them are rejected and deleted on their next read.
// Bumps are attempted for every tag even if one fails.
func (s *Store) Invalidate(ctx context.Context, tags ...string) error {
	if len(tags) == 0 {
		return nil
	}
	if err := s.checkTags(tags); err != nil {
		return err
	}

	var ie *InvalidateError
	for _, t := range dedupe(tags) {
		g, err := s.gens.Bump(ctx, t)
		if err != nil {
			s.hooks.GenBumpError(t, err)
			if ie == nil {
				ie = &InvalidateError{}
			}
			ie.Tags = append(ie.Tags, t)
			ie.Errs = append(ie.Errs, err)
			continue
		}
		s.log.Debug("tag invalidated", logx.Fields{"ns": s.ns, "tag": t, "gen": g})
	}
	if ie != nil {
		s.log.Error("tag invalidation failed; entries stay until TTL", logx.Fields{"ns": s.ns, "tags": ie.Tags, "err": ie})
		return ie
	}
	return nil
}

// Generation returns the current generation of tag.
func (s *Store) Generation(ctx context.Context, tag string) (uint64, error) {
	return s.gens.Snapshot(ctx, tag)
}

// Close stops the owned generation store and closes the provider.
func (s *Store) Close(ctx context.Context) error {
	var errs []error
	if s.ownGens {
		if err := s.gens.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close genstore: %w", err))
		}
	}
	if err := s.provider.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close provider: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Store) checkTags(tags []string) error {
	for _, t := range tags {
		if t == "" {
			return fmt.Errorf("%w: empty tag", ErrInvalidSpec)
		}
		if s.knownTags == nil {
			continue
		}
		if _, ok := s.knownTags[t]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownTag, t)
		}
	}
	return nil
}

func dedupe(tags []string) []string {
	if len(tags) < 2 {
		return tags
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
