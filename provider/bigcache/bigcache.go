// Package bigcache keeps cached reads in sharded byte arenas outside the GC's
// pointer graph. It suits large stock summaries held by a single replica.
package bigcache

import (
	"context"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"

	pr "github.com/unkn0wn-root/stockcore/provider"
)

type Provider struct {
	c *bc.BigCache
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	// LifeWindow evicts every entry after this age; there is no per-entry TTL.
	// Keep it at or above the longest Spec TTL, the entry header enforces the rest.
	LifeWindow         time.Duration
	CleanWindow        time.Duration // 0 => bigcache default
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // 0 = unbounded
}

func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.LifeWindow <= 0 {
		return nil, errors.New("bigcache: LifeWindow must be positive")
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	conf.Verbose = false
	conf.StatsEnabled = false
	conf.CleanWindow = positiveOr(cfg.CleanWindow, conf.CleanWindow)
	conf.MaxEntriesInWindow = positiveOr(cfg.MaxEntriesInWindow, conf.MaxEntriesInWindow)
	conf.MaxEntrySize = positiveOr(cfg.MaxEntrySize, conf.MaxEntrySize)
	conf.HardMaxCacheSize = positiveOr(cfg.HardMaxCacheSizeMB, conf.HardMaxCacheSize)

	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func positiveOr[T int | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	switch b, err := p.c.Get(key); {
	case errors.Is(err, bc.ErrEntryNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	default:
		return b, true, nil
	}
}

// Set stores value until LifeWindow passes; cost and ttl are not used.
func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	if err := p.c.Set(key, value); err != nil {
		return false, err
	}
	return true, nil
}

// Del treats a missing key as deleted.
func (p *Provider) Del(_ context.Context, key string) error {
	if err := p.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

// Stats reports hit, miss and collision counters.
func (p *Provider) Stats() bc.Stats { return p.c.Stats() }

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}
