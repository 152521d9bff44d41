// Package ristretto keeps cached reads in process memory, admitting entries
// by frequency. It is the default provider for a single replica.
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/stockcore/provider"
)

// avgEntryBytes is the expected size of one framed warehouse/product list.
const avgEntryBytes = 4 << 10

type Provider struct {
	c *rc.Cache
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	NumCounters int64 // admission counters, ~10x the expected entry count
	MaxCost     int64 // bytes; entries are costed by their framed size
	BufferItems int64
	Metrics     bool // enables Stats
}

// SizedConfig budgets maxMB megabytes of framed entries.
func SizedConfig(maxMB int) Config {
	maxCost := int64(maxMB) << 20
	return Config{
		NumCounters: max(10*maxCost/avgEntryBytes, 1e4),
		MaxCost:     maxCost,
		BufferItems: 64,
		Metrics:     true,
	}
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: NumCounters, MaxCost and BufferItems must be positive")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	if b, ok := v.([]byte); ok && b != nil {
		return b, true, nil
	}
	p.c.Del(key)
	return nil, false, nil
}

// Set goes through ristretto's write buffer and may be dropped by admission;
// ok=false reports the drop. Wait flushes the buffer.
func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	return p.c.SetWithTTL(key, value, cost, ttl), nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

func (p *Provider) Wait() { p.c.Wait() }

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Stats is a hit/miss snapshot. Zero unless Config.Metrics was set.
type Stats struct {
	Hits, Misses   uint64
	Rejected       uint64
	Ratio          float64
	CostAddedBytes uint64
}

func (p *Provider) Stats() Stats {
	m := p.c.Metrics
	if m == nil {
		return Stats{}
	}
	return Stats{
		Hits:           m.Hits(),
		Misses:         m.Misses(),
		Rejected:       m.SetsRejected(),
		Ratio:          m.Ratio(),
		CostAddedBytes: m.CostAdded(),
	}
}
