// Package redis stores counters as plain integer keys so every replica
// allocates from the same sequence.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/stockcore/counter"
)

var ErrNilClient = errors.New("redis counter: nil client")

// casScript swaps KEYS[1] to ARGV[2] only while it still holds ARGV[1].
var casScript = goredis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v or v ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2])
return 1
`)

type Store struct {
	rdb         goredis.UniversalClient
	ns          string
	closeClient bool
}

var (
	_ counter.Store       = (*Store)(nil)
	_ counter.Incrementer = (*Store)(nil)
)

type Config struct {
	Client goredis.UniversalClient
	// Namespace prefixes keys as counter:<ns>:<name>. "" => "stockcore".
	Namespace   string
	CloseClient bool
}

func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "stockcore"
	}
	return &Store{rdb: cfg.Client, ns: ns, closeClient: cfg.CloseClient}, nil
}

func (s *Store) key(name string) string { return "counter:" + s.ns + ":" + name }

func (s *Store) Load(ctx context.Context, name string) (int64, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(name)).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("redis counter parse %q: %w", name, err)
	}
	return v, true, nil
}

func (s *Store) Create(ctx context.Context, name string, value int64) (bool, error) {
	return s.rdb.SetNX(ctx, s.key(name), value, 0).Result()
}

func (s *Store) CompareAndSwap(ctx context.Context, name string, current, next int64) (bool, error) {
	n, err := casScript.Run(ctx, s.rdb, []string{s.key(name)},
		strconv.FormatInt(current, 10), strconv.FormatInt(next, 10)).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IncrBy uses INCRBY; a missing key starts at 0.
func (s *Store) IncrBy(ctx context.Context, name string, delta int64) (int64, error) {
	return s.rdb.IncrBy(ctx, s.key(name), delta).Result()
}

func (s *Store) Close(context.Context) error {
	if s.closeClient {
		return s.rdb.Close()
	}
	return nil
}
