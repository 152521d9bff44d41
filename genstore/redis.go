package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGenStore shares generations across processes and survives restarts.
// Keys are stored as gen:<namespace>:<key>. With a TTL, an expired key reads
// as 0 again, so only use one for tag generations.
type RedisGenStore struct {
	rdb         redis.UniversalClient
	ns          string
	ttl         time.Duration
	closeClient bool
}

var _ GenStore = (*RedisGenStore)(nil)

type RedisConfig struct {
	Client    redis.UniversalClient
	Namespace string
	// TTL refreshes on every bump; 0 disables expiry.
	TTL time.Duration
	// CloseClient is set only when this store exclusively owns Client.
	CloseClient bool
}

var ErrNilClient = errors.New("genstore: nil redis client")

func NewRedisGenStore(cfg RedisConfig) (*RedisGenStore, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if cfg.Namespace == "" {
		return nil, errors.New("genstore: namespace is required")
	}
	return &RedisGenStore{rdb: cfg.Client, ns: cfg.Namespace, ttl: cfg.TTL, closeClient: cfg.CloseClient}, nil
}

func (s *RedisGenStore) key(k string) string { return "gen:" + s.ns + ":" + k }

func (s *RedisGenStore) Snapshot(ctx context.Context, key string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis gen parse: %w", err)
	}
	return u, nil
}

// SnapshotMany reads every key with one MGET. Missing keys map to 0.
func (s *RedisGenStore) SnapshotMany(ctx context.Context, keys []string) (map[string]uint64, error) {
	if len(keys) == 0 {
		return map[string]uint64{}, nil
	}
	rk := make([]string, len(keys))
	for i, k := range keys {
		rk[i] = s.key(k)
	}
	vals, err := s.rdb.MGet(ctx, rk...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]uint64, len(keys))
	for i, v := range vals {
		var raw string
		switch vv := v.(type) {
		case nil:
			out[keys[i]] = 0
			continue
		case string:
			raw = vv
		case []byte:
			raw = string(vv)
		default:
			raw = fmt.Sprint(vv)
		}
		u, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis gen parse at %s: %w", keys[i], err)
		}
		out[keys[i]] = u
	}
	return out, nil
}

// Bump is INCR, pipelined with EXPIRE when a TTL is configured.
func (s *RedisGenStore) Bump(ctx context.Context, key string) (uint64, error) {
	k := s.key(key)

	if s.ttl <= 0 {
		v, err := s.rdb.Incr(ctx, k).Result()
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	}

	var incr *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

// Cleanup is a no-op; Redis expires keys itself when a TTL is set.
func (s *RedisGenStore) Cleanup(time.Duration) {}

func (s *RedisGenStore) Close(context.Context) error {
	if !s.closeClient {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
