package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	stdslog "log/slog"
	"os"
	"time"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/stockcore/auth"
	"github.com/unkn0wn-root/stockcore/counter"
	pgcounter "github.com/unkn0wn-root/stockcore/counter/postgres"
	rcounter "github.com/unkn0wn-root/stockcore/counter/redis"
	"github.com/unkn0wn-root/stockcore/genstore"
	asynchook "github.com/unkn0wn-root/stockcore/hooks/async"
	sloghook "github.com/unkn0wn-root/stockcore/hooks/slog"
	"github.com/unkn0wn-root/stockcore/internal/config"
	"github.com/unkn0wn-root/stockcore/logx"
	logrusx "github.com/unkn0wn-root/stockcore/logx/logrus"
	slogx "github.com/unkn0wn-root/stockcore/logx/slog"
	zapx "github.com/unkn0wn-root/stockcore/logx/zap"
	"github.com/unkn0wn-root/stockcore/password"
	pr "github.com/unkn0wn-root/stockcore/provider"
	bcprovider "github.com/unkn0wn-root/stockcore/provider/bigcache"
	rprovider "github.com/unkn0wn-root/stockcore/provider/redis"
	ristprovider "github.com/unkn0wn-root/stockcore/provider/ristretto"
	"github.com/unkn0wn-root/stockcore/session"
	"github.com/unkn0wn-root/stockcore/tagcache"
)

// deps owns every backend built from the config and closes them in reverse.
type deps struct {
	cfg     *config.Config
	log     logx.Logger
	rdb     *goredis.Client
	db      *sql.DB
	closers []func(context.Context) error
}

func newDeps(cfg *config.Config) (*deps, error) {
	log, sync, err := newLogger(cfg.LogBackend, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	d := &deps{cfg: cfg, log: log}
	if sync != nil {
		d.onClose(func(context.Context) error { return sync() })
	}
	return d, nil
}

func (d *deps) onClose(f func(context.Context) error) { d.closers = append(d.closers, f) }

func (d *deps) Close(ctx context.Context) error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newLogger(backend, level string) (logx.Logger, func() error, error) {
	switch backend {
	case "", "zap":
		l, err := zapx.NewProduction(level)
		if err != nil {
			return nil, nil, err
		}
		return l, func() error { _ = l.L.Sync(); return nil }, nil
	case "logrus":
		return logrusx.New(level), nil, nil
	case "slog":
		return slogx.Logger{L: newSlog(level)}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown log backend %q", backend)
	}
}

func newSlog(level string) *stdslog.Logger {
	var lvl stdslog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = stdslog.LevelInfo
	}
	return stdslog.New(stdslog.NewJSONHandler(os.Stderr, &stdslog.HandlerOptions{Level: lvl}))
}

// redis returns the shared client, dialing it on first use.
func (d *deps) redis(ctx context.Context) (*goredis.Client, error) {
	if d.rdb != nil {
		return d.rdb, nil
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: d.cfg.RedisAddr, DB: d.cfg.RedisDB, Password: d.cfg.RedisPassword})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", d.cfg.RedisAddr, err)
	}
	d.rdb = rdb
	d.onClose(func(context.Context) error { return rdb.Close() })
	return rdb, nil
}

func (d *deps) postgres(ctx context.Context) (*sql.DB, error) {
	if d.db != nil {
		return d.db, nil
	}
	db, err := sql.Open("postgres", d.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	d.db = db
	d.onClose(func(context.Context) error { return db.Close() })
	return db, nil
}

func (d *deps) counterStore(ctx context.Context) (counter.Store, error) {
	switch d.cfg.CounterStore {
	case "memory":
		d.log.Warn("in-memory counter store: ids restart after a restart and are not shared between replicas", nil)
		return counter.NewMemoryStore(), nil
	case "redis":
		rdb, err := d.redis(ctx)
		if err != nil {
			return nil, err
		}
		return rcounter.New(rcounter.Config{Client: rdb, Namespace: d.cfg.CacheNamespace})
	case "postgres":
		db, err := d.postgres(ctx)
		if err != nil {
			return nil, err
		}
		if err := pgcounter.Migrate(db); err != nil {
			return nil, err
		}
		return pgcounter.New(db)
	default:
		return nil, fmt.Errorf("unknown counter store %q", d.cfg.CounterStore)
	}
}

func (d *deps) allocator(ctx context.Context) (*counter.Allocator, error) {
	s, err := d.counterStore(ctx)
	if err != nil {
		return nil, err
	}
	return counter.NewAllocator(s, counter.Options{Logger: d.log})
}

// generations returns a Redis gen store when Redis is configured, so
// invalidations and revocations reach every replica.
func (d *deps) generations(ctx context.Context, namespace string) (genstore.GenStore, error) {
	if d.cfg.RedisAddr == "" {
		g := genstore.NewLocalGenStore(time.Hour, 30*24*time.Hour)
		d.onClose(g.Close)
		return g, nil
	}
	rdb, err := d.redis(ctx)
	if err != nil {
		return nil, err
	}
	g, err := genstore.NewRedisGenStore(genstore.RedisConfig{Client: rdb, Namespace: namespace})
	if err != nil {
		return nil, err
	}
	d.onClose(g.Close)
	return g, nil
}

func (d *deps) provider(ctx context.Context) (pr.Provider, error) {
	switch d.cfg.CacheProvider {
	case "ristretto":
		p, err := ristprovider.New(ristprovider.SizedConfig(d.cfg.CacheMaxMB))
		if err != nil {
			return nil, err
		}
		d.onClose(func(context.Context) error {
			st := p.Stats()
			d.log.Info("cache stats", logx.Fields{"provider": "ristretto", "hits": st.Hits, "misses": st.Misses, "rejected": st.Rejected, "ratio": st.Ratio})
			return nil
		})
		return p, nil
	case "bigcache":
		p, err := bcprovider.New(ctx, bcprovider.Config{LifeWindow: 2 * d.cfg.CacheDefaultTTL, HardMaxCacheSizeMB: d.cfg.CacheMaxMB})
		if err != nil {
			return nil, err
		}
		d.onClose(func(context.Context) error {
			st := p.Stats()
			d.log.Info("cache stats", logx.Fields{"provider": "bigcache", "hits": st.Hits, "misses": st.Misses, "collisions": st.Collisions})
			return nil
		})
		return p, nil
	case "redis":
		rdb, err := d.redis(ctx)
		if err != nil {
			return nil, err
		}
		return rprovider.New(rprovider.Config{Client: rdb})
	default:
		return nil, fmt.Errorf("unknown cache provider %q", d.cfg.CacheProvider)
	}
}

func (d *deps) cache(ctx context.Context) (*tagcache.Store, error) {
	p, err := d.provider(ctx)
	if err != nil {
		return nil, err
	}
	gens, err := d.generations(ctx, d.cfg.CacheNamespace+":tags")
	if err != nil {
		return nil, err
	}
	hooks := asynchook.New(sloghook.New(newSlog(d.cfg.LogLevel), sloghook.Options{SelfHealEvery: 100, StaleSkipEvery: 100}), 1, 1024)
	d.onClose(func(context.Context) error { hooks.Close(); return nil })

	s, err := tagcache.New(tagcache.Options{
		Namespace:  d.cfg.CacheNamespace,
		Provider:   p,
		GenStore:   gens,
		Logger:     d.log,
		Hooks:      hooks,
		DefaultTTL: d.cfg.CacheDefaultTTL,
		KnownTags:  tagcache.Registry(),
	})
	if err != nil {
		return nil, err
	}
	d.onClose(s.Close)
	return s, nil
}

func (d *deps) gate(ctx context.Context) (*auth.Gate, error) {
	codec, err := session.NewCodec(session.Config{
		Secret: []byte(d.cfg.SessionSecret),
		TTL:    d.cfg.SessionTTL,
		Issuer: d.cfg.SessionIssuer,
	})
	if err != nil {
		return nil, err
	}
	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return nil, err
	}
	users, err := auth.NewStaticUsers()
	if err != nil {
		return nil, err
	}
	if d.cfg.UsersFile != "" {
		if users, err = config.LoadUsers(d.cfg.UsersFile); err != nil {
			return nil, err
		}
	} else {
		d.log.Warn("USERS_FILE not set; nobody can log in", nil)
	}
	epochs, err := d.generations(ctx, d.cfg.CacheNamespace+":sessions")
	if err != nil {
		return nil, err
	}
	return auth.NewGate(auth.Config{
		Codec:        codec,
		Users:        users,
		Passwords:    hasher,
		Epochs:       epochs,
		CookieSecure: d.cfg.CookieSecure,
		Logger:       d.log,
	})
}

func (d *deps) ping(ctx context.Context) error {
	var errs []error
	if d.rdb != nil {
		errs = append(errs, d.rdb.Ping(ctx).Err())
	}
	if d.db != nil {
		errs = append(errs, d.db.PingContext(ctx))
	}
	return errors.Join(errs...)
}
