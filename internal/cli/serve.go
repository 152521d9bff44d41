package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/stockcore"
	"github.com/unkn0wn-root/stockcore/internal/config"
	"github.com/unkn0wn-root/stockcore/internal/server"
	"github.com/unkn0wn-root/stockcore/inventory"
	"github.com/unkn0wn-root/stockcore/logx"
	"github.com/unkn0wn-root/stockcore/remote/memory"
)

func NewServeCommand(_ *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the HTTP server configured from the environment (and .env).

The remote store is the in-process demo table set; counters, cache and
session epochs use the backends selected by COUNTER_STORE, CACHE_PROVIDER
and REDIS_ADDR.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed load config: %w", err)
	}
	d, err := newDeps(cfg)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.Close(cctx); err != nil {
			d.log.Warn("shutdown: closing backends", logx.Fields{"err": err})
		}
	}()
	d.log.Info("configuration loaded", logx.Fields{"config": cfg.String()})

	gate, err := d.gate(ctx)
	if err != nil {
		return fmt.Errorf("failed init gate: %w", err)
	}
	alloc, err := d.allocator(ctx)
	if err != nil {
		return fmt.Errorf("failed init counters: %w", err)
	}
	cache, err := d.cache(ctx)
	if err != nil {
		return fmt.Errorf("failed init cache: %w", err)
	}

	var maxEntry int
	if cfg.CacheProvider == "redis" {
		maxEntry = 8 << 20
	}
	inv, err := inventory.New(inventory.Config{
		Core:          &stockcore.Core{Counters: alloc, Cache: cache, Log: d.log},
		Warehouses:    memory.NewTable("warehouse", func(w inventory.Warehouse) int64 { return w.ID }),
		Products:      memory.NewTable("product", func(p inventory.Product) int64 { return p.ID }).WithVersion(inventory.ProductVersion),
		Codec:         cfg.CacheCodec,
		MaxEntryBytes: maxEntry,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(cfg.Addr, server.Deps{Gate: gate, Inventory: inv, Log: d.log, Ready: d.ping})
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Run() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	d.log.Info("stop application", nil)
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Close(stopCtx)
	return nil
}
