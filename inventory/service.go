// Package inventory is the warehouse and product service built on the
// stockcore actions: every write allocates IDs and invalidates cache tags,
// every read goes through the tag cache.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/unkn0wn-root/stockcore"
	"github.com/unkn0wn-root/stockcore/codec"
	"github.com/unkn0wn-root/stockcore/remote"
	"github.com/unkn0wn-root/stockcore/session"
	"github.com/unkn0wn-root/stockcore/tagcache"
)

const (
	listPageSize  = 500
	maxBatch      = 1000
	refTTL        = 10 * time.Minute
	stockTTL      = time.Minute
	productsByWhs = "products:by-warehouse"
	stockAttempts = 32
)

type Config struct {
	Core       *stockcore.Core
	Warehouses remote.Repository[Warehouse, int64]
	Products   remote.Repository[Product, int64]
	// Codec is the cache codec name ("json", "msgpack", "cbor"). "" => json.
	Codec string
	// MaxEntryBytes caps decoded cache payloads; set it for shared providers. 0 => no cap.
	MaxEntryBytes int
}

type Service struct {
	core       *stockcore.Core
	warehouses remote.Repository[Warehouse, int64]
	products   remote.Repository[Product, int64]

	whCodec    codec.Codec[[]Warehouse]
	prodCodec  codec.Codec[[]Product]
	stockCodec codec.Codec[[]StockLine]

	docCodec    codec.Codec[[]byte]
	reportCodec codec.Codec[*structpb.Struct]

	listWarehouses func(context.Context) ([]Warehouse, error)
	stockSummary   func(context.Context) ([]StockLine, error)
}

func New(cfg Config) (*Service, error) {
	if cfg.Core == nil || cfg.Core.Cache == nil || cfg.Core.Counters == nil {
		return nil, errors.New("inventory: core with cache and counters is required")
	}
	if cfg.Warehouses == nil || cfg.Products == nil {
		return nil, errors.New("inventory: repositories are required")
	}
	s := &Service{core: cfg.Core, warehouses: cfg.Warehouses, products: cfg.Products}

	var ok1, ok2, ok3 bool
	s.whCodec, ok1 = codec.ByName[[]Warehouse](cfg.Codec)
	s.prodCodec, ok2 = codec.ByName[[]Product](cfg.Codec)
	s.stockCodec, ok3 = codec.ByName[[]StockLine](cfg.Codec)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("inventory: unknown cache codec %q", cfg.Codec)
	}
	s.whCodec = codec.Limit(s.whCodec, cfg.MaxEntryBytes)
	s.prodCodec = codec.Limit(s.prodCodec, cfg.MaxEntryBytes)
	s.stockCodec = codec.Limit(s.stockCodec, cfg.MaxEntryBytes)
	s.docCodec = codec.Limit[[]byte](codec.Bytes{}, cfg.MaxEntryBytes)
	s.reportCodec = codec.Limit[*structpb.Struct](codec.NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} }), cfg.MaxEntryBytes)

	s.listWarehouses = tagcache.Cached(cfg.Core.Cache, s.whCodec, s.fetchWarehouses, tagcache.Spec{
		KeyParts: []string{"warehouses", "all"},
		TTL:      refTTL,
		Tags:     []string{tagcache.TagWarehouses},
	})
	s.stockSummary = tagcache.Cached(cfg.Core.Cache, s.stockCodec, s.computeStock, tagcache.Spec{
		KeyParts: []string{"stock", "summary"},
		TTL:      stockTTL,
		Tags:     []string{tagcache.TagStockData, tagcache.TagWarehouses},
	})
	return s, nil
}

// ==============================
// Reads
// ==============================

func (s *Service) ListWarehouses(ctx context.Context) stockcore.Result[[]Warehouse] {
	return stockcore.Query(ctx, s.core, "list_warehouses", session.LevelCashier,
		func(ctx context.Context, _ session.Session) ([]Warehouse, error) {
			return s.listWarehouses(ctx)
		})
}

// ProductsIn lists the products stored in one warehouse.
func (s *Service) ProductsIn(ctx context.Context, warehouseID int64) stockcore.Result[[]Product] {
	return stockcore.Query(ctx, s.core, "list_products", session.LevelCashier,
		func(ctx context.Context, _ session.Session) ([]Product, error) {
			if warehouseID <= 0 {
				return nil, stockcore.Invalid("warehouse_id", "required")
			}
			return tagcache.Load(ctx, s.core.Cache, s.prodCodec, tagcache.Spec{
				KeyParts: []string{productsByWhs, strconv.FormatInt(warehouseID, 10)},
				TTL:      stockTTL,
				Tags:     []string{tagcache.TagProducts, tagcache.TagStockData},
			}, func(ctx context.Context) ([]Product, error) {
				all, err := remote.All(ctx, s.products, listPageSize)
				if err != nil {
					return nil, err
				}
				out := make([]Product, 0, len(all))
				for _, p := range all {
					if p.WarehouseID == warehouseID {
						out = append(out, p)
					}
				}
				return out, nil
			})
		})
}

// StockSummary aggregates units and value per warehouse. It scans every
// product, so it is cached under the heavy stock tag.
func (s *Service) StockSummary(ctx context.Context) stockcore.Result[[]StockLine] {
	return stockcore.Query(ctx, s.core, "stock_summary", session.LevelAdmin,
		func(ctx context.Context, _ session.Session) ([]StockLine, error) {
			return s.stockSummary(ctx)
		})
}

func (s *Service) fetchWarehouses(ctx context.Context) ([]Warehouse, error) {
	return remote.All(ctx, s.warehouses, listPageSize)
}

func (s *Service) computeStock(ctx context.Context) ([]StockLine, error) {
	whs, err := s.fetchWarehouses(ctx)
	if err != nil {
		return nil, err
	}
	prods, err := remote.All(ctx, s.products, listPageSize)
	if err != nil {
		return nil, err
	}
	lines := make(map[int64]*StockLine, len(whs))
	for _, w := range whs {
		lines[w.ID] = &StockLine{WarehouseID: w.ID, WarehouseName: w.Name}
	}
	for _, p := range prods {
		l, ok := lines[p.WarehouseID]
		if !ok {
			continue
		}
		l.Products++
		l.Units += p.Quantity
		l.ValueCents += p.Quantity * p.PriceCents
	}
	out := make([]StockLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WarehouseID < out[j].WarehouseID })
	return out, nil
}

// ==============================
// Writes
// ==============================

func (s *Service) CreateWarehouse(ctx context.Context, in NewWarehouse) stockcore.Result[Warehouse] {
	return stockcore.Mutate(ctx, s.core, stockcore.Mutation[NewWarehouse, Warehouse]{
		Name:     "create_warehouse",
		MinLevel: session.LevelAdmin,
		Validate: NewWarehouse.validate,
		Allocate: func(NewWarehouse) []stockcore.IDRequest {
			return []stockcore.IDRequest{{Counter: WarehouseCounter, Count: 1}}
		},
		Write: func(ctx context.Context, _ session.Session, in NewWarehouse, ids stockcore.IDs) (Warehouse, error) {
			w := Warehouse{ID: ids.First(WarehouseCounter), Name: in.Name, Address: in.Address}
			if err := s.warehouses.Create(ctx, w); err != nil {
				return Warehouse{}, err
			}
			return w, nil
		},
		Invalidates: []string{tagcache.TagWarehouses},
	}, in)
}

// CreateProducts stores a batch under one contiguous ID range.
func (s *Service) CreateProducts(ctx context.Context, in []NewProduct) stockcore.Result[[]Product] {
	return stockcore.Mutate(ctx, s.core, stockcore.Mutation[[]NewProduct, []Product]{
		Name:     "create_products",
		MinLevel: session.LevelAdmin,
		Validate: validateBatch,
		Allocate: func(in []NewProduct) []stockcore.IDRequest {
			return []stockcore.IDRequest{{Counter: ProductCounter, Count: len(in)}}
		},
		Write: func(ctx context.Context, _ session.Session, in []NewProduct, ids stockcore.IDs) ([]Product, error) {
			if err := s.checkWarehouses(ctx, in); err != nil {
				return nil, err
			}
			r := ids[ProductCounter]
			out := make([]Product, len(in))
			for i, np := range in {
				out[i] = Product{
					ID:          r[i],
					SKU:         np.SKU,
					Name:        np.Name,
					WarehouseID: np.WarehouseID,
					Quantity:    np.Quantity,
					PriceCents:  np.PriceCents,
				}
			}
			if err := s.products.Create(ctx, out...); err != nil {
				return nil, err
			}
			return out, nil
		},
		Invalidates: []string{tagcache.TagProducts, tagcache.TagStockData},
	}, in)
}

// ImportProducts stores records that already carry IDs, e.g. from a legacy
// system. The product counter is raised past the highest imported ID first
// so later allocations never collide with them.
func (s *Service) ImportProducts(ctx context.Context, in []Product) stockcore.Result[int] {
	return stockcore.Mutate(ctx, s.core, stockcore.Mutation[[]Product, int]{
		Name:     "import_products",
		MinLevel: session.LevelMaster,
		Validate: func(in []Product) error {
			if len(in) == 0 || len(in) > maxBatch {
				return stockcore.Invalid("products", fmt.Sprintf("batch size must be 1..%d", maxBatch))
			}
			for i, p := range in {
				if p.ID <= 0 {
					return stockcore.Invalid(fmt.Sprintf("products[%d].id", i), "must be positive")
				}
				np := NewProduct{SKU: p.SKU, Name: p.Name, WarehouseID: p.WarehouseID, Quantity: p.Quantity, PriceCents: p.PriceCents}
				if err := np.validate(); err != nil {
					return fmt.Errorf("products[%d]: %w", i, err)
				}
			}
			return nil
		},
		Write: func(ctx context.Context, _ session.Session, in []Product, _ stockcore.IDs) (int, error) {
			var top int64
			for _, p := range in {
				top = max(top, p.ID)
			}
			if err := s.core.Counters.EnsureAtLeast(ctx, ProductCounter, top); err != nil {
				return 0, err
			}
			if err := s.products.Create(ctx, in...); err != nil {
				return 0, err
			}
			return len(in), nil
		},
		Invalidates: []string{tagcache.TagProducts, tagcache.TagStockData},
	}, in)
}

// AdjustStock applies a stock movement. Quantities never go below zero.
func (s *Service) AdjustStock(ctx context.Context, in StockAdjustment) stockcore.Result[Product] {
	return stockcore.Mutate(ctx, s.core, stockcore.Mutation[StockAdjustment, Product]{
		Name:     "adjust_stock",
		MinLevel: session.LevelCashier,
		Validate: func(in StockAdjustment) error {
			if in.ProductID <= 0 {
				return stockcore.Invalid("product_id", "required")
			}
			if in.Delta == 0 {
				return stockcore.Invalid("delta", "must not be zero")
			}
			return nil
		},
		Write: func(ctx context.Context, _ session.Session, in StockAdjustment, _ stockcore.IDs) (Product, error) {
			return s.moveStock(ctx, in)
		},
		Invalidates: []string{tagcache.TagStockData},
	}, in)
}

// moveStock applies in with a version-guarded update, rereading the product
// after every lost race so the on-hand check always sees the stored quantity.
func (s *Service) moveStock(ctx context.Context, in StockAdjustment) (Product, error) {
	for range stockAttempts {
		p, err := s.products.Get(ctx, in.ProductID)
		if err != nil {
			return Product{}, err
		}
		if p.Quantity+in.Delta < 0 {
			return Product{}, stockcore.Invalid("delta", fmt.Sprintf("only %d units on hand", p.Quantity))
		}
		seen := p.Version
		p.Quantity += in.Delta
		p.Version++
		err = s.products.UpdateIf(ctx, p, seen)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, remote.ErrConflict) {
			return Product{}, err
		}
		if err := ctx.Err(); err != nil {
			return Product{}, err
		}
	}
	return Product{}, fmt.Errorf("product %d: %d concurrent stock movements won: %w", in.ProductID, stockAttempts, remote.ErrConflict)
}

func validateBatch(in []NewProduct) error {
	if len(in) == 0 || len(in) > maxBatch {
		return stockcore.Invalid("products", fmt.Sprintf("batch size must be 1..%d", maxBatch))
	}
	for i, np := range in {
		if err := np.validate(); err != nil {
			return fmt.Errorf("products[%d]: %w", i, err)
		}
	}
	return nil
}

func (s *Service) checkWarehouses(ctx context.Context, in []NewProduct) error {
	seen := make(map[int64]bool)
	for _, np := range in {
		if seen[np.WarehouseID] {
			continue
		}
		seen[np.WarehouseID] = true
		if _, err := s.warehouses.Get(ctx, np.WarehouseID); err != nil {
			if errors.Is(err, remote.ErrNotFound) {
				return stockcore.Invalid("warehouse_id", fmt.Sprintf("warehouse %d does not exist", np.WarehouseID))
			}
			return err
		}
	}
	return nil
}
