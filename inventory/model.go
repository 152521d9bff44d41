package inventory

import (
	"strings"

	"github.com/unkn0wn-root/stockcore"
)

// Counter names used by this service.
const (
	WarehouseCounter = "warehouseId"
	ProductCounter   = "productId"
)

type Warehouse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

type Product struct {
	ID          int64  `json:"id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	WarehouseID int64  `json:"warehouse_id"`
	Quantity    int64  `json:"quantity"`
	PriceCents  int64  `json:"price_cents"`
	// Version increases on every stock movement.
	Version int64 `json:"version"`
}

// ProductVersion reads Product.Version for versioned repositories.
func ProductVersion(p Product) int64 { return p.Version }

// StockLine aggregates the products stored in one warehouse.
type StockLine struct {
	WarehouseID   int64  `json:"warehouse_id"`
	WarehouseName string `json:"warehouse_name"`
	Products      int    `json:"products"`
	Units         int64  `json:"units"`
	ValueCents    int64  `json:"value_cents"`
}

type NewWarehouse struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (in NewWarehouse) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return stockcore.Invalid("name", "required")
	}
	return nil
}

type NewProduct struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	WarehouseID int64  `json:"warehouse_id"`
	Quantity    int64  `json:"quantity"`
	PriceCents  int64  `json:"price_cents"`
}

func (in NewProduct) validate() error {
	switch {
	case strings.TrimSpace(in.SKU) == "":
		return stockcore.Invalid("sku", "required")
	case strings.TrimSpace(in.Name) == "":
		return stockcore.Invalid("name", "required")
	case in.WarehouseID <= 0:
		return stockcore.Invalid("warehouse_id", "required")
	case in.Quantity < 0:
		return stockcore.Invalid("quantity", "must not be negative")
	case in.PriceCents < 0:
		return stockcore.Invalid("price_cents", "must not be negative")
	}
	return nil
}

// StockAdjustment changes the on-hand quantity of one product by Delta.
type StockAdjustment struct {
	ProductID int64 `json:"product_id"`
	Delta     int64 `json:"delta"`
}
