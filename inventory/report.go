package inventory

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/unkn0wn-root/stockcore"
	"github.com/unkn0wn-root/stockcore/session"
	"github.com/unkn0wn-root/stockcore/tagcache"
)

// Stock report formats.
const (
	ReportCSV   = "csv"
	ReportProto = "pb"
)

var reportHeader = []string{"warehouse_id", "warehouse_name", "products", "units", "value_cents"}

func reportSpec(format string) tagcache.Spec {
	return tagcache.Spec{
		KeyParts: []string{"reports", "stock", format},
		TTL:      refTTL,
		Tags:     []string{tagcache.TagDocuments, tagcache.TagStockData, tagcache.TagWarehouses},
	}
}

// StockReport renders the stock summary as a document: CSV, or a
// google.protobuf.Struct for downstream consumers. Rendered documents are
// cached as bytes next to the data they were built from.
func (s *Service) StockReport(ctx context.Context, format string) stockcore.Result[[]byte] {
	return stockcore.Query(ctx, s.core, "stock_report", session.LevelAdmin,
		func(ctx context.Context, _ session.Session) ([]byte, error) {
			switch format {
			case "", ReportCSV:
				return tagcache.Load(ctx, s.core.Cache, s.docCodec, reportSpec(ReportCSV), s.renderCSV)
			case ReportProto:
				msg, err := tagcache.Load(ctx, s.core.Cache, s.reportCodec, reportSpec(ReportProto), s.reportMessage)
				if err != nil {
					return nil, err
				}
				return s.reportCodec.Encode(msg)
			default:
				return nil, stockcore.Invalid("format", fmt.Sprintf("unknown report format %q", format))
			}
		})
}

// RefreshReports drops every rendered document so the next export
// re-renders it.
func (s *Service) RefreshReports(ctx context.Context) stockcore.Result[struct{}] {
	return stockcore.Mutate(ctx, s.core, stockcore.Mutation[struct{}, struct{}]{
		Name:     "refresh_reports",
		MinLevel: session.LevelAdmin,
		Write: func(context.Context, session.Session, struct{}, stockcore.IDs) (struct{}, error) {
			return struct{}{}, nil
		},
		Invalidates: []string{tagcache.TagDocuments},
	}, struct{}{})
}

func (s *Service) renderCSV(ctx context.Context) ([]byte, error) {
	lines, err := s.stockSummary(ctx)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(reportHeader)
	for _, l := range lines {
		_ = w.Write([]string{
			strconv.FormatInt(l.WarehouseID, 10),
			l.WarehouseName,
			strconv.Itoa(l.Products),
			strconv.FormatInt(l.Units, 10),
			strconv.FormatInt(l.ValueCents, 10),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Service) reportMessage(ctx context.Context) (*structpb.Struct, error) {
	lines, err := s.stockSummary(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]any, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, map[string]any{
			"warehouse_id":   l.WarehouseID,
			"warehouse_name": l.WarehouseName,
			"products":       l.Products,
			"units":          l.Units,
			"value_cents":    l.ValueCents,
		})
	}
	return structpb.NewStruct(map[string]any{"lines": rows})
}
