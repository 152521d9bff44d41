package server

import (
	"net/http"

	"github.com/unkn0wn-root/stockcore/auth"
	"github.com/unkn0wn-root/stockcore/logx"
	"github.com/unkn0wn-root/stockcore/session"
)

const maxBody = 1 << 20

// NewHandler builds the full middleware chain: request id and access log,
// then the session gate, then the routes.
func NewHandler(d Deps) http.Handler {
	h := &handlers{gate: d.Gate, inv: d.Inventory, log: logx.OrNop(d.Log), ready: d.Ready}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.liveness)
	mux.HandleFunc("GET /readyz", h.readiness)

	mux.HandleFunc("POST /login", limitBody(h.login))
	mux.HandleFunc("POST /logout", h.logout)
	mux.HandleFunc("GET /api/me", h.me)

	mux.HandleFunc("GET /api/warehouses", h.listWarehouses)
	mux.HandleFunc("POST /api/warehouses", limitBody(h.createWarehouse))
	mux.HandleFunc("GET /api/warehouses/{id}/products", h.productsIn)
	mux.HandleFunc("POST /api/products", limitBody(h.createProducts))
	mux.HandleFunc("POST /api/products/import", limitBody(h.importProducts))
	mux.HandleFunc("POST /api/stock/adjust", limitBody(h.adjustStock))
	mux.HandleFunc("GET /api/stock/summary", h.stockSummary)
	mux.HandleFunc("GET /api/stock/report", h.stockReport)
	mux.HandleFunc("POST /api/stock/report/refresh", h.refreshReports)

	mux.Handle("POST /api/admin/subjects/{id}/revoke",
		auth.RequireLevel(session.LevelMaster, denyJSON)(http.HandlerFunc(h.revoke)))

	gated := d.Gate.Middleware(auth.GateConfig{
		PublicPrefixes: append(auth.DefaultPublicPrefixes(), "/readyz"),
	})(mux)
	return withRequestID(accessLog(h.log)(gated))
}

func limitBody(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		h(w, r)
	}
}
