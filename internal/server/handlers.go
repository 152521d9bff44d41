package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/unkn0wn-root/stockcore"
	"github.com/unkn0wn-root/stockcore/auth"
	"github.com/unkn0wn-root/stockcore/inventory"
	"github.com/unkn0wn-root/stockcore/logx"
	"github.com/unkn0wn-root/stockcore/session"
)

type handlers struct {
	gate  *auth.Gate
	inv   *inventory.Service
	log   logx.Logger
	ready func(context.Context) error
}

type sessionView struct {
	SubjectID   int64     `json:"subject_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	AccessLevel string    `json:"access_level"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func viewOf(s session.Session) sessionView {
	return sessionView{
		SubjectID:   s.SubjectID,
		Name:        s.DisplayName(),
		Email:       s.Email,
		AccessLevel: s.AccessLevel.String(),
		ExpiresAt:   s.ExpiresAt,
	}
}

func (h *handlers) liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, stockcore.Success("ok"))
}

func (h *handlers) readiness(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			h.log.Warn("readiness check failed", logx.Fields{"err": err})
			writeJSON(w, r, http.StatusServiceUnavailable, stockcore.Result[string]{Error: "not ready", Kind: stockcore.KindStorage})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, stockcore.Success("ready"))
}

// login accepts JSON {"login","password"} or a form post. A form post
// carrying "next" is redirected there after a successful login.
func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var (
		creds auth.Credentials
		next  string
		form  = !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
	)
	if form {
		if err := r.ParseForm(); err != nil {
			writeErr(w, r, stockcore.Invalid("", "malformed form"))
			return
		}
		creds = auth.Credentials{Login: r.PostFormValue("login"), Password: r.PostFormValue("password")}
		next = r.PostFormValue("next")
	} else if err := decodeJSON(r, &creds); err != nil {
		writeErr(w, r, err)
		return
	}

	s, token, err := h.gate.Login(r.Context(), creds)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	h.gate.SetTokenCookie(w, token, s)

	if form && next != "" {
		http.Redirect(w, r, auth.SafeReturnPath(next), http.StatusSeeOther)
		return
	}
	writeResult(w, r, stockcore.Success(viewOf(s)))
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	h.gate.Logout(w)
	writeResult(w, r, stockcore.Success("signed out"))
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	s, err := auth.Require(r.Context(), session.LevelCashier)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeResult(w, r, stockcore.Success(viewOf(s)))
}

func (h *handlers) revoke(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeErr(w, r, stockcore.Invalid("id", "must be a positive integer"))
		return
	}
	if err := h.gate.RevokeAll(r.Context(), id); err != nil {
		writeErr(w, r, err)
		return
	}
	writeResult(w, r, stockcore.Success(id))
}

// ==============================
// Inventory
// ==============================

func (h *handlers) listWarehouses(w http.ResponseWriter, r *http.Request) {
	writeResult(w, r, h.inv.ListWarehouses(r.Context()))
}

func (h *handlers) createWarehouse(w http.ResponseWriter, r *http.Request) {
	var in inventory.NewWarehouse
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, r, err)
		return
	}
	res := h.inv.CreateWarehouse(r.Context(), in)
	if res.OK {
		writeJSON(w, r, http.StatusCreated, res)
		return
	}
	writeResult(w, r, res)
}

func (h *handlers) productsIn(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeErr(w, r, stockcore.Invalid("id", "must be an integer"))
		return
	}
	writeResult(w, r, h.inv.ProductsIn(r.Context(), id))
}

func (h *handlers) createProducts(w http.ResponseWriter, r *http.Request) {
	var in []inventory.NewProduct
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, r, err)
		return
	}
	res := h.inv.CreateProducts(r.Context(), in)
	if res.OK {
		writeJSON(w, r, http.StatusCreated, res)
		return
	}
	writeResult(w, r, res)
}

func (h *handlers) importProducts(w http.ResponseWriter, r *http.Request) {
	var in []inventory.Product
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, r, err)
		return
	}
	writeResult(w, r, h.inv.ImportProducts(r.Context(), in))
}

func (h *handlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	var in inventory.StockAdjustment
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, r, err)
		return
	}
	writeResult(w, r, h.inv.AdjustStock(r.Context(), in))
}

func (h *handlers) stockSummary(w http.ResponseWriter, r *http.Request) {
	writeResult(w, r, h.inv.StockSummary(r.Context()))
}

var reportTypes = map[string]string{
	inventory.ReportCSV:   "text/csv; charset=utf-8",
	inventory.ReportProto: "application/x-protobuf",
}

func (h *handlers) stockReport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = inventory.ReportCSV
	}
	res := h.inv.StockReport(r.Context(), format)
	if !res.OK {
		writeResult(w, r, res)
		return
	}
	w.Header().Set("Content-Type", reportTypes[format])
	w.Header().Set("Content-Disposition", `attachment; filename="stock.`+format+`"`)
	w.Header().Set("X-Request-ID", requestIDFrom(r.Context()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

func (h *handlers) refreshReports(w http.ResponseWriter, r *http.Request) {
	writeResult(w, r, h.inv.RefreshReports(r.Context()))
}
