package auth

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/unkn0wn-root/stockcore/session"
)

func okHandler(t *testing.T, wantSession bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := SessionFromContext(r.Context())
		if ok != wantSession {
			t.Errorf("session on context=%v want %v", ok, wantSession)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestMiddlewareRedirectsWithReturnPath(t *testing.T) {
	f := newGateFixture(t, nil)
	h := f.gate.Middleware(GateConfig{})(okHandler(t, false))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/warehouses/7/stock?sort=name&dir=asc", nil))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status=%d", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	if loc.Path != "/login" {
		t.Fatalf("location=%s", loc)
	}
	if got := loc.Query().Get("next"); got != "/warehouses/7/stock?sort=name&dir=asc" {
		t.Fatalf("next=%q", got)
	}
}

func TestMiddlewarePublicPaths(t *testing.T) {
	f := newGateFixture(t, nil)
	h := f.gate.Middleware(GateConfig{})(okHandler(t, false))

	for _, p := range []string{"/login", "/static/app.css", "/api/public/ping", "/healthz"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("%s: status=%d", p, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/loginx", nil))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("/loginx should not be public, status=%d", rec.Code)
	}
}

func TestMiddlewareAttachesSession(t *testing.T) {
	f := newGateFixture(t, nil)
	h := f.gate.Middleware(GateConfig{})(okHandler(t, true))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, f.requestWith(t, session.LevelCashier))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestRequireLevelMiddleware(t *testing.T) {
	f := newGateFixture(t, nil)
	h := f.gate.Middleware(GateConfig{})(RequireLevel(session.LevelAdmin, nil)(okHandler(t, true)))

	cases := map[session.AccessLevel]int{
		session.LevelCashier: http.StatusForbidden,
		session.LevelAdmin:   http.StatusNoContent,
		session.LevelMaster:  http.StatusNoContent,
	}
	for lvl, want := range cases {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, f.requestWith(t, lvl))
		if rec.Code != want {
			t.Fatalf("%v: status=%d want %d", lvl, rec.Code, want)
		}
	}

	rec := httptest.NewRecorder()
	RequireLevel(session.LevelCashier, nil)(okHandler(t, true)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no session: status=%d", rec.Code)
	}
}

func TestSafeReturnPath(t *testing.T) {
	cases := map[string]string{
		"":                        "/",
		"/":                       "/",
		"/documents?id=3":         "/documents?id=3",
		"https://evil.example/x":  "/",
		"//evil.example/x":        "/",
		"/\\evil.example":         "/",
		"javascript:alert(1)":     "/",
		"/ok\r\nSet-Cookie: x=1":  "/",
		"relative/path":           "/",
		"/warehouses/1#stock-tab": "/warehouses/1#stock-tab",
	}
	for in, want := range cases {
		if got := SafeReturnPath(in); got != want {
			t.Fatalf("SafeReturnPath(%q)=%q want %q", in, got, want)
		}
	}
}

func TestLoginRedirectURL(t *testing.T) {
	if got := LoginRedirectURL("/login", "next", "/"); got != "/login" {
		t.Fatalf("got %q", got)
	}
	if got := LoginRedirectURL("/login", "next", "//evil"); got != "/login" {
		t.Fatalf("got %q", got)
	}
	if got := LoginRedirectURL("/login", "return", "/a?b=1&c=2"); got != "/login?return=%2Fa%3Fb%3D1%26c%3D2" {
		t.Fatalf("got %q", got)
	}
}
