package auth

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/unkn0wn-root/stockcore/session"
)

// CookieName is the well-known cookie carrying the session token.
const CookieName = "stockcore_session"

const defaultReturnParam = "next"

// SetTokenCookie attaches token to the response, expiring with s.
func (g *Gate) SetTokenCookie(w http.ResponseWriter, token string, s session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   g.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

type GateConfig struct {
	LoginPath string // "" => "/login"
	// PublicPrefixes are reachable without a session. nil => DefaultPublicPrefixes.
	PublicPrefixes []string
	ReturnParam    string // "" => "next"
}

func DefaultPublicPrefixes() []string {
	return []string{"/login", "/static/", "/api/public/", "/healthz"}
}

// Middleware puts the request's session (if any) on the context and
// redirects requests for non-public paths without one to the login page,
// preserving the original path and query as the return parameter.
func (g *Gate) Middleware(cfg GateConfig) func(http.Handler) http.Handler {
	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}
	public := cfg.PublicPrefixes
	if public == nil {
		public = DefaultPublicPrefixes()
	}
	param := cfg.ReturnParam
	if param == "" {
		param = defaultReturnParam
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s, ok := g.CurrentSession(r); ok {
				next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
				return
			}
			if isPublic(r.URL.Path, public) {
				next.ServeHTTP(w, r)
				return
			}
			http.Redirect(w, r, LoginRedirectURL(loginPath, param, r.URL.RequestURI()), http.StatusSeeOther)
		})
	}
}

// DenyFunc writes the response for a request rejected with ErrUnauthenticated
// or ErrForbidden.
type DenyFunc func(w http.ResponseWriter, r *http.Request, err error)

// RequireLevel rejects requests whose context session is missing or below min.
// deny nil => plain 401/403.
func RequireLevel(min session.AccessLevel, deny DenyFunc) func(http.Handler) http.Handler {
	if deny == nil {
		deny = func(w http.ResponseWriter, _ *http.Request, err error) {
			if errors.Is(err, ErrForbidden) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := Require(r.Context(), min); err != nil {
				deny(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoginRedirectURL builds loginPath?param=<target>. Unsafe targets are dropped.
func LoginRedirectURL(loginPath, param, target string) string {
	target = SafeReturnPath(target)
	if target == "/" {
		return loginPath
	}
	return loginPath + "?" + url.Values{param: {target}}.Encode()
}

// SafeReturnPath returns raw if it is a local absolute path, else "/".
// It rejects absolute URLs, protocol-relative "//host" and backslash tricks
// that browsers normalize into another origin.
func SafeReturnPath(raw string) string {
	if raw == "" || raw[0] != '/' {
		return "/"
	}
	if len(raw) > 1 && (raw[1] == '/' || raw[1] == '\\') {
		return "/"
	}
	if strings.ContainsAny(raw, "\r\n\t") {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "/"
	}
	return raw
}

func isPublic(path string, prefixes []string) bool {
	for _, p := range prefixes {
		base := strings.TrimSuffix(p, "/")
		if path == base || strings.HasPrefix(path, base+"/") {
			return true
		}
	}
	return false
}
