// Package auth is the access control gate: it resolves the session behind a
// request, enforces minimum access levels, and logs users in and out.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/unkn0wn-root/stockcore/genstore"
	"github.com/unkn0wn-root/stockcore/logx"
	"github.com/unkn0wn-root/stockcore/session"
)

type Config struct {
	Codec     *session.Codec   // required
	Users     UserSource       // required for Login
	Passwords PasswordVerifier // required for Login

	// Epochs enables RevokeAll. A token is accepted only while its epoch equals
	// the subject's current epoch. nil keeps the gate stateless.
	Epochs genstore.GenStore

	CookieSecure bool
	Logger       logx.Logger
}

type Credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type Gate struct {
	codec        *session.Codec
	users        UserSource
	passwords    PasswordVerifier
	epochs       genstore.GenStore
	cookieSecure bool
	log          logx.Logger
}

func NewGate(cfg Config) (*Gate, error) {
	if cfg.Codec == nil {
		return nil, errors.New("auth: session codec is required")
	}
	return &Gate{
		codec:        cfg.Codec,
		users:        cfg.Users,
		passwords:    cfg.Passwords,
		epochs:       cfg.Epochs,
		cookieSecure: cfg.CookieSecure,
		log:          logx.OrNop(cfg.Logger),
	}, nil
}

// Resolve returns the session behind token. Every failure, including an
// unreachable epoch store, is reported as ok=false.
func (g *Gate) Resolve(ctx context.Context, token string) (session.Session, bool) {
	s, ok := g.codec.Decode(token)
	if !ok {
		return session.Session{}, false
	}
	if g.epochs == nil {
		return s, true
	}
	cur, err := g.epochs.Snapshot(ctx, epochKey(s.SubjectID))
	if err != nil {
		g.log.Warn("session epoch lookup failed; treating as unauthenticated",
			logx.Fields{"subject": s.SubjectID, "err": err})
		return session.Session{}, false
	}
	if cur != s.Epoch {
		g.log.Debug("revoked session presented", logx.Fields{"subject": s.SubjectID, "sid": s.ID})
		return session.Session{}, false
	}
	return s, true
}

// CurrentSession resolves the session cookie of r.
func (g *Gate) CurrentSession(r *http.Request) (session.Session, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return session.Session{}, false
	}
	return g.Resolve(r.Context(), c.Value)
}

// RequireSession is CurrentSession plus a minimum level check. It fails with
// ErrUnauthenticated or ErrForbidden.
func (g *Gate) RequireSession(r *http.Request, min session.AccessLevel) (session.Session, error) {
	s, ok := g.CurrentSession(r)
	if !ok {
		return session.Session{}, ErrUnauthenticated
	}
	if !s.AccessLevel.AtLeast(min) {
		return session.Session{}, ErrForbidden
	}
	return s, nil
}

// Login verifies credentials and mints a session token. The caller attaches
// the token to the response with SetTokenCookie.
func (g *Gate) Login(ctx context.Context, c Credentials) (session.Session, string, error) {
	login := strings.TrimSpace(c.Login)
	if login == "" || c.Password == "" {
		return session.Session{}, "", ErrInvalidCredentials
	}
	if g.users == nil || g.passwords == nil {
		return session.Session{}, "", errors.New("auth: login is not configured")
	}

	u, err := g.users.UserByLogin(ctx, login)
	if errors.Is(err, ErrUserNotFound) {
		g.log.Info("login failed", logx.Fields{"login": login, "reason": "unknown_login"})
		return session.Session{}, "", ErrAuthenticationFailed
	}
	if err != nil {
		g.log.Error("user lookup failed", logx.Fields{"login": login, "err": err})
		return session.Session{}, "", fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	ok, err := g.passwords.Verify(c.Password, u.PasswordHash)
	if err != nil {
		g.log.Error("stored password hash unusable", logx.Fields{"subject": u.ID, "err": err})
		return session.Session{}, "", ErrAuthenticationFailed
	}
	if !ok {
		g.log.Info("login failed", logx.Fields{"login": login, "reason": "bad_password"})
		return session.Session{}, "", ErrAuthenticationFailed
	}
	if u.Disabled {
		g.log.Info("login failed", logx.Fields{"login": login, "reason": "disabled"})
		return session.Session{}, "", ErrAuthenticationFailed
	}

	var epoch uint64
	if g.epochs != nil {
		if epoch, err = g.epochs.Snapshot(ctx, epochKey(u.ID)); err != nil {
			return session.Session{}, "", fmt.Errorf("%w: session epoch: %w", ErrStorageUnavailable, err)
		}
	}

	token, s, err := g.codec.Encode(session.Session{
		SubjectID:   u.ID,
		AccessLevel: u.AccessLevel,
		Epoch:       epoch,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
	})
	if err != nil {
		return session.Session{}, "", err
	}
	g.log.Info("login", logx.Fields{"subject": s.SubjectID, "level": s.AccessLevel.String(), "sid": s.ID})
	return s, token, nil
}

// Logout clears the session cookie. The token itself stays valid until it
// expires; use RevokeAll to cut it off server-side.
func (g *Gate) Logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RevokeAll invalidates every token issued to subjectID so far.
func (g *Gate) RevokeAll(ctx context.Context, subjectID int64) error {
	if g.epochs == nil {
		return errors.New("auth: revocation requires an epoch store")
	}
	epoch, err := g.epochs.Bump(ctx, epochKey(subjectID))
	if err != nil {
		return fmt.Errorf("%w: revoke: %w", ErrStorageUnavailable, err)
	}
	g.log.Info("sessions revoked", logx.Fields{"subject": subjectID, "epoch": epoch})
	return nil
}

func epochKey(subjectID int64) string { return "subject:" + strconv.FormatInt(subjectID, 10) }
