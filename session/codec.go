package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	minSecretBytes = 32
	maxLeeway      = 2 * time.Minute
	DefaultIssuer  = "stockcore"
	DefaultTTL     = 12 * time.Hour
)

var (
	ErrWeakSecret    = errors.New("session: secret must be at least 32 bytes")
	ErrInvalidConfig = errors.New("session: invalid codec config")
)

type Config struct {
	Secret []byte
	TTL    time.Duration // 0 => DefaultTTL
	Issuer string        // "" => DefaultIssuer
	Leeway time.Duration // clock skew tolerated on exp
	Now    func() time.Time
}

// Codec mints and verifies HS256 session tokens. It performs no I/O and is
// safe for concurrent use.
type Codec struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

type claims struct {
	Level     int    `json:"lvl"`
	Epoch     uint64 `json:"ep,omitempty"`
	FirstName string `json:"fn,omitempty"`
	LastName  string `json:"ln,omitempty"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, ErrWeakSecret
	}
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("%w: negative TTL", ErrInvalidConfig)
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, fmt.Errorf("%w: leeway must be within [0, %s]", ErrInvalidConfig, maxLeeway)
	}
	c := &Codec{
		secret: append([]byte(nil), cfg.Secret...),
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    cfg.Now,
	}
	if c.ttl == 0 {
		c.ttl = DefaultTTL
	}
	if c.issuer == "" {
		c.issuer = DefaultIssuer
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithTimeFunc(c.now),
	)
	return c, nil
}

func (c *Codec) TTL() time.Duration { return c.ttl }

// Encode signs s. Missing ID, IssuedAt and ExpiresAt are filled in (IssuedAt
// from the codec clock, ExpiresAt as IssuedAt+TTL), times are truncated to
// the token's one second precision, and the session as encoded is returned.
func (c *Codec) Encode(s Session) (string, Session, error) {
	if !s.AccessLevel.Valid() {
		return "", Session{}, fmt.Errorf("session: invalid access level %d", int(s.AccessLevel))
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.IssuedAt.IsZero() {
		s.IssuedAt = c.now()
	}
	s.IssuedAt = s.IssuedAt.UTC().Truncate(time.Second)
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = s.IssuedAt.Add(c.ttl)
	}
	s.ExpiresAt = s.ExpiresAt.UTC().Truncate(time.Second)
	if !s.ExpiresAt.After(s.IssuedAt) {
		return "", Session{}, errors.New("session: expiry must be after issue time")
	}

	cl := claims{
		Level:     int(s.AccessLevel),
		Epoch:     s.Epoch,
		FirstName: s.FirstName,
		LastName:  s.LastName,
		Email:     s.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID,
			Issuer:    c.issuer,
			Subject:   strconv.FormatInt(s.SubjectID, 10),
			IssuedAt:  jwt.NewNumericDate(s.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(c.secret)
	if err != nil {
		return "", Session{}, fmt.Errorf("session: sign: %w", err)
	}
	return tok, s, nil
}

// Decode verifies token and returns its session. Malformed, forged, expired
// or foreign tokens yield ok=false; Decode never returns a partial session.
func (c *Codec) Decode(token string) (Session, bool) {
	if token == "" {
		return Session{}, false
	}
	var cl claims
	if _, err := c.parser.ParseWithClaims(token, &cl, c.key); err != nil {
		return Session{}, false
	}
	if cl.ID == "" || cl.IssuedAt == nil || cl.ExpiresAt == nil {
		return Session{}, false
	}
	sub, err := strconv.ParseInt(cl.Subject, 10, 64)
	if err != nil {
		return Session{}, false
	}
	lvl := AccessLevel(cl.Level)
	if !lvl.Valid() {
		return Session{}, false
	}
	return Session{
		ID:          cl.ID,
		SubjectID:   sub,
		IssuedAt:    cl.IssuedAt.UTC(),
		ExpiresAt:   cl.ExpiresAt.UTC(),
		AccessLevel: lvl,
		Epoch:       cl.Epoch,
		FirstName:   cl.FirstName,
		LastName:    cl.LastName,
		Email:       cl.Email,
	}, true
}

func (c *Codec) key(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
	return c.secret, nil
}
