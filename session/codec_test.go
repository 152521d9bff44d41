package session

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestCodec(t *testing.T, now *time.Time) *Codec {
	t.Helper()
	c, err := NewCodec(Config{
		Secret: testSecret,
		TTL:    time.Hour,
		Now:    func() time.Time { return *now },
	})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func sampleSession() Session {
	return Session{
		SubjectID:   42,
		AccessLevel: LevelAdmin,
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Email:       "ada@example.com",
		Epoch:       3,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 30, 15, 987654321, time.UTC)
	c := newTestCodec(t, &now)

	tok, issued, err := c.Encode(sampleSession())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if issued.ID == "" {
		t.Fatalf("token id not assigned")
	}
	if !issued.IssuedAt.Equal(now.Truncate(time.Second)) || !issued.ExpiresAt.Equal(issued.IssuedAt.Add(time.Hour)) {
		t.Fatalf("times: iat=%v exp=%v", issued.IssuedAt, issued.ExpiresAt)
	}

	got, ok := c.Decode(tok)
	if !ok {
		t.Fatalf("Decode rejected a fresh token")
	}
	if !sameSession(got, issued) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, issued)
	}
}

func sameSession(a, b Session) bool {
	if !a.IssuedAt.Equal(b.IssuedAt) || !a.ExpiresAt.Equal(b.ExpiresAt) {
		return false
	}
	a.IssuedAt, a.ExpiresAt = time.Time{}, time.Time{}
	b.IssuedAt, b.ExpiresAt = time.Time{}, time.Time{}
	return a == b
}

func TestDecodeRejectsTamperedToken(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	c := newTestCodec(t, &now)
	tok, _, err := c.Encode(sampleSession())
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < len(tok); i++ {
		if tok[i] == '.' {
			continue
		}
		repl := byte('A')
		if tok[i] == 'A' {
			repl = 'B'
		}
		bad := tok[:i] + string(repl) + tok[i+1:]
		if s, ok := c.Decode(bad); ok || s != (Session{}) {
			t.Fatalf("tampered token accepted at %d: %+v", i, s)
		}
	}
}

func TestDecodeRejectsLowBitFlipInSignature(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	c := newTestCodec(t, &now)
	tok, _, err := c.Encode(sampleSession())
	if err != nil {
		t.Fatal(err)
	}
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	last := strings.IndexByte(alphabet, tok[len(tok)-1])
	if last < 0 {
		t.Fatalf("unexpected last char %q", tok[len(tok)-1])
	}
	// a 43 char HS256 signature carries 2 unused low bits in its last char
	for _, flip := range []int{1, 2} {
		bad := tok[:len(tok)-1] + string(alphabet[last^flip])
		if _, ok := c.Decode(bad); ok {
			t.Fatalf("signature with low bits flipped (^%d) accepted", flip)
		}
	}
}

func TestDecodeRejectsExpired(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	c := newTestCodec(t, &now)
	tok, _, _ := c.Encode(sampleSession())

	now = now.Add(59 * time.Minute)
	if _, ok := c.Decode(tok); !ok {
		t.Fatalf("token rejected before expiry")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := c.Decode(tok); ok {
		t.Fatalf("expired token accepted")
	}
}

func TestDecodeRejectsOtherKeyIssuerAndAlg(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	c := newTestCodec(t, &now)

	other, err := NewCodec(Config{Secret: []byte(strings.Repeat("z", 32)), Now: func() time.Time { return now }})
	if err != nil {
		t.Fatal(err)
	}
	tok, _, _ := other.Encode(sampleSession())
	if _, ok := c.Decode(tok); ok {
		t.Fatalf("token signed with another key accepted")
	}

	foreign, err := NewCodec(Config{Secret: testSecret, Issuer: "someone-else", Now: func() time.Time { return now }})
	if err != nil {
		t.Fatal(err)
	}
	tok, _, _ = foreign.Encode(sampleSession())
	if _, ok := c.Decode(tok); ok {
		t.Fatalf("token from another issuer accepted")
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, claims{
		Level: int(LevelMaster),
		RegisteredClaims: jwt.RegisteredClaims{
			ID: "x", Subject: "1", Issuer: DefaultIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Decode(unsigned); ok {
		t.Fatalf("alg=none token accepted")
	}
}

func TestDecodeRejectsUnknownLevelAndGarbage(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	c := newTestCodec(t, &now)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Level: 99,
		RegisteredClaims: jwt.RegisteredClaims{
			ID: "x", Subject: "1", Issuer: DefaultIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	tok, err := forged.SignedString(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Decode(tok); ok {
		t.Fatalf("unknown access level accepted")
	}

	for _, s := range []string{"", "abc", "a.b.c", strings.Repeat(".", 5)} {
		if _, ok := c.Decode(s); ok {
			t.Fatalf("garbage %q accepted", s)
		}
	}
}

func TestEncodeRejectsInvalidLevel(t *testing.T) {
	now := time.Now()
	c := newTestCodec(t, &now)
	s := sampleSession()
	s.AccessLevel = 0
	if _, _, err := c.Encode(s); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestNewCodecValidates(t *testing.T) {
	if _, err := NewCodec(Config{Secret: []byte("short")}); err != ErrWeakSecret {
		t.Fatalf("err=%v", err)
	}
	if _, err := NewCodec(Config{Secret: testSecret, Leeway: time.Hour}); err == nil {
		t.Fatalf("expected leeway error")
	}
}

func TestAccessLevelOrdering(t *testing.T) {
	if !LevelMaster.AtLeast(LevelAdmin) || !LevelAdmin.AtLeast(LevelAdmin) || LevelCashier.AtLeast(LevelAdmin) {
		t.Fatalf("AtLeast ordering broken")
	}
	for _, l := range []AccessLevel{LevelCashier, LevelAdmin, LevelMaster} {
		b, err := l.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var got AccessLevel
		if err := got.UnmarshalText(b); err != nil || got != l {
			t.Fatalf("%v: got %v err=%v", l, got, err)
		}
	}
	if _, err := ParseAccessLevel("root"); err == nil {
		t.Fatalf("unknown level parsed")
	}
}
