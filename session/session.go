// Package session defines the authenticated session and its signed token form.
package session

import (
	"fmt"
	"strings"
	"time"
)

// AccessLevel ranks what a session may do. Levels are totally ordered;
// compare with AtLeast, never with equality.
type AccessLevel int

const (
	LevelCashier AccessLevel = 10
	LevelAdmin   AccessLevel = 20
	LevelMaster  AccessLevel = 30
)

func (l AccessLevel) Valid() bool {
	switch l {
	case LevelCashier, LevelAdmin, LevelMaster:
		return true
	}
	return false
}

// AtLeast reports whether l satisfies a minimum requirement of min.
func (l AccessLevel) AtLeast(min AccessLevel) bool { return l >= min }

func (l AccessLevel) String() string {
	switch l {
	case LevelCashier:
		return "cashier"
	case LevelAdmin:
		return "admin"
	case LevelMaster:
		return "master"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseAccessLevel accepts the names returned by String, case-insensitively.
func ParseAccessLevel(s string) (AccessLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cashier":
		return LevelCashier, nil
	case "admin":
		return LevelAdmin, nil
	case "master":
		return LevelMaster, nil
	}
	return 0, fmt.Errorf("session: unknown access level %q", s)
}

func (l AccessLevel) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("session: invalid access level %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *AccessLevel) UnmarshalText(b []byte) error {
	v, err := ParseAccessLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Session is the authenticated identity carried by a token. A session is
// never mutated; a changed identity is a new session with a new token.
type Session struct {
	ID          string // token id, unique per issued token
	SubjectID   int64
	IssuedAt    time.Time
	ExpiresAt   time.Time
	AccessLevel AccessLevel
	// Epoch is the subject's revocation epoch when the token was issued.
	Epoch     uint64
	FirstName string
	LastName  string
	Email     string
}

func (s Session) DisplayName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}
