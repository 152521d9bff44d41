package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/unkn0wn-root/stockcore/session"
)

// User is what the gate needs to authenticate someone.
type User struct {
	ID           int64               `yaml:"id"`
	Login        string              `yaml:"login"`
	PasswordHash string              `yaml:"password_hash"`
	AccessLevel  session.AccessLevel `yaml:"access_level"`
	FirstName    string              `yaml:"first_name"`
	LastName     string              `yaml:"last_name"`
	Email        string              `yaml:"email"`
	Disabled     bool                `yaml:"disabled"`
}

// UserSource looks users up by login. It returns ErrUserNotFound on a miss;
// any other error is treated as a backend outage.
type UserSource interface {
	UserByLogin(ctx context.Context, login string) (User, error)
}

// PasswordVerifier checks a password against a stored hash.
type PasswordVerifier interface {
	Verify(password, encodedHash string) (bool, error)
}

// StaticUsers is an in-memory UserSource. Logins are case-insensitive.
type StaticUsers struct {
	mu      sync.RWMutex
	byLogin map[string]User
}

var _ UserSource = (*StaticUsers)(nil)

func NewStaticUsers(users ...User) (*StaticUsers, error) {
	s := &StaticUsers{byLogin: make(map[string]User, len(users))}
	for _, u := range users {
		if err := s.Put(u); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Put adds or replaces a user.
func (s *StaticUsers) Put(u User) error {
	login := normalizeLogin(u.Login)
	if login == "" {
		return fmt.Errorf("auth: user %d has no login", u.ID)
	}
	if !u.AccessLevel.Valid() {
		return fmt.Errorf("auth: user %q has invalid access level %d", u.Login, int(u.AccessLevel))
	}
	if u.PasswordHash == "" {
		return fmt.Errorf("auth: user %q has no password hash", u.Login)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for l, other := range s.byLogin {
		if other.ID == u.ID && l != login {
			return fmt.Errorf("auth: duplicate user id %d (%q, %q)", u.ID, other.Login, u.Login)
		}
	}
	s.byLogin[login] = u
	return nil
}

func (s *StaticUsers) UserByLogin(_ context.Context, login string) (User, error) {
	s.mu.RLock()
	u, ok := s.byLogin[normalizeLogin(login)]
	s.mu.RUnlock()
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func normalizeLogin(l string) string { return strings.ToLower(strings.TrimSpace(l)) }
