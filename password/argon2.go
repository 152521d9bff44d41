// Package password hashes and verifies user passwords with argon2id, stored
// in PHC string format ($argon2id$v=19$m=...,t=...,p=...$salt$hash).
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	MinLength             = 8
	algorithmID           = "argon2id"
)

var (
	ErrTooShort      = fmt.Errorf("password: must be at least %d bytes", MinLength)
	ErrInvalidHash   = errors.New("password: invalid PHC hash")
	ErrInvalidConfig = errors.New("password: invalid argon2 config")
)

type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig follows the OWASP argon2id baseline (19 MiB, t=2, p=1).
func DefaultConfig() Config {
	return Config{Memory: 19 * 1024, Time: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

// Argon2 is immutable after construction and safe for concurrent use.
type Argon2 struct {
	config Config
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func NewArgon2(cfg Config) (*Argon2, error) {
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, fmt.Errorf("%w: memory must be >= %d KiB", ErrInvalidConfig, minMemoryKB)
	case cfg.Time < minTimeCost:
		return nil, fmt.Errorf("%w: time must be >= %d", ErrInvalidConfig, minTimeCost)
	case cfg.Parallelism < minParallelism:
		return nil, fmt.Errorf("%w: parallelism must be >= %d", ErrInvalidConfig, minParallelism)
	case cfg.SaltLength < minSaltLength:
		return nil, fmt.Errorf("%w: salt length must be >= %d", ErrInvalidConfig, minSaltLength)
	case cfg.KeyLength < minKeyLength:
		return nil, fmt.Errorf("%w: key length must be >= %d", ErrInvalidConfig, minKeyLength)
	}
	return &Argon2{config: cfg}, nil
}

// Hash uses the raw password bytes as given; there is no Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if len(password) < MinLength {
		return "", ErrTooShort
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		a.config.Memory, a.config.Time, a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the hash with the parameters stored in encoded, so hashes
// made under an older Config still verify.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(key, p.hash) == 1, nil
}

// NeedsUpgrade reports whether encoded was made with weaker parameters than
// the current Config.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return a.config.Memory > p.memory ||
		a.config.Time > p.time ||
		a.config.Parallelism > p.parallelism ||
		a.config.KeyLength != uint32(len(p.hash)), nil
}

func parsePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrInvalidHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidHash, parts[2])
	}

	var p phc
	var seen int
	for _, pair := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, ErrInvalidHash
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, ErrInvalidHash
		}
		switch k {
		case "m":
			p.memory = uint32(n)
		case "t":
			p.time = uint32(n)
		case "p":
			if n > 255 {
				return nil, ErrInvalidHash
			}
			p.parallelism = uint8(n)
		default:
			return nil, ErrInvalidHash
		}
		seen++
	}
	if seen != 3 || p.memory < minMemoryKB || p.time < minTimeCost || p.parallelism < minParallelism {
		return nil, ErrInvalidHash
	}

	var err error
	if p.salt, err = decodeB64(parts[4]); err != nil || len(p.salt) < int(minSaltLength) {
		return nil, ErrInvalidHash
	}
	if p.hash, err = decodeB64(parts[5]); err != nil || len(p.hash) < int(minKeyLength) {
		return nil, ErrInvalidHash
	}
	return &p, nil
}

// decodeB64 accepts both unpadded (reference argon2 CLI) and padded encodings.
func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
