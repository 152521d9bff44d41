package codec

import (
	"errors"
	"fmt"
)

var ErrTooLarge = errors.New("codec: payload too large")

// LimitCodec wraps another codec to enforce a maximum allowed payload size
// at Decode time. Encode is forwarded to Inner unchanged.
// If MaxDecode <= 0, size limiting is disabled.
//
// Use it in front of a shared cache (redis provider) so an oversized entry
// written by another replica cannot force a large allocation here.
type LimitCodec[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

// Limit wraps c with a decode size cap. max <= 0 returns c unchanged.
func Limit[V any](c Codec[V], max int) Codec[V] {
	if max <= 0 {
		return c
	}
	return LimitCodec[V]{Inner: c, MaxDecode: max}
}

func (c LimitCodec[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }
func (c LimitCodec[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
