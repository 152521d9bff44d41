// Package codec turns cached values into bytes and back. A Codec is chosen per
// cached read; the tag cache frames its output with expiry and tag generations.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// ByName returns one of the general purpose codecs for V by its config name
// ("json", "msgpack", "cbor"). Unknown names return false.
func ByName[V any](name string) (Codec[V], bool) {
	switch name {
	case "", "json":
		return JSON[V]{}, true
	case "msgpack":
		return Msgpack[V]{}, true
	case "cbor":
		c, err := NewCBOR[V](false)
		if err != nil {
			return nil, false
		}
		return c, true
	default:
		return nil, false
	}
}
