package codec

// Bytes is an identity codec for []byte values, for pre-rendered payloads
// (report exports, document blobs) that only need the entry framing.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return b, nil }

// String is a trivial UTF-8 codec for string values. No validation is done.
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }
