// Package keys derives provider keys for cached reads.
package keys

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Entry returns "entry:<ns>:<hash>" where hash covers the ordered key parts.
// Each part is length-prefixed, so ("ab","c") and ("a","bc") differ.
// Order matters: the same parts in another order are another key.
func Entry(ns string, parts []string) string {
	h := sha256.New()
	var n [4]byte
	for _, p := range parts {
		binary.BigEndian.PutUint32(n[:], uint32(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	sum := h.Sum(nil)
	return "entry:" + ns + ":" + hex.EncodeToString(sum[:16])
}
