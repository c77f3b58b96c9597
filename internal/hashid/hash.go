// Package hashid implements the fixed-length content hash used to
// identify commit, global-log, and ref-log entries throughout the
// adapter (spec component C1).
package hashid

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/newffy/nessie/internal/nesserr"
)

// Size is the fixed length, in bytes, of a Hash. SHA-256 gives us a
// 32-byte digest, comfortably above the >= 20 byte floor spec.md §3
// requires.
const Size = sha256.Size

// Hash is an opaque, fixed-length content hash.
type Hash [Size]byte

// noAncestor is the all-zero sentinel marking the root of history.
var noAncestor Hash

// NoAncestor returns the fixed sentinel value marking the beginning of
// history. It is deterministic: the all-zero Hash value, fixed rather
// than computed by Of from any input.
func NoAncestor() Hash { return noAncestor }

// IsNoAncestor reports whether h is the no-ancestor sentinel.
func (h Hash) IsNoAncestor() bool { return h == noAncestor }

// Of computes the content hash of b.
func Of(b []byte) Hash {
	return Hash(sha256.Sum256(b))
}

// String renders h as lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the underlying bytes.
func (h Hash) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, h[:])
	return out
}

// Equal reports whether h and other are the same hash.
func (h Hash) Equal(other Hash) bool { return h == other }

// Parse decodes a hex string into a Hash. Short-prefix lookups are not
// supported at the adapter level: the string must be exactly 2*Size hex
// characters. Malformed or wrong-length input is rejected with
// nesserr.InvalidArgument, per spec.md §4.1.
func Parse(s string) (Hash, error) {
	s = strings.TrimSpace(s)
	if len(s)%2 != 0 {
		return Hash{}, nesserr.New(nesserr.InvalidArgument, "odd-length hex hash %q", s)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, nesserr.Wrap(nesserr.InvalidArgument, err, "malformed hex hash %q", s)
	}
	if len(raw) != Size {
		return Hash{}, nesserr.New(nesserr.InvalidArgument, "hash %q has length %d, want %d bytes", s, len(raw), Size)
	}
	var h Hash
	copy(h[:], raw)
	return h, nil
}

// MustParse is Parse but panics on error; intended for tests and
// compile-time constant hashes.
func MustParse(s string) Hash {
	h, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return h
}
