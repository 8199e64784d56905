// Package crypto provides cryptographic primitives for the poset engine.
package crypto

import (
	"github.com/aleph-go/poset/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// DoubleHash computes Hash(Hash(data)).
func DoubleHash(data []byte) types.Hash {
	first := Hash(data)
	return Hash(first[:])
}

// HashConcat hashes the concatenation of two hashes.
// Used for the linear order's tie-break key, H(hash(V) || hash(T))
// (internal/order.TieBreakSort).
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(buf[:])
}
