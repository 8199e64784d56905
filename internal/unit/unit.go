// Package unit defines the immutable unit record (C1): the vertex type of
// the poset, its canonical byte encoding, and its signing/hashing contract.
package unit

import (
	"encoding/binary"
	"fmt"

	"github.com/aleph-go/poset/pkg/crypto"
	"github.com/aleph-go/poset/pkg/types"
)

// Unit is an immutable record produced by exactly one creator. Parents,
// txs, signature and coin shares are fixed at construction; height, level
// and floor are derived fields populated by the poset store once the unit
// is admitted (§3 "derived, cached fields populated by the store").
type Unit struct {
	CreatorID  int
	Parents    []types.Hash
	Txs        [][]byte
	Signature  []byte
	CoinShares [][]byte

	hash    types.Hash
	hashSet bool

	Height int
	Level  int
	Floor  map[int][]types.Hash
}

// IsGenesis reports whether U has no parents.
func (u *Unit) IsGenesis() bool {
	return len(u.Parents) == 0
}

// BytesToSign returns the canonical encoding of every field the creator's
// signature covers: creator id, ordered parent hashes, txs, coin shares.
// Signature itself is excluded, matching §4.1 "canonical encoding of
// creator, parent hashes in order, txs, coin_shares".
func (u *Unit) BytesToSign() []byte {
	var buf []byte
	buf = binary.BigEndian.AppendUint32(buf, uint32(u.CreatorID))
	buf = appendHashes(buf, u.Parents)
	buf = appendBlobs(buf, u.Txs)
	buf = appendBlobs(buf, u.CoinShares)
	return buf
}

// Sign signs the unit with sk and stores the resulting signature.
func (u *Unit) Sign(sk *crypto.PrivateKey) error {
	msg := crypto.Hash(u.BytesToSign())
	sig, err := sk.Sign(msg[:])
	if err != nil {
		return fmt.Errorf("sign unit: %w", err)
	}
	u.Signature = sig
	u.hashSet = false
	return nil
}

// VerifySignature checks u.Signature against pubKey over BytesToSign().
func (u *Unit) VerifySignature(pubKey []byte) bool {
	if len(u.Signature) == 0 {
		return false
	}
	msg := crypto.Hash(u.BytesToSign())
	return crypto.VerifySignature(msg[:], u.Signature, pubKey)
}

// Hash returns the content address of the full record, including the
// signature (§4.1 "collision-resistant digest of the full record including
// signature"). A unit's identity is this hash (§3). The result is cached.
func (u *Unit) Hash() types.Hash {
	if u.hashSet {
		return u.hash
	}
	h := crypto.Hash(Encode(u))
	u.hash = h
	u.hashSet = true
	return h
}

// Transactions returns the unit's ordered transaction payloads.
func (u *Unit) Transactions() [][]byte {
	return u.Txs
}

func appendHashes(buf []byte, hs []types.Hash) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(hs)))
	for _, h := range hs {
		buf = append(buf, h[:]...)
	}
	return buf
}

func appendBlobs(buf []byte, blobs [][]byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(blobs)))
	for _, b := range blobs {
		buf = appendBlob(buf, b)
	}
	return buf
}

func appendBlob(buf []byte, b []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}
