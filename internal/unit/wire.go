package unit

import (
	"encoding/binary"
	"fmt"

	"github.com/aleph-go/poset/pkg/types"
)

// Wire layout (all integers big-endian, §6 "fixed integer width"):
//
//   uint32            creator_id
//   uint32            len(parents); [32]byte * len(parents) parent hashes
//   uint32            len(txs); each: uint32 length + bytes
//   uint32            len(signature); bytes
//   uint32            len(coin_shares); each: uint32 length + bytes
//
// This is the UnitWire record of §6, and is also what BytesToSign/Hash are
// built from, so a round trip through Encode/Decode never changes a unit's
// hash (§8 "Round-trip" law).

// Encode serializes u into the canonical wire format.
func Encode(u *Unit) []byte {
	var buf []byte
	buf = binary.BigEndian.AppendUint32(buf, uint32(u.CreatorID))
	buf = appendHashes(buf, u.Parents)
	buf = appendBlobs(buf, u.Txs)
	buf = appendBlob(buf, u.Signature)
	buf = appendBlobs(buf, u.CoinShares)
	return buf
}

// Decode parses the canonical wire format produced by Encode.
func Decode(data []byte) (*Unit, error) {
	r := &reader{buf: data}

	creatorID, err := r.uint32()
	if err != nil {
		return nil, fmt.Errorf("decode unit: creator_id: %w", err)
	}

	nParents, err := r.uint32()
	if err != nil {
		return nil, fmt.Errorf("decode unit: parents length: %w", err)
	}
	parents := make([]types.Hash, nParents)
	for i := range parents {
		h, err := r.hash()
		if err != nil {
			return nil, fmt.Errorf("decode unit: parent %d: %w", i, err)
		}
		parents[i] = h
	}

	txs, err := r.blobs()
	if err != nil {
		return nil, fmt.Errorf("decode unit: txs: %w", err)
	}

	sig, err := r.blob()
	if err != nil {
		return nil, fmt.Errorf("decode unit: signature: %w", err)
	}

	coinShares, err := r.blobs()
	if err != nil {
		return nil, fmt.Errorf("decode unit: coin_shares: %w", err)
	}

	if !r.empty() {
		return nil, fmt.Errorf("decode unit: %d trailing bytes", len(r.buf)-r.off)
	}

	return &Unit{
		CreatorID:  int(creatorID),
		Parents:    parents,
		Txs:        txs,
		Signature:  sig,
		CoinShares: coinShares,
	}, nil
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) empty() bool {
	return r.off >= len(r.buf)
}

func (r *reader) uint32() (uint32, error) {
	if len(r.buf)-r.off < 4 {
		return 0, fmt.Errorf("truncated uint32")
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) hash() (types.Hash, error) {
	var h types.Hash
	if len(r.buf)-r.off < len(h) {
		return h, fmt.Errorf("truncated hash")
	}
	copy(h[:], r.buf[r.off:])
	r.off += len(h)
	return h, nil
}

func (r *reader) blob() ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if len(r.buf)-r.off < int(n) {
		return nil, fmt.Errorf("truncated blob of length %d", n)
	}
	b := make([]byte, n)
	copy(b, r.buf[r.off:r.off+int(n)])
	r.off += int(n)
	return b, nil
}

func (r *reader) blobs() ([][]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, n)
	for i := range out {
		b, err := r.blob()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}
