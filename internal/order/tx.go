// Package order implements the linear-order engine (C4): timing-unit
// election, tie-break ordering, ledger application, and the SNAP
// fast-validation mode.
package order

import (
	"encoding/binary"
	"fmt"
)

// Tx is the concrete transaction payload carried inside a unit's opaque
// Txs blobs. The wire form of a unit treats Txs as opaque bytes (§3); Tx's
// own encoding only matters to the ledger, never to a unit's hash.
type Tx struct {
	Issuer   []byte // committee member's public key
	Receiver []byte
	Amount   int64
	Index    int64
}

// EncodeTx serializes tx to the fixed layout consumed by DecodeTx.
func EncodeTx(tx Tx) []byte {
	var buf []byte
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(tx.Issuer)))
	buf = append(buf, tx.Issuer...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(tx.Receiver)))
	buf = append(buf, tx.Receiver...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(tx.Amount))
	buf = binary.BigEndian.AppendUint64(buf, uint64(tx.Index))
	return buf
}

// DecodeTx parses the layout produced by EncodeTx.
func DecodeTx(data []byte) (Tx, error) {
	if len(data) < 4 {
		return Tx{}, fmt.Errorf("decode tx: truncated issuer length")
	}
	off := 0
	issuerLen := binary.BigEndian.Uint32(data[off:])
	off += 4
	if len(data)-off < int(issuerLen) {
		return Tx{}, fmt.Errorf("decode tx: truncated issuer")
	}
	issuer := append([]byte(nil), data[off:off+int(issuerLen)]...)
	off += int(issuerLen)

	if len(data)-off < 4 {
		return Tx{}, fmt.Errorf("decode tx: truncated receiver length")
	}
	receiverLen := binary.BigEndian.Uint32(data[off:])
	off += 4
	if len(data)-off < int(receiverLen) {
		return Tx{}, fmt.Errorf("decode tx: truncated receiver")
	}
	receiver := append([]byte(nil), data[off:off+int(receiverLen)]...)
	off += int(receiverLen)

	if len(data)-off < 16 {
		return Tx{}, fmt.Errorf("decode tx: truncated amount/index")
	}
	amount := int64(binary.BigEndian.Uint64(data[off:]))
	off += 8
	index := int64(binary.BigEndian.Uint64(data[off:]))
	off += 8

	if off != len(data) {
		return Tx{}, fmt.Errorf("decode tx: %d trailing bytes", len(data)-off)
	}

	return Tx{Issuer: issuer, Receiver: receiver, Amount: amount, Index: index}, nil
}
