package driver

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"github.com/aleph-go/poset/internal/unit"
	"github.com/aleph-go/poset/pkg/types"
)

// maxSyncFrameBytes bounds a single sync frame so a misbehaving or
// compromised peer can't force an unbounded allocation.
const maxSyncFrameBytes = 64 * 1024 * 1024

// stateMessage is step 1/2 of the sync protocol (§6): an initiator or
// target's own id, max heights, and maximal hashes per creator.
type stateMessage struct {
	ProcessID int
	Heights   []int
	Hashes    [][]types.Hash
}

// unitBatch is step 3/4: the units the sender believes the counterpart is
// missing, in creator order then height order.
type unitBatch struct {
	Units []*unit.Unit
}

// writeFrame frames payload as "<decimal length>\n<payload>" per §6, never
// using encoding/json or encoding/gob for anything consensus-relevant.
func writeFrame(w io.Writer, payload []byte) error {
	if _, err := io.WriteString(w, strconv.Itoa(len(payload))+"\n"); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame.
func readFrame(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read frame length: %w", err)
	}
	line = line[:len(line)-1]
	n, err := strconv.Atoi(line)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: bad frame length %q", ErrProtocolViolation, line)
	}
	if n > maxSyncFrameBytes {
		return nil, fmt.Errorf("%w: frame length %d exceeds limit", ErrProtocolViolation, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return buf, nil
}

// encodeState is the canonical payload for stateMessage:
//
//	uint32 process_id
//	uint32 n
//	  uint32 height[i]
//	for each creator i in 0..n:
//	  uint32 len(hashes[i]); hash * len
func encodeState(m stateMessage) []byte {
	var buf []byte
	var tmp [4]byte

	putU32 := func(v uint32) {
		binary.BigEndian.PutUint32(tmp[:], v)
		buf = append(buf, tmp[:]...)
	}

	putU32(uint32(m.ProcessID))
	n := len(m.Heights)
	putU32(uint32(n))
	for i := 0; i < n; i++ {
		// Heights are stored +1 so that "no unit yet" (-1) round-trips
		// through the unsigned wire field instead of wrapping.
		putU32(uint32(m.Heights[i] + 1))
	}
	for i := 0; i < n; i++ {
		hashes := m.Hashes[i]
		putU32(uint32(len(hashes)))
		for _, h := range hashes {
			buf = append(buf, h[:]...)
		}
	}
	return buf
}

type stateReader struct {
	data []byte
	pos  int
}

func (r *stateReader) u32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("%w: truncated state message", ErrProtocolViolation)
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *stateReader) hash() (types.Hash, error) {
	var h types.Hash
	if r.pos+types.HashSize > len(r.data) {
		return h, fmt.Errorf("%w: truncated hash", ErrProtocolViolation)
	}
	copy(h[:], r.data[r.pos:r.pos+types.HashSize])
	r.pos += types.HashSize
	return h, nil
}

func decodeState(data []byte) (stateMessage, error) {
	r := &stateReader{data: data}
	pid, err := r.u32()
	if err != nil {
		return stateMessage{}, err
	}
	n, err := r.u32()
	if err != nil {
		return stateMessage{}, err
	}
	heights := make([]int, n)
	for i := range heights {
		h, err := r.u32()
		if err != nil {
			return stateMessage{}, err
		}
		heights[i] = int(h) - 1
	}
	hashLists := make([][]types.Hash, n)
	for i := range hashLists {
		count, err := r.u32()
		if err != nil {
			return stateMessage{}, err
		}
		list := make([]types.Hash, count)
		for j := range list {
			h, err := r.hash()
			if err != nil {
				return stateMessage{}, err
			}
			list[j] = h
		}
		hashLists[i] = list
	}
	if r.pos != len(r.data) {
		return stateMessage{}, fmt.Errorf("%w: trailing bytes in state message", ErrProtocolViolation)
	}
	return stateMessage{ProcessID: int(pid), Heights: heights, Hashes: hashLists}, nil
}

// encodeBatch is a count-prefixed list of unit.Encode blobs, reusing the
// same canonical UnitWire layout as a single unit's own identity hash (§6).
func encodeBatch(b unitBatch) []byte {
	var buf []byte
	var tmp [4]byte
	putU32 := func(v uint32) {
		binary.BigEndian.PutUint32(tmp[:], v)
		buf = append(buf, tmp[:]...)
	}
	putU32(uint32(len(b.Units)))
	for _, u := range b.Units {
		encoded := unit.Encode(u)
		putU32(uint32(len(encoded)))
		buf = append(buf, encoded...)
	}
	return buf
}

func decodeBatch(data []byte) (unitBatch, error) {
	r := &stateReader{data: data}
	count, err := r.u32()
	if err != nil {
		return unitBatch{}, err
	}
	units := make([]*unit.Unit, count)
	for i := range units {
		n, err := r.u32()
		if err != nil {
			return unitBatch{}, err
		}
		if r.pos+int(n) > len(r.data) {
			return unitBatch{}, fmt.Errorf("%w: truncated unit blob", ErrProtocolViolation)
		}
		blob := r.data[r.pos : r.pos+int(n)]
		r.pos += int(n)
		u, err := unit.Decode(blob)
		if err != nil {
			return unitBatch{}, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
		}
		units[i] = u
	}
	if r.pos != len(r.data) {
		return unitBatch{}, fmt.Errorf("%w: trailing bytes in unit batch", ErrProtocolViolation)
	}
	return unitBatch{Units: units}, nil
}
