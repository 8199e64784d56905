package order

import (
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/aleph-go/poset/pkg/crypto"
)

// CommonRandomPermutation derives the deterministic creator ordering used
// to pick a timing-unit candidate at a given level (§6 "derived
// deterministically from the concatenation of hex-encoded public keys and
// a level index"). networkID is mixed into the seed so two committees
// running the same public keys (e.g. a testnet replaying a mainnet
// roster) don't share a permutation. It depends only on public committee
// data, so every honest process computes an identical permutation for a
// given level.
func CommonRandomPermutation(networkID string, pubKeysHex []string, level int) []int {
	n := len(pubKeysHex)
	type scored struct {
		creator int
		key     [32]byte
	}
	scoredIDs := make([]scored, n)

	seed := []byte(networkID)
	for _, pk := range pubKeysHex {
		seed = append(seed, []byte(pk)...)
	}
	seed = binary.BigEndian.AppendUint32(seed, uint32(level))

	for creator := 0; creator < n; creator++ {
		buf := append(append([]byte(nil), seed...), byte(creator>>24), byte(creator>>16), byte(creator>>8), byte(creator))
		scoredIDs[creator] = scored{creator: creator, key: crypto.Hash(buf)}
	}

	sort.Slice(scoredIDs, func(i, j int) bool {
		return hex.EncodeToString(scoredIDs[i].key[:]) < hex.EncodeToString(scoredIDs[j].key[:])
	})

	order := make([]int, n)
	for i, s := range scoredIDs {
		order[i] = s.creator
	}
	return order
}
