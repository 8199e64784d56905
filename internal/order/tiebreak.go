package order

import (
	"sort"

	"github.com/aleph-go/poset/internal/unit"
	"github.com/aleph-go/poset/pkg/crypto"
	"github.com/aleph-go/poset/pkg/types"
)

// TieBreakSort orders units per §4.4: ascending level, then by the keyed
// hash H(hash(V) || hash(timingUnit)) — a per-timing-unit pseudo-random
// permutation that defeats creator bias.
func TieBreakSort(units []*unit.Unit, timingUnit *unit.Unit) {
	tHash := timingUnit.Hash()
	key := func(u *unit.Unit) types.Hash {
		return crypto.HashConcat(u.Hash(), tHash)
	}
	sort.Slice(units, func(i, j int) bool {
		if units[i].Level != units[j].Level {
			return units[i].Level < units[j].Level
		}
		ki, kj := key(units[i]), key(units[j])
		return string(ki[:]) < string(kj[:])
	})
}
