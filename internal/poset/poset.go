// Package poset implements the indexed DAG of admitted units (C2), and the
// structural predicates and compliance checks that decide whether a
// candidate unit may be admitted (C3).
package poset

import (
	"sync"

	"github.com/aleph-go/poset/internal/unit"
	"github.com/aleph-go/poset/pkg/types"
)

// Verifier resolves a creator id to its public key, for signature checks.
type Verifier interface {
	PublicKey(creatorID int) ([]byte, bool)
}

// Poset is the indexed DAG of admitted units for one committee (§4.2).
// The process driver calls it from concurrent goroutines (creator, sync
// initiator, inbound sync handlers); mu serializes every exported method,
// but separate calls such as Check followed by Add are not atomic together.
type Poset struct {
	mu sync.Mutex

	n        int
	verifier Verifier

	byHash          map[types.Hash]*unit.Unit
	byCreatorHeight map[int]map[int][]*unit.Unit
	maximal         map[int][]*unit.Unit
	forkers         map[int]bool

	// primeAtLevel[creator][level] is the first (lowest-height) unit by
	// that creator ever observed to reach level, i.e. its prime unit.
	primeAtLevel map[int]map[int]*unit.Unit
}

// New creates an empty poset for a committee of n processes.
func New(n int, verifier Verifier) *Poset {
	return &Poset{
		n:               n,
		verifier:        verifier,
		byHash:          make(map[types.Hash]*unit.Unit),
		byCreatorHeight: make(map[int]map[int][]*unit.Unit),
		maximal:         make(map[int][]*unit.Unit),
		forkers:         make(map[int]bool),
		primeAtLevel:    make(map[int]map[int]*unit.Unit),
	}
}

// Contains reports whether hash h has been admitted.
func (p *Poset) Contains(h types.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byHash[h]
	return ok
}

// UnitByHash returns the admitted unit with hash h, if any.
func (p *Poset) UnitByHash(h types.Hash) (*unit.Unit, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byHash[h]
	return u, ok
}

// IsForker reports whether creator p has been observed to equivocate (P7:
// once set, this flag is monotone and never cleared).
func (p *Poset) IsForker(creatorID int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.forkers[creatorID]
}

// MaxHeightsAndHashes returns, for each creator, the largest height ever
// admitted and the hashes of every unit admitted at that height (more than
// one only in the presence of a fork, §4.2).
func (p *Poset) MaxHeightsAndHashes() (heights []int, hashes [][]types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()

	heights = make([]int, p.n)
	hashes = make([][]types.Hash, p.n)
	for creator := 0; creator < p.n; creator++ {
		heights[creator] = -1
		byHeight := p.byCreatorHeight[creator]
		for h := range byHeight {
			if h > heights[creator] {
				heights[creator] = h
			}
		}
		if heights[creator] >= 0 {
			for _, u := range byHeight[heights[creator]] {
				hashes[creator] = append(hashes[creator], u.Hash())
			}
		}
	}
	return heights, hashes
}

// UnitsByCreatorBetween enumerates, in ascending height, every unit by
// creator between heights hMin and hMax inclusive (including all fork
// branches at a given height).
func (p *Poset) UnitsByCreatorBetween(creatorID, hMin, hMax int) []*unit.Unit {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*unit.Unit
	byHeight := p.byCreatorHeight[creatorID]
	for h := hMin; h <= hMax; h++ {
		out = append(out, byHeight[h]...)
	}
	return out
}

// MaximalUnits returns the current tips (no admitted descendant by the same
// creator) for creatorID.
func (p *Poset) MaximalUnits(creatorID int) []*unit.Unit {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*unit.Unit, len(p.maximal[creatorID]))
	copy(out, p.maximal[creatorID])
	return out
}

// N returns the committee size this poset was built for.
func (p *Poset) N() int {
	return p.n
}
