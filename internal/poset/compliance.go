package poset

import (
	"github.com/aleph-go/poset/config"
	"github.com/aleph-go/poset/internal/unit"
	"github.com/aleph-go/poset/pkg/types"
)

// Check runs the seven compliance predicates of §4.3 against the current
// poset state. It does not mutate the poset. Rule 5 (detect-but-admit on a
// repeated height) never fails compliance by itself; Add is responsible for
// flipping the forker bit once U is actually admitted.
func (p *Poset) Check(u *unit.Unit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkLocked(u)
}

func (p *Poset) checkLocked(u *unit.Unit) error {
	// Rule 1: all parents admitted.
	parents := make([]*unit.Unit, len(u.Parents))
	for i, h := range u.Parents {
		parent, ok := p.byHash[h]
		if !ok {
			return nonCompliant(ErrParentMissing)
		}
		parents[i] = parent
	}

	// Rule 2: 0 parents (genesis) or >= 2 pairwise-distinct parents.
	if len(u.Parents) != 0 {
		if len(u.Parents) < 2 {
			return nonCompliant(ErrParentCount)
		}
		seen := make(map[types.Hash]struct{}, len(u.Parents))
		for _, h := range u.Parents {
			if _, dup := seen[h]; dup {
				return nonCompliant(ErrParentsNotDistinct)
			}
			seen[h] = struct{}{}
		}
	}

	// Rule 3: parent 0 is the self-predecessor, or U is genesis. Height(U)
	// is defined as height(selfPred)+1, so the height half of this rule
	// holds by construction once the creator matches.
	if len(u.Parents) > 0 {
		selfPred := parents[0]
		if selfPred.CreatorID != u.CreatorID {
			return nonCompliant(ErrSelfPredecessor)
		}
	}

	// Rule 4: no two parents share a creator (parent 0 excepted, it's the
	// self-predecessor rather than "another" parent).
	if len(parents) > 1 {
		seenCreators := make(map[int]struct{}, len(parents))
		seenCreators[parents[0].CreatorID] = struct{}{}
		for _, parent := range parents[1:] {
			if _, dup := seenCreators[parent.CreatorID]; dup {
				return nonCompliant(ErrDuplicateParentCreator)
			}
			seenCreators[parent.CreatorID] = struct{}{}
		}
	}

	// Rule 6: signature verifies.
	pubKey, ok := p.verifier.PublicKey(u.CreatorID)
	if !ok {
		return nonCompliant(ErrUnknownCreator)
	}
	if !u.VerifySignature(pubKey) {
		return nonCompliant(ErrSignatureInvalid)
	}

	// Rule 7: expand-primes, relative to the self-predecessor's level.
	if len(parents) > 1 {
		selfPred := parents[0]
		if !p.expandsPrimeSetLocked(selfPred, parents[1:]) {
			return nonCompliant(ErrExpandPrimes)
		}
	}

	return nil
}

// expandsPrimeSetLocked checks rule 7: each additional parent must
// strictly grow the set of processes whose level-ℓ prime ancestors are
// visible, where ℓ = selfPred.Level. We approximate "visible prime ancestors
// at level ℓ" as the set of non-forker creators whose floor entry (in the
// accumulated parent set seen so far) reached level ℓ.
func (p *Poset) expandsPrimeSetLocked(selfPred *unit.Unit, others []*unit.Unit) bool {
	level := selfPred.Level
	visible := primeVisibleSet(p, selfPred, level)
	for _, other := range others {
		next := primeVisibleSet(p, other, level)
		grew := false
		for creator := range next {
			if _, already := visible[creator]; !already {
				grew = true
				visible[creator] = struct{}{}
			}
		}
		if !grew {
			return false
		}
	}
	return true
}

// primeVisibleSet returns the set of non-forker creators whose chain, as
// summarized by u's floor, has reached level ℓ or beyond.
func primeVisibleSet(p *Poset, u *unit.Unit, level int) map[int]struct{} {
	out := make(map[int]struct{})
	for creator, hashes := range u.Floor {
		if p.forkers[creator] {
			continue
		}
		for _, h := range hashes {
			if e, ok := p.byHash[h]; ok && e.Level >= level {
				out[creator] = struct{}{}
				break
			}
		}
	}
	return out
}

// Threshold returns T = ceil(2N/3) + 1 for this poset's committee size.
func (p *Poset) Threshold() int {
	return config.Threshold(p.n)
}
