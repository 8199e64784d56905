package poset

import (
	"github.com/aleph-go/poset/internal/unit"
	"github.com/aleph-go/poset/pkg/types"
)

// Add admits a compliant unit u: appends it to every index, computes its
// derived height/level/floor, and marks the creator a forker if another
// unit already occupies the same (creator, height) slot (§4.2, rule 5 of
// §4.3). Callers must have already called Check. Admitting the same hash
// twice is a no-op (§8 "Idempotence").
func (p *Poset) Add(u *unit.Unit) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := u.Hash()
	if _, exists := p.byHash[h]; exists {
		return
	}

	u.Height = p.computeHeightLocked(u)
	u.Floor = p.computeFloorLocked(u)
	u.Level = p.computeLevelLocked(u)

	p.byHash[h] = u

	if p.byCreatorHeight[u.CreatorID] == nil {
		p.byCreatorHeight[u.CreatorID] = make(map[int][]*unit.Unit)
	}
	siblings := p.byCreatorHeight[u.CreatorID][u.Height]
	if len(siblings) > 0 {
		p.forkers[u.CreatorID] = true
	}
	p.byCreatorHeight[u.CreatorID][u.Height] = append(siblings, u)

	p.updateMaximalLocked(u)
	p.updatePrimeIndexLocked(u)
}

func (p *Poset) computeHeightLocked(u *unit.Unit) int {
	if u.IsGenesis() {
		return 0
	}
	selfPred := p.byHash[u.Parents[0]]
	return selfPred.Height + 1
}

// computeFloorLocked merges the floors of u's parents with u itself, per
// §4.3 "union of parents' floors, pruning non-maximal entries".
func (p *Poset) computeFloorLocked(u *unit.Unit) map[int][]types.Hash {
	merged := make(map[int]map[types.Hash]struct{})
	for _, ph := range u.Parents {
		parent := p.byHash[ph]
		for creator, hashes := range parent.Floor {
			if merged[creator] == nil {
				merged[creator] = make(map[types.Hash]struct{})
			}
			for _, h := range hashes {
				merged[creator][h] = struct{}{}
			}
		}
	}
	if merged[u.CreatorID] == nil {
		merged[u.CreatorID] = make(map[types.Hash]struct{})
	}
	merged[u.CreatorID][u.Hash()] = struct{}{}

	floor := make(map[int][]types.Hash, len(merged))
	for creator, set := range merged {
		candidates := make([]types.Hash, 0, len(set))
		for h := range set {
			candidates = append(candidates, h)
		}
		floor[creator] = pruneDominated(p, candidates)
	}
	return floor
}

// pruneDominated drops any hash in candidates that is a same-creator
// ancestor (via the self-predecessor chain) of another candidate.
func pruneDominated(p *Poset, candidates []types.Hash) []types.Hash {
	if len(candidates) <= 1 {
		return candidates
	}
	keep := make([]types.Hash, 0, len(candidates))
	for i, h := range candidates {
		dominated := false
		for j, other := range candidates {
			if i == j {
				continue
			}
			if p.sameChainDescendantLocked(other, h) {
				dominated = true
				break
			}
		}
		if !dominated {
			keep = append(keep, h)
		}
	}
	return keep
}

// sameChainDescendantLocked reports whether later is later-or-equal to
// earlier along the self-predecessor chain (both assumed same creator).
func (p *Poset) sameChainDescendantLocked(later, earlier types.Hash) bool {
	if later == earlier {
		return true
	}
	cur, ok := p.byHash[later]
	if !ok {
		return false
	}
	for len(cur.Parents) > 0 {
		selfPred := cur.Parents[0]
		if selfPred == earlier {
			return true
		}
		next, ok := p.byHash[selfPred]
		if !ok {
			return false
		}
		cur = next
	}
	return false
}

// computeLevelLocked implements §4.3's level rule: level(U) = 0 for
// genesis; otherwise U advances to max(level(parents))+1 once it sees
// prime units at level max(level(parents)) from at least T distinct
// non-forker creators, and otherwise stays at max(level(parents)).
func (p *Poset) computeLevelLocked(u *unit.Unit) int {
	if u.IsGenesis() {
		return 0
	}
	maxParentLevel := 0
	for _, ph := range u.Parents {
		if parent := p.byHash[ph]; parent.Level > maxParentLevel {
			maxParentLevel = parent.Level
		}
	}
	if p.countPrimesAtLevelLocked(u, maxParentLevel) >= p.Threshold() {
		return maxParentLevel + 1
	}
	return maxParentLevel
}

// countPrimesAtLevelLocked counts distinct non-forker creators whose
// self-chain, as summarized by u's floor, has reached level or beyond.
// u itself is not admitted yet, so its own floor entry counts through its
// self-predecessor.
func (p *Poset) countPrimesAtLevelLocked(u *unit.Unit, level int) int {
	self := u.Hash()
	count := 0
	for creator, hashes := range u.Floor {
		if p.forkers[creator] {
			continue
		}
		for _, h := range hashes {
			e, ok := p.byHash[h]
			if !ok && h == self && !u.IsGenesis() {
				e, ok = p.byHash[u.Parents[0]]
			}
			if ok && e.Level >= level {
				count++
				break
			}
		}
	}
	return count
}

// updatePrimeIndexLocked records u as the prime unit for its (creator,
// level) pair if it is the first unit by that creator to reach that level.
func (p *Poset) updatePrimeIndexLocked(u *unit.Unit) {
	if p.primeAtLevel[u.CreatorID] == nil {
		p.primeAtLevel[u.CreatorID] = make(map[int]*unit.Unit)
	}
	if _, exists := p.primeAtLevel[u.CreatorID][u.Level]; !exists {
		p.primeAtLevel[u.CreatorID][u.Level] = u
	}
}

// updateMaximalLocked keeps the per-creator tip set current: u replaces
// its self-predecessor as a tip (unless another fork branch also claims
// tip status there).
func (p *Poset) updateMaximalLocked(u *unit.Unit) {
	tips := p.maximal[u.CreatorID]
	if len(u.Parents) > 0 {
		selfPred := u.Parents[0]
		filtered := tips[:0]
		for _, t := range tips {
			if t.Hash() != selfPred {
				filtered = append(filtered, t)
			}
		}
		tips = filtered
	}
	p.maximal[u.CreatorID] = append(tips, u)
}

// IsPrime reports whether u is the lowest-height unit by its creator at
// its level — equivalently its self-predecessor has strictly smaller level,
// or u is genesis (§4.3 "Prime").
func (p *Poset) IsPrime(u *unit.Unit) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u.IsGenesis() {
		return true
	}
	selfPred, ok := p.byHash[u.Parents[0]]
	if !ok {
		return false
	}
	return selfPred.Level < u.Level
}

// PrimeAt returns the prime unit by creatorID at level, if one has been
// admitted.
func (p *Poset) PrimeAt(creatorID, level int) (*unit.Unit, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	byLevel, ok := p.primeAtLevel[creatorID]
	if !ok {
		return nil, false
	}
	u, ok := byLevel[level]
	return u, ok
}

// PrimesAtLevel returns every prime unit at level, across all creators,
// ordered by creator id.
func (p *Poset) PrimesAtLevel(level int) []*unit.Unit {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*unit.Unit
	for creator := 0; creator < p.n; creator++ {
		if byLevel, ok := p.primeAtLevel[creator]; ok {
			if u, ok := byLevel[level]; ok {
				out = append(out, u)
			}
		}
	}
	return out
}

// Below reports whether u <= v: u is reachable from v through parent
// edges, transitively and reflexively (§3 "Below relation").
func (p *Poset) Below(u, v *unit.Unit) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.belowLocked(u, v)
}

func (p *Poset) belowLocked(u, v *unit.Unit) bool {
	if u.Hash() == v.Hash() {
		return true
	}
	hashes, ok := v.Floor[u.CreatorID]
	if !ok {
		return false
	}
	for _, h := range hashes {
		if p.sameChainDescendantLocked(h, u.Hash()) {
			return true
		}
	}
	return false
}

// AncestorsOf returns the full set of units reachable from u through
// parent edges, inclusive of u itself — the causal history the linear
// order engine replays when a timing unit is elected (§4.4).
func (p *Poset) AncestorsOf(u *unit.Unit) []*unit.Unit {
	p.mu.Lock()
	defer p.mu.Unlock()

	visited := make(map[types.Hash]struct{})
	var out []*unit.Unit
	stack := []*unit.Unit{u}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		h := cur.Hash()
		if _, ok := visited[h]; ok {
			continue
		}
		visited[h] = struct{}{}
		out = append(out, cur)
		for _, ph := range cur.Parents {
			if parent, ok := p.byHash[ph]; ok {
				stack = append(stack, parent)
			}
		}
	}
	return out
}

// SelectParents greedily picks up to nParents-1 additional parents for
// creatorID's next unit, alongside its self-predecessor, from other
// creators' current tips: each candidate is accepted only if it strictly
// grows the set of non-forker creators visible at the self-predecessor's
// level, so the result always satisfies compliance rule 7 (§4.3, §4.5
// "pick N_PARENTS-1 additional parents ... such that compliance rule 7
// holds"). candidates should already exclude known forkers and be in the
// caller's preferred trial order (e.g. shuffled, to avoid favoring low
// creator ids every round).
func (p *Poset) SelectParents(selfPred *unit.Unit, candidates []*unit.Unit, nParents int) []*unit.Unit {
	p.mu.Lock()
	defer p.mu.Unlock()

	if selfPred == nil || nParents <= 1 {
		return nil
	}
	level := selfPred.Level
	visible := primeVisibleSet(p, selfPred, level)
	var chosen []*unit.Unit
	for _, cand := range candidates {
		if len(chosen) >= nParents-1 {
			break
		}
		next := primeVisibleSet(p, cand, level)
		grew := false
		for creator := range next {
			if _, already := visible[creator]; !already {
				grew = true
				visible[creator] = struct{}{}
			}
		}
		if grew {
			chosen = append(chosen, cand)
		}
	}
	return chosen
}

// Sees reports whether v sees creator p: some unit by p is <= v.
func (p *Poset) Sees(v *unit.Unit, creatorID int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := v.Floor[creatorID]
	return ok
}

// SeesThroughQuorumDescendant reports whether v sees, through at least
// threshold distinct creators, some unit that w is below — the relation
// SNAP validation uses to decide "high above" (§4.4).
func (p *Poset) SeesThroughQuorumDescendant(v, w *unit.Unit, threshold int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for _, hashes := range v.Floor {
		for _, h := range hashes {
			descendant, ok := p.byHash[h]
			if !ok {
				continue
			}
			if p.belowLocked(w, descendant) {
				count++
				break
			}
		}
		if count >= threshold {
			return true
		}
	}
	return count >= threshold
}
