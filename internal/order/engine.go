package order

import (
	"fmt"

	"github.com/aleph-go/poset/internal/coin"
	"github.com/aleph-go/poset/internal/poset"
	"github.com/aleph-go/poset/internal/unit"
	"github.com/aleph-go/poset/pkg/types"
)

// Verifier resolves a creator id to its public key, mirroring
// poset.Verifier (kept as its own interface so order does not need to
// depend on poset's Verifier type name).
type Verifier interface {
	PublicKey(creatorID int) ([]byte, bool)
}

// Engine extends a global linear order each time a timing unit is elected
// (§4.4), applying transactions to Ledger as units are appended.
type Engine struct {
	poset    *poset.Poset
	verifier Verifier
	oracle   coin.Oracle
	Ledger   *Ledger

	threshold  int
	lambdaCoin int
	k          int
	networkID  string
	pubKeysHex []string

	nextLevel int
	ordered   map[types.Hash]struct{}
	// LinearOrder is the append-only sequence of admitted unit hashes,
	// growing every time a level is decided (§3 "Linear order").
	LinearOrder []types.Hash
	// TimingUnits records the elected timing unit per decided level.
	TimingUnits map[int]*unit.Unit

	pendingShares map[int]map[int]coin.Share // level -> creator -> share
}

// NewEngine constructs a linear-order engine over p, verifying coin shares
// and signatures with verifier and combining them with oracle. networkID
// seeds the common random permutation (§6, §9) alongside pubKeysHex.
func NewEngine(p *poset.Poset, verifier Verifier, oracle coin.Oracle, threshold, lambdaCoin, k int, networkID string, pubKeysHex []string) *Engine {
	return &Engine{
		poset:         p,
		verifier:      verifier,
		oracle:        oracle,
		Ledger:        NewLedger(),
		threshold:     threshold,
		lambdaCoin:    lambdaCoin,
		k:             k,
		networkID:     networkID,
		pubKeysHex:    pubKeysHex,
		ordered:       make(map[types.Hash]struct{}),
		TimingUnits:   make(map[int]*unit.Unit),
		pendingShares: make(map[int]map[int]coin.Share),
	}
}

// OnUnitAdmitted must be called once per admitted unit, in admission
// order. It collects coin shares and attempts to decide as many pending
// levels as the newly admitted unit unlocks.
func (e *Engine) OnUnitAdmitted(u *unit.Unit) {
	e.collectShare(u)
	e.tryDecide()
}

func (e *Engine) collectShare(u *unit.Unit) {
	if u.Level < e.lambdaCoin || len(u.CoinShares) == 0 {
		return
	}
	if !e.poset.IsPrime(u) {
		return
	}
	pubKey, ok := e.verifier.PublicKey(u.CreatorID)
	if !ok {
		return
	}
	msg := coinMessage(u.Level)
	share := coin.Share(u.CoinShares[0])
	if !e.oracle.VerifyShare(pubKey, msg, share) {
		return
	}
	if e.pendingShares[u.Level] == nil {
		e.pendingShares[u.Level] = make(map[int]coin.Share)
	}
	e.pendingShares[u.Level][u.CreatorID] = share
}

func coinMessage(level int) []byte {
	return []byte(fmt.Sprintf("coin||%d", level))
}

// ObserveShare records a coin share learned out-of-band (the coinbus
// pubsub topic, ahead of that creator's unit reaching this process via
// sync) and re-attempts decision. Shares are otherwise collected only
// from admitted units in collectShare; this lets a quorum combine before
// every carrying unit has synced.
func (e *Engine) ObserveShare(creatorID, level int, share coin.Share) {
	if level < e.lambdaCoin {
		return
	}
	pubKey, ok := e.verifier.PublicKey(creatorID)
	if !ok {
		return
	}
	if !e.oracle.VerifyShare(pubKey, coinMessage(level), share) {
		return
	}
	if e.pendingShares[level] == nil {
		e.pendingShares[level] = make(map[int]coin.Share)
	}
	e.pendingShares[level][creatorID] = share
	e.tryDecide()
}

// tryDecide attempts to decide as many consecutive levels, starting at
// e.nextLevel, as currently possible; levels are decided strictly in
// increasing order (§4.4).
func (e *Engine) tryDecide() {
	for {
		level := e.nextLevel
		candidates := e.nonForkerPrimesAt(level)
		if len(candidates) == 0 {
			return
		}

		deciders := e.decidersAt(level)
		if len(deciders) == 0 {
			return
		}

		startIdx := 0
		if level >= e.lambdaCoin {
			combined, ok := e.combineSharesAt(level)
			if !ok {
				return
			}
			startIdx = combinedIndex(combined, len(candidates))
		}

		ordered := e.orderByPermutation(candidates, level)
		n := len(ordered)
		startIdx = ((startIdx % n) + n) % n

		var elected *unit.Unit
		for i := 0; i < n && elected == nil; i++ {
			cand := ordered[(startIdx+i)%n]
			for _, d := range deciders {
				if e.poset.SeesThroughQuorumDescendant(d, cand, e.threshold) {
					elected = cand
					break
				}
			}
		}
		if elected == nil {
			return
		}

		e.decide(level, elected)
		e.nextLevel++
	}
}

func (e *Engine) nonForkerPrimesAt(level int) []*unit.Unit {
	var out []*unit.Unit
	for _, u := range e.poset.PrimesAtLevel(level) {
		if !e.poset.IsForker(u.CreatorID) {
			out = append(out, u)
		}
	}
	return out
}

// decidersAt returns currently-known units at level+K or beyond, which
// may act as the "deciding unit" for level (§4.4).
func (e *Engine) decidersAt(level int) []*unit.Unit {
	var out []*unit.Unit
	for creator := 0; creator < e.poset.N(); creator++ {
		for _, tip := range e.poset.MaximalUnits(creator) {
			if tip.Level >= level+e.k {
				out = append(out, tip)
			}
		}
	}
	return out
}

func (e *Engine) combineSharesAt(level int) (coin.Combined, bool) {
	shares := e.pendingShares[level]
	nonForker := make(map[int]coin.Share)
	for creator, share := range shares {
		if !e.poset.IsForker(creator) {
			nonForker[creator] = share
		}
	}
	if len(nonForker) < e.threshold {
		return nil, false
	}
	combined, err := e.oracle.Combine(coinMessage(level), nonForker)
	if err != nil {
		return nil, false
	}
	return combined, true
}

func combinedIndex(c coin.Combined, modulus int) int {
	if modulus == 0 {
		return 0
	}
	var acc uint32
	for _, b := range c {
		acc = acc*31 + uint32(b)
	}
	return int(acc % uint32(modulus))
}

// orderByPermutation orders candidates (primes at level) by the common
// random permutation's creator ordering.
func (e *Engine) orderByPermutation(candidates []*unit.Unit, level int) []*unit.Unit {
	byCreator := make(map[int]*unit.Unit, len(candidates))
	for _, c := range candidates {
		byCreator[c.CreatorID] = c
	}
	perm := CommonRandomPermutation(e.networkID, e.pubKeysHex, level)
	ordered := make([]*unit.Unit, 0, len(candidates))
	for _, creator := range perm {
		if u, ok := byCreator[creator]; ok {
			ordered = append(ordered, u)
		}
	}
	return ordered
}

// decide replays the causal history of the newly elected timing unit:
// every not-yet-ordered ancestor is tie-break sorted and appended to the
// linear order, applying its transactions to Ledger in sequence.
func (e *Engine) decide(level int, timingUnit *unit.Unit) {
	e.TimingUnits[level] = timingUnit

	ancestors := e.poset.AncestorsOf(timingUnit)
	var fresh []*unit.Unit
	for _, a := range ancestors {
		if _, already := e.ordered[a.Hash()]; !already {
			fresh = append(fresh, a)
		}
	}
	TieBreakSort(fresh, timingUnit)

	for _, v := range fresh {
		e.ordered[v.Hash()] = struct{}{}
		e.LinearOrder = append(e.LinearOrder, v.Hash())
		for _, raw := range v.Txs {
			tx, err := DecodeTx(raw)
			if err != nil {
				continue
			}
			e.Ledger.Apply(tx)
		}
	}
}
