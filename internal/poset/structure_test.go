package poset

import (
	"testing"

	"github.com/aleph-go/poset/internal/unit"
)

// buildRound links every creator's current tip into a new unit for that
// creator, parented on its own self-predecessor plus every other
// creator's current tip, mimicking one round of the creator loop across
// a fully-connected committee.
func buildRound(t *testing.T, p *Poset, committee *testCommittee, tips []*unit.Unit) []*unit.Unit {
	t.Helper()
	n := len(tips)
	next := make([]*unit.Unit, n)
	for creator := 0; creator < n; creator++ {
		parents := []*unit.Unit{tips[creator]}
		for other := 0; other < n; other++ {
			if other != creator {
				parents = append(parents, tips[other])
			}
		}
		u := committee.child(t, creator, parents)
		if err := p.Check(u); err != nil {
			t.Fatalf("Check() creator %d error: %v", creator, err)
		}
		p.Add(u)
		next[creator] = u
	}
	return next
}

// TestPoset_LevelAdvancesOnQuorum exercises §4.3's level rule directly: a
// unit only advances to max(level(parents))+1 once it sees prime units at
// that level from at least T distinct creators, and otherwise stays put.
func TestPoset_LevelAdvancesOnQuorum(t *testing.T) {
	const n = 4
	committee := newTestCommittee(t, n)
	p := New(n, committee)

	tips := make([]*unit.Unit, n)
	for creator := 0; creator < n; creator++ {
		tips[creator] = committee.genesis(t, creator)
		p.Add(tips[creator])
	}
	for _, u := range tips {
		if u.Level != 0 {
			t.Fatalf("genesis level = %d, want 0", u.Level)
		}
	}

	// One round where every creator sees every other creator's genesis:
	// all four round-1 units should reach level 1, since every floor
	// already covers all n=4 creators at level 0, meeting T=Threshold(4).
	round1 := buildRound(t, p, committee, tips)
	for creator, u := range round1 {
		if u.Level != 1 {
			t.Errorf("creator %d round-1 level = %d, want 1", creator, u.Level)
		}
	}

	// A unit that links its self-predecessor and only one other round-1
	// unit sees level-1 primes from just 2 creators, short of T, and must
	// stay at the parents' level.
	stalled := committee.child(t, 0, []*unit.Unit{round1[0], round1[1]})
	if err := p.Check(stalled); err != nil {
		t.Fatalf("Check(stalled) error: %v", err)
	}
	p.Add(stalled)
	if stalled.Level != round1[0].Level {
		t.Errorf("stalled unit level = %d, want %d (no quorum of new prime ancestors)", stalled.Level, round1[0].Level)
	}
}

// TestPoset_IsPrime checks the "lowest unit by its creator at its level"
// definition: genesis is always prime, and only the first unit on a
// creator's chain to reach a new level is prime.
func TestPoset_IsPrime(t *testing.T) {
	const n = 4
	committee := newTestCommittee(t, n)
	p := New(n, committee)

	tips := make([]*unit.Unit, n)
	for creator := 0; creator < n; creator++ {
		tips[creator] = committee.genesis(t, creator)
		p.Add(tips[creator])
		if !p.IsPrime(tips[creator]) {
			t.Errorf("genesis %d: IsPrime() = false, want true", creator)
		}
	}

	round1 := buildRound(t, p, committee, tips)
	for creator, u := range round1 {
		if u.Level != 1 {
			t.Fatalf("creator %d round-1 level = %d, want 1", creator, u.Level)
		}
		if !p.IsPrime(u) {
			t.Errorf("creator %d round-1 unit: IsPrime() = false, want true (first at level 1)", creator)
		}
	}

	stalled := committee.child(t, 0, []*unit.Unit{round1[0]})
	p.Add(stalled)
	if stalled.Level != round1[0].Level {
		t.Fatalf("stalled level = %d, want %d", stalled.Level, round1[0].Level)
	}
	if p.IsPrime(stalled) {
		t.Error("stalled unit shares its self-predecessor's level, should not be prime")
	}
}

// TestPoset_SelectParents_SatisfiesRule7 builds a parent set through
// SelectParents and checks it against Check's own rule-7 enforcement
// (expandsPrimeSetLocked), so the production greedy-selection path and
// the compliance check it must satisfy are tested together.
func TestPoset_SelectParents_SatisfiesRule7(t *testing.T) {
	const n = 5
	committee := newTestCommittee(t, n)
	p := New(n, committee)

	tips := make([]*unit.Unit, n)
	for creator := 0; creator < n; creator++ {
		tips[creator] = committee.genesis(t, creator)
		p.Add(tips[creator])
	}
	// One full round so every creator's chain has already crossed level 0
	// and has non-trivial floors to pick from.
	tips = buildRound(t, p, committee, tips)

	selfPred := tips[0]
	var candidates []*unit.Unit
	for creator := 1; creator < n; creator++ {
		candidates = append(candidates, tips[creator])
	}

	const nParents = 3
	chosen := p.SelectParents(selfPred, candidates, nParents)
	if len(chosen) != nParents-1 {
		t.Fatalf("SelectParents() returned %d parents, want %d", len(chosen), nParents-1)
	}

	u := committee.child(t, 0, append([]*unit.Unit{selfPred}, chosen...))
	if err := p.Check(u); err != nil {
		t.Fatalf("Check() on SelectParents() output failed rule 7: %v", err)
	}
}

// TestPoset_SelectParents_SkipsNonGrowingCandidates confirms the greedy
// selection rejects a candidate that contributes no new visible creator,
// matching Check's own rejection of the same parent set (ErrExpandPrimes).
func TestPoset_SelectParents_SkipsNonGrowingCandidates(t *testing.T) {
	const n = 4
	committee := newTestCommittee(t, n)
	p := New(n, committee)

	tips := make([]*unit.Unit, n)
	for creator := 0; creator < n; creator++ {
		tips[creator] = committee.genesis(t, creator)
		p.Add(tips[creator])
	}

	// selfPred for creator 0 already has creator 1's genesis in its
	// floor via an earlier unit; a second candidate exposing the same
	// creator 1 again contributes nothing new.
	selfPred := committee.child(t, 0, []*unit.Unit{tips[0], tips[1]})
	p.Add(selfPred)

	duplicate := committee.child(t, 1, []*unit.Unit{tips[1]})
	p.Add(duplicate)

	chosen := p.SelectParents(selfPred, []*unit.Unit{duplicate}, 2)
	if len(chosen) != 0 {
		t.Errorf("SelectParents() chose %d parents, want 0 (candidate adds no new prime visibility)", len(chosen))
	}

	// Check must independently agree: attaching duplicate as the sole
	// extra parent should fail rule 7.
	bad := committee.child(t, 0, []*unit.Unit{selfPred, duplicate})
	if err := p.Check(bad); err == nil {
		t.Error("Check() accepted a parent set that does not expand the prime set")
	}
}
