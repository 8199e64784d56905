package poset

import (
	"errors"
	"testing"

	"github.com/aleph-go/poset/internal/unit"
	"github.com/aleph-go/poset/pkg/crypto"
)

// testCommittee is a Verifier backed by in-memory generated keys, used to
// build small posets in tests.
type testCommittee struct {
	keys []*crypto.PrivateKey
}

func newTestCommittee(t *testing.T, n int) *testCommittee {
	t.Helper()
	c := &testCommittee{keys: make([]*crypto.PrivateKey, n)}
	for i := 0; i < n; i++ {
		sk, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("GenerateKey() error: %v", err)
		}
		c.keys[i] = sk
	}
	return c
}

func (c *testCommittee) PublicKey(creatorID int) ([]byte, bool) {
	if creatorID < 0 || creatorID >= len(c.keys) {
		return nil, false
	}
	return c.keys[creatorID].PublicKey(), true
}

func (c *testCommittee) genesis(t *testing.T, creatorID int) *unit.Unit {
	t.Helper()
	u := &unit.Unit{CreatorID: creatorID}
	if err := u.Sign(c.keys[creatorID]); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	return u
}

func (c *testCommittee) child(t *testing.T, creatorID int, parents []*unit.Unit) *unit.Unit {
	t.Helper()
	u := &unit.Unit{CreatorID: creatorID}
	for _, parent := range parents {
		u.Parents = append(u.Parents, parent.Hash())
	}
	if err := u.Sign(c.keys[creatorID]); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	return u
}

func TestPoset_GenesisOnly(t *testing.T) {
	const n = 4
	committee := newTestCommittee(t, n)
	p := New(n, committee)

	for creator := 0; creator < n; creator++ {
		g := committee.genesis(t, creator)
		if err := p.Check(g); err != nil {
			t.Fatalf("Check(genesis %d) error: %v", creator, err)
		}
		p.Add(g)
	}

	heights, hashes := p.MaxHeightsAndHashes()
	for creator := 0; creator < n; creator++ {
		if heights[creator] != 0 {
			t.Errorf("creator %d: height = %d, want 0", creator, heights[creator])
		}
		if len(hashes[creator]) != 1 {
			t.Errorf("creator %d: %d hashes at max height, want 1", creator, len(hashes[creator]))
		}
		if p.IsForker(creator) {
			t.Errorf("creator %d: unexpected forker", creator)
		}
	}
}

func TestPoset_ForkInjection(t *testing.T) {
	const n = 4
	committee := newTestCommittee(t, n)
	p := New(n, committee)

	genesis := make([]*unit.Unit, n)
	for creator := 0; creator < n; creator++ {
		genesis[creator] = committee.genesis(t, creator)
		p.Add(genesis[creator])
	}

	// Build every creator up to height 3 with compliant full rounds, then
	// fork creator 0 with a second unit at height 3 via a different parent
	// set (its height-2 self-predecessor plus only two other height-2 units).
	tips := genesis
	var prev []*unit.Unit
	for h := 1; h <= 3; h++ {
		prev = tips
		tips = buildRound(t, p, committee, tips)
	}
	if tips[0].Height != 3 {
		t.Fatalf("creator 0 main-chain height = %d, want 3", tips[0].Height)
	}

	forked := committee.child(t, 0, []*unit.Unit{prev[0], prev[1], prev[2]})
	// forked has height 3 (self-pred prev[0] at height 2), which collides
	// with the existing height-3 unit on the main chain.
	siblingAtHeight3 := p.UnitsByCreatorBetween(0, 3, 3)[0]
	if err := p.Check(forked); err != nil {
		t.Fatalf("Check(forked) error: %v", err)
	}
	p.Add(forked)

	if !p.IsForker(0) {
		t.Error("IsForker(0) = false, want true after height-3 collision")
	}
	if !p.Contains(siblingAtHeight3.Hash()) || !p.Contains(forked.Hash()) {
		t.Error("both forked branches should remain admitted")
	}
}

func TestPoset_AddIsIdempotent(t *testing.T) {
	const n = 4
	committee := newTestCommittee(t, n)
	p := New(n, committee)

	g := committee.genesis(t, 0)
	p.Add(g)
	heightsBefore, _ := p.MaxHeightsAndHashes()

	p.Add(g) // second call must be a no-op
	heightsAfter, _ := p.MaxHeightsAndHashes()

	if heightsBefore[0] != heightsAfter[0] {
		t.Error("Add() of an already-admitted unit changed derived state")
	}
	if len(p.UnitsByCreatorBetween(0, 0, 0)) != 1 {
		t.Error("Add() of an already-admitted unit duplicated the entry")
	}
}

func TestPoset_Check_RejectsUnknownParent(t *testing.T) {
	const n = 4
	committee := newTestCommittee(t, n)
	p := New(n, committee)

	genesis := committee.genesis(t, 0)
	dangling := committee.child(t, 0, []*unit.Unit{genesis, committee.genesis(t, 1)})
	// genesis for creator 1 was never admitted to p.
	err := p.Check(dangling)
	var nc *UnitNonCompliant
	if !errors.As(err, &nc) || !errors.Is(err, ErrParentMissing) {
		t.Fatalf("Check() error = %v, want UnitNonCompliant wrapping ErrParentMissing", err)
	}
}

func TestPoset_Check_RejectsBadSignature(t *testing.T) {
	const n = 4
	committee := newTestCommittee(t, n)
	p := New(n, committee)

	g := committee.genesis(t, 0)
	g.Signature = append([]byte(nil), g.Signature...)
	g.Signature[0] ^= 0xFF
	err := p.Check(g)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("Check() error = %v, want ErrSignatureInvalid", err)
	}
}

func TestPoset_Check_RejectsSingleParent(t *testing.T) {
	const n = 4
	committee := newTestCommittee(t, n)
	p := New(n, committee)

	g := committee.genesis(t, 0)
	p.Add(g)
	bad := committee.child(t, 0, []*unit.Unit{g})
	if err := p.Check(bad); !errors.Is(err, ErrParentCount) {
		t.Fatalf("Check() error = %v, want ErrParentCount", err)
	}
}
