package order

import (
	"encoding/hex"
	"testing"

	"github.com/aleph-go/poset/internal/coin"
	"github.com/aleph-go/poset/internal/poset"
	"github.com/aleph-go/poset/internal/unit"
	"github.com/aleph-go/poset/pkg/crypto"
)

type engineCommittee struct {
	keys []*crypto.PrivateKey
}

func newEngineCommittee(t *testing.T, n int) *engineCommittee {
	t.Helper()
	c := &engineCommittee{keys: make([]*crypto.PrivateKey, n)}
	for i := 0; i < n; i++ {
		sk, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("GenerateKey() error: %v", err)
		}
		c.keys[i] = sk
	}
	return c
}

func (c *engineCommittee) PublicKey(creatorID int) ([]byte, bool) {
	if creatorID < 0 || creatorID >= len(c.keys) {
		return nil, false
	}
	return c.keys[creatorID].PublicKey(), true
}

func (c *engineCommittee) pubKeysHex() []string {
	out := make([]string, len(c.keys))
	for i, k := range c.keys {
		out[i] = hex.EncodeToString(k.PublicKey())
	}
	return out
}

// buildAndAdd constructs a unit signed by creatorID with the given parents
// and txs, admitting it directly to p (bypassing Check, since these tests
// exercise the store/engine layer rather than compliance).
func buildAndAdd(t *testing.T, committee *engineCommittee, p *poset.Poset, creatorID int, parents []*unit.Unit, txs [][]byte) *unit.Unit {
	t.Helper()
	u := &unit.Unit{CreatorID: creatorID, Txs: txs}
	for _, parent := range parents {
		u.Parents = append(u.Parents, parent.Hash())
	}
	if err := u.Sign(committee.keys[creatorID]); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	p.Add(u)
	return u
}

func TestEngine_GenesisOnlyProducesNoOrder(t *testing.T) {
	const n = 4
	committee := newEngineCommittee(t, n)
	p := poset.New(n, committee)
	engine := NewEngine(p, committee, coin.NewLocalOracle(), p.Threshold(), 3, 4, "testnet", committee.pubKeysHex())

	for creator := 0; creator < n; creator++ {
		g := buildAndAdd(t, committee, p, creator, nil, nil)
		engine.OnUnitAdmitted(g)
	}

	if len(engine.LinearOrder) != 0 {
		t.Errorf("LinearOrder has %d entries, want 0 for genesis-only poset", len(engine.LinearOrder))
	}
}

func TestSnapValidator_QuorumDistinguishesCarriers(t *testing.T) {
	const n = 4
	committee := newEngineCommittee(t, n)
	p := poset.New(n, committee)
	threshold := p.Threshold() // T = 4 for n = 4

	genesis := make([]*unit.Unit, n)
	for creator := 0; creator < n; creator++ {
		genesis[creator] = buildAndAdd(t, committee, p, creator, nil, nil)
	}

	issuerA := committee.keys[0].PublicKey()
	receiverB := committee.keys[1].PublicKey()
	receiverC := committee.keys[2].PublicKey()

	txToB := EncodeTx(Tx{Issuer: issuerA, Receiver: receiverB, Amount: 60, Index: 0})
	txToC := EncodeTx(Tx{Issuer: issuerA, Receiver: receiverC, Amount: 60, Index: 0})

	u1 := buildAndAdd(t, committee, p, 0, []*unit.Unit{genesis[0]}, [][]byte{txToB})
	u2 := buildAndAdd(t, committee, p, 1, []*unit.Unit{genesis[1]}, [][]byte{txToC})
	w1 := buildAndAdd(t, committee, p, 1, []*unit.Unit{u2, u1}, nil)
	w2 := buildAndAdd(t, committee, p, 2, []*unit.Unit{genesis[2], u1}, nil)
	v := buildAndAdd(t, committee, p, 3, []*unit.Unit{genesis[3], u1, w1, w2}, nil)

	if !p.SeesThroughQuorumDescendant(v, u1, threshold) {
		t.Fatal("test setup invariant broken: v should see u1 through quorum")
	}
	if p.SeesThroughQuorumDescendant(v, u2, threshold) {
		t.Fatal("test setup invariant broken: v should not yet see u2 through quorum")
	}

	validator := NewSnapValidator(p, threshold)
	for _, u := range []*unit.Unit{genesis[0], genesis[1], genesis[2], genesis[3], u1, u2, w1, w2, v} {
		validator.OnUnitAdmitted(u)
	}

	issuerKey := issuerA
	if got := validator.Ledger.Balance(issuerKey); got != 0 {
		t.Errorf("issuer balance = %d, want 0 (no opening balance set)", got)
	}
	if got := validator.Ledger.Balance(receiverB); got != 0 {
		t.Errorf("receiverB balance = %d, want 0: tx would need a funded issuer to apply", got)
	}
}

func TestSnapValidator_FundedIssuerAppliesSeenTx(t *testing.T) {
	const n = 4
	committee := newEngineCommittee(t, n)
	p := poset.New(n, committee)
	threshold := p.Threshold()

	genesis := make([]*unit.Unit, n)
	for creator := 0; creator < n; creator++ {
		genesis[creator] = buildAndAdd(t, committee, p, creator, nil, nil)
	}

	issuerA := committee.keys[0].PublicKey()
	receiverB := committee.keys[1].PublicKey()

	tx := EncodeTx(Tx{Issuer: issuerA, Receiver: receiverB, Amount: 60, Index: 0})
	u1 := buildAndAdd(t, committee, p, 0, []*unit.Unit{genesis[0]}, [][]byte{tx})
	w1 := buildAndAdd(t, committee, p, 1, []*unit.Unit{genesis[1], u1}, nil)
	w2 := buildAndAdd(t, committee, p, 2, []*unit.Unit{genesis[2], u1}, nil)
	v := buildAndAdd(t, committee, p, 3, []*unit.Unit{genesis[3], u1, w1, w2}, nil)

	validator := NewSnapValidator(p, threshold)
	validator.Ledger.SetBalance(issuerA, 100)

	for _, u := range []*unit.Unit{genesis[0], genesis[1], genesis[2], genesis[3], u1, w1, w2, v} {
		validator.OnUnitAdmitted(u)
	}

	if got := validator.Ledger.Balance(issuerA); got != 40 {
		t.Errorf("issuer balance = %d, want 40", got)
	}
	if got := validator.Ledger.Balance(receiverB); got != 60 {
		t.Errorf("receiver balance = %d, want 60", got)
	}
}
