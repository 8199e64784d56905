package order

import (
	"bytes"
	"strconv"

	"github.com/aleph-go/poset/internal/poset"
	"github.com/aleph-go/poset/internal/unit"
)

// SnapValidator implements the SNAP fast-validation mode (§4.4): a
// transaction is applied the moment some admitted unit is "high above"
// its carrying unit, provided no equivocating transaction is visible
// below that validator. It maintains its own Ledger, mutually exclusive
// with the timing-based Engine's (§4.4 "the two modes are mutually
// exclusive per process").
type SnapValidator struct {
	poset     *poset.Poset
	Ledger    *Ledger
	threshold int
	pending   map[string][]*pendingTx
}

type pendingTx struct {
	carrier *unit.Unit
	raw     []byte
	tx      Tx
}

// NewSnapValidator constructs a validator requiring sees-through-quorum of
// at least threshold creators to confirm a transaction.
func NewSnapValidator(p *poset.Poset, threshold int) *SnapValidator {
	return &SnapValidator{
		poset:     p,
		Ledger:    NewLedger(),
		threshold: threshold,
		pending:   make(map[string][]*pendingTx),
	}
}

func txMapKey(issuer []byte, index int64) string {
	var buf bytes.Buffer
	buf.Write(issuer)
	buf.WriteByte('|')
	buf.WriteString(strconv.FormatInt(index, 10))
	return buf.String()
}

// OnUnitAdmitted must be called once per admitted unit, in admission
// order. The newly admitted unit both contributes fresh candidate
// transactions and is re-tried as a validator for every still-pending one.
func (s *SnapValidator) OnUnitAdmitted(carrier *unit.Unit) {
	for _, raw := range carrier.Txs {
		tx, err := DecodeTx(raw)
		if err != nil {
			continue
		}
		k := txMapKey(tx.Issuer, tx.Index)
		s.pending[k] = append(s.pending[k], &pendingTx{carrier: carrier, raw: raw, tx: tx})
	}

	for k, list := range s.pending {
		remaining := list[:0]
		for _, p := range list {
			if !s.tryResolve(carrier, p) {
				remaining = append(remaining, p)
			}
		}
		if len(remaining) == 0 {
			delete(s.pending, k)
		} else {
			s.pending[k] = remaining
		}
	}
}

// tryResolve attempts to confirm p against validator. It returns true once
// p is resolved — either applied, or permanently dropped because an
// equivocating transaction is now visible below validator — and false if
// validator does not yet see the carrying unit through quorum.
func (s *SnapValidator) tryResolve(validator *unit.Unit, p *pendingTx) bool {
	if !s.poset.SeesThroughQuorumDescendant(validator, p.carrier, s.threshold) {
		return false
	}
	if s.conflictBelow(validator, p) {
		return true // superseded by an equivocating branch; skip silently
	}
	s.Ledger.Apply(p.tx)
	return true
}

// conflictBelow reports whether any ancestor of validator carries a
// distinct transaction with the same (issuer, index) as p.
func (s *SnapValidator) conflictBelow(validator *unit.Unit, p *pendingTx) bool {
	for _, ancestor := range s.poset.AncestorsOf(validator) {
		for _, raw := range ancestor.Txs {
			if bytes.Equal(raw, p.raw) {
				continue
			}
			tx, err := DecodeTx(raw)
			if err != nil {
				continue
			}
			if bytes.Equal(tx.Issuer, p.tx.Issuer) && tx.Index == p.tx.Index {
				return true
			}
		}
	}
	return false
}
