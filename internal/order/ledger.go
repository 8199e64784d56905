package order

import "encoding/hex"

// Account is one pubkey's ledger state (§3 "Ledger (external)").
type Account struct {
	Balance   int64
	LastIndex int64
}

// Ledger is the replicated pubkey -> (balance, last_index) map mutated
// only by this engine, as §3 requires.
type Ledger struct {
	accounts map[string]*Account
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[string]*Account)}
}

func key(pubkey []byte) string {
	return hex.EncodeToString(pubkey)
}

// A new account's LastIndex starts at -1, so the first valid transaction for
// a fresh issuer carries index 0 (§8 scenario 4 "tx (A->B, 60, index=0)").
func (l *Ledger) account(pubkey []byte) *Account {
	k := key(pubkey)
	a, ok := l.accounts[k]
	if !ok {
		a = &Account{LastIndex: -1}
		l.accounts[k] = a
	}
	return a
}

// Balance returns a pubkey's current balance (0 if never seen).
func (l *Ledger) Balance(pubkey []byte) int64 {
	if a, ok := l.accounts[key(pubkey)]; ok {
		return a.Balance
	}
	return 0
}

// LastIndex returns a pubkey's last applied transaction index (-1 if none
// applied yet).
func (l *Ledger) LastIndex(pubkey []byte) int64 {
	if a, ok := l.accounts[key(pubkey)]; ok {
		return a.LastIndex
	}
	return -1
}

// SetBalance seeds an account's opening balance (genesis funding; not part
// of the linear-order replay path).
func (l *Ledger) SetBalance(pubkey []byte, balance int64) {
	l.account(pubkey).Balance = balance
}

// Valid reports whether tx may be applied against the current ledger
// state, per §4.4's three conditions.
func (l *Ledger) Valid(tx Tx) bool {
	if tx.Amount < 0 {
		return false
	}
	issuer := l.account(tx.Issuer)
	if issuer.Balance < tx.Amount {
		return false
	}
	return tx.Index == issuer.LastIndex+1
}

// Apply validates and, if valid, applies tx: debits the issuer, credits
// the receiver, and advances the issuer's last_index. Invalid
// transactions are skipped silently, never treated as errors (§4.4,
// §7 "TxInvalid"). Returns whether the transaction was applied.
func (l *Ledger) Apply(tx Tx) bool {
	if !l.Valid(tx) {
		return false
	}
	issuer := l.account(tx.Issuer)
	receiver := l.account(tx.Receiver)
	issuer.Balance -= tx.Amount
	receiver.Balance += tx.Amount
	issuer.LastIndex = tx.Index
	return true
}
