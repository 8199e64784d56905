package poset

import "errors"

// Error kinds for unit admission (§7). CryptoFailure is treated as a
// UnitNonCompliant case rather than its own sentinel, per §7's "treated as
// UnitNonCompliant".
var (
	// ErrParentMissing: check 1 — a referenced parent has not been admitted.
	ErrParentMissing = errors.New("poset: parent not admitted")
	// ErrParentCount: check 2 — a non-genesis unit needs >= 2 parents.
	ErrParentCount = errors.New("poset: non-genesis unit must have at least 2 distinct parents")
	// ErrParentsNotDistinct: check 2 — parents repeat a hash.
	ErrParentsNotDistinct = errors.New("poset: parents are not pairwise distinct")
	// ErrSelfPredecessor: check 3 — parent 0 is not creator's self-predecessor.
	ErrSelfPredecessor = errors.New("poset: parent 0 is not the creator's self-predecessor")
	// ErrDuplicateParentCreator: check 4 — two parents share a creator.
	ErrDuplicateParentCreator = errors.New("poset: two parents share a creator")
	// ErrSignatureInvalid: check 6 — signature does not verify (CryptoFailure).
	ErrSignatureInvalid = errors.New("poset: signature does not verify")
	// ErrUnknownCreator: the committee has no public key for this creator id.
	ErrUnknownCreator = errors.New("poset: unknown creator id")
	// ErrExpandPrimes: check 7 — an additional parent fails to expand the
	// set of prime ancestors visible at the self-predecessor's level.
	ErrExpandPrimes = errors.New("poset: parent does not expand visible prime set")
)

// UnitNonCompliant wraps the specific compliance failure (§4.3, §7). The
// caller matches the wrapped sentinel with errors.Is; the peer responsible
// is not banned for this, since it may simply be honest-but-stale.
type UnitNonCompliant struct {
	Reason error
}

func (e *UnitNonCompliant) Error() string {
	return "unit non-compliant: " + e.Reason.Error()
}

func (e *UnitNonCompliant) Unwrap() error {
	return e.Reason
}

func nonCompliant(reason error) *UnitNonCompliant {
	return &UnitNonCompliant{Reason: reason}
}
