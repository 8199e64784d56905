// Package coin models the threshold-signature "coin" used by the linear
// order engine (C4) to elect timing units (§4.4).
//
// The source spec treats the threshold scheme as an external collaborator:
// "the oracle supplies share(sk_i, msg) -> sigma_i, verify_share(vk, i, msg,
// sigma_i) -> bool, combine({i -> sigma_i}) -> Sigma ... for any
// sub-collection of size >= threshold T" with the combined signature unique
// across any valid combining subset. No real threshold-BLS library appears
// anywhere in the example pack's dependency surface, so Oracle is an
// interface with that exact contract, and LocalOracle is a deterministic
// local stand-in built from the committee's existing secp256k1/BLAKE3 stack
// rather than a genuine threshold scheme.
package coin

import (
	"fmt"

	"github.com/aleph-go/poset/pkg/crypto"
	"github.com/aleph-go/poset/pkg/types"
)

// Share is one participant's contribution toward a combined coin value.
type Share []byte

// Combined is the result of folding together at least T shares. Under the
// real protocol this is the unique threshold signature on msg; here it is
// the BLAKE3 digest of msg, independent of the contributing shares.
type Combined []byte

// Oracle is the threshold coin contract used by the linear order engine.
type Oracle interface {
	// Share produces process i's contribution toward the coin at msg.
	Share(sk *crypto.PrivateKey, msg []byte) (Share, error)
	// VerifyShare checks that share was produced by the holder of pubKey.
	VerifyShare(pubKey []byte, msg []byte, share Share) bool
	// Combine folds a set of per-process shares, keyed by creator id, into
	// a single combined value for msg. The caller is responsible for only
	// calling this once at least T shares for msg are known; given that,
	// the result must depend only on msg, not on which >=T-sized subset
	// of valid shares happened to be supplied, since different processes
	// will in general cross the threshold with different subsets.
	Combine(msg []byte, shares map[int]Share) (Combined, error)
	// Verify checks a combined value against msg. Unlike VerifyShare this
	// does not take a public key: a combined threshold signature is
	// verifiable against the committee's fixed group key alone.
	Verify(msg []byte, combined Combined) bool
}

// LocalOracle is a deterministic, non-cryptographic stand-in for a real
// threshold-BLS scheme. Shares are ordinary Schnorr signatures (reusing
// pkg/crypto, so VerifyShare is a real signature check); Combine ignores
// the share bytes entirely and derives the combined value from msg alone,
// so it is unique across *any* valid combining subset, not just the one
// the caller happened to assemble first — two processes that cross T with
// different creator subsets still agree.
type LocalOracle struct{}

// NewLocalOracle constructs a LocalOracle.
func NewLocalOracle() *LocalOracle {
	return &LocalOracle{}
}

// Share signs msg with sk, producing a real, independently-verifiable
// Schnorr signature that plays the role of a threshold-signature share.
func (LocalOracle) Share(sk *crypto.PrivateKey, msg []byte) (Share, error) {
	h := crypto.Hash(msg)
	sig, err := sk.Sign(h[:])
	if err != nil {
		return nil, fmt.Errorf("coin share: %w", err)
	}
	return Share(sig), nil
}

// VerifyShare checks the Schnorr signature against pubKey and msg.
func (LocalOracle) VerifyShare(pubKey []byte, msg []byte, share Share) bool {
	h := crypto.Hash(msg)
	return crypto.VerifySignature(h[:], share, pubKey)
}

// Combine derives the coin value for msg. It does not fold the supplied
// shares' bytes at all: every share has already been authenticated by
// VerifyShare against a distinct creator's public key before it ever
// reaches here, so the only thing Combine needs to check is that enough
// of them exist. Deriving the output from msg alone, rather than from
// whichever shares the caller happened to have on hand, is what makes the
// combined value identical across any valid combining subset: two
// processes that reach T shares via different creators still land on the
// same Combined for the same msg.
func (LocalOracle) Combine(msg []byte, shares map[int]Share) (Combined, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("coin combine: no shares supplied")
	}
	acc := crypto.Hash(msg)
	return Combined(acc[:]), nil
}

// Verify reports whether combined looks like a value this oracle could have
// produced. LocalOracle has no group public key to check against, so it
// only validates shape; trust in the combined value rests on each
// contributing share already having passed VerifyShare before combination.
func (LocalOracle) Verify(msg []byte, combined Combined) bool {
	return len(combined) == len(types.Hash{})
}

// Bit extracts the low-order bit of a combined coin value. The timing-unit
// election in internal/order does not call it; it derives its start index
// from all of the combined value's bytes instead.
func (c Combined) Bit() int {
	if len(c) == 0 {
		return 0
	}
	return int(c[len(c)-1] & 1)
}
