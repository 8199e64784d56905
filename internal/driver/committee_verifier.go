package driver

import (
	"fmt"

	"github.com/aleph-go/poset/config"
)

// CommitteeVerifier adapts a config.Committee into poset.Verifier and
// order.Verifier: both only ever need "creator id -> public key".
type CommitteeVerifier struct {
	keys [][]byte
}

// NewCommitteeVerifier decodes every member's hex public key once at
// startup.
func NewCommitteeVerifier(committee *config.Committee) (*CommitteeVerifier, error) {
	keys := make([][]byte, len(committee.Members))
	for i, m := range committee.Members {
		pub, err := m.PubKeyBytes()
		if err != nil {
			return nil, fmt.Errorf("committee member %d: %w", i, err)
		}
		keys[i] = pub
	}
	return &CommitteeVerifier{keys: keys}, nil
}

// PublicKey implements poset.Verifier and order.Verifier.
func (v *CommitteeVerifier) PublicKey(creatorID int) ([]byte, bool) {
	if creatorID < 0 || creatorID >= len(v.keys) {
		return nil, false
	}
	return v.keys[creatorID], true
}

// PubKeysHex returns every member's hex-encoded public key in creator-id
// order, the input CommonRandomPermutation needs (§6).
func (v *CommitteeVerifier) PubKeysHex() []string {
	out := make([]string, len(v.keys))
	for i, k := range v.keys {
		out[i] = fmt.Sprintf("%x", k)
	}
	return out
}
