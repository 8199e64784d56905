package unit

import (
	"testing"

	"github.com/aleph-go/poset/pkg/crypto"
	"github.com/aleph-go/poset/pkg/types"
)

func TestUnit_SignAndVerify(t *testing.T) {
	sk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	u := &Unit{
		CreatorID: 2,
		Parents:   []types.Hash{{1}, {2}},
		Txs:       [][]byte{[]byte("tx1")},
	}
	if err := u.Sign(sk); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !u.VerifySignature(sk.PublicKey()) {
		t.Error("VerifySignature() = false, want true")
	}

	other, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	if u.VerifySignature(other.PublicKey()) {
		t.Error("VerifySignature() = true with wrong key, want false")
	}
}

func TestUnit_EncodeDecodeRoundTrip(t *testing.T) {
	sk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	u := &Unit{
		CreatorID:  1,
		Parents:    []types.Hash{{9}, {8}, {7}},
		Txs:        [][]byte{[]byte("a"), []byte("bb")},
		CoinShares: [][]byte{[]byte("share0")},
	}
	if err := u.Sign(sk); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	wantHash := u.Hash()

	encoded := Encode(u)
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	if decoded.Hash() != wantHash {
		t.Errorf("Hash() after round trip = %x, want %x", decoded.Hash(), wantHash)
	}
	if decoded.CreatorID != u.CreatorID {
		t.Errorf("CreatorID = %d, want %d", decoded.CreatorID, u.CreatorID)
	}
	if len(decoded.Parents) != len(u.Parents) {
		t.Fatalf("len(Parents) = %d, want %d", len(decoded.Parents), len(u.Parents))
	}
	for i := range u.Parents {
		if decoded.Parents[i] != u.Parents[i] {
			t.Errorf("Parents[%d] = %x, want %x", i, decoded.Parents[i], u.Parents[i])
		}
	}
}

func TestUnit_GenesisIsGenesis(t *testing.T) {
	u := &Unit{CreatorID: 0}
	if !u.IsGenesis() {
		t.Error("IsGenesis() = false for a unit with no parents")
	}
	u.Parents = []types.Hash{{1}, {2}}
	if u.IsGenesis() {
		t.Error("IsGenesis() = true for a unit with parents")
	}
}

func TestDecode_TruncatedErrors(t *testing.T) {
	if _, err := Decode([]byte{0, 0, 0}); err == nil {
		t.Error("Decode() of truncated input should error")
	}
}

func TestDecode_TrailingBytesErrors(t *testing.T) {
	u := &Unit{CreatorID: 0}
	encoded := Encode(u)
	encoded = append(encoded, 0xFF)
	if _, err := Decode(encoded); err == nil {
		t.Error("Decode() with trailing bytes should error")
	}
}
