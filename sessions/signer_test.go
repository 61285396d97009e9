package sessions

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestLocalSignerPersonalSign(t *testing.T) {
	data, err := NewRandomSigner(137)
	if err != nil {
		t.Fatalf("NewRandomSigner: %v", err)
	}
	s, err := NewLocalSigner(data)
	if err != nil {
		t.Fatalf("NewLocalSigner: %v", err)
	}
	if s.Address() != data.PublicKey || s.ChainID() != 137 {
		t.Fatalf("signer does not match its data")
	}

	hash := crypto.Keccak256([]byte("op"))
	sig, err := s.SignMessage(context.Background(), hash)
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}
	if v := sig[64]; v != 27 && v != 28 {
		t.Fatalf("v = %d, want 27 or 28", v)
	}
	raw := append([]byte(nil), sig...)
	raw[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash(hash), raw)
	if err != nil {
		t.Fatalf("SigToPub: %v", err)
	}
	if crypto.PubkeyToAddress(*pub) != s.Address() {
		t.Fatalf("recovered wrong address")
	}
}

func TestLocalSignerRejectsBadKey(t *testing.T) {
	if _, err := NewLocalSigner(SignerData{PrivateKey: []byte{1, 2, 3}}); err == nil {
		t.Fatalf("expected error for malformed key")
	}
}
