package sessions

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer signs on behalf of a session key.
type Signer interface {
	Address() common.Address
	// SignMessage signs the EIP-191 personal message hash of msg and returns a
	// 65-byte signature with v in {27, 28}.
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
}

// LocalSigner is a Signer backed by an in-process secp256k1 key.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	addr    common.Address
	chainID uint64
}

var _ Signer = (*LocalSigner)(nil)

// NewLocalSigner loads a signer from stored key material. The stored public key,
// when set, must match the private key.
func NewLocalSigner(d SignerData) (*LocalSigner, error) {
	key, err := crypto.ToECDSA(d.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("sessions: invalid signer key: %w", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	if d.PublicKey != zeroAddr && d.PublicKey != addr {
		return nil, fmt.Errorf("sessions: signer key does not match public key %s", d.PublicKey.Hex())
	}
	return &LocalSigner{key: key, addr: addr, chainID: d.ChainID}, nil
}

// NewRandomSigner generates fresh key material for chainID.
func NewRandomSigner(chainID uint64) (SignerData, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return SignerData{}, fmt.Errorf("sessions: generate key: %w", err)
	}
	return SignerData{
		PrivateKey: crypto.FromECDSA(key),
		PublicKey:  crypto.PubkeyToAddress(key.PublicKey),
		ChainID:    chainID,
	}, nil
}

func (s *LocalSigner) Address() common.Address { return s.addr }

// ChainID is the chain the key was registered for.
func (s *LocalSigner) ChainID() uint64 { return s.chainID }

func (s *LocalSigner) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(accounts.TextHash(msg), s.key)
	if err != nil {
		return nil, fmt.Errorf("sessions: sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
