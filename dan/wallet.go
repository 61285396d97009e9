package dan

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// OwnerWallet is the smart account owner's wallet. Interactive wallets return
// ErrOwnerDeclined when the user refuses.
type OwnerWallet interface {
	Address() common.Address
	// SignTypedData returns a 65-byte EIP-712 signature with v in {27, 28}.
	SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error)
}

// KeyWallet is a non-interactive OwnerWallet backed by a local key.
type KeyWallet struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

var _ OwnerWallet = (*KeyWallet)(nil)

func NewKeyWallet(key *ecdsa.PrivateKey) *KeyWallet {
	return &KeyWallet{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

// NewKeyWalletFromHex loads a wallet from a hex private key.
func NewKeyWalletFromHex(hexKey string) (*KeyWallet, error) {
	key, err := crypto.HexToECDSA(trim0x(hexKey))
	if err != nil {
		return nil, fmt.Errorf("dan: invalid owner key: %w", err)
	}
	return NewKeyWallet(key), nil
}

func (w *KeyWallet) Address() common.Address { return w.addr }

func (w *KeyWallet) SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := TypedDataHash(td)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(h.Bytes(), w.key)
	if err != nil {
		return nil, fmt.Errorf("dan: sign typed data: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverTypedDataSigner returns the address that produced sig over td.
func RecoverTypedDataSigner(td apitypes.TypedData, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("dan: signature must be %d bytes", crypto.SignatureLength)
	}
	h, err := TypedDataHash(td)
	if err != nil {
		return common.Address{}, err
	}
	rsv := append([]byte(nil), sig...)
	if rsv[crypto.RecoveryIDOffset] >= 27 {
		rsv[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(h.Bytes(), rsv)
	if err != nil {
		return common.Address{}, fmt.Errorf("dan: recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
