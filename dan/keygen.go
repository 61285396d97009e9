package dan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/blockchain-hcj/biconomy-client-sdk/internal/logctx"
	"github.com/blockchain-hcj/biconomy-client-sdk/sessions"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// DefaultSessionDuration is the lifetime of a distributed key when the caller
// does not bound it: one year, in seconds.
const DefaultSessionDuration uint64 = 60 * 60 * 24 * 365

// KeyGenRequest asks the network for a new distributed session key.
type KeyGenRequest struct {
	// Owner authorizes the key. A nil owner fails with ReasonNoWallet.
	Owner OwnerWallet
	// DurationSeconds is the key lifetime; zero means DefaultSessionDuration.
	DurationSeconds uint64
	ChainID         uint64
	// PartiesNumber and Threshold override the client's quorum when set.
	PartiesNumber int
	Threshold     int
}

// SessionKey is a generated distributed key and the material to use it.
type SessionKey struct {
	// SessionKeyEOA is the address of the distributed secp256k1 key.
	SessionKeyEOA common.Address
	MPCKeyID      string
	// EphemeralSecret is the ephemeral Ed25519 private key as a JWK.
	EphemeralSecret string
	PartiesNumber   int
	Threshold       int
	EOAAddress      common.Address
	ChainID         uint64
}

// ModuleInfo returns the handle stored on the session's leaves.
func (k *SessionKey) ModuleInfo() sessions.DanModuleInfo {
	return sessions.DanModuleInfo{
		MPCKeyID:        k.MPCKeyID,
		EphemeralSecret: k.EphemeralSecret,
		PartiesNumber:   k.PartiesNumber,
		Threshold:       k.Threshold,
		EOAAddress:      k.EOAAddress,
		ChainID:         k.ChainID,
	}
}

// GenerateSessionKey runs the authenticate-then-generate ceremony: a fresh
// ephemeral key is authorized by the owner's EIP-712 signature and the
// network creates a distributed key bound to it.
func (c *Client) GenerateSessionKey(ctx context.Context, req KeyGenRequest) (*SessionKey, error) {
	if req.Owner == nil {
		return nil, &AuthenticationError{Reason: ReasonNoWallet, Message: "no owner wallet supplied"}
	}
	if req.ChainID == 0 {
		return nil, errors.New("dan: chain id is required")
	}
	parties, threshold := c.parties, c.thresh
	if req.PartiesNumber != 0 {
		parties = req.PartiesNumber
	}
	if req.Threshold != 0 {
		threshold = req.Threshold
	}
	if threshold <= 0 || parties < threshold {
		return nil, fmt.Errorf("dan: invalid quorum %d of %d", threshold, parties)
	}
	lifetime := req.DurationSeconds
	if lifetime == 0 {
		lifetime = DefaultSessionDuration
	}

	secret, pubJWK, rawPub, err := newEphemeralKey()
	if err != nil {
		return nil, err
	}
	payload := KeyGenPayload{
		Challenge:     uuid.NewString(),
		OwnerAddress:  req.Owner.Address(),
		EphemeralKey:  pubJWK,
		Lifetime:      lifetime,
		PartiesNumber: parties,
		Threshold:     threshold,
		ChainID:       req.ChainID,
	}
	ctx = logctx.WithCeremonyData(ctx, &logctx.CeremonyData{Type: "keygen", Challenge: payload.Challenge})

	td, err := KeyGenTypedData(payload, rawPub)
	if err != nil {
		return nil, err
	}
	sig, err := req.Owner.SignTypedData(ctx, td)
	if err != nil {
		if errors.Is(err, ErrOwnerDeclined) {
			return nil, &AuthenticationError{Reason: ReasonOwnerDeclined, Err: err}
		}
		return nil, &AuthenticationError{Reason: ReasonNoWallet, Message: "owner wallet could not sign", Err: err}
	}
	payload.OwnerSignature = sig

	var res KeyGenResult
	if err := c.post(ctx, KeyGenPath, "", payload, &res); err != nil {
		c.log.WarnContext(ctx, "dan.keygen.failed", slog.String("err", err.Error()))
		return nil, err
	}
	if res.KeyID == "" {
		return nil, &MalformedResponseError{Field: "keyId", Reason: "missing"}
	}
	if len(res.PublicKey) == 0 {
		return nil, &MalformedResponseError{Field: "publicKey", Reason: "missing"}
	}
	addr, err := addressFromPublicKey(res.PublicKey)
	if err != nil {
		return nil, &MalformedResponseError{Field: "publicKey", Reason: err.Error()}
	}
	if c.receipts != nil {
		if err := c.receipts.Verify(ctx, res.Receipt, res.KeyID, res.PublicKey, payload.OwnerAddress); err != nil {
			return nil, err
		}
	}

	c.log.InfoContext(ctx, "dan.keygen.completed",
		slog.String("key_id", res.KeyID),
		slog.String("session_key", addr.Hex()),
		slog.Int("parties", parties),
		slog.Int("threshold", threshold),
	)
	return &SessionKey{
		SessionKeyEOA:   addr,
		MPCKeyID:        res.KeyID,
		EphemeralSecret: secret,
		PartiesNumber:   parties,
		Threshold:       threshold,
		EOAAddress:      payload.OwnerAddress,
		ChainID:         req.ChainID,
	}, nil
}

func addressFromPublicKey(b []byte) (common.Address, error) {
	switch len(b) {
	case 33:
		pub, err := crypto.DecompressPubkey(b)
		if err != nil {
			return common.Address{}, err
		}
		return crypto.PubkeyToAddress(*pub), nil
	case 65:
		pub, err := crypto.UnmarshalPubkey(b)
		if err != nil {
			return common.Address{}, err
		}
		return crypto.PubkeyToAddress(*pub), nil
	}
	return common.Address{}, fmt.Errorf("unexpected public key length %d", len(b))
}
