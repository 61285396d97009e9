package dan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blockchain-hcj/biconomy-client-sdk/internal/logctx"
	"github.com/blockchain-hcj/biconomy-client-sdk/sessions"
	"github.com/ethereum/go-ethereum/common"
)

// EphemeralAuth is the credential of a signing request.
type EphemeralAuth struct {
	// Secret is the ephemeral private JWK returned by GenerateSessionKey.
	Secret        string
	EOAAddress    common.Address
	PartiesNumber int
	Threshold     int
}

// Signature is a threshold ECDSA signature.
type Signature struct {
	// RS is r || s.
	RS         [64]byte
	RecoveryID byte
}

// Bytes returns r || s || v with v = 27 + recovery id.
func (s Signature) Bytes() []byte {
	out := make([]byte, 65)
	copy(out, s.RS[:])
	out[64] = 27 + s.RecoveryID
	return out
}

// Sign runs the authenticate-then-sign ceremony for message under keyID.
func (c *Client) Sign(ctx context.Context, keyID string, message []byte, auth EphemeralAuth) (*Signature, error) {
	if keyID == "" {
		return nil, fmt.Errorf("dan: key id is required")
	}
	if len(message) == 0 {
		return nil, fmt.Errorf("dan: message is required")
	}
	priv, kid, err := ParseEphemeralSecret(auth.Secret)
	if err != nil {
		return nil, &AuthenticationError{Reason: ReasonRejected, Message: "unusable ephemeral secret", Err: err}
	}
	tok, err := mintEphemeralToken(priv, kid, auth.EOAAddress, keyID, message, c.now())
	if err != nil {
		return nil, err
	}
	ctx = logctx.WithCeremonyData(ctx, &logctx.CeremonyData{Type: "sign", KeyID: keyID})

	var res SignResult
	err = c.post(ctx, SignPath, tok, SignPayload{
		KeyID:         keyID,
		Message:       message,
		PartiesNumber: auth.PartiesNumber,
		Threshold:     auth.Threshold,
	}, &res)
	if err != nil {
		c.log.WarnContext(ctx, "dan.sign.failed", slog.String("err", err.Error()))
		return nil, err
	}
	if len(res.Sign) != 64 {
		return nil, &MalformedResponseError{Field: "sign", Reason: fmt.Sprintf("want 64 bytes, got %d", len(res.Sign))}
	}
	if res.RecID != 0 && res.RecID != 1 {
		return nil, &MalformedResponseError{Field: "recid", Reason: fmt.Sprintf("unexpected value %d", res.RecID)}
	}
	var sig Signature
	copy(sig.RS[:], res.Sign)
	sig.RecoveryID = byte(res.RecID)
	c.log.DebugContext(ctx, "dan.sign.completed")
	return &sig, nil
}

// SignMessage signs message with the distributed key described by info and
// returns r || s || v with v 0x1b or 0x1c.
func (c *Client) SignMessage(ctx context.Context, info sessions.DanModuleInfo, message []byte) ([]byte, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	sig, err := c.Sign(ctx, info.MPCKeyID, message, EphemeralAuth{
		Secret:        info.EphemeralSecret,
		EOAAddress:    info.EOAAddress,
		PartiesNumber: info.PartiesNumber,
		Threshold:     info.Threshold,
	})
	if err != nil {
		return nil, err
	}
	return sig.Bytes(), nil
}
