package dan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/golang-jwt/jwt/v5"
)

// ReceiptVerifier checks key generation receipts against the network's
// published JWKS.
type ReceiptVerifier struct {
	keyfunc jwt.Keyfunc
	issuer  string
}

// NewReceiptVerifier fetches and keeps refreshing the JWKS at jwksURL.
// issuer, when set, must match the receipt's iss claim.
func NewReceiptVerifier(ctx context.Context, jwksURL, issuer string) (*ReceiptVerifier, error) {
	if jwksURL == "" {
		return nil, fmt.Errorf("dan: jwks url required")
	}
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("dan: jwks init failed: %w", err)
	}
	return &ReceiptVerifier{keyfunc: kf.Keyfunc, issuer: issuer}, nil
}

// NewStaticReceiptVerifier verifies receipts against a fixed JWK set.
func NewStaticReceiptVerifier(jwks json.RawMessage, issuer string) (*ReceiptVerifier, error) {
	kf, err := keyfunc.NewJWKSetJSON(jwks)
	if err != nil {
		return nil, fmt.Errorf("dan: invalid jwks: %w", err)
	}
	return &ReceiptVerifier{keyfunc: kf.Keyfunc, issuer: issuer}, nil
}

// Verify checks that receipt is a valid network signature over keyID, the
// generated public key and the owner.
func (v *ReceiptVerifier) Verify(ctx context.Context, receipt, keyID string, publicKey []byte, owner common.Address) error {
	if receipt == "" {
		return fmt.Errorf("%w: missing", ErrInvalidReceipt)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"EdDSA", "ES256", "RS256"}),
		jwt.WithSubject(keyID),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	var claims ReceiptClaims
	if _, err := jwt.ParseWithClaims(receipt, &claims, v.keyfunc, opts...); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}
	if !strings.EqualFold(claims.PublicKey, hexutil.Encode(publicKey)) {
		return fmt.Errorf("%w: public key mismatch", ErrInvalidReceipt)
	}
	if !strings.EqualFold(claims.Owner, owner.Hex()) {
		return fmt.Errorf("%w: owner mismatch", ErrInvalidReceipt)
	}
	return nil
}
