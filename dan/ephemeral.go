package dan

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ephemeralTokenTTL bounds the lifetime of one signing request's JWT.
const ephemeralTokenTTL = time.Minute

// newEphemeralKey returns a fresh Ed25519 key as private and public JWKs
// sharing a random key ID.
func newEphemeralKey() (secret string, public json.RawMessage, raw ed25519.PublicKey, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", nil, nil, fmt.Errorf("dan: generate ephemeral key: %w", err)
	}
	kid := uuid.NewString()
	sec, err := jose.JSONWebKey{Key: priv, KeyID: kid, Algorithm: string(jose.EdDSA), Use: "sig"}.MarshalJSON()
	if err != nil {
		return "", nil, nil, fmt.Errorf("dan: encode ephemeral key: %w", err)
	}
	pubJWK, err := jose.JSONWebKey{Key: pub, KeyID: kid, Algorithm: string(jose.EdDSA), Use: "sig"}.MarshalJSON()
	if err != nil {
		return "", nil, nil, fmt.Errorf("dan: encode ephemeral public key: %w", err)
	}
	return string(sec), pubJWK, pub, nil
}

// ParseEphemeralSecret decodes the private JWK stored as a session's
// ephemeral secret.
func ParseEphemeralSecret(secret string) (ed25519.PrivateKey, string, error) {
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON([]byte(secret)); err != nil {
		return nil, "", fmt.Errorf("dan: decode ephemeral secret: %w", err)
	}
	priv, ok := jwk.Key.(ed25519.PrivateKey)
	if !ok {
		return nil, "", fmt.Errorf("dan: ephemeral secret is %T, not an Ed25519 private key", jwk.Key)
	}
	return priv, jwk.KeyID, nil
}

// ParseEphemeralPublicKey decodes the public JWK sent at key generation.
func ParseEphemeralPublicKey(raw json.RawMessage) (ed25519.PublicKey, string, error) {
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(raw); err != nil {
		return nil, "", fmt.Errorf("dan: decode ephemeral public key: %w", err)
	}
	if !jwk.IsPublic() {
		return nil, "", fmt.Errorf("dan: ephemeral key is not a public key")
	}
	pub, ok := jwk.Key.(ed25519.PublicKey)
	if !ok {
		return nil, "", fmt.Errorf("dan: ephemeral key is %T, not Ed25519", jwk.Key)
	}
	return pub, jwk.KeyID, nil
}

// MessageHash is the digest an ephemeral JWT binds to.
func MessageHash(message []byte) string { return crypto.Keccak256Hash(message).Hex() }

func mintEphemeralToken(priv ed25519.PrivateKey, kid string, owner common.Address, keyID string, message []byte, now time.Time) (string, error) {
	claims := EphemeralClaims{
		MessageHash: MessageHash(message),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    owner.Hex(),
			Subject:   keyID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ephemeralTokenTTL)),
			ID:        uuid.NewString(),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(priv)
	if err != nil {
		return "", fmt.Errorf("dan: sign ephemeral token: %w", err)
	}
	return s, nil
}
