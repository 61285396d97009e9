package dan

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/golang-jwt/jwt/v5"
)

// Wire paths, relative to the network base URL.
const (
	KeyGenPath = "/v1/keygen"
	SignPath   = "/v1/sign"
	JWKSPath   = "/.well-known/jwks.json"
)

// Error codes carried in ErrorBody.Code.
const (
	CodeThresholdNotMet = "threshold_not_met"
	CodeUnauthorized    = "unauthorized"
	CodeBadRequest      = "bad_request"
)

// KeyGenPayload is the body of a key generation request.
type KeyGenPayload struct {
	Challenge     string          `json:"challenge"`
	OwnerAddress  common.Address  `json:"ownerAddress"`
	EphemeralKey  json.RawMessage `json:"ephemeralKey"`
	Lifetime      uint64          `json:"lifetime"`
	PartiesNumber int             `json:"partiesNumber"`
	Threshold     int             `json:"threshold"`
	ChainID       uint64          `json:"chainId"`
	// OwnerSignature signs KeyGenTypedData of the fields above.
	OwnerSignature hexutil.Bytes `json:"ownerSignature"`
}

// KeyGenResult is the body of a successful key generation response.
type KeyGenResult struct {
	KeyID string `json:"keyId"`
	// PublicKey is the secp256k1 public key, compressed or uncompressed.
	PublicKey hexutil.Bytes `json:"publicKey"`
	// Receipt is an optional JWT signed by the network attesting the key.
	Receipt string `json:"receipt,omitempty"`
}

// SignPayload is the body of a signing request. The request carries the
// ephemeral JWT as a bearer token.
type SignPayload struct {
	KeyID         string        `json:"keyId"`
	Message       hexutil.Bytes `json:"message"`
	PartiesNumber int           `json:"partiesNumber"`
	Threshold     int           `json:"threshold"`
}

// SignResult is the body of a successful signing response.
type SignResult struct {
	// Sign is r || s.
	Sign  hexutil.Bytes `json:"sign"`
	RecID int           `json:"recid"`
}

// ErrorBody is the body of every non-success response.
type ErrorBody struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

// EphemeralClaims are the claims of the JWT that authenticates a signing
// request. The subject is the MPC key ID and MessageHash binds the token to
// one message.
type EphemeralClaims struct {
	MessageHash string `json:"msg_hash"`
	jwt.RegisteredClaims
}

// ReceiptClaims are the claims of a key generation receipt.
type ReceiptClaims struct {
	PublicKey string `json:"pk"`
	Owner     string `json:"owner"`
	jwt.RegisteredClaims
}

// KeyGenTypedData is the EIP-712 document the owner signs to authorize key
// generation. ephemeralPublicKey is the raw 32-byte Ed25519 key.
func KeyGenTypedData(p KeyGenPayload, ephemeralPublicKey []byte) (apitypes.TypedData, error) {
	if len(ephemeralPublicKey) != 32 {
		return apitypes.TypedData{}, fmt.Errorf("dan: ephemeral public key must be 32 bytes, got %d", len(ephemeralPublicKey))
	}
	chainID := (*math.HexOrDecimal256)(new(big.Int).SetUint64(p.ChainID))
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"SessionKeyAuthorization": {
				{Name: "owner", Type: "address"},
				{Name: "ephemeralKey", Type: "bytes32"},
				{Name: "lifetime", Type: "uint256"},
				{Name: "partiesNumber", Type: "uint256"},
				{Name: "threshold", Type: "uint256"},
				{Name: "challenge", Type: "string"},
			},
		},
		PrimaryType: "SessionKeyAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:    "Distributed Account Network",
			Version: "1",
			ChainId: chainID,
		},
		Message: apitypes.TypedDataMessage{
			"owner":         p.OwnerAddress.Hex(),
			"ephemeralKey":  hexutil.Encode(ephemeralPublicKey),
			"lifetime":      strconv.FormatUint(p.Lifetime, 10),
			"partiesNumber": strconv.Itoa(p.PartiesNumber),
			"threshold":     strconv.Itoa(p.Threshold),
			"challenge":     p.Challenge,
		},
	}, nil
}

// TypedDataHash is the EIP-712 digest of td.
func TypedDataHash(td apitypes.TypedData) (common.Hash, error) {
	h, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Hash{}, fmt.Errorf("dan: hash typed data: %w", err)
	}
	return common.BytesToHash(h), nil
}
