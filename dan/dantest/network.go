// Package dantest provides an in-process fake of the distributed account
// network for tests.
package dantest

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blockchain-hcj/biconomy-client-sdk/account"
	"github.com/blockchain-hcj/biconomy-client-sdk/dan"
	ethaccounts "github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is the iss claim of receipts issued by the fake network.
const Issuer = "dantest"

const receiptKID = "dantest-receipt"

type distributedKey struct {
	priv      *ecdsa.PrivateKey
	ephemeral ed25519.PublicKey
	owner     common.Address
	parties   int
	threshold int
	expires   time.Time
}

// Network is a fake threshold network. It verifies owner authorizations and
// ephemeral tokens like the real one and signs with an ordinary secp256k1 key.
type Network struct {
	srv        *httptest.Server
	receiptKey ed25519.PrivateKey
	receiptPub ed25519.PublicKey

	mu     sync.Mutex
	keys   map[string]*distributedKey
	online int

	keygens atomic.Int32
	signs   atomic.Int32
}

// NewNetwork starts a network with every party online.
func NewNetwork() *Network {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	n := &Network{
		receiptKey: priv,
		receiptPub: pub,
		keys:       make(map[string]*distributedKey),
		online:     -1,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+dan.KeyGenPath, n.handleKeyGen)
	mux.HandleFunc("POST "+dan.SignPath, n.handleSign)
	mux.HandleFunc("GET "+dan.JWKSPath, n.handleJWKS)
	n.srv = httptest.NewServer(mux)
	return n
}

func (n *Network) URL() string { return n.srv.URL }

// JWKSURL is where receipt verification keys are published.
func (n *Network) JWKSURL() string { return n.srv.URL + dan.JWKSPath }

func (n *Network) Close() { n.srv.Close() }

// SetOnline limits how many parties take part in ceremonies. A negative value
// means all of them.
func (n *Network) SetOnline(parties int) {
	n.mu.Lock()
	n.online = parties
	n.mu.Unlock()
}

// KeyGenCalls is the number of key generation requests received.
func (n *Network) KeyGenCalls() int { return int(n.keygens.Load()) }

// SignCalls is the number of signing requests received.
func (n *Network) SignCalls() int { return int(n.signs.Load()) }

// JWKS returns the receipt verification key set.
func (n *Network) JWKS() json.RawMessage {
	b, err := json.Marshal(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       n.receiptPub,
		KeyID:     receiptKID,
		Algorithm: string(jose.EdDSA),
		Use:       "sig",
	}}})
	if err != nil {
		panic(err)
	}
	return b
}

func (n *Network) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(n.JWKS())
}

func (n *Network) handleKeyGen(w http.ResponseWriter, r *http.Request) {
	n.keygens.Add(1)
	var p dan.KeyGenPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, dan.CodeBadRequest, err.Error())
		return
	}
	ephemeral, _, err := dan.ParseEphemeralPublicKey(p.EphemeralKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, dan.CodeBadRequest, err.Error())
		return
	}
	td, err := dan.KeyGenTypedData(p, ephemeral)
	if err != nil {
		writeError(w, http.StatusBadRequest, dan.CodeBadRequest, err.Error())
		return
	}
	signer, err := dan.RecoverTypedDataSigner(td, p.OwnerSignature)
	if err != nil || signer != p.OwnerAddress {
		writeError(w, http.StatusUnauthorized, dan.CodeUnauthorized, "owner signature does not match owner address")
		return
	}
	if !n.quorum(p.Threshold) {
		writeError(w, http.StatusConflict, dan.CodeThresholdNotMet, "not enough parties online")
		return
	}

	priv, err := crypto.GenerateKey()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	keyID := uuid.NewString()
	pub := crypto.FromECDSAPub(&priv.PublicKey)
	n.mu.Lock()
	n.keys[keyID] = &distributedKey{
		priv:      priv,
		ephemeral: ephemeral,
		owner:     p.OwnerAddress,
		parties:   p.PartiesNumber,
		threshold: p.Threshold,
		expires:   time.Now().Add(time.Duration(p.Lifetime) * time.Second),
	}
	n.mu.Unlock()

	receipt, err := n.receipt(keyID, pub, p.OwnerAddress)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, dan.KeyGenResult{KeyID: keyID, PublicKey: pub, Receipt: receipt})
}

func (n *Network) receipt(keyID string, pub []byte, owner common.Address) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, dan.ReceiptClaims{
		PublicKey: "0x" + common.Bytes2Hex(pub),
		Owner:     owner.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   Issuer,
			Subject:  keyID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	})
	tok.Header["kid"] = receiptKID
	return tok.SignedString(n.receiptKey)
}

func (n *Network) handleSign(w http.ResponseWriter, r *http.Request) {
	n.signs.Add(1)
	bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		writeError(w, http.StatusUnauthorized, dan.CodeUnauthorized, "missing bearer token")
		return
	}
	var p dan.SignPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, dan.CodeBadRequest, err.Error())
		return
	}
	n.mu.Lock()
	key := n.keys[p.KeyID]
	n.mu.Unlock()
	if key == nil {
		writeError(w, http.StatusNotFound, "unknown_key", p.KeyID)
		return
	}
	if time.Now().After(key.expires) {
		writeError(w, http.StatusForbidden, dan.CodeUnauthorized, "key expired")
		return
	}

	var claims dan.EphemeralClaims
	_, err := jwt.ParseWithClaims(bearer, &claims, func(*jwt.Token) (any, error) { return key.ephemeral, nil },
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithSubject(p.KeyID),
		jwt.WithIssuer(key.owner.Hex()),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		writeError(w, http.StatusUnauthorized, dan.CodeUnauthorized, err.Error())
		return
	}
	if claims.MessageHash != dan.MessageHash(p.Message) {
		writeError(w, http.StatusUnauthorized, dan.CodeUnauthorized, "token is bound to another message")
		return
	}
	if !n.quorum(key.threshold) {
		writeError(w, http.StatusConflict, dan.CodeThresholdNotMet, "not enough parties online")
		return
	}

	sig, err := crypto.Sign(SigningDigest(p.Message), key.priv)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, dan.SignResult{Sign: sig[:64], RecID: int(sig[64])})
}

func (n *Network) quorum(threshold int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online < 0 || n.online >= threshold
}

type signedUserOp struct {
	UserOperation struct {
		Sender               common.Address `json:"sender"`
		Nonce                string         `json:"nonce"`
		InitCode             string         `json:"initCode"`
		CallData             string         `json:"callData"`
		CallGasLimit         string         `json:"callGasLimit"`
		VerificationGasLimit string         `json:"verificationGasLimit"`
		PreVerificationGas   string         `json:"preVerificationGas"`
		MaxFeePerGas         string         `json:"maxFeePerGas"`
		MaxPriorityFeePerGas string         `json:"maxPriorityFeePerGas"`
		PaymasterAndData     string         `json:"paymasterAndData"`
	} `json:"userOperation"`
	EntryPointAddress common.Address `json:"entryPointAddress"`
	ChainID           uint64         `json:"chainId"`
}

// SigningDigest is what the network signs for message: the EIP-191 hash of
// the user operation hash when message is a user operation signing request,
// otherwise the EIP-191 hash of the message itself.
func SigningDigest(message []byte) []byte {
	var req signedUserOp
	if err := json.Unmarshal(message, &req); err != nil || req.ChainID == 0 || req.UserOperation.CallData == "" {
		return ethaccounts.TextHash(message)
	}
	u := req.UserOperation
	op := &account.UserOperation{
		Sender:               u.Sender,
		Nonce:                dec(u.Nonce),
		InitCode:             common.FromHex(u.InitCode),
		CallData:             common.FromHex(u.CallData),
		CallGasLimit:         dec(u.CallGasLimit),
		VerificationGasLimit: dec(u.VerificationGasLimit),
		PreVerificationGas:   dec(u.PreVerificationGas),
		MaxFeePerGas:         dec(u.MaxFeePerGas),
		MaxPriorityFeePerGas: dec(u.MaxPriorityFeePerGas),
		PaymasterAndData:     common.FromHex(u.PaymasterAndData),
	}
	h, err := account.UserOpHash(op, req.EntryPointAddress, req.ChainID)
	if err != nil {
		return ethaccounts.TextHash(message)
	}
	return ethaccounts.TextHash(h.Bytes())
}

func dec(s string) *big.Int {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return b
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dan.ErrorBody{Code: code, Message: msg})
}
