package dan_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blockchain-hcj/biconomy-client-sdk/dan"
	"github.com/blockchain-hcj/biconomy-client-sdk/dan/dantest"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const testChain = 80001

type declineWallet struct{ addr common.Address }

func (w declineWallet) Address() common.Address { return w.addr }

func (w declineWallet) SignTypedData(context.Context, apitypes.TypedData) ([]byte, error) {
	return nil, dan.ErrOwnerDeclined
}

// impostorWallet signs with one key but claims another address.
type impostorWallet struct {
	*dan.KeyWallet
	claimed common.Address
}

func (w impostorWallet) Address() common.Address { return w.claimed }

func newOwner(t *testing.T) *dan.KeyWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return dan.NewKeyWallet(key)
}

func newNetwork(t *testing.T) *dantest.Network {
	t.Helper()
	n := dantest.NewNetwork()
	t.Cleanup(n.Close)
	return n
}

func generate(t *testing.T, c *dan.Client, owner dan.OwnerWallet) *dan.SessionKey {
	t.Helper()
	key, err := c.GenerateSessionKey(context.Background(), dan.KeyGenRequest{Owner: owner, ChainID: testChain})
	if err != nil {
		t.Fatalf("GenerateSessionKey: %v", err)
	}
	return key
}

func recoverSigner(t *testing.T, message, sig []byte) common.Address {
	t.Helper()
	if len(sig) != 65 {
		t.Fatalf("signature length %d", len(sig))
	}
	if sig[64] != 0x1b && sig[64] != 0x1c {
		t.Fatalf("v = %#x, want 0x1b or 0x1c", sig[64])
	}
	rsv := append([]byte(nil), sig...)
	rsv[64] -= 27
	pub, err := crypto.SigToPub(dantest.SigningDigest(message), rsv)
	if err != nil {
		t.Fatalf("SigToPub: %v", err)
	}
	return crypto.PubkeyToAddress(*pub)
}

func TestGenerateAndSign(t *testing.T) {
	ctx := context.Background()
	n := newNetwork(t)
	c := dan.New(n.URL())
	owner := newOwner(t)

	key := generate(t, c, owner)
	if key.MPCKeyID == "" || key.EphemeralSecret == "" {
		t.Fatalf("incomplete key: %+v", key)
	}
	if key.EOAAddress != owner.Address() {
		t.Fatalf("EOAAddress = %s, want %s", key.EOAAddress, owner.Address())
	}
	if key.PartiesNumber != dan.DefaultPartiesNumber || key.Threshold != dan.DefaultThreshold {
		t.Fatalf("quorum = %d of %d", key.Threshold, key.PartiesNumber)
	}
	if key.ChainID != testChain {
		t.Fatalf("ChainID = %d", key.ChainID)
	}
	info := key.ModuleInfo()
	if err := info.Validate(); err != nil {
		t.Fatalf("ModuleInfo invalid: %v", err)
	}

	msg := []byte("authorize transfer")
	sig, err := c.SignMessage(ctx, info, msg)
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}
	if got := recoverSigner(t, msg, sig); got != key.SessionKeyEOA {
		t.Fatalf("recovered %s, want %s", got, key.SessionKeyEOA)
	}
	if n.KeyGenCalls() != 1 || n.SignCalls() != 1 {
		t.Fatalf("calls keygen=%d sign=%d", n.KeyGenCalls(), n.SignCalls())
	}
}

func TestGenerateCustomQuorum(t *testing.T) {
	n := newNetwork(t)
	c := dan.New(n.URL(), dan.WithQuorum(3, 2))
	key := generate(t, c, newOwner(t))
	if key.PartiesNumber != 3 || key.Threshold != 2 {
		t.Fatalf("quorum = %d of %d, want 2 of 3", key.Threshold, key.PartiesNumber)
	}

	_, err := c.GenerateSessionKey(context.Background(), dan.KeyGenRequest{
		Owner: newOwner(t), ChainID: testChain, PartiesNumber: 2, Threshold: 3,
	})
	if err == nil {
		t.Fatal("expected invalid quorum error")
	}
}

func TestGenerateOwnerDeclined(t *testing.T) {
	n := newNetwork(t)
	c := dan.New(n.URL())
	_, err := c.GenerateSessionKey(context.Background(), dan.KeyGenRequest{
		Owner:   declineWallet{addr: common.HexToAddress("0x01")},
		ChainID: testChain,
	})
	var ae *dan.AuthenticationError
	if !errors.As(err, &ae) || ae.Reason != dan.ReasonOwnerDeclined {
		t.Fatalf("err = %v, want owner declined", err)
	}
	if !errors.Is(err, dan.ErrAuthentication) || !errors.Is(err, dan.ErrOwnerDeclined) {
		t.Fatalf("error chain incomplete: %v", err)
	}
	if n.KeyGenCalls() != 0 {
		t.Fatalf("network contacted %d times", n.KeyGenCalls())
	}
}

func TestGenerateNoWallet(t *testing.T) {
	c := dan.New("http://127.0.0.1:1")
	_, err := c.GenerateSessionKey(context.Background(), dan.KeyGenRequest{ChainID: testChain})
	var ae *dan.AuthenticationError
	if !errors.As(err, &ae) || ae.Reason != dan.ReasonNoWallet {
		t.Fatalf("err = %v, want no wallet", err)
	}
}

func TestGenerateRejectedOwnerSignature(t *testing.T) {
	n := newNetwork(t)
	c := dan.New(n.URL())
	_, err := c.GenerateSessionKey(context.Background(), dan.KeyGenRequest{
		Owner:   impostorWallet{KeyWallet: newOwner(t), claimed: common.HexToAddress("0x02")},
		ChainID: testChain,
	})
	var ae *dan.AuthenticationError
	if !errors.As(err, &ae) || ae.Reason != dan.ReasonRejected || ae.Status != http.StatusUnauthorized {
		t.Fatalf("err = %v, want rejected 401", err)
	}
}

func TestSignThresholdNotMet(t *testing.T) {
	n := newNetwork(t)
	c := dan.New(n.URL())
	key := generate(t, c, newOwner(t))

	n.SetOnline(dan.DefaultThreshold - 1)
	_, err := c.SignMessage(context.Background(), key.ModuleInfo(), []byte("hi"))
	if !errors.Is(err, dan.ErrThresholdNotMet) {
		t.Fatalf("err = %v, want ErrThresholdNotMet", err)
	}

	n.SetOnline(dan.DefaultThreshold)
	if _, err := c.SignMessage(context.Background(), key.ModuleInfo(), []byte("hi")); err != nil {
		t.Fatalf("SignMessage at threshold: %v", err)
	}
}

func TestSignWithForeignEphemeralSecret(t *testing.T) {
	n := newNetwork(t)
	c := dan.New(n.URL())
	owner := newOwner(t)
	a := generate(t, c, owner)
	b := generate(t, c, owner)

	info := a.ModuleInfo()
	info.EphemeralSecret = b.EphemeralSecret
	_, err := c.SignMessage(context.Background(), info, []byte("hi"))
	var ae *dan.AuthenticationError
	if !errors.As(err, &ae) || ae.Reason != dan.ReasonRejected {
		t.Fatalf("err = %v, want rejected", err)
	}
}

func TestSignUnusableSecret(t *testing.T) {
	c := dan.New("http://127.0.0.1:1")
	_, err := c.Sign(context.Background(), "key", []byte("hi"), dan.EphemeralAuth{Secret: "not a jwk"})
	if !errors.Is(err, dan.ErrAuthentication) {
		t.Fatalf("err = %v, want authentication error", err)
	}
}

func TestSignMessageRejectsIncompleteInfo(t *testing.T) {
	n := newNetwork(t)
	c := dan.New(n.URL())
	key := generate(t, c, newOwner(t))
	info := key.ModuleInfo()
	info.ChainID = 0
	if _, err := c.SignMessage(context.Background(), info, []byte("hi")); err == nil {
		t.Fatal("expected validation error")
	}
	if n.SignCalls() != 0 {
		t.Fatalf("network contacted %d times", n.SignCalls())
	}
}

func TestMalformedResponses(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		field       string
	}{
		{"missing key id", "application/json", `{"publicKey":"0x02"}`, "keyId"},
		{"missing public key", "application/json", `{"keyId":"k"}`, "publicKey"},
		{"bad public key", "application/json", `{"keyId":"k","publicKey":"0x0102"}`, "publicKey"},
		{"not json", "text/plain", `{"keyId":"k"}`, "Content-Type"},
		{"undecodable", "application/json; charset=utf-8", `{"keyId":`, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := dan.New(srv.URL).GenerateSessionKey(context.Background(), dan.KeyGenRequest{Owner: newOwner(t), ChainID: testChain})
			var me *dan.MalformedResponseError
			if !errors.As(err, &me) || me.Field != tt.field {
				t.Fatalf("err = %v, want malformed %s", err, tt.field)
			}
			if !errors.Is(err, dan.ErrMalformedResponse) {
				t.Fatalf("errors.Is(ErrMalformedResponse) = false for %v", err)
			}
		})
	}
}

func TestMalformedSignResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sign":"0x0102","recid":0}`))
	}))
	defer srv.Close()

	n := newNetwork(t)
	key := generate(t, dan.New(n.URL()), newOwner(t))
	_, err := dan.New(srv.URL).SignMessage(context.Background(), key.ModuleInfo(), []byte("hi"))
	if !errors.Is(err, dan.ErrMalformedResponse) {
		t.Fatalf("err = %v, want malformed response", err)
	}
}

func TestRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := dan.New(srv.URL).GenerateSessionKey(context.Background(), dan.KeyGenRequest{Owner: newOwner(t), ChainID: testChain})
	var re *dan.RemoteError
	if !errors.As(err, &re) || re.Status != http.StatusBadGateway {
		t.Fatalf("err = %v, want remote 502", err)
	}
}

func TestDefaultBaseURL(t *testing.T) {
	if got := dan.New("").BaseURL(); got != dan.DefaultBaseURL {
		t.Fatalf("BaseURL = %q", got)
	}
	if got := dan.New("http://x/").BaseURL(); got != "http://x" {
		t.Fatalf("BaseURL = %q", got)
	}
}
